// Command searchctl is an admin client for a running searchd instance. It
// talks to the admin RPC listener, not the public HTTP API.
//
// Usage:
//
//	searchctl [-addr localhost:9000] rebuild [-wait]
//	searchctl [-addr localhost:9000] stats
//	searchctl [-addr localhost:9000] invalidate
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/paperscope/paperscope/pkg/grpc"
	"github.com/paperscope/paperscope/pkg/proto"
)

func main() {
	addr := flag.String("addr", "localhost:9000", "admin address of searchd")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	client, err := grpc.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "searchctl: connecting to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer client.Close()

	switch cmd := flag.Arg(0); cmd {
	case "rebuild":
		err = runRebuild(client, flag.Args()[1:])
	case "stats":
		err = runStats(client)
	case "invalidate":
		err = runInvalidate(client)
	default:
		fmt.Fprintf(os.Stderr, "searchctl: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "searchctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: searchctl [-addr host:port] <command>")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  rebuild [-wait]   trigger an index rebuild")
	fmt.Fprintln(os.Stderr, "  stats             show index and cache stats")
	fmt.Fprintln(os.Stderr, "  invalidate        flush the query cache")
}

func runRebuild(client *grpc.Client, args []string) error {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	wait := fs.Bool("wait", false, "block until the rebuild completes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var resp proto.RebuildResponse
	if err := client.Call("Admin.Rebuild", proto.RebuildRequest{Wait: *wait}, &resp); err != nil {
		return err
	}
	if resp.Completed {
		fmt.Printf("rebuild complete: %d documents, %d terms, took %dms\n",
			resp.DocCount, resp.TermCount, resp.TookMs)
		return nil
	}
	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
	return nil
}

func runStats(client *grpc.Client) error {
	var resp proto.StatsResponse
	if err := client.Call("Admin.Stats", proto.StatsRequest{}, &resp); err != nil {
		return err
	}
	if !resp.Ready {
		fmt.Println("index: not built yet")
	} else {
		fmt.Printf("index: %d documents, %d terms, %d tokens, avg doc length %.1f\n",
			resp.DocCount, resp.TermCount, resp.TotalTokens, resp.AvgDocLen)
		fmt.Printf("built: %s\n", time.Unix(resp.BuiltAt, 0).UTC().Format(time.RFC3339))
	}
	total := resp.CacheHits + resp.CacheMisses
	if total > 0 {
		fmt.Printf("cache: %d hits, %d misses (%.1f%% hit rate)\n",
			resp.CacheHits, resp.CacheMisses, 100*float64(resp.CacheHits)/float64(total))
	} else {
		fmt.Println("cache: no traffic yet")
	}
	return nil
}

func runInvalidate(client *grpc.Client) error {
	var resp proto.InvalidateResponse
	if err := client.Call("Admin.InvalidateCache", proto.InvalidateRequest{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("invalidate failed: %s", resp.Message)
	}
	fmt.Println("query cache flushed")
	return nil
}
