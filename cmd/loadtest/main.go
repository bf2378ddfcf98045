// Command loadtest drives sustained query traffic against a running search
// service and summarizes throughput and latency. It needs nothing beyond the
// service URL, so it can point at a local binary or a deployed instance.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"
)

type options struct {
	baseURL  string
	workers  int
	duration time.Duration
}

// tally is one worker's private view of the run. Workers never share a
// tally, so recording a request takes no locks; the slices are merged
// once after every worker has stopped.
type tally struct {
	requests int64
	failures int64
	byStatus map[int]int64
	samples  []time.Duration
}

func newTally() tally {
	return tally{
		byStatus: make(map[int]int64),
		samples:  make([]time.Duration, 0, 4096),
	}
}

func (t *tally) record(elapsed time.Duration, status int, err error) {
	t.requests++
	if err != nil {
		t.failures++
		return
	}
	t.byStatus[status]++
	t.samples = append(t.samples, elapsed)
}

var queries = []string{
	"deep learning",
	"transformer attention",
	"reinforcement learning",
	"graph neural network",
	"large language model",
	"diffusion model",
	"convolutional network",
	"speech recognition",
	"machine translation",
	"bayesian inference",
	"generative adversarial network",
	"self supervised learning",
	"object detection",
	"neural architecture search",
	"federated learning",
}

// searchShapes cycles filters, sorting, and expansion toggles through the
// workers so every query path sees traffic, not just plain keyword search.
var searchShapes = []string{
	"/api/v1/search?q=%s&limit=10",
	"/api/v1/search?q=%s&limit=10&category=cs.LG",
	"/api/v1/search?q=%s&limit=10&sort=date_desc",
	"/api/v1/search?q=%s&limit=10&year_from=2022",
	"/api/v1/search?q=%s&limit=10&semantic=false",
}

// buildURL picks the i-th request for a worker. Every 20th request polls
// index stats instead of searching, mimicking a dashboard refresh.
func buildURL(base string, i int) string {
	const statsEvery = 20
	if i%statsEvery == statsEvery-1 {
		return base + "/api/v1/index/stats"
	}
	q := url.QueryEscape(queries[i%len(queries)])
	return base + fmt.Sprintf(searchShapes[i%len(searchShapes)], q)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	workers := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "how long to run")
	flag.Parse()

	opts := options{baseURL: *baseURL, workers: *workers, duration: *duration}

	if err := probe(opts.baseURL); err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach %s: %v\n", opts.baseURL, err)
		os.Exit(1)
	}

	fmt.Printf("paperscope load test: %s, %d workers, %s\n\n",
		opts.baseURL, opts.workers, opts.duration)

	merged := run(opts)
	printSummary(merged, opts.duration)

	if merged.requests == 0 {
		fmt.Fprintln(os.Stderr, "no requests completed")
		os.Exit(1)
	}
}

// probe checks that something is listening before spinning up workers. Any
// HTTP response counts as reachable; a warming index answers 503 and the
// status breakdown will show that, which is still a useful run.
func probe(base string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(base + "/health/ready")
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("note: service not ready yet (readiness returned %d), running anyway\n", resp.StatusCode)
	}
	return nil
}

func run(opts options) tally {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.workers * 2,
			MaxIdleConnsPerHost: opts.workers * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	var issued atomic.Int64
	tallies := make([]tally, opts.workers)
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < opts.workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			t := newTally()
			for i := id; ctx.Err() == nil; i++ {
				target := buildURL(opts.baseURL, i)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					t.record(0, 0, err)
					continue
				}
				began := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(began)
				if err != nil {
					if ctx.Err() != nil {
						break
					}
					t.record(elapsed, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				t.record(elapsed, resp.StatusCode, nil)
				issued.Add(1)
			}
			tallies[id] = t
		}(w)
	}

	go progress(ctx, &issued, start)

	wg.Wait()
	fmt.Println()
	return merge(tallies)
}

// progress prints a running count every few seconds so a long run is
// visibly alive.
func progress(ctx context.Context, issued *atomic.Int64, start time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := issued.Load()
			elapsed := time.Since(start).Seconds()
			fmt.Printf("  %s elapsed, %d requests, %.0f req/s\n",
				time.Since(start).Round(time.Second), n, float64(n)/elapsed)
		}
	}
}

func merge(tallies []tally) tally {
	out := newTally()
	for _, t := range tallies {
		out.requests += t.requests
		out.failures += t.failures
		for code, n := range t.byStatus {
			out.byStatus[code] += n
		}
		out.samples = append(out.samples, t.samples...)
	}
	return out
}

func printSummary(t tally, duration time.Duration) {
	var ok int64
	for code, n := range t.byStatus {
		if code >= 200 && code < 300 {
			ok += n
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "requests\t%d\n", t.requests)
	fmt.Fprintf(w, "successful\t%d\n", ok)
	fmt.Fprintf(w, "transport errors\t%d\n", t.failures)
	if t.requests > 0 {
		fmt.Fprintf(w, "throughput\t%.1f req/s\n", float64(t.requests)/duration.Seconds())
	}

	if len(t.samples) > 0 {
		sorted := make([]time.Duration, len(t.samples))
		copy(sorted, t.samples)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum time.Duration
		for _, s := range sorted {
			sum += s
		}
		fmt.Fprintf(w, "latency min\t%s\n", sorted[0])
		fmt.Fprintf(w, "latency avg\t%s\n", sum/time.Duration(len(sorted)))
		fmt.Fprintf(w, "latency p50\t%s\n", quantile(sorted, 0.50))
		fmt.Fprintf(w, "latency p90\t%s\n", quantile(sorted, 0.90))
		fmt.Fprintf(w, "latency p99\t%s\n", quantile(sorted, 0.99))
		fmt.Fprintf(w, "latency max\t%s\n", sorted[len(sorted)-1])
	}

	codes := make([]int, 0, len(t.byStatus))
	for code := range t.byStatus {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "status %d\t%d\n", code, t.byStatus[code])
	}
	w.Flush()
}

// quantile interpolates linearly between the two samples straddling the
// requested rank, so small sample sets do not snap to a single outlier.
func quantile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + time.Duration(frac*float64(sorted[hi]-sorted[lo]))
}
