// Package grpc implements the admin RPC channel: newline-delimited JSON
// request/response pairs over a persistent TCP connection, with method
// dispatch by "Service.Method" name. Message payloads live in pkg/proto.
//
// Server side:
//
//	s := grpc.NewServer()
//	s.Register("Admin.Rebuild", func(ctx context.Context, raw json.RawMessage) (any, error) {
//	    var req proto.RebuildRequest
//	    if err := json.Unmarshal(raw, &req); err != nil {
//	        return nil, err
//	    }
//	    // ... trigger the rebuild ...
//	    return &proto.RebuildResponse{Completed: true}, nil
//	})
//	s.Serve(":9001")
//
// Client side:
//
//	c, _ := grpc.Dial("localhost:9001")
//	var resp proto.StatsResponse
//	c.Call("Admin.Stats", &proto.StatsRequest{}, &resp)
package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// HandlerFunc serves one RPC method. The returned value is JSON-encoded
// into the response.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for one call.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for one reply. Exactly one of Data and Error
// is meaningful.
type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Server accepts TCP connections and dispatches decoded requests to
// registered handlers, one goroutine per connection.
type Server struct {
	log *slog.Logger

	mu       sync.RWMutex
	methods  map[string]HandlerFunc
	listener net.Listener

	wg      sync.WaitGroup
	closing chan struct{}
}

func NewServer() *Server {
	return &Server{
		log:     slog.Default().With("component", "rpc-server"),
		methods: make(map[string]HandlerFunc),
		closing: make(chan struct{}),
	}
}

// Register binds a handler to a "Service.Method" name. Later registrations
// replace earlier ones.
func (s *Server) Register(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method] = h
	s.log.Debug("method registered", "method", method)
}

// MethodCount reports how many methods are registered.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.methods)
}

// Addr returns the bound listen address, or empty before Serve has bound
// its listener. Useful when serving on port 0.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve listens on addr and blocks until Stop. A Stop-initiated shutdown
// returns nil.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("rpc server listening", "addr", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return nil
			default:
				s.log.Error("accept error", "error", err)
				continue
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// Stop closes the listener and waits for in-flight connections to drain.
func (s *Server) Stop() {
	close(s.closing)
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()
	if ln != nil {
		ln.Close()
	}
	s.wg.Wait()
	s.log.Info("rpc server stopped")
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return // peer closed, or the stream is unreadable
		}
		resp := s.dispatch(&req)
		if err := enc.Encode(resp); err != nil {
			s.log.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req *Request) Response {
	s.mu.RLock()
	h, ok := s.methods[req.Method]
	s.mu.RUnlock()

	resp := Response{ID: req.ID}
	if !ok {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		return resp
	}

	data, err := h(context.Background(), req.Params)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			resp.Error = fmt.Sprintf("encoding response: %v", err)
			return resp
		}
		resp.Data = raw
	}
	return resp
}
