package grpc

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// Client holds one TCP connection to an RPC server. Calls are serialized
// over the connection; the protocol answers in request order.
type Client struct {
	conn net.Conn

	mu  sync.Mutex
	enc *json.Encoder
	dec *json.Decoder
	seq int64
}

// Dial connects to the RPC server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}, nil
}

// Call invokes method with params and decodes the reply into result.
// A nil result discards the reply payload. Safe for concurrent use.
func (c *Client) Call(method string, params any, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	req := Request{
		Method: method,
		ID:     strconv.FormatInt(c.seq, 10),
		Params: raw,
	}
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("remote error: %s", resp.Error)
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// Close tears down the connection. In-flight calls fail with a read error.
func (c *Client) Close() error {
	return c.conn.Close()
}
