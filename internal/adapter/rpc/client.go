package rpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/toolhost/internal/codec"
	"github.com/bobmcallan/toolhost/internal/dispatch"
)

// dialTimeout covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout matches the server's read and write timeouts plus
// handler time.
const responseReadTimeout = 45 * time.Second

const maxResponseSize = 16 << 20

// CallError is returned when the server answers with ok=false.
type CallError struct {
	Method  string
	Code    string
	Field   string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("rpc %s on %q: %s", e.Code, e.Method, e.Message)
}

// Client calls an RPC server. Every call opens its own connection.
type Client struct {
	network string
	address string
}

// NewClient creates a client for the server at network/address.
func NewClient(network, address string) *Client {
	if network == "" {
		network = "tcp"
	}
	return &Client{network: network, address: address}
}

// Call invokes method with params and returns the decoded result value.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (any, error) {
	req := Request{Method: method, ID: uuid.NewString(), Params: params}

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("calling %q on %s: %w", method, c.address, err)
	}
	if !resp.OK {
		return nil, &CallError{Method: method, Code: resp.Code, Field: resp.Field, Message: resp.Error}
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("calling %q: response id %q does not match request %q", method, resp.ID, req.ID)
	}

	var data map[string]any
	if err := codec.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding response data for %q: %w", method, err)
	}
	return data[dispatch.ResultField], nil
}

func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, c.network, c.address)
	if err != nil {
		return nil, fmt.Errorf("dialing: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(responseReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	if err := codec.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}

	var resp Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &resp, nil
}
