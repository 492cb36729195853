// Package rpc serves the dispatch table over a unary CBOR socket
// protocol. Each connection carries exactly one request and one
// response; CBOR is self-delimiting so no framing is needed.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/bobmcallan/toolhost/internal/codec"
	"github.com/bobmcallan/toolhost/internal/common"
	"github.com/bobmcallan/toolhost/internal/dispatch"
)

// Status codes carried in Response.Code. They follow the gRPC names.
const (
	CodeOK               = "ok"
	CodeInvalidArgument  = "invalid_argument"
	CodeDeadlineExceeded = "deadline_exceeded"
	CodeUnavailable      = "unavailable"
	CodeAborted          = "aborted"
	CodeUnimplemented    = "unimplemented"
	CodeInternal         = "internal"
)

// Request is the wire form of a call.
type Request struct {
	// Method is a tool name or the full form /<package>.<Service>/<tool>.
	Method string         `cbor:"method"`
	ID     string         `cbor:"id,omitempty"`
	Params map[string]any `cbor:"params,omitempty"`
}

// Response is the wire form of a call result. Data holds the encoded
// {"result": value} mapping on success.
type Response struct {
	OK    bool             `cbor:"ok"`
	ID    string           `cbor:"id,omitempty"`
	Code  string           `cbor:"code,omitempty"`
	Error string           `cbor:"error,omitempty"`
	Field string           `cbor:"field,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Options configures a Server.
type Options struct {
	Network string
	Address string
	// Package and Service qualify full method names.
	Package         string
	Service         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxRequestBytes int64
	Logger          *common.Logger
}

func (o Options) withDefaults() Options {
	if o.Network == "" {
		o.Network = "tcp"
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.MaxRequestBytes <= 0 {
		o.MaxRequestBytes = 1 << 20
	}
	if o.Logger == nil {
		o.Logger = common.NewSilentLogger()
	}
	return o
}

// Server answers RPC calls from a dispatch table.
type Server struct {
	table  *dispatch.Table
	opts   Options
	logger *common.Logger
	prefix string

	mu       sync.Mutex
	listener net.Listener

	// active tracks in-flight connections so Serve can drain them.
	active sync.WaitGroup
}

// NewServer creates a server for table.
func NewServer(table *dispatch.Table, opts Options) *Server {
	opts = opts.withDefaults()
	s := &Server{table: table, opts: opts, logger: opts.Logger}
	if opts.Package != "" && opts.Service != "" {
		s.prefix = "/" + opts.Package + "." + opts.Service + "/"
	}
	return s
}

// ListenAndServe listens on the configured network and address, then
// serves until ctx is cancelled. A stale unix socket file is removed
// first and the file is removed again on return.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.opts.Network == "unix" {
		if err := os.Remove(s.opts.Address); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale socket %s: %w", s.opts.Address, err)
		}
		defer os.Remove(s.opts.Address)
	}

	listener, err := net.Listen(s.opts.Network, s.opts.Address)
	if err != nil {
		return fmt.Errorf("listening on %s %s: %w", s.opts.Network, s.opts.Address, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then
// waits for active connections to finish. The listener is closed on
// return.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	defer listener.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
		case <-stop:
		}
	}()

	s.logger.Info().
		Str("network", listener.Addr().Network()).
		Str("address", listener.Addr().String()).
		Int("tools", s.table.Len()).
		Msg("RPC server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error().Err(err).Msg("accept failed")
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.active.Wait()
	s.logger.Info().Msg("RPC server stopped")
	return nil
}

// Addr returns the listening address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	start := time.Now()

	var req Request
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("method", req.Method).
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("panic recovered in RPC connection")
			s.write(conn, Response{ID: req.ID, Code: CodeInternal, Error: "internal error"})
		}
	}()

	conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, s.opts.MaxRequestBytes)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.write(conn, Response{Code: CodeInvalidArgument, Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if err := codec.Unmarshal(raw, &req); err != nil {
		s.write(conn, Response{Code: CodeInvalidArgument, Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	resp := s.call(ctx, req)
	resp.ID = req.ID
	s.write(conn, resp)

	s.logger.Debug().
		Str("method", req.Method).
		Str("code", resp.Code).
		Dur("duration", time.Since(start)).
		Msg("RPC call")
}

func (s *Server) call(ctx context.Context, req Request) Response {
	name, ok := s.resolve(req.Method)
	if !ok {
		return Response{Code: CodeUnimplemented, Error: fmt.Sprintf("method %q not implemented", req.Method)}
	}

	result, err := s.table.Call(ctx, name, req.Params)
	if err != nil {
		var dErr *dispatch.Error
		resp := Response{Code: CodeFor(dispatch.CodeOf(err)), Error: err.Error()}
		if errors.As(err, &dErr) {
			resp.Field = dErr.Field
		}
		return resp
	}

	data, err := codec.Marshal(result)
	if err != nil {
		s.logger.Error().Str("method", req.Method).Err(err).Msg("failed to encode result")
		return Response{Code: CodeInternal, Error: fmt.Sprintf("encoding result: %v", err)}
	}
	return Response{OK: true, Code: CodeOK, Data: data}
}

// resolve maps a wire method to a registered tool name.
func (s *Server) resolve(method string) (string, bool) {
	name := method
	if strings.HasPrefix(method, "/") {
		if s.prefix == "" || !strings.HasPrefix(method, s.prefix) {
			return "", false
		}
		name = strings.TrimPrefix(method, s.prefix)
	}
	if _, ok := s.table.Lookup(name); !ok {
		return "", false
	}
	return name, true
}

func (s *Server) write(conn net.Conn, resp Response) {
	conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err := codec.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write RPC response")
	}
}

// CodeFor maps a dispatch code to its wire status.
func CodeFor(code dispatch.Code) string {
	switch code {
	case dispatch.CodeInvalidArgument:
		return CodeInvalidArgument
	case dispatch.CodeDeadlineExceeded:
		return CodeDeadlineExceeded
	case dispatch.CodeUnavailable:
		return CodeUnavailable
	case dispatch.CodeHandler:
		return CodeAborted
	case dispatch.CodeNotFound:
		return CodeUnimplemented
	default:
		return CodeInternal
	}
}
