// Package backend connects to MCP servers over stdio, a remote Lambda
// function, or streamable HTTP, and exposes them through one interface.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lydakis/mcpbridge/internal/config"
	"github.com/lydakis/mcpbridge/internal/tool"
)

// Kinds of backend.
const (
	KindStdio  = "stdio"
	KindLambda = "lambda"
	KindHTTP   = "http"
)

// DefaultCloseGrace bounds how long Close waits for a server to exit on its
// own before the transport context is cancelled.
const DefaultCloseGrace = 2 * time.Second

var (
	// ErrNotConnected is returned when an operation needs an established session.
	ErrNotConnected = errors.New("backend not connected")
	// ErrClosed is returned for any use after Close or after a failed Connect.
	ErrClosed = errors.New("backend closed")
)

// Backend is one MCP server connection.
type Backend interface {
	Name() string
	Kind() string

	// Connect establishes the transport and completes the MCP handshake.
	// Calling it on a connected backend is a no-op.
	Connect(ctx context.Context) error

	ListTools(ctx context.Context) ([]tool.Descriptor, error)

	// CallTool invokes a tool. Tool-level failures reported by the server,
	// including JSON-RPC faults, come back as an error-status result. A
	// returned error means the channel itself failed.
	CallTool(ctx context.Context, name string, args map[string]any) (tool.Result, error)

	// Request forwards an arbitrary JSON-RPC method. Server faults are
	// returned as *RPCError.
	Request(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)

	// Close releases the session. It is idempotent and safe on a backend
	// that never connected.
	Close() error
}

// State is the lifecycle position of a backend.
type State int

const (
	StateUnconnected State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ConnectionError reports a failure to establish a session.
type ConnectionError struct {
	Backend string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type options struct {
	logger     *slog.Logger
	closeGrace time.Duration
	env        []string
	invoker    LambdaInvoker
}

// Option configures a backend.
type Option func(*options)

// WithLogger sets the logger for transport and server stderr output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCloseGrace overrides DefaultCloseGrace.
func WithCloseGrace(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.closeGrace = d
		}
	}
}

// WithBaseEnvironment replaces the ambient environment a stdio server
// inherits. The configured env entries are still overlaid on top.
func WithBaseEnvironment(env []string) Option {
	return func(o *options) {
		o.env = env
	}
}

// WithLambdaInvoker supplies the client used by lambda backends instead of
// one built from the default AWS configuration.
func WithLambdaInvoker(invoker LambdaInvoker) Option {
	return func(o *options) {
		o.invoker = invoker
	}
}

// New builds an unconnected backend whose realization follows the shape of
// srv: command for stdio, function_name for lambda, url for http.
func New(srv config.ServerConfig, opts ...Option) (Backend, error) {
	o := options{
		logger:     slog.Default(),
		closeGrace: DefaultCloseGrace,
		env:        ambientEnvironment(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case srv.IsStdio():
		return newStdio(srv, o), nil
	case srv.IsLambda():
		return newLambda(srv, o), nil
	case srv.IsHTTP():
		return newHTTP(srv, o), nil
	default:
		return nil, fmt.Errorf("server %s: no command, function_name, or url configured", srv.Name)
	}
}
