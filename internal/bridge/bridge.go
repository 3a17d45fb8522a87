// Package bridge adapts single JSON-RPC messages onto a fresh MCP backend
// session, the way a stateless function invocation sees them.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lydakis/mcpbridge/internal/backend"
	"github.com/lydakis/mcpbridge/internal/config"
	"github.com/mark3labs/mcp-go/mcp"
)

// Dialer returns a new, unconnected backend for one request.
type Dialer func(ctx context.Context) (backend.Backend, error)

// FromServer dials srv through backend.New on every call.
func FromServer(srv config.ServerConfig, opts ...backend.Option) Dialer {
	return func(context.Context) (backend.Backend, error) {
		return backend.New(srv, opts...)
	}
}

// Bridge handles one inbound message at a time. It holds no session state
// between calls.
type Bridge struct {
	dial    Dialer
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout bounds each forwarded request, connect included. The caller's
// context deadline still applies.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLogger sets the logger for internal failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a Bridge that dials a backend per request.
func New(dial Dialer, opts ...Option) *Bridge {
	b := &Bridge{
		dial:    dial,
		timeout: config.DefaultBridgeTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle processes one payload. Notifications return a nil Response; every
// other payload gets exactly one Response, which may carry a Fault.
func (b *Bridge) Handle(ctx context.Context, payload json.RawMessage) *Response {
	req, note, err := classify(payload)
	if err != nil {
		b.logger.Warn("rejecting malformed message", "error", err)
		return faultResponse(mcp.NewRequestId(int64(0)), Fault{
			Code:    CodeInvalidRequest,
			Message: "Invalid request",
		})
	}
	if note != nil {
		b.logger.Debug("acknowledging notification", "method", note.Method)
		return nil
	}
	if req.Method == string(mcp.MethodPing) && !hasParams(req.Params) {
		return resultResponse(req.ID, json.RawMessage(`{}`))
	}
	return b.forward(ctx, req)
}

func (b *Bridge) forward(ctx context.Context, req *Request) *Response {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	logger := b.logger.With("method", req.Method, "id", req.ID.String())

	be, err := b.dial(ctx)
	if err != nil {
		logger.Error("creating backend failed", "error", err)
		return internalFailure(req.ID)
	}
	defer func() {
		if err := be.Close(); err != nil {
			logger.Warn("closing backend failed", "backend", be.Name(), "error", err)
		}
	}()

	if err := be.Connect(ctx); err != nil {
		logger.Error("connecting backend failed", "backend", be.Name(), "error", err)
		return internalFailure(req.ID)
	}

	result, err := be.Request(ctx, req.Method, req.Params)
	if err != nil {
		var rpcErr *backend.RPCError
		if errors.As(err, &rpcErr) {
			logger.Info("backend returned fault", "code", rpcErr.Code, "message", rpcErr.Message)
			return faultResponse(req.ID, Fault{
				Code:    rpcErr.Code,
				Message: rpcErr.Message,
				Data:    rpcErr.Data,
			})
		}
		logger.Error("forwarding request failed", "backend", be.Name(), "error", err)
		return internalFailure(req.ID)
	}
	return resultResponse(req.ID, result)
}

func internalFailure(id mcp.RequestId) *Response {
	return faultResponse(id, Fault{
		Code:    CodeInternalFailure,
		Message: InternalFailureMessage,
	})
}

// HandleEvent is the Lambda handler form of Handle: notifications yield an
// empty object instead of a Response.
func (b *Bridge) HandleEvent(ctx context.Context, event json.RawMessage) (any, error) {
	if resp := b.Handle(ctx, event); resp != nil {
		return resp, nil
	}
	return map[string]any{}, nil
}
