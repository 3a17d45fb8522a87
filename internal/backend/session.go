package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lydakis/mcpbridge/internal/response"
	"github.com/lydakis/mcpbridge/internal/tool"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	clientName    = "mcpbridge"
	clientVersion = "0.1.0"
)

// transportFactory builds a fresh, unstarted transport for one session.
type transportFactory func() (transport.Interface, error)

// session is the Backend shared by every realization; only the transport
// differs between stdio, lambda, and http.
type session struct {
	name           string
	kind           string
	connectTimeout time.Duration
	closeGrace     time.Duration
	logger         *slog.Logger
	newTransport   transportFactory
	// started runs after the transport is live, before the handshake.
	started func(tr transport.Interface)

	mu     sync.Mutex
	state  State
	client *mcpclient.Client
	cancel context.CancelFunc
}

func (s *session) Name() string { return s.name }
func (s *session) Kind() string { return s.kind }

// State reports the lifecycle position.
func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConnected:
		return nil
	case StateClosed:
		return ErrClosed
	}

	if err := s.connectLocked(ctx); err != nil {
		s.state = StateClosed
		return &ConnectionError{Backend: s.name, Err: err}
	}
	s.state = StateConnected
	s.logger.Debug("backend connected", "backend", s.name, "kind", s.kind)
	return nil
}

func (s *session) connectLocked(ctx context.Context) error {
	tr, err := s.newTransport()
	if err != nil {
		return err
	}

	// The transport outlives the caller's context; Close cancels it.
	life, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := mcpclient.NewClient(tr)
	if err := c.Start(life); err != nil {
		cancel()
		return fmt.Errorf("starting transport: %w", err)
	}
	if s.started != nil {
		s.started(tr)
	}

	initCtx, cancelInit := context.WithTimeout(ctx, s.connectTimeout)
	defer cancelInit()

	if _, err := c.Initialize(initCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}); err != nil {
		s.shutdown(c, cancel) //nolint: errcheck
		return fmt.Errorf("initializing: %w", err)
	}

	s.client = c
	s.cancel = cancel
	return nil
}

// live returns the client of a connected session.
func (s *session) live() (*mcpclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUnconnected:
		return nil, ErrNotConnected
	case StateClosed:
		return nil, ErrClosed
	}
	return s.client, nil
}

func (s *session) ListTools(ctx context.Context) ([]tool.Descriptor, error) {
	c, err := s.live()
	if err != nil {
		return nil, err
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing tools on %s: %w", s.name, err)
	}

	tools := make([]tool.Descriptor, len(result.Tools))
	for i, t := range result.Tools {
		schema, _ := marshalInputSchema(t)
		tools[i] = tool.Descriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		}
	}
	return tools, nil
}

func (s *session) CallTool(ctx context.Context, name string, args map[string]any) (tool.Result, error) {
	c, err := s.live()
	if err != nil {
		return tool.Result{}, err
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		if isChannelFailure(err) {
			return tool.Result{}, fmt.Errorf("calling %s on %s: %w", name, s.name, err)
		}
		return tool.Errorf("%v", err), nil
	}
	return response.Normalize(result), nil
}

// isChannelFailure separates transport or deadline errors from faults the
// server answered with.
func isChannelFailure(err error) bool {
	var tErr *transport.Error
	return errors.As(err, &tErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func (s *session) Request(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	c, err := s.live()
	if err != nil {
		return nil, err
	}

	req := transport.JSONRPCRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(uuid.NewString()),
		Method:  method,
	}
	if len(params) > 0 && string(params) != "null" {
		req.Params = params
	}

	resp, err := c.GetTransport().SendRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("forwarding %s to %s: %w", method, s.name, err)
	}
	if resp.Error != nil {
		return nil, &RPCError{
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Data:    resp.Error.Data,
		}
	}
	if len(resp.Result) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return resp.Result, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	prev := s.state
	c, cancel := s.client, s.cancel
	s.state = StateClosed
	s.client, s.cancel = nil, nil
	s.mu.Unlock()

	if prev != StateConnected {
		return nil
	}
	s.logger.Debug("backend closing", "backend", s.name, "kind", s.kind)
	return s.shutdown(c, cancel)
}

// shutdown closes the client, cancelling the transport context if the
// server has not exited within the grace period.
func (s *session) shutdown(c *mcpclient.Client, cancel context.CancelFunc) error {
	timer := time.AfterFunc(s.closeGrace, cancel)
	defer func() {
		timer.Stop()
		cancel()
	}()

	if err := c.Close(); err != nil && !isExpectedCloseError(err) {
		return fmt.Errorf("closing %s: %w", s.name, err)
	}
	return nil
}

// isExpectedCloseError reports errors produced by our own teardown: a server
// killed after the grace period or a pipe already closed.
func isExpectedCloseError(err error) bool {
	if errors.Is(err, transport.ErrTransportClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	return isKilledByTeardown(err)
}

func marshalInputSchema(t mcp.Tool) (json.RawMessage, error) {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema, nil
	}
	b, err := json.Marshal(t.InputSchema)
	return b, err
}
