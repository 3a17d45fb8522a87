// Package orchestrator aggregates several MCP backends into one tool
// namespace, routes calls by tool name, and retries failed calls.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lydakis/mcpbridge/internal/backend"
	"github.com/lydakis/mcpbridge/internal/tool"
)

// ErrDuplicateTool is returned by ListTools in strict mode when two backends
// expose the same tool name.
var ErrDuplicateTool = errors.New("duplicate tool name")

// Orchestrator owns its backends. It is not safe for concurrent
// ExecuteTool calls.
type Orchestrator struct {
	backends []backend.Backend
	policy   Policy
	logger   *slog.Logger
	strict   bool

	mu          sync.Mutex
	initialized bool
	initErr     error
	routes      map[string]backend.Backend
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetry sets the tool-call retry policy.
func WithRetry(p Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p.normalized()
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStrictToolNames turns a tool name exposed by more than one backend
// into an error instead of a shadowed route.
func WithStrictToolNames() Option {
	return func(o *Orchestrator) {
		o.strict = true
	}
}

// New creates an Orchestrator over backends, in registration order.
func New(backends []backend.Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backends: backends,
		policy:   DefaultPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initialize connects every backend in registration order. The first failure
// closes the backends already connected, in reverse order, and is returned
// from this and every later call.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initializeLocked(ctx)
}

func (o *Orchestrator) initializeLocked(ctx context.Context) error {
	if o.initialized {
		return o.initErr
	}
	o.initialized = true

	for i, b := range o.backends {
		o.logger.Info("starting backend", "backend", b.Name(), "kind", b.Kind())
		if err := b.Connect(ctx); err != nil {
			closeReverse(o.backends[:i], o.logger) //nolint: errcheck
			o.initErr = fmt.Errorf("initializing backend %s: %w", b.Name(), err)
			return o.initErr
		}
	}
	return nil
}

// ListTools returns every backend's catalog concatenated in registration
// order and rebuilds the routing table. When two backends expose the same
// name both descriptors are listed, and calls route to the first.
func (o *Orchestrator) ListTools(ctx context.Context) ([]tool.Descriptor, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.listToolsLocked(ctx)
}

func (o *Orchestrator) listToolsLocked(ctx context.Context) ([]tool.Descriptor, error) {
	if err := o.initializeLocked(ctx); err != nil {
		return nil, err
	}

	var all []tool.Descriptor
	routes := make(map[string]backend.Backend)
	for _, b := range o.backends {
		tools, err := b.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing tools on %s: %w", b.Name(), err)
		}
		for _, t := range tools {
			if owner, ok := routes[t.Name]; ok {
				if o.strict {
					return nil, fmt.Errorf("%w: %s is exposed by %s and %s", ErrDuplicateTool, t.Name, owner.Name(), b.Name())
				}
				o.logger.Warn("tool name shadowed by earlier backend",
					"tool", t.Name, "routed_to", owner.Name(), "ignored", b.Name())
				continue
			}
			routes[t.Name] = b
		}
		all = append(all, tools...)
	}
	o.routes = routes
	return all, nil
}

// ExecuteTool calls name on the backend that owns it. Failures never escape
// as errors: an unknown tool, a backend fault, and exhausted retries all
// come back as an error-status result correlated with id.
func (o *Orchestrator) ExecuteTool(ctx context.Context, id, name string, args map[string]any) tool.Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.routes == nil {
		if _, err := o.listToolsLocked(ctx); err != nil {
			o.logger.Error("building tool routes failed", "error", err)
			return tool.Errorf("Error executing tool %s: %v", name, err).WithID(id)
		}
	}

	b, ok := o.routes[name]
	if !ok {
		o.logger.Warn("no backend exposes tool", "tool", name)
		return tool.Errorf("No server found with tool: %s", name).WithID(id)
	}
	return o.callWithRetry(ctx, b, name, args).WithID(id)
}

func (o *Orchestrator) callWithRetry(ctx context.Context, b backend.Backend, name string, args map[string]any) tool.Result {
	logger := o.logger.With("tool", name, "backend", b.Name())

	var lastErr error
	for attempt := 1; attempt <= o.policy.Attempts; attempt++ {
		logger.Debug("executing tool", "attempt", attempt)
		result, err := b.CallTool(ctx, name, args)
		if err == nil {
			return result
		}
		lastErr = err
		logger.Warn("tool call failed", "attempt", attempt, "attempts", o.policy.Attempts, "error", err)

		if attempt == o.policy.Attempts {
			break
		}
		if err := o.policy.Sleep(ctx, o.policy.Delay); err != nil {
			logger.Warn("retry abandoned", "error", err)
			break
		}
	}
	return tool.Errorf("Error executing tool %s: %v", name, lastErr)
}

// Close closes every backend in reverse registration order, continuing past
// failures, and returns them joined.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.routes = nil
	return closeReverse(o.backends, o.logger)
}

func closeReverse(backends []backend.Backend, logger *slog.Logger) error {
	var errs []error
	for i := len(backends) - 1; i >= 0; i-- {
		b := backends[i]
		logger.Info("stopping backend", "backend", b.Name())
		if err := b.Close(); err != nil {
			logger.Warn("closing backend failed", "backend", b.Name(), "error", err)
			errs = append(errs, fmt.Errorf("closing %s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}
