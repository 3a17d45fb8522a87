package backend

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/lydakis/mcpbridge/internal/config"
	"github.com/lydakis/mcpbridge/internal/logging"
	"github.com/mark3labs/mcp-go/client/transport"
)

func newStdio(srv config.ServerConfig, o options) *session {
	env := Environment{Base: o.env, Overlay: srv.Env}
	logger := o.logger.With("backend", srv.Name)

	return &session{
		name:           srv.Name,
		kind:           KindStdio,
		connectTimeout: srv.ConnectTimeoutOrDefault(),
		closeGrace:     o.closeGrace,
		logger:         o.logger,
		newTransport: func() (transport.Interface, error) {
			path, err := exec.LookPath(srv.Command)
			if err != nil {
				return nil, fmt.Errorf("resolving command %q: %w", srv.Command, err)
			}
			return transport.NewStdioWithOptions(path, nil, srv.Args,
				transport.WithCommandFunc(commandFunc(env)),
				transport.WithCommandLogger(logging.ForMCP(logger)),
			), nil
		},
		started: func(tr transport.Interface) {
			if stdio, ok := tr.(*transport.Stdio); ok {
				go drainStderr(stdio.Stderr(), logger)
			}
		},
	}
}

// commandFunc builds the server process with an explicit environment in its
// own process group, so cancelling ctx tears down the whole tree.
func commandFunc(env Environment) transport.CommandFunc {
	return func(ctx context.Context, command string, _ []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env.Merge()
		setProcessGroup(cmd)
		return cmd, nil
	}
}

// drainStderr forwards server stderr lines to the debug log until the pipe
// closes.
func drainStderr(r io.Reader, logger *slog.Logger) {
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("server stderr", "line", scanner.Text())
	}
}
