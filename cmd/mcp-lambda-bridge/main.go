// Command mcp-lambda-bridge serves one MCP server behind a Lambda function.
// Each invocation carries a single JSON-RPC message; the configured server
// is started for that message and stopped before the invocation returns.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/lydakis/mcpbridge/internal/backend"
	"github.com/lydakis/mcpbridge/internal/bridge"
	"github.com/lydakis/mcpbridge/internal/config"
	"github.com/lydakis/mcpbridge/internal/logging"
	"github.com/lydakis/mcpbridge/internal/paths"
)

// configEnv names the config file read at cold start.
const configEnv = "MCP_BRIDGE_CONFIG"

type handlerFunc func(ctx context.Context, event json.RawMessage) (any, error)

func main() {
	handler, err := newHandler(os.Getenv, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp-lambda-bridge: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(handler)
}

// newHandler loads and validates the bridge configuration and returns the
// invocation handler. Logs are JSON so they index cleanly in CloudWatch.
func newHandler(getenv func(string) string, logOut io.Writer) (handlerFunc, error) {
	path := getenv(configEnv)
	if path == "" {
		path = paths.ConfigFile()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateBridge(cfg); err != nil {
		return nil, fmt.Errorf("invalid bridge config %s: %w", path, err)
	}

	logger := logging.New(logOut, getenv("LOG_LEVEL"), logging.FormatJSON).
		With("server", cfg.Bridge.Server.Name)
	logger.Debug("bridge configured", "config", path, "timeout", cfg.Bridge.TimeoutOrDefault())

	b := bridge.New(
		bridge.FromServer(cfg.Bridge.Server, backend.WithLogger(logger)),
		bridge.WithTimeout(cfg.Bridge.TimeoutOrDefault()),
		bridge.WithLogger(logger),
	)
	return b.HandleEvent, nil
}
