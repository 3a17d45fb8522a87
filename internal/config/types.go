package config

import "time"

// Defaults applied when a field is left empty.
const (
	DefaultRetryAttempts  = 2
	DefaultRetryDelay     = time.Second
	DefaultConnectTimeout = 30 * time.Second
	DefaultBridgeTimeout  = 60 * time.Second
	DefaultUtterancePause = 5 * time.Second
	DefaultSystemPrompt   = "You are a helpful assistant."
	DefaultModelID        = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	DefaultRegion         = "us-east-2"
	DefaultMaxTokens      = 4096
	DefaultTemperature    = 0.7
	DefaultTopP           = 1.0
)

// Config is the top-level mcpbridge configuration.
type Config struct {
	// Servers are kept in file order; that order is the registration order
	// used for catalog concatenation, routing, and reverse-order shutdown.
	Servers         []ServerConfig `toml:"servers"`
	StrictToolNames bool           `toml:"strict_tool_names"`

	Retry  RetryConfig  `toml:"retry"`
	Model  ModelConfig  `toml:"model"`
	Chat   ChatConfig   `toml:"chat"`
	Bridge BridgeConfig `toml:"bridge"`
}

// ServerConfig describes how to reach a single MCP server.
type ServerConfig struct {
	Name string `toml:"name"`

	// Stdio transport
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	Env     map[string]string `toml:"env"`

	// Remote function transport
	FunctionName string `toml:"function_name"`
	Region       string `toml:"region"`

	// HTTP transport
	URL     string            `toml:"url"`
	Headers map[string]string `toml:"headers"`

	ConnectTimeout string `toml:"connect_timeout"`
}

// RetryConfig bounds tool-call retries in the orchestrator.
type RetryConfig struct {
	Attempts int    `toml:"attempts"`
	Delay    string `toml:"delay"`
}

// ModelConfig configures the Converse model client.
type ModelConfig struct {
	ID          string   `toml:"id"`
	Region      string   `toml:"region"`
	MaxTokens   int32    `toml:"max_tokens"`
	Temperature *float32 `toml:"temperature"`
	TopP        *float32 `toml:"top_p"`
}

// ChatConfig configures the conversational loop.
type ChatConfig struct {
	SystemPrompt   string   `toml:"system_prompt"`
	UtterancePause string   `toml:"utterance_pause"`
	Utterances     []string `toml:"utterances"`
}

// BridgeConfig configures the single-server protocol bridge.
type BridgeConfig struct {
	Server  ServerConfig `toml:"server"`
	Timeout string       `toml:"timeout"`
}

// IsStdio returns true if the server uses stdio transport.
func (s ServerConfig) IsStdio() bool {
	return s.Command != ""
}

// IsLambda returns true if the server is a remote function.
func (s ServerConfig) IsLambda() bool {
	return s.FunctionName != ""
}

// IsHTTP returns true if the server uses HTTP transport.
func (s ServerConfig) IsHTTP() bool {
	return s.URL != ""
}

// ConnectTimeoutOrDefault returns the handshake timeout.
func (s ServerConfig) ConnectTimeoutOrDefault() time.Duration {
	return durationOr(s.ConnectTimeout, DefaultConnectTimeout)
}

// AttemptsOrDefault returns the configured attempt count.
func (r RetryConfig) AttemptsOrDefault() int {
	if r.Attempts <= 0 {
		return DefaultRetryAttempts
	}
	return r.Attempts
}

// DelayOrDefault returns the fixed inter-attempt delay.
func (r RetryConfig) DelayOrDefault() time.Duration {
	return durationOr(r.Delay, DefaultRetryDelay)
}

// TimeoutOrDefault returns the per-message bridge deadline.
func (b BridgeConfig) TimeoutOrDefault() time.Duration {
	return durationOr(b.Timeout, DefaultBridgeTimeout)
}

// UtterancePauseOrDefault returns the pause between user turns.
func (c ChatConfig) UtterancePauseOrDefault() time.Duration {
	return durationOr(c.UtterancePause, DefaultUtterancePause)
}

// SystemPromptOrDefault returns the fixed system instructions.
func (c ChatConfig) SystemPromptOrDefault() string {
	if c.SystemPrompt == "" {
		return DefaultSystemPrompt
	}
	return c.SystemPrompt
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
