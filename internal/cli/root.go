package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lydakis/mcpbridge/internal/backend"
	"github.com/lydakis/mcpbridge/internal/chat"
	"github.com/lydakis/mcpbridge/internal/config"
	"github.com/lydakis/mcpbridge/internal/llm/bedrock"
	"github.com/lydakis/mcpbridge/internal/logging"
	"github.com/lydakis/mcpbridge/internal/orchestrator"
	"github.com/lydakis/mcpbridge/internal/paths"
	"github.com/lydakis/mcpbridge/internal/tool"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitToolErr  = 1
	ExitUsageErr = 2
	ExitInternal = 3
)

// newModelClient is replaced in tests.
var newModelClient = func(ctx context.Context, cfg config.ModelConfig, logger *slog.Logger) (chat.ModelClient, error) {
	c, err := bedrock.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type globalArgs struct {
	configPath string
	legacyPath string
}

// Run is the main CLI entry point. Returns an exit code.
func Run(args []string) int {
	if handled, code := handleRootFlags(args); handled {
		return code
	}

	global, rest, err := parseGlobalArgs(args)
	if err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitUsageErr
	}

	cfg, err := loadConfig(global)
	if err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitInternal
	}
	if verr := config.Validate(cfg); verr != nil {
		fmt.Fprintf(rootStderr, "%s: invalid config: %v\n", programName, verr)
		return ExitUsageErr
	}

	logger := logging.New(rootStderr, os.Getenv("LOG_LEVEL"), logging.FormatText)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := "chat"
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	switch command {
	case "servers":
		return listServers(cfg, rootStdout)
	case "tools":
		return runTools(ctx, cfg, logger, rest)
	case "call":
		return runCall(ctx, cfg, logger, rest)
	case "chat":
		return runChat(ctx, cfg, logger, rest)
	default:
		fmt.Fprintf(rootStderr, "%s: unknown command: %s\n", programName, command)
		printRootHelp(rootStderr)
		return ExitUsageErr
	}
}

// parseGlobalArgs consumes leading --config and --legacy flags.
func parseGlobalArgs(args []string) (globalArgs, []string, error) {
	var parsed globalArgs
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var target *string
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config":
			target = &parsed.configPath
		case "--legacy":
			target = &parsed.legacyPath
		default:
			return parsed, args[i:], nil
		}

		if !hasValue {
			if i+1 >= len(args) {
				return parsed, nil, fmt.Errorf("%s requires a path", name)
			}
			i++
			value = args[i]
		}
		if strings.TrimSpace(value) == "" {
			return parsed, nil, fmt.Errorf("%s requires a path", name)
		}
		*target = value
	}
	return parsed, nil, nil
}

// loadConfig reads the TOML config and appends servers from a legacy
// servers_config.json. Without --legacy the default legacy file is used
// when it exists.
func loadConfig(global globalArgs) (*config.Config, error) {
	path := global.configPath
	if path == "" {
		path = paths.ConfigFile()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}

	legacyPath := global.legacyPath
	if legacyPath == "" {
		legacyPath = paths.LegacyServersFile()
		if _, err := os.Stat(legacyPath); errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
	}
	legacy, err := config.LoadLegacyServers(legacyPath)
	if err != nil {
		return nil, err
	}
	cfg.Servers = append(cfg.Servers, legacy...)
	return cfg, nil
}

func listServers(cfg *config.Config, out io.Writer) int {
	if len(cfg.Servers) == 0 {
		fmt.Fprintln(out, "No MCP servers configured.")
		fmt.Fprintf(out, "Create a config file at %s\n", config.ExampleConfigPath())
		return ExitOK
	}
	for _, srv := range cfg.Servers {
		fmt.Fprintf(out, "%s\t%s\n", srv.Name, serverKind(srv))
	}
	return ExitOK
}

func serverKind(srv config.ServerConfig) string {
	switch {
	case srv.IsStdio():
		return backend.KindStdio
	case srv.IsLambda():
		return backend.KindLambda
	case srv.IsHTTP():
		return backend.KindHTTP
	default:
		return "unknown"
	}
}

// newOrchestrator builds one backend per configured server, in file order.
func newOrchestrator(cfg *config.Config, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	backends := make([]backend.Backend, 0, len(cfg.Servers))
	for _, srv := range cfg.Servers {
		b, err := backend.New(srv, backend.WithLogger(logger.With("server", srv.Name)))
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}

	opts := []orchestrator.Option{
		orchestrator.WithRetry(orchestrator.PolicyFromConfig(cfg.Retry)),
		orchestrator.WithLogger(logger),
	}
	if cfg.StrictToolNames {
		opts = append(opts, orchestrator.WithStrictToolNames())
	}
	return orchestrator.New(backends, opts...), nil
}

func closeOrchestrator(o *orchestrator.Orchestrator, logger *slog.Logger) {
	if err := o.Close(); err != nil {
		logger.Warn("closing servers", "error", err)
	}
}

type toolListArgs struct {
	verbose bool
	json    bool
	help    bool
}

func parseToolListArgs(args []string) (toolListArgs, error) {
	parsed := toolListArgs{}
	for _, arg := range args {
		switch arg {
		case "-v", "--verbose":
			parsed.verbose = true
		case "--json":
			parsed.json = true
		case "-h", "--help":
			parsed.help = true
		default:
			return toolListArgs{}, fmt.Errorf("unsupported flag for tool listing: %s", arg)
		}
	}
	return parsed, nil
}

func printToolListHelp(out io.Writer) {
	fmt.Fprintf(out, "Usage: %s tools [FLAGS]\n", programName)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "List tools exposed by every configured server.")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Flags:")
	fmt.Fprintln(out, "  --verbose, -v    Show full tool descriptions and input schemas")
	fmt.Fprintln(out, "  --json           Print the catalog as JSON")
	fmt.Fprintln(out, "  --help, -h       Show this help output")
}

func runTools(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	opts, err := parseToolListArgs(args)
	if err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitUsageErr
	}
	if opts.help {
		printToolListHelp(rootStdout)
		return ExitOK
	}

	orch, err := newOrchestrator(cfg, logger)
	if err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitUsageErr
	}
	defer closeOrchestrator(orch, logger)

	descriptors, err := orch.ListTools(ctx)
	if err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitInternal
	}

	entries := toolListEntries(descriptors, opts.verbose)
	if opts.json {
		err = writeToolListJSON(rootStdout, entries)
	} else {
		err = writeToolListText(rootStdout, entries)
	}
	if err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitInternal
	}
	return ExitOK
}

func runCall(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprintf(rootStderr, "%s: call requires a tool name\n", programName)
		return ExitUsageErr
	}
	name, rawArgs := args[0], args[1:]
	if name == "--" {
		if len(rawArgs) == 0 {
			fmt.Fprintf(rootStderr, "%s: missing tool name after --\n", programName)
			return ExitUsageErr
		}
		name, rawArgs = rawArgs[0], rawArgs[1:]
	}

	parsed, err := parseCallInput(rawArgs, rootStdin, stdinIsTTY(rootStdin))
	if err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitUsageErr
	}

	orch, err := newOrchestrator(cfg, logger)
	if err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitUsageErr
	}
	defer closeOrchestrator(orch, logger)

	descriptors, err := orch.ListTools(ctx)
	if err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitInternal
	}
	d, known := findTool(descriptors, name)
	if parsed.help {
		if !known {
			fmt.Fprintf(rootStderr, "%s: unknown tool: %s\n", programName, name)
			return ExitUsageErr
		}
		printToolHelp(rootStdout, d)
		return ExitOK
	}

	toolArgs := parsed.args
	if known {
		toolArgs, err = coerceToolArgs(toolArgs, d.InputSchema)
		if err != nil {
			fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
			return ExitUsageErr
		}
	}

	result := orch.ExecuteTool(ctx, uuid.NewString(), name, toolArgs)
	writeToolResult(result, parsed.quiet, rootStdout, rootStderr)
	if result.IsError() {
		return ExitToolErr
	}
	return ExitOK
}

// writeToolResult prints successful output to stdout and failures to
// stderr. quiet suppresses failure output.
func writeToolResult(result tool.Result, quiet bool, stdout, stderr io.Writer) {
	text := result.Text()
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if !result.IsError() {
		io.WriteString(stdout, text) //nolint:errcheck
		return
	}
	if quiet || text == "" {
		return
	}
	io.WriteString(stderr, text) //nolint:errcheck
}

func runChat(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	utterances, err := chatUtterances(cfg, args)
	if err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitUsageErr
	}
	if len(utterances) == 0 {
		fmt.Fprintf(rootStderr, "%s: nothing to say; pass utterances or set chat.utterances in %s\n", programName, config.ExampleConfigPath())
		return ExitUsageErr
	}

	orch, err := newOrchestrator(cfg, logger)
	if err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitUsageErr
	}
	defer closeOrchestrator(orch, logger)

	model, err := newModelClient(ctx, cfg.Model, logger)
	if err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitInternal
	}

	session := chat.NewSession(model, orch,
		chat.WithSystemPrompt(cfg.Chat.SystemPromptOrDefault()),
		chat.WithPause(cfg.Chat.UtterancePauseOrDefault()),
		chat.WithLogger(logger),
		chat.OnUser(func(text string) { fmt.Fprintf(rootStdout, "User: %s\n", text) }),
		chat.OnAssistant(func(text string) { fmt.Fprintf(rootStdout, "Assistant: %s\n", text) }),
		chat.OnPause(func(d time.Duration) { logger.Info("waiting before next utterance", "pause", d) }),
	)
	if err := session.Run(ctx, utterances); err != nil {
		fmt.Fprintf(rootStderr, "%s: %v\n", programName, err)
		return ExitInternal
	}
	return ExitOK
}

// chatUtterances returns the positional utterances, the lines of stdin for
// "-", or the configured defaults.
func chatUtterances(cfg *config.Config, args []string) ([]string, error) {
	if len(args) == 1 && args[0] == "-" {
		var lines []string
		scanner := bufio.NewScanner(rootStdin)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return lines, nil
	}
	if len(args) > 0 {
		return args, nil
	}
	return cfg.Chat.Utterances, nil
}

func stdinIsTTY(r io.Reader) bool {
	file, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return true
	}
	return info.Mode()&fs.ModeCharDevice != 0
}
