package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lydakis/mcpbridge/internal/chat"
	"github.com/lydakis/mcpbridge/internal/config"
	"github.com/lydakis/mcpbridge/internal/tool"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const cliHelperEnv = "GO_WANT_MCPBRIDGE_CLI_HELPER"

func TestCLIHelperProcess(t *testing.T) {
	if os.Getenv(cliHelperEnv) != "1" {
		return
	}

	s := server.NewMCPServer("cli-helper", "1.0.0")
	s.AddTool(mcp.NewTool("get_current_time",
		mcp.WithDescription("Get the current time\nin a named timezone"),
		mcp.WithString("timezone", mcp.Required()),
	), func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tz, err := request.RequireString("timezone")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("12:00 in " + tz), nil
	})
	s.AddTool(mcp.NewTool("fail",
		mcp.WithDescription("Always fails"),
	), func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("tool exploded"), nil
	})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "serve stdio helper: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

type cliOutput struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// captureRoot isolates the config environment and redirects the root
// streams for the duration of the test.
func captureRoot(t *testing.T, stdin string) *cliOutput {
	t.Helper()

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("MCPBRIDGE_CONFIG", "")
	t.Setenv("LOG_LEVEL", "error")

	oldIn, oldOut, oldErr := rootStdin, rootStdout, rootStderr
	out := &cliOutput{}
	rootStdin = strings.NewReader(stdin)
	rootStdout = &out.stdout
	rootStderr = &out.stderr
	t.Cleanup(func() {
		rootStdin, rootStdout, rootStderr = oldIn, oldOut, oldErr
	})
	return out
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func helperServerConfig(t *testing.T) string {
	t.Helper()
	return writeConfig(t, fmt.Sprintf(`
[[servers]]
name = "clock"
command = %q
args = ["-test.run=^TestCLIHelperProcess$", "--"]
env = { %s = "1" }

[retry]
attempts = 1
delay = "0s"

[chat]
utterance_pause = "0s"
`, os.Args[0], cliHelperEnv))
}

func TestHandleRootFlagsVersion(t *testing.T) {
	oldVersion := buildVersion
	defer func() { buildVersion = oldVersion }()
	out := captureRoot(t, "")

	buildVersion = "1.2.3"
	handled, code := handleRootFlags([]string{"--version"})
	if !handled {
		t.Fatal("handled = false, want true")
	}
	if code != 0 {
		t.Fatalf("code = %d, want 0", code)
	}
	if out.stdout.String() != "mcp-chat 1.2.3\n" {
		t.Fatalf("output = %q, want %q", out.stdout.String(), "mcp-chat 1.2.3\n")
	}
	if out.stderr.Len() != 0 {
		t.Fatalf("stderr = %q, want empty", out.stderr.String())
	}
}

func TestHandleRootFlagsIgnoresNonGlobal(t *testing.T) {
	handled, _ := handleRootFlags([]string{"tools"})
	if handled {
		t.Fatal("handled = true, want false")
	}
}

func TestHandleRootFlagsHelp(t *testing.T) {
	out := captureRoot(t, "")

	handled, code := handleRootFlags([]string{"--help"})
	if !handled || code != 0 {
		t.Fatalf("handleRootFlags() = (%v, %d), want (true, 0)", handled, code)
	}
	for _, want := range []string{"mcp-chat [GLOBAL FLAGS] servers", "call <tool>", "--config PATH"} {
		if !strings.Contains(out.stdout.String(), want) {
			t.Fatalf("help output missing %q: %q", want, out.stdout.String())
		}
	}
}

func TestParseGlobalArgs(t *testing.T) {
	tests := []struct {
		args    []string
		want    globalArgs
		rest    []string
		wantErr bool
	}{
		{args: nil, rest: nil},
		{args: []string{"tools"}, rest: []string{"tools"}},
		{args: []string{"--config", "a.toml", "call", "x"}, want: globalArgs{configPath: "a.toml"}, rest: []string{"call", "x"}},
		{args: []string{"--config=a.toml", "--legacy=b.json"}, want: globalArgs{configPath: "a.toml", legacyPath: "b.json"}, rest: nil},
		{args: []string{"--legacy", "b.json", "chat", "--config", "c"}, want: globalArgs{legacyPath: "b.json"}, rest: []string{"chat", "--config", "c"}},
		{args: []string{"--config"}, wantErr: true},
		{args: []string{"--config="}, wantErr: true},
	}
	for _, tt := range tests {
		got, rest, err := parseGlobalArgs(tt.args)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseGlobalArgs(%q) error = nil, want non-nil", tt.args)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseGlobalArgs(%q) error = %v", tt.args, err)
		}
		if got != tt.want {
			t.Fatalf("parseGlobalArgs(%q) = %+v, want %+v", tt.args, got, tt.want)
		}
		if !reflect.DeepEqual(rest, tt.rest) {
			t.Fatalf("parseGlobalArgs(%q) rest = %q, want %q", tt.args, rest, tt.rest)
		}
	}
}

func TestLoadConfigAppendsLegacyServers(t *testing.T) {
	captureRoot(t, "")
	cfgPath := writeConfig(t, `
[[servers]]
name = "first"
command = "first-server"
`)
	legacyPath := filepath.Join(t.TempDir(), "servers_config.json")
	legacy := `{"stdioServers":{"time":{"command":"uvx","args":["mcp-server-time"]}},"lambdaFunctionServers":{"weather":{"functionName":"mcp-weather","region":"us-east-2"}}}`
	if err := os.WriteFile(legacyPath, []byte(legacy), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := loadConfig(globalArgs{configPath: cfgPath, legacyPath: legacyPath})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	var names []string
	for _, srv := range cfg.Servers {
		names = append(names, srv.Name)
	}
	if want := []string{"first", "time", "weather"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("server names = %q, want %q", names, want)
	}
}

func TestLoadConfigSkipsMissingDefaultLegacyFile(t *testing.T) {
	captureRoot(t, "")
	cfg, err := loadConfig(globalArgs{configPath: filepath.Join(t.TempDir(), "missing.toml")})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if len(cfg.Servers) != 0 {
		t.Fatalf("servers = %+v, want none", cfg.Servers)
	}
}

func TestLoadConfigReportsMissingExplicitLegacyFile(t *testing.T) {
	captureRoot(t, "")
	_, err := loadConfig(globalArgs{legacyPath: filepath.Join(t.TempDir(), "missing.json")})
	if err == nil {
		t.Fatal("loadConfig() error = nil, want non-nil")
	}
}

func TestRunListsServersInFileOrder(t *testing.T) {
	out := captureRoot(t, "")
	path := writeConfig(t, `
[[servers]]
name = "zeta"
command = "zeta-server"

[[servers]]
name = "alpha"
function_name = "mcp-alpha"
region = "us-east-2"

[[servers]]
name = "remote"
url = "http://127.0.0.1:1/mcp"
`)

	if code := Run([]string{"--config", path, "servers"}); code != ExitOK {
		t.Fatalf("Run() = %d, want %d (stderr %q)", code, ExitOK, out.stderr.String())
	}
	want := "zeta\tstdio\nalpha\tlambda\nremote\thttp\n"
	if out.stdout.String() != want {
		t.Fatalf("stdout = %q, want %q", out.stdout.String(), want)
	}
}

func TestRunListServersWithoutConfig(t *testing.T) {
	out := captureRoot(t, "")
	path := filepath.Join(t.TempDir(), "missing.toml")
	if code := Run([]string{"--config", path, "servers"}); code != ExitOK {
		t.Fatalf("Run() = %d, want %d", code, ExitOK)
	}
	if !strings.Contains(out.stdout.String(), "No MCP servers configured.") {
		t.Fatalf("stdout = %q, want hint", out.stdout.String())
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	out := captureRoot(t, "")
	path := writeConfig(t, `
[[servers]]
name = "both"
command = "server"
url = "http://127.0.0.1:1/mcp"
`)
	if code := Run([]string{"--config", path, "servers"}); code != ExitUsageErr {
		t.Fatalf("Run() = %d, want %d", code, ExitUsageErr)
	}
	if !strings.Contains(out.stderr.String(), "invalid config") {
		t.Fatalf("stderr = %q, want invalid config", out.stderr.String())
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	out := captureRoot(t, "")
	path := filepath.Join(t.TempDir(), "missing.toml")
	if code := Run([]string{"--config", path, "frobnicate"}); code != ExitUsageErr {
		t.Fatalf("Run() = %d, want %d", code, ExitUsageErr)
	}
	if !strings.Contains(out.stderr.String(), "unknown command: frobnicate") {
		t.Fatalf("stderr = %q", out.stderr.String())
	}
}

func TestRunToolsListsAggregatedCatalog(t *testing.T) {
	out := captureRoot(t, "")
	path := helperServerConfig(t)

	if code := Run([]string{"--config", path, "tools"}); code != ExitOK {
		t.Fatalf("Run() = %d, want %d (stderr %q)", code, ExitOK, out.stderr.String())
	}
	got := out.stdout.String()
	if !strings.Contains(got, "get_current_time\tGet the current time\n") {
		t.Fatalf("stdout = %q, want first description line", got)
	}
	if !strings.Contains(got, "fail\tAlways fails\n") {
		t.Fatalf("stdout = %q, want fail tool", got)
	}
}

func TestRunToolsJSONIncludesSchemasWhenVerbose(t *testing.T) {
	out := captureRoot(t, "")
	path := helperServerConfig(t)

	if code := Run([]string{"--config", path, "tools", "--json", "-v"}); code != ExitOK {
		t.Fatalf("Run() = %d, want %d (stderr %q)", code, ExitOK, out.stderr.String())
	}
	var entries []toolListEntry
	if err := json.Unmarshal(out.stdout.Bytes(), &entries); err != nil {
		t.Fatalf("json.Unmarshal() error = %v (stdout %q)", err, out.stdout.String())
	}
	entry, ok := func() (toolListEntry, bool) {
		for _, e := range entries {
			if e.Name == "get_current_time" {
				return e, true
			}
		}
		return toolListEntry{}, false
	}()
	if !ok {
		t.Fatalf("entries = %+v, want get_current_time", entries)
	}
	if entry.Description != "Get the current time\nin a named timezone" {
		t.Fatalf("description = %q", entry.Description)
	}
	if !strings.Contains(string(entry.InputSchema), `"timezone"`) {
		t.Fatalf("input schema = %s, want timezone property", entry.InputSchema)
	}
}

func TestRunToolsRejectsUnknownFlag(t *testing.T) {
	captureRoot(t, "")
	path := filepath.Join(t.TempDir(), "missing.toml")
	if code := Run([]string{"--config", path, "tools", "--bogus"}); code != ExitUsageErr {
		t.Fatalf("Run() = %d, want %d", code, ExitUsageErr)
	}
}

func TestRunCallPrintsToolOutput(t *testing.T) {
	out := captureRoot(t, "")
	path := helperServerConfig(t)

	code := Run([]string{"--config", path, "call", "get_current_time", "--timezone", "Europe/Paris"})
	if code != ExitOK {
		t.Fatalf("Run() = %d, want %d (stderr %q)", code, ExitOK, out.stderr.String())
	}
	if out.stdout.String() != "12:00 in Europe/Paris\n" {
		t.Fatalf("stdout = %q, want %q", out.stdout.String(), "12:00 in Europe/Paris\n")
	}
}

func TestRunCallReadsArgumentsFromStdin(t *testing.T) {
	out := captureRoot(t, `{"timezone":"UTC"}`)
	path := helperServerConfig(t)

	if code := Run([]string{"--config", path, "call", "get_current_time"}); code != ExitOK {
		t.Fatalf("Run() = %d, want %d (stderr %q)", code, ExitOK, out.stderr.String())
	}
	if out.stdout.String() != "12:00 in UTC\n" {
		t.Fatalf("stdout = %q", out.stdout.String())
	}
}

func TestRunCallReportsToolErrors(t *testing.T) {
	out := captureRoot(t, "")
	path := helperServerConfig(t)

	if code := Run([]string{"--config", path, "call", "fail"}); code != ExitToolErr {
		t.Fatalf("Run() = %d, want %d", code, ExitToolErr)
	}
	if out.stdout.Len() != 0 {
		t.Fatalf("stdout = %q, want empty", out.stdout.String())
	}
	if !strings.Contains(out.stderr.String(), "tool exploded") {
		t.Fatalf("stderr = %q, want tool error text", out.stderr.String())
	}
}

func TestRunCallUnknownTool(t *testing.T) {
	out := captureRoot(t, "")
	path := helperServerConfig(t)

	if code := Run([]string{"--config", path, "call", "nope"}); code != ExitToolErr {
		t.Fatalf("Run() = %d, want %d", code, ExitToolErr)
	}
	if !strings.Contains(out.stderr.String(), "No server found with tool: nope") {
		t.Fatalf("stderr = %q", out.stderr.String())
	}
}

func TestRunCallQuietSuppressesErrorOutput(t *testing.T) {
	out := captureRoot(t, "")
	path := helperServerConfig(t)

	if code := Run([]string{"--config", path, "call", "fail", "-q"}); code != ExitToolErr {
		t.Fatalf("Run() = %d, want %d", code, ExitToolErr)
	}
	if out.stderr.Len() != 0 {
		t.Fatalf("stderr = %q, want empty", out.stderr.String())
	}
}

func TestRunCallHelpShowsSchema(t *testing.T) {
	out := captureRoot(t, "")
	path := helperServerConfig(t)

	if code := Run([]string{"--config", path, "call", "get_current_time", "--help"}); code != ExitOK {
		t.Fatalf("Run() = %d, want %d (stderr %q)", code, ExitOK, out.stderr.String())
	}
	got := out.stdout.String()
	if !strings.Contains(got, "Usage: mcp-chat call get_current_time") {
		t.Fatalf("stdout = %q, want usage line", got)
	}
	if !strings.Contains(got, `"timezone"`) {
		t.Fatalf("stdout = %q, want schema", got)
	}
}

func TestRunCallRequiresToolName(t *testing.T) {
	captureRoot(t, "")
	path := filepath.Join(t.TempDir(), "missing.toml")
	if code := Run([]string{"--config", path, "call"}); code != ExitUsageErr {
		t.Fatalf("Run() = %d, want %d", code, ExitUsageErr)
	}
}

func TestWriteToolResult(t *testing.T) {
	var stdout, stderr bytes.Buffer
	writeToolResult(tool.Success(tool.Text("ok")), false, &stdout, &stderr)
	if stdout.String() != "ok\n" || stderr.Len() != 0 {
		t.Fatalf("success output = (%q, %q)", stdout.String(), stderr.String())
	}

	stdout.Reset()
	writeToolResult(tool.Errorf("bad"), false, &stdout, &stderr)
	if stdout.Len() != 0 || stderr.String() != "bad\n" {
		t.Fatalf("error output = (%q, %q)", stdout.String(), stderr.String())
	}
}

// scriptedModel asks for the clock once, then answers with the tool output.
type scriptedModel struct {
	requests []chat.Request
}

func (m *scriptedModel) Converse(_ context.Context, req chat.Request) (*chat.Response, error) {
	m.requests = append(m.requests, req)
	last := req.Messages[len(req.Messages)-1]
	for _, b := range last.Content {
		if b.ToolResult != nil {
			return &chat.Response{StopReason: "end_turn", Output: chat.Message{
				Role:    chat.RoleAssistant,
				Content: []chat.Block{chat.TextBlock("It is " + b.ToolResult.Text())},
			}}, nil
		}
	}
	return &chat.Response{StopReason: chat.StopReasonToolUse, Output: chat.Message{
		Role: chat.RoleAssistant,
		Content: []chat.Block{{ToolUse: &chat.ToolUse{
			ID:    "tooluse-1",
			Name:  "get_current_time",
			Input: map[string]any{"timezone": "America/Los_Angeles"},
		}}},
	}}, nil
}

func stubModel(t *testing.T, model chat.ModelClient) {
	t.Helper()
	old := newModelClient
	newModelClient = func(context.Context, config.ModelConfig, *slog.Logger) (chat.ModelClient, error) {
		return model, nil
	}
	t.Cleanup(func() { newModelClient = old })
}

func TestRunChatExecutesToolsThroughServers(t *testing.T) {
	out := captureRoot(t, "")
	model := &scriptedModel{}
	stubModel(t, model)
	path := helperServerConfig(t)

	code := Run([]string{"--config", path, "chat", "What is the current time in Seattle?"})
	if code != ExitOK {
		t.Fatalf("Run() = %d, want %d (stderr %q)", code, ExitOK, out.stderr.String())
	}

	want := "User: What is the current time in Seattle?\nAssistant: It is 12:00 in America/Los_Angeles\n"
	if out.stdout.String() != want {
		t.Fatalf("stdout = %q, want %q", out.stdout.String(), want)
	}
	if len(model.requests) != 2 {
		t.Fatalf("model requests = %d, want 2", len(model.requests))
	}
	if model.requests[0].System != config.DefaultSystemPrompt {
		t.Fatalf("system prompt = %q", model.requests[0].System)
	}
	if len(model.requests[0].Tools) != 2 {
		t.Fatalf("tools offered = %d, want 2", len(model.requests[0].Tools))
	}
}

func TestRunChatUsesConfiguredUtterances(t *testing.T) {
	out := captureRoot(t, "")
	model := &scriptedModel{}
	stubModel(t, model)
	path := writeConfig(t, `
[chat]
utterance_pause = "0s"
system_prompt = "Be brief."
utterances = ["Hello!"]
`)

	if code := Run([]string{"--config", path}); code != ExitOK {
		t.Fatalf("Run() = %d, want %d (stderr %q)", code, ExitOK, out.stderr.String())
	}
	if !strings.HasPrefix(out.stdout.String(), "User: Hello!\n") {
		t.Fatalf("stdout = %q", out.stdout.String())
	}
	if model.requests[0].System != "Be brief." {
		t.Fatalf("system prompt = %q, want %q", model.requests[0].System, "Be brief.")
	}
}

func TestRunChatReadsUtterancesFromStdin(t *testing.T) {
	captureRoot(t, "Hello!\n\nWho is Tom Cruise?\n")
	cfg := &config.Config{}
	got, err := chatUtterances(cfg, []string{"-"})
	if err != nil {
		t.Fatalf("chatUtterances() error = %v", err)
	}
	if want := []string{"Hello!", "Who is Tom Cruise?"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("chatUtterances() = %q, want %q", got, want)
	}
}

func TestRunChatRequiresUtterances(t *testing.T) {
	out := captureRoot(t, "")
	stubModel(t, &scriptedModel{})
	path := filepath.Join(t.TempDir(), "missing.toml")

	if code := Run([]string{"--config", path, "chat"}); code != ExitUsageErr {
		t.Fatalf("Run() = %d, want %d", code, ExitUsageErr)
	}
	if !strings.Contains(out.stderr.String(), "nothing to say") {
		t.Fatalf("stderr = %q", out.stderr.String())
	}
}
