package cli

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
)

const programName = "mcp-chat"

var (
	rootStdin    io.Reader = os.Stdin
	rootStdout   io.Writer = os.Stdout
	rootStderr   io.Writer = os.Stderr
	buildVersion           = "dev"
)

func init() {
	buildVersion = resolveBuildVersion(buildVersion)
}

func handleRootFlags(args []string) (bool, int) {
	if len(args) == 0 {
		return false, 0
	}

	if len(args) != 1 {
		return false, 0
	}

	switch args[0] {
	case "--version", "-V":
		fmt.Fprintf(rootStdout, "%s %s\n", programName, buildVersion)
		return true, 0
	case "--help", "-h":
		printRootHelp(rootStdout)
		return true, 0
	default:
		return false, 0
	}
}

func resolveBuildVersion(defaultVersion string) string {
	if defaultVersion != "" && defaultVersion != "dev" {
		return defaultVersion
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return defaultVersion
	}
	if info.Main.Version == "" || info.Main.Version == "(devel)" {
		return defaultVersion
	}
	return info.Main.Version
}

func printRootHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  mcp-chat [GLOBAL FLAGS] [chat] [UTTERANCE...]")
	fmt.Fprintln(out, "  mcp-chat [GLOBAL FLAGS] chat -")
	fmt.Fprintln(out, "  mcp-chat [GLOBAL FLAGS] servers")
	fmt.Fprintln(out, "  mcp-chat [GLOBAL FLAGS] tools [--verbose] [--json]")
	fmt.Fprintln(out, "  mcp-chat [GLOBAL FLAGS] call <tool> [--key value ... | '{json}']")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Global flags:")
	fmt.Fprintln(out, "  --config PATH    Read configuration from PATH")
	fmt.Fprintln(out, "  --legacy PATH    Also register servers from a servers_config.json file")
	fmt.Fprintln(out, "  --help, -h       Show help")
	fmt.Fprintln(out, "  --version, -V    Show version")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Environment:")
	fmt.Fprintln(out, "  LOG_LEVEL        debug, info, warn or error (default info)")
	fmt.Fprintln(out, "  MCPBRIDGE_CONFIG Override the default config path")
}
