package paths

import (
	"path/filepath"
	"testing"
)

func TestConfigFileUsesXDGConfigHome(t *testing.T) {
	t.Setenv("MCPBRIDGE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/config-home")
	t.Setenv("HOME", "/tmp/home")

	got := ConfigFile()
	want := filepath.Join("/tmp/config-home", "mcpbridge", "config.toml")
	if got != want {
		t.Fatalf("ConfigFile() = %q, want %q", got, want)
	}
}

func TestConfigFileFallsBackToHomeConfig(t *testing.T) {
	t.Setenv("MCPBRIDGE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/tmp/home")

	got := ConfigFile()
	want := filepath.Join("/tmp/home", ".config", "mcpbridge", "config.toml")
	if got != want {
		t.Fatalf("ConfigFile() = %q, want %q", got, want)
	}
}

func TestConfigFileOverride(t *testing.T) {
	t.Setenv("MCPBRIDGE_CONFIG", "/etc/mcpbridge.toml")

	if got := ConfigFile(); got != "/etc/mcpbridge.toml" {
		t.Fatalf("ConfigFile() = %q, want %q", got, "/etc/mcpbridge.toml")
	}
}

func TestLegacyServersFileLivesInConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/config-home")

	got := LegacyServersFile()
	want := filepath.Join("/tmp/config-home", "mcpbridge", "servers_config.json")
	if got != want {
		t.Fatalf("LegacyServersFile() = %q, want %q", got, want)
	}
}
