package paths

import (
	"os"
	"path/filepath"
)

const appDir = "mcpbridge"

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

// ConfigDir returns the mcpbridge config directory ($XDG_CONFIG_HOME/mcpbridge).
func ConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, appDir)
	}
	return filepath.Join(homeDir(), ".config", appDir)
}

// ConfigFile returns the path to config.toml. MCPBRIDGE_CONFIG overrides it.
func ConfigFile() string {
	if v := os.Getenv("MCPBRIDGE_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(ConfigDir(), "config.toml")
}

// LegacyServersFile returns the path to servers_config.json in the config dir.
func LegacyServersFile() string {
	return filepath.Join(ConfigDir(), "servers_config.json")
}
