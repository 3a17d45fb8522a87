package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/lydakis/mcpbridge/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the config file and returns the parsed Config.
// If the config file does not exist, it returns an empty Config (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes TOML config bytes. name is only used in error messages.
func Parse(data []byte, name string) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", name, err)
	}
	expandConfigEnvVars(&cfg)
	return &cfg, nil
}

// ExampleConfigPath returns the default config file path (for help messages).
func ExampleConfigPath() string {
	return paths.ConfigFile()
}

func expandConfigEnvVars(cfg *Config) {
	if cfg == nil {
		return
	}

	for i := range cfg.Servers {
		cfg.Servers[i] = expandServerEnvVars(cfg.Servers[i])
	}
	cfg.Bridge.Server = expandServerEnvVars(cfg.Bridge.Server)
	cfg.Model.ID = expandEnvVars(cfg.Model.ID)
	cfg.Model.Region = expandEnvVars(cfg.Model.Region)
}

func expandServerEnvVars(srv ServerConfig) ServerConfig {
	srv.Command = expandEnvVars(srv.Command)
	srv.URL = expandEnvVars(srv.URL)
	srv.FunctionName = expandEnvVars(srv.FunctionName)
	srv.Region = expandEnvVars(srv.Region)

	for i := range srv.Args {
		srv.Args[i] = expandEnvVars(srv.Args[i])
	}
	for k, v := range srv.Env {
		srv.Env[k] = expandEnvVars(v)
	}
	for k, v := range srv.Headers {
		srv.Headers[k] = expandEnvVars(v)
	}

	return srv
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}
