package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
)

// legacyDocument is the servers_config.json layout used by existing chat
// clients: one object of stdio servers and one of remote functions.
type legacyDocument struct {
	StdioServers          map[string]legacyStdioEntry  `mapstructure:"stdioServers"`
	LambdaFunctionServers map[string]legacyLambdaEntry `mapstructure:"lambdaFunctionServers"`
}

type legacyStdioEntry struct {
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

type legacyLambdaEntry struct {
	FunctionName string `mapstructure:"functionName"`
	Region       string `mapstructure:"region"`
}

// LoadLegacyServers imports servers from a servers_config.json document.
// Stdio servers are registered before remote functions; within each group
// servers keep the order they appear in the file.
func LoadLegacyServers(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading legacy server config: %w", err)
	}
	return ParseLegacyServers(data)
}

// ParseLegacyServers decodes servers_config.json bytes.
func ParseLegacyServers(data []byte) ([]ServerConfig, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing legacy server config: %w", err)
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("parsing legacy server config: %w", err)
	}
	stdioOrder, err := objectKeys(sections["stdioServers"])
	if err != nil {
		return nil, fmt.Errorf("parsing legacy stdioServers: %w", err)
	}
	lambdaOrder, err := objectKeys(sections["lambdaFunctionServers"])
	if err != nil {
		return nil, fmt.Errorf("parsing legacy lambdaFunctionServers: %w", err)
	}

	var doc legacyDocument
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &doc,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding legacy server config: %w", err)
	}

	servers := make([]ServerConfig, 0, len(doc.StdioServers)+len(doc.LambdaFunctionServers))
	for _, name := range stdioOrder {
		entry := doc.StdioServers[name]
		servers = append(servers, expandServerEnvVars(ServerConfig{
			Name:    name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     entry.Env,
		}))
	}
	for _, name := range lambdaOrder {
		entry := doc.LambdaFunctionServers[name]
		servers = append(servers, expandServerEnvVars(ServerConfig{
			Name:         name,
			FunctionName: entry.FunctionName,
			Region:       entry.Region,
		}))
	}
	return servers, nil
}

// objectKeys returns the member names of a JSON object in document order.
// A repeated name is listed once, at its first position. Null or absent
// input yields no keys.
func objectKeys(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, nil
}
