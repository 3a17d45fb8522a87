package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks configuration invariants and returns actionable errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error
	seen := make(map[string]int, len(cfg.Servers))
	for i, srv := range cfg.Servers {
		field := fmt.Sprintf("servers[%d]", i)
		name := strings.TrimSpace(srv.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name: required", field))
		} else if prev, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("%s.name: %q already used by servers[%d]", field, name, prev))
		} else {
			seen[name] = i
			field = "servers." + name
		}
		errs = append(errs, validateServer(field, srv)...)
	}

	if cfg.Retry.Attempts < 0 {
		errs = append(errs, fmt.Errorf("retry.attempts: must be >= 0, got %d", cfg.Retry.Attempts))
	}
	errs = append(errs, validateDuration("retry.delay", cfg.Retry.Delay)...)
	errs = append(errs, validateDuration("bridge.timeout", cfg.Bridge.Timeout)...)
	errs = append(errs, validateDuration("chat.utterance_pause", cfg.Chat.UtterancePause)...)

	return errors.Join(errs...)
}

// ValidateBridge checks that the bridge section names exactly one server.
func ValidateBridge(cfg *Config) error {
	if cfg == nil {
		return errors.New("bridge: missing config")
	}
	errs := validateServer("bridge.server", cfg.Bridge.Server)
	errs = append(errs, validateDuration("bridge.timeout", cfg.Bridge.Timeout)...)
	return errors.Join(errs...)
}

func validateServer(field string, srv ServerConfig) []error {
	var errs []error

	transports := 0
	for _, set := range []bool{
		strings.TrimSpace(srv.Command) != "",
		strings.TrimSpace(srv.FunctionName) != "",
		strings.TrimSpace(srv.URL) != "",
	} {
		if set {
			transports++
		}
	}

	switch {
	case transports > 1:
		errs = append(errs, fmt.Errorf("%s: configure exactly one of command (stdio), function_name (remote function), or url (http)", field))
	case transports == 0:
		errs = append(errs, fmt.Errorf("%s: missing transport, set command, function_name, or url", field))
	}

	if srv.IsHTTP() {
		if _, err := url.ParseRequestURI(srv.URL); err != nil {
			errs = append(errs, fmt.Errorf("%s.url: invalid URL %q: %w", field, srv.URL, err))
		}
	}

	errs = append(errs, validateDuration(field+".connect_timeout", srv.ConnectTimeout)...)
	return errs
}

func validateDuration(field, raw string) []error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)}
	}
	if d < 0 {
		return []error{fmt.Errorf("%s: must be >= 0, got %q", field, raw)}
	}
	return nil
}
