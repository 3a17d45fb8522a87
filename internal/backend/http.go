package backend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lydakis/mcpbridge/internal/config"
	"github.com/mark3labs/mcp-go/client/transport"
)

func newHTTP(srv config.ServerConfig, o options) *session {
	return &session{
		name:           srv.Name,
		kind:           KindHTTP,
		connectTimeout: srv.ConnectTimeoutOrDefault(),
		closeGrace:     o.closeGrace,
		logger:         o.logger,
		newTransport: func() (transport.Interface, error) {
			headers := requestHeaders(srv.Headers)
			tr, err := transport.NewStreamableHTTP(srv.URL, transport.WithHTTPHeaders(headers))
			if err != nil {
				return nil, fmt.Errorf("creating HTTP transport: %w", err)
			}
			return tr, nil
		},
	}
}

// requestHeaders returns the configured headers over a default User-Agent.
// Names match case-insensitively; when the config repeats a name in
// different casings the lexically last spelling wins.
func requestHeaders(configured map[string]string) map[string]string {
	headers := map[string]string{"User-Agent": clientName + "/" + clientVersion}

	keys := make([]string, 0, len(configured))
	for key := range configured {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		name := strings.TrimSpace(key)
		if name == "" {
			continue
		}
		for existing := range headers {
			if strings.EqualFold(existing, name) {
				delete(headers, existing)
			}
		}
		headers[name] = configured[key]
	}
	return headers
}
