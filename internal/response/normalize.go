// Package response normalizes MCP tool results into backend-neutral results.
package response

import (
	"encoding/json"

	"github.com/lydakis/mcpbridge/internal/tool"
	"github.com/mark3labs/mcp-go/mcp"
)

// Normalize converts an MCP CallToolResult into a tool.Result. Text blocks
// stay text; other blocks are carried as their JSON encoding. Structured
// content is used only when the server sent no content blocks.
func Normalize(result *mcp.CallToolResult) tool.Result {
	if result == nil {
		return tool.Errorf("backend returned an empty tool result")
	}

	status := tool.StatusSuccess
	if result.IsError {
		status = tool.StatusError
	}

	items := make([]tool.Content, 0, len(result.Content))
	for _, content := range result.Content {
		if item, ok := renderContent(content); ok {
			items = append(items, item)
		}
	}

	if len(items) == 0 && result.StructuredContent != nil {
		if data, err := json.Marshal(result.StructuredContent); err == nil {
			items = append(items, tool.Content{Type: tool.ContentJSON, JSON: data})
		}
	}

	return tool.Result{Content: items, Status: status}
}

func renderContent(content mcp.Content) (tool.Content, bool) {
	switch c := content.(type) {
	case mcp.TextContent:
		return tool.Text(c.Text), true
	case *mcp.TextContent:
		return tool.Text(c.Text), true
	case mcp.EmbeddedResource:
		return renderResource(c)
	case *mcp.EmbeddedResource:
		return renderResource(*c)
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return tool.Content{}, false
	}

	var typed struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &typed) == nil && typed.Type == "text" {
		return tool.Text(typed.Text), true
	}
	return tool.Content{Type: tool.ContentJSON, JSON: raw}, true
}

func renderResource(res mcp.EmbeddedResource) (tool.Content, bool) {
	switch r := res.Resource.(type) {
	case mcp.TextResourceContents:
		return tool.Text(r.Text), true
	case *mcp.TextResourceContents:
		return tool.Text(r.Text), true
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return tool.Content{}, false
	}
	return tool.Content{Type: tool.ContentJSON, JSON: raw}, true
}
