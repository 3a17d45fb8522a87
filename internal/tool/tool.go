// Package tool holds the backend-neutral tool catalog and call result types
// shared by backends, the orchestrator, and the chat loop.
package tool

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Descriptor describes one tool exposed by a backend.
type Descriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

// Spec is the catalog entry shape handed to the model client.
type Spec struct {
	ToolSpec SpecBody `json:"toolSpec"`
}

// SpecBody is the inner toolSpec object.
type SpecBody struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema wraps a JSON Schema document under the "json" key.
type InputSchema struct {
	JSON json.RawMessage `json:"json"`
}

// Spec formats the descriptor for the model client.
func (d Descriptor) Spec() Spec {
	schema := d.InputSchema
	if len(schema) == 0 || string(schema) == "null" {
		schema = emptyObjectSchema
	}
	return Spec{
		ToolSpec: SpecBody{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: InputSchema{JSON: schema},
		},
	}
}

// Specs formats a catalog, preserving order.
func Specs(descriptors []Descriptor) []Spec {
	specs := make([]Spec, len(descriptors))
	for i, d := range descriptors {
		specs[i] = d.Spec()
	}
	return specs
}

// Status reports whether a tool call succeeded.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Content types carried in a Result.
const (
	ContentText = "text"
	ContentJSON = "json"
)

// Content is one typed item of tool output.
type Content struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}

// Text builds a text content item.
func Text(s string) Content {
	return Content{Type: ContentText, Text: s}
}

// Result is the outcome of one tool call. ID correlates it with the
// tool-use directive that requested it.
type Result struct {
	ID      string    `json:"toolUseId"`
	Content []Content `json:"content"`
	Status  Status    `json:"status"`
}

// Success returns a successful result with the given content.
func Success(content ...Content) Result {
	return Result{Content: content, Status: StatusSuccess}
}

// Errorf returns an error result with a formatted text item.
func Errorf(format string, args ...any) Result {
	return Result{
		Content: []Content{Text(fmt.Sprintf(format, args...))},
		Status:  StatusError,
	}
}

// IsError reports whether the call failed.
func (r Result) IsError() bool {
	return r.Status == StatusError
}

// Text joins the text items, rendering json items verbatim.
func (r Result) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		switch c.Type {
		case ContentJSON:
			parts = append(parts, string(c.JSON))
		default:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// WithID returns a copy of r correlated with id.
func (r Result) WithID(id string) Result {
	r.ID = id
	return r
}
