package chat

import (
	"context"
	"strings"

	"github.com/lydakis/mcpbridge/internal/tool"
)

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReasonToolUse marks a model response that requests tool calls.
const StopReasonToolUse = "tool_use"

// Message is one conversation turn.
type Message struct {
	Role    Role    `json:"role"`
	Content []Block `json:"content"`
}

// Block is one content item of a message. Exactly one field is set.
type Block struct {
	Text       *string      `json:"text,omitempty"`
	ToolUse    *ToolUse     `json:"toolUse,omitempty"`
	ToolResult *tool.Result `json:"toolResult,omitempty"`
}

// ToolUse is a model directive to call a tool.
type ToolUse struct {
	ID    string         `json:"toolUseId"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// TextBlock returns a text content block.
func TextBlock(s string) Block {
	return Block{Text: &s}
}

// UserText returns a user turn holding s.
func UserText(s string) Message {
	return Message{Role: RoleUser, Content: []Block{TextBlock(s)}}
}

// Text joins the message's text blocks.
func (m Message) Text() string {
	var parts []string
	for _, b := range m.Content {
		if b.Text != nil {
			parts = append(parts, *b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolUses returns the tool directives in the order they appear.
func (m Message) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, b := range m.Content {
		if b.ToolUse != nil {
			uses = append(uses, *b.ToolUse)
		}
	}
	return uses
}

// Request is one model call.
type Request struct {
	System   string
	Messages []Message
	Tools    []tool.Spec
}

// Response is the model's reply.
type Response struct {
	StopReason string
	Output     Message
}

// ModelClient produces the next assistant turn.
type ModelClient interface {
	Converse(ctx context.Context, req Request) (*Response, error)
}

// ToolExecutor lists and runs tools. Tool failures are reported in the
// returned result, never as errors.
type ToolExecutor interface {
	ListTools(ctx context.Context) ([]tool.Descriptor, error)
	ExecuteTool(ctx context.Context, id, name string, args map[string]any) tool.Result
}
