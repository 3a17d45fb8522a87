// Package chat runs a conversation against a model client, executing the
// tool calls it requests through a ToolExecutor.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lydakis/mcpbridge/internal/clock"
	"github.com/lydakis/mcpbridge/internal/config"
	"github.com/lydakis/mcpbridge/internal/tool"
)

// ErrEmptyResponse is returned when the model client returns no response.
var ErrEmptyResponse = errors.New("model returned no response")

// Session holds one conversation's transcript. It is not safe for
// concurrent use.
type Session struct {
	model  ModelClient
	tools  ToolExecutor
	system string
	pause  time.Duration
	sleep  clock.SleepFunc
	logger *slog.Logger

	onUser      func(string)
	onAssistant func(string)
	onPause     func(time.Duration)

	messages []Message
}

// Option configures a Session.
type Option func(*Session)

// WithSystemPrompt overrides config.DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(s *Session) {
		if prompt != "" {
			s.system = prompt
		}
	}
}

// WithPause sets the wait between utterances. Zero disables it.
func WithPause(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.pause = d
		}
	}
}

// WithSleep replaces the context-aware wait used for pauses.
func WithSleep(sleep clock.SleepFunc) Option {
	return func(s *Session) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OnUser is called with each utterance before it is sent.
func OnUser(fn func(text string)) Option {
	return func(s *Session) { s.onUser = fn }
}

// OnAssistant is called with the text of every assistant turn.
func OnAssistant(fn func(text string)) Option {
	return func(s *Session) { s.onAssistant = fn }
}

// OnPause is called before each pause between utterances.
func OnPause(fn func(d time.Duration)) Option {
	return func(s *Session) { s.onPause = fn }
}

// NewSession creates a Session.
func NewSession(model ModelClient, tools ToolExecutor, opts ...Option) *Session {
	s := &Session{
		model:  model,
		tools:  tools,
		system: config.DefaultSystemPrompt,
		pause:  config.DefaultUtterancePause,
		sleep:  clock.Sleep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transcript returns a copy of the messages exchanged so far.
func (s *Session) Transcript() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Run sends each utterance in order. The tool catalog is fetched once, up
// front. A turn that stops for tool use gets one follow-up model call with
// all tool results. Model errors end the run; tool failures do not.
func (s *Session) Run(ctx context.Context, utterances []string) error {
	descriptors, err := s.tools.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}
	specs := tool.Specs(descriptors)
	s.logger.Debug("tool catalog loaded", "tools", len(specs))

	for i, utterance := range utterances {
		if i > 0 && s.pause > 0 {
			if s.onPause != nil {
				s.onPause(s.pause)
			}
			if err := s.sleep(ctx, s.pause); err != nil {
				return err
			}
		}
		if err := s.turn(ctx, utterance, specs); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) turn(ctx context.Context, utterance string, specs []tool.Spec) error {
	if s.onUser != nil {
		s.onUser(utterance)
	}
	s.messages = append(s.messages, UserText(utterance))

	resp, err := s.converse(ctx, specs)
	if err != nil {
		return err
	}
	if resp.StopReason != StopReasonToolUse {
		return nil
	}

	results := s.executeTools(ctx, resp.Output.ToolUses())
	if len(results) == 0 {
		return nil
	}
	s.messages = append(s.messages, Message{Role: RoleUser, Content: results})

	_, err = s.converse(ctx, specs)
	return err
}

// converse calls the model with the transcript and records its reply.
func (s *Session) converse(ctx context.Context, specs []tool.Spec) (*Response, error) {
	resp, err := s.model.Converse(ctx, Request{
		System:   s.system,
		Messages: s.Transcript(),
		Tools:    specs,
	})
	if err != nil {
		return nil, fmt.Errorf("calling model: %w", err)
	}
	if resp == nil {
		return nil, ErrEmptyResponse
	}
	if resp.Output.Role == "" {
		resp.Output.Role = RoleAssistant
	}

	s.messages = append(s.messages, resp.Output)
	s.logger.Debug("model responded", "stop_reason", resp.StopReason, "blocks", len(resp.Output.Content))
	if text := resp.Output.Text(); text != "" && s.onAssistant != nil {
		s.onAssistant(text)
	}
	return resp, nil
}

// executeTools runs directives sequentially, keeping their order.
func (s *Session) executeTools(ctx context.Context, uses []ToolUse) []Block {
	blocks := make([]Block, 0, len(uses))
	for _, use := range uses {
		s.logger.Info("executing tool", "tool", use.Name, "tool_use_id", use.ID)
		result := s.tools.ExecuteTool(ctx, use.ID, use.Name, use.Input)
		result = result.WithID(use.ID)
		if result.IsError() {
			s.logger.Warn("tool returned error", "tool", use.Name, "text", result.Text())
		}
		blocks = append(blocks, Block{ToolResult: &result})
	}
	return blocks
}
