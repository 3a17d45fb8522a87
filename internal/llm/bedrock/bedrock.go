// Package bedrock implements chat.ModelClient on the Bedrock Converse API.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/lydakis/mcpbridge/internal/chat"
	"github.com/lydakis/mcpbridge/internal/config"
	"github.com/lydakis/mcpbridge/internal/tool"
)

// ConverseAPI is the part of the Bedrock runtime client this package uses.
// *bedrockruntime.Client satisfies it.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client sends conversations to one Bedrock model.
type Client struct {
	api         ConverseAPI
	modelID     string
	maxTokens   int32
	temperature float32
	topP        float32
	logger      *slog.Logger
}

var _ chat.ModelClient = (*Client)(nil)

// New wraps api with the model settings in cfg. Unset settings take the
// config package defaults.
func New(api ConverseAPI, cfg config.ModelConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		api:         api,
		modelID:     cfg.ID,
		maxTokens:   cfg.MaxTokens,
		temperature: config.DefaultTemperature,
		topP:        config.DefaultTopP,
		logger:      logger,
	}
	if c.modelID == "" {
		c.modelID = config.DefaultModelID
	}
	if c.maxTokens <= 0 {
		c.maxTokens = config.DefaultMaxTokens
	}
	if cfg.Temperature != nil {
		c.temperature = *cfg.Temperature
	}
	if cfg.TopP != nil {
		c.topP = *cfg.TopP
	}
	return c
}

// NewFromConfig builds a Bedrock runtime client from the default AWS
// configuration chain in the model's region.
func NewFromConfig(ctx context.Context, cfg config.ModelConfig, logger *slog.Logger) (*Client, error) {
	region := cfg.Region
	if region == "" {
		region = config.DefaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return New(bedrockruntime.NewFromConfig(awsCfg), cfg, logger), nil
}

// Converse implements chat.ModelClient.
func (c *Client) Converse(ctx context.Context, req chat.Request) (*chat.Response, error) {
	input, err := c.buildInput(req)
	if err != nil {
		return nil, err
	}

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			c.logger.Warn("converse failed", "model", c.modelID, "code", apiErr.ErrorCode(), "message", apiErr.ErrorMessage())
			return nil, fmt.Errorf("converse %s (%s): %w", c.modelID, apiErr.ErrorCode(), err)
		}
		return nil, fmt.Errorf("converse %s: %w", c.modelID, err)
	}
	if out.Usage != nil {
		c.logger.Debug("converse usage", "model", c.modelID,
			"input_tokens", aws.ToInt32(out.Usage.InputTokens),
			"output_tokens", aws.ToInt32(out.Usage.OutputTokens))
	}
	return parseOutput(out)
}

func (c *Client) buildInput(req chat.Request) (*bedrockruntime.ConverseInput, error) {
	messages := make([]types.Message, 0, len(req.Messages))
	for i, m := range req.Messages {
		msg, err := toMessage(m)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		messages = append(messages, msg)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.modelID),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.maxTokens),
			Temperature: aws.Float32(c.temperature),
			TopP:        aws.Float32(c.topP),
		},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if len(req.Tools) > 0 {
		tools, err := toTools(req.Tools)
		if err != nil {
			return nil, err
		}
		input.ToolConfig = &types.ToolConfiguration{Tools: tools}
	}
	return input, nil
}

func toTools(specs []tool.Spec) ([]types.Tool, error) {
	tools := make([]types.Tool, 0, len(specs))
	for _, s := range specs {
		var schema any
		if err := json.Unmarshal(s.ToolSpec.InputSchema.JSON, &schema); err != nil {
			return nil, fmt.Errorf("tool %s: decoding input schema: %w", s.ToolSpec.Name, err)
		}
		spec := types.ToolSpecification{
			Name:        aws.String(s.ToolSpec.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}
		if s.ToolSpec.Description != "" {
			spec.Description = aws.String(s.ToolSpec.Description)
		}
		tools = append(tools, &types.ToolMemberToolSpec{Value: spec})
	}
	return tools, nil
}

func toMessage(m chat.Message) (types.Message, error) {
	role := types.ConversationRoleUser
	if m.Role == chat.RoleAssistant {
		role = types.ConversationRoleAssistant
	}

	content := make([]types.ContentBlock, 0, len(m.Content))
	for _, b := range m.Content {
		switch {
		case b.Text != nil:
			content = append(content, &types.ContentBlockMemberText{Value: *b.Text})
		case b.ToolUse != nil:
			input := b.ToolUse.Input
			if input == nil {
				input = map[string]any{}
			}
			content = append(content, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
				ToolUseId: aws.String(b.ToolUse.ID),
				Name:      aws.String(b.ToolUse.Name),
				Input:     document.NewLazyDocument(input),
			}})
		case b.ToolResult != nil:
			block, err := toToolResult(*b.ToolResult)
			if err != nil {
				return types.Message{}, err
			}
			content = append(content, block)
		}
	}
	return types.Message{Role: role, Content: content}, nil
}

func toToolResult(r tool.Result) (*types.ContentBlockMemberToolResult, error) {
	status := types.ToolResultStatusSuccess
	if r.IsError() {
		status = types.ToolResultStatusError
	}

	content := make([]types.ToolResultContentBlock, 0, len(r.Content))
	for _, item := range r.Content {
		switch item.Type {
		case tool.ContentJSON:
			var v any
			if err := json.Unmarshal(item.JSON, &v); err != nil {
				return nil, fmt.Errorf("tool result %s: decoding json content: %w", r.ID, err)
			}
			content = append(content, &types.ToolResultContentBlockMemberJson{Value: document.NewLazyDocument(v)})
		default:
			content = append(content, &types.ToolResultContentBlockMemberText{Value: item.Text})
		}
	}
	return &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
		ToolUseId: aws.String(r.ID),
		Content:   content,
		Status:    status,
	}}, nil
}

func parseOutput(out *bedrockruntime.ConverseOutput) (*chat.Response, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("converse returned unexpected output %T", out.Output)
	}

	resp := &chat.Response{
		StopReason: string(out.StopReason),
		Output:     chat.Message{Role: chat.RoleAssistant},
	}
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			resp.Output.Content = append(resp.Output.Content, chat.TextBlock(b.Value))
		case *types.ContentBlockMemberToolUse:
			input := map[string]any{}
			if b.Value.Input != nil {
				if err := b.Value.Input.UnmarshalSmithyDocument(&input); err != nil {
					return nil, fmt.Errorf("decoding tool input for %s: %w", aws.ToString(b.Value.Name), err)
				}
			}
			resp.Output.Content = append(resp.Output.Content, chat.Block{ToolUse: &chat.ToolUse{
				ID:    aws.ToString(b.Value.ToolUseId),
				Name:  aws.ToString(b.Value.Name),
				Input: input,
			}})
		}
	}
	return resp, nil
}
