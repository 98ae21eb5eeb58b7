package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient runs completions against the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
}

func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	turns, err := assembleTurns(req)
	if err != nil {
		return nil, err
	}

	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleSystem:
			// System text travels in the dedicated field, not the messages.
			if req.System == "" {
				req.System = t.Content
			}
		case RoleUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		case RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(assistantBlocks(t)...))
		case RoleTool:
			msgs = append(msgs, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(t.ToolID, t.Content, false)))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, toolParam(t))
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	result := &RunResult{
		Kind:         ResultFinal,
		Model:        string(resp.Model),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text
		case "tool_use":
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	if resp.StopReason == anthropic.StopReasonToolUse {
		result.Kind = ResultToolCalls
	}
	return result, nil
}

func assistantBlocks(t Turn) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	if t.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(t.Content))
	}
	for _, tc := range t.ToolCalls {
		var input any
		if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
			input = map[string]any{}
		}
		blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
	}
	return blocks
}

func toolParam(t ToolDefinition) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{}
	if props, ok := t.Parameters["properties"].(map[string]any); ok {
		schema.Properties = props
	}
	if required, ok := t.Parameters["required"].([]string); ok {
		schema.Required = required
	}
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		},
	}
}
