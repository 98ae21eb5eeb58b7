// Package llm wraps chat-completion providers behind a single contract with
// tool calling. Providers report how a run ended through an explicit result
// kind instead of leaving callers to infer it from which fields are set.
package llm

import (
	"context"
	"fmt"
)

// Chat roles accepted in a conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is a single message in a conversation. Assistant turns that requested
// tools carry ToolCalls; tool turns answer one call and carry its ToolID.
type Turn struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolID    string     `json:"tool_id,omitempty"`
}

// ToolDefinition describes a callable tool. Parameters is a JSON Schema
// object with "type", "properties" and "required" keys.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a provider's request to invoke a tool. Arguments is the raw
// JSON argument object as the provider produced it; it may be malformed.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ResultKind discriminates how a run ended.
type ResultKind string

const (
	// ResultFinal means the model produced a final text answer.
	ResultFinal ResultKind = "final"
	// ResultToolCalls means the model stopped to request tool invocations.
	ResultToolCalls ResultKind = "tool_calls"
)

// RunRequest is one completion request. History carries prior turns in
// order; UserMessage, when non-empty, is appended as the newest user turn.
type RunRequest struct {
	Model       string
	System      string
	History     []Turn
	UserMessage string
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// RunResult is the outcome of a run. Kind says which fields are meaningful:
// Content for ResultFinal, ToolCalls for ResultToolCalls.
type RunResult struct {
	Kind         ResultKind `json:"kind"`
	Content      string     `json:"content,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Model        string     `json:"model"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
}

// Client is a chat-completion provider.
type Client interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
	Name() string
}

// Embedder turns text into vectors. Not every chat provider offers this.
type Embedder interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// RunOutcome pairs a result with its error for channel delivery.
type RunOutcome struct {
	Result *RunResult
	Err    error
}

// RunAsync starts the run in a goroutine and returns a channel that delivers
// exactly one outcome. The channel is buffered, so an abandoned run does not
// leak its goroutine.
func RunAsync(ctx context.Context, c Client, req RunRequest) <-chan RunOutcome {
	ch := make(chan RunOutcome, 1)
	go func() {
		res, err := c.Run(ctx, req)
		ch <- RunOutcome{Result: res, Err: err}
	}()
	return ch
}

// Config selects and configures a provider.
type Config struct {
	Provider string // openai, anthropic
	APIKey   string
	BaseURL  string // openai only: custom or OpenAI-compatible endpoint
}

// New builds a Client for the configured provider. A missing API key is a
// configuration error and fails here rather than on first request.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm provider %q: missing API key", cfg.Provider)
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL), nil
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// assembleTurns validates history roles and appends the user message. An
// unknown role is rejected up front so providers never see it.
func assembleTurns(req RunRequest) ([]Turn, error) {
	turns := make([]Turn, 0, len(req.History)+1)
	for i, t := range req.History {
		switch t.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return nil, fmt.Errorf("history turn %d: unknown role %q", i, t.Role)
		}
		turns = append(turns, t)
	}
	if req.UserMessage != "" {
		turns = append(turns, Turn{Role: RoleUser, Content: req.UserMessage})
	}
	return turns, nil
}
