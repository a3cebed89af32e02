package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentloom/agentloom/core"
)

// ToolCall represents a function call request surfaced by a model provider,
// unified across vendors so downstream logic needs no per-provider branching.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction describes the concrete function target of a tool call.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by flows.
type Request struct {
	Instructions string           `json:"instructions"`
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by flows and agents to drive
// generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests and examples.
// Besides canned text completions it can stage function call responses keyed
// by input prompt, so tool-loop behavior is scriptable without a provider.
type MockModel struct {
	info      Info
	responses map[string][]Response
	fallback  func(input string) []Response
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string][]Response),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.responses[prompt] = []Response{{
		Partial: false,
		Content: core.Content{
			Role:  "assistant",
			Parts: []core.Part{core.TextPart{Text: response}},
		},
		FinishReason: "stop",
	}}
}

// AddScriptedResponses registers a sequence of responses (e.g. a function
// call turn followed by nothing) emitted verbatim for an input prompt.
func (m *MockModel) AddScriptedResponses(prompt string, responses ...Response) {
	m.responses[prompt] = responses
}

// SetFallback installs a function that produces responses for prompts with
// no registered script.
func (m *MockModel) SetFallback(fn func(input string) []Response) { m.fallback = fn }

// Generate implements Model; emits optional streaming char chunks then the
// final response(s).
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}

		inputText := lastTextInput(req)

		if scripted, ok := m.responses[inputText]; ok {
			for _, resp := range scripted {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- resp:
				}
			}
			return
		}

		if m.fallback != nil {
			for _, resp := range m.fallback(inputText) {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- resp:
				}
			}
			return
		}

		full := fmt.Sprintf("Mock response to: %s", inputText)

		if req.Stream {
			for _, r := range full { // character chunks as partials
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.Content{
						Role:  "assistant",
						Parts: []core.Part{core.TextPart{Text: string(r)}},
					},
				}:
				}
			}
		}

		respCh <- Response{
			Partial: false,
			Content: core.Content{
				Role:  "assistant",
				Parts: []core.Part{core.TextPart{Text: full}},
			},
			FinishReason: "stop",
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// lastTextInput extracts the concatenated text of the last non-tool content,
// skipping trailing tool results so scripted prompts keep matching across a
// tool loop.
func lastTextInput(req Request) string {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		c := req.Contents[i]
		if c.Role == "tool" || c.Role == "system" {
			continue
		}
		if text := c.Text(); text != "" {
			return text
		}
	}
	return ""
}
