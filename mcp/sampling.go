package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/model"
)

// SamplingMessage is one conversation turn in a sampling request.
type SamplingMessage struct {
	Role    string          `json:"role"`
	Content SamplingContent `json:"content"`
}

// SamplingContent is the content of a sampling message. Only text content is
// supported.
type SamplingContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CreateMessageParams is the wire shape of a sampling/createMessage request
// sent by the server.
type CreateMessageParams struct {
	Messages     []SamplingMessage `json:"messages"`
	SystemPrompt string            `json:"systemPrompt,omitempty"`
	MaxTokens    int               `json:"maxTokens,omitempty"`
}

// CreateMessageResult is the completion returned to the server.
type CreateMessageResult struct {
	Role       string          `json:"role"`
	Content    SamplingContent `json:"content"`
	Model      string          `json:"model"`
	StopReason string          `json:"stopReason,omitempty"`
}

// SamplingHandler answers sampling/createMessage requests initiated by the
// server.
type SamplingHandler interface {
	CreateMessage(ctx context.Context, params *CreateMessageParams) (*CreateMessageResult, error)
}

// validate rejects wire payloads missing required fields before any
// translation happens.
func (p *CreateMessageParams) validate() error {
	if len(p.Messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range p.Messages {
		if m.Role == "" {
			return fmt.Errorf("message %d: role is required", i)
		}
		if m.Content.Type != "text" {
			return fmt.Errorf("message %d: unsupported content type %q", i, m.Content.Type)
		}
		if m.Content.Text == "" {
			return fmt.Errorf("message %d: text is required", i)
		}
	}
	return nil
}

// toModelRequest translates validated sampling params into a model request.
func (p *CreateMessageParams) toModelRequest() model.Request {
	req := model.Request{Instructions: p.SystemPrompt}
	for _, m := range p.Messages {
		req.Contents = append(req.Contents, core.Content{
			Role:  m.Role,
			Parts: []core.Part{core.TextPart{Text: m.Content.Text}},
		})
	}
	return req
}

// ModelSamplingHandler answers sampling requests with a local model.
type ModelSamplingHandler struct {
	m model.Model
}

// NewModelSamplingHandler wraps a model as a sampling handler.
func NewModelSamplingHandler(m model.Model) *ModelSamplingHandler {
	return &ModelSamplingHandler{m: m}
}

// CreateMessage implements SamplingHandler by generating a completion and
// translating the final response back to the wire shape.
func (h *ModelSamplingHandler) CreateMessage(ctx context.Context, params *CreateMessageParams) (*CreateMessageResult, error) {
	respCh, errCh := h.m.Generate(ctx, params.toModelRequest())

	var final *model.Response
	for resp := range respCh {
		if resp.Partial {
			continue
		}
		r := resp
		final = &r
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("sampling generation failed: %w", err)
	}
	if final == nil {
		return nil, fmt.Errorf("model produced no response")
	}

	stopReason := final.FinishReason
	if stopReason == "" {
		stopReason = "endTurn"
	}

	return &CreateMessageResult{
		Role:       "assistant",
		Content:    SamplingContent{Type: "text", Text: final.Content.Text()},
		Model:      h.m.Info().Name,
		StopReason: stopReason,
	}, nil
}

// handleSampling answers one inbound sampling/createMessage request.
func (c *Client) handleSampling(t Transport, msg *rpcMessage) {
	if c.sampling == nil {
		c.respond(t, newErrorResponse(msg.ID, CodeMethodNotFound, "sampling not supported"))
		return
	}

	var params CreateMessageParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		c.respond(t, newErrorResponse(msg.ID, CodeInvalidParams, fmt.Sprintf("invalid sampling params: %v", err)))
		return
	}
	if err := params.validate(); err != nil {
		c.respond(t, newErrorResponse(msg.ID, CodeInvalidParams, err.Error()))
		return
	}

	ctx, cancel := c.withCallTimeout(context.Background())
	defer cancel()

	result, err := c.sampling.CreateMessage(ctx, &params)
	if err != nil {
		c.logger.Error("mcp.sampling_failed", "server", c.cfg.Name, "error", err.Error())
		c.respond(t, newErrorResponse(msg.ID, CodeInternalError, err.Error()))
		return
	}

	resp, err := newResponse(msg.ID, result)
	if err != nil {
		c.respond(t, newErrorResponse(msg.ID, CodeInternalError, err.Error()))
		return
	}
	c.respond(t, resp)
}
