package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/tool"
)

// remoteTool adapts one MCP tool declaration to the local tool interface so
// agents register remote tools like any function tool.
type remoteTool struct {
	client     *Client
	serverName string
	schema     ToolSchema
	parameters map[string]any
}

var _ tool.Tool = (*remoteTool)(nil)

// Tools lists the server's tools and wraps each as a tool.Tool. Tools whose
// input schema does not parse are skipped with a warning.
func (c *Client) Tools(ctx context.Context) ([]tool.Tool, error) {
	schemas, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	tools := make([]tool.Tool, 0, len(schemas))
	for _, s := range schemas {
		params, err := normalizeSchema(s.InputSchema)
		if err != nil {
			c.logger.Warn("mcp.tool_schema_invalid", "server", c.cfg.Name, "tool", s.Name, "error", err.Error())
			continue
		}
		tools = append(tools, &remoteTool{
			client:     c,
			serverName: c.cfg.Name,
			schema:     s,
			parameters: params,
		})
	}
	return tools, nil
}

// normalizeSchema round-trips a raw input schema through jsonschema.Schema,
// rejecting declarations that are not valid JSON Schema.
func normalizeSchema(input map[string]any) (map[string]any, error) {
	if input == nil {
		return map[string]any{"type": "object"}, nil
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parse input schema: %w", err)
	}

	out, err := json.Marshal(&schema)
	if err != nil {
		return nil, fmt.Errorf("serialize input schema: %w", err)
	}

	var normalized map[string]any
	if err := json.Unmarshal(out, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

func (t *remoteTool) Name() string { return t.schema.Name }

func (t *remoteTool) Description() string {
	if t.schema.Description != "" {
		return t.schema.Description
	}
	return fmt.Sprintf("Remote tool %s from server %s", t.schema.Name, t.serverName)
}

func (t *remoteTool) Parameters() map[string]any { return t.parameters }

// Call invokes the remote tool through the client, inheriting its
// reconnect-and-retry behavior.
func (t *remoteTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	result, err := t.client.CallTool(toolCtx.Context(), t.schema.Name, args)
	if err != nil {
		return nil, &tool.ToolError{
			Tool:    t.schema.Name,
			Code:    "EXECUTION_ERROR",
			Message: err.Error(),
		}
	}

	content := flattenContent(result.Content)
	if result.IsError {
		return nil, &tool.ToolError{
			Tool:    t.schema.Name,
			Code:    "EXECUTION_ERROR",
			Message: content,
		}
	}
	return content, nil
}

// flattenContent joins text blocks; non-text blocks are represented by their
// mime type.
func flattenContent(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		default:
			parts = append(parts, fmt.Sprintf("[%s content: %s]", b.Type, b.MimeType))
		}
	}
	return strings.Join(parts, "\n")
}
