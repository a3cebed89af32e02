package flow

import (
	"fmt"
	"sort"

	"github.com/agentloom/agentloom/core"
	internalutil "github.com/agentloom/agentloom/internal/util"
	"github.com/agentloom/agentloom/model"
)

// transferToolName is the reserved tool the model calls to hand the
// conversation to another agent.
const transferToolName = "transfer_to_agent"

// InstructionsProcessor resolves the agent's system prompt and renders state
// placeholders into it.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest resolves and templates the system instructions.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstructions(runCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve instructions: %w", err)
	}

	runCtx.LogDebug("agent.instructions.resolved", "agent", agent.GetName(), "length", len(instructions))

	if runCtx.Session != nil && runCtx.Session.State != nil {
		req.Instructions, err = internalutil.RenderTemplate(instructions, runCtx.Session.State)
		if err != nil {
			return fmt.Errorf("failed to render instructions template: %w", err)
		}
	} else {
		req.Instructions = instructions
	}

	return nil
}

// ContentsProcessor assembles the model conversation: system instructions
// followed by the bounded session history.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest builds req.Contents from instructions and history.
func (p *ContentsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	contents := []core.Content{{
		Role:  "system",
		Parts: []core.Part{core.TextPart{Text: req.Instructions}},
	}}

	if runCtx.Session != nil {
		events := runCtx.Session.GetConversationHistory()
		if maxN := agent.MaxHistoryMessages(); maxN > 0 && len(events) > maxN {
			events = events[len(events)-maxN:]
		}

		for _, ev := range events {
			if ev.Content != nil && len(ev.Content.Parts) > 0 {
				contents = append(contents, *ev.Content)
			}
		}
	}

	req.Contents = contents

	return nil
}

// ToolDeclarationsProcessor exposes the agent's registered tools to the
// model as function definitions, in deterministic name order.
type ToolDeclarationsProcessor struct{}

// NewToolDeclarationsProcessor creates a new tool declarations processor.
func NewToolDeclarationsProcessor() *ToolDeclarationsProcessor { return &ToolDeclarationsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolDeclarationsProcessor) Name() string { return "tool_declarations" }

// ProcessRequest appends a definition per registered tool.
func (p *ToolDeclarationsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	tools := agent.GetTools()
	if len(tools) == 0 {
		return nil
	}

	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := tools[name]
		req.Tools = append(req.Tools, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	return nil
}

// TransferToolInjector adds the transfer_to_agent function definition when
// the agent can delegate; without it the model has no way to hand off.
// Injection is idempotent: repeated turns never duplicate the definition.
type TransferToolInjector struct{}

// NewTransferToolInjector creates a new transfer tool injector.
func NewTransferToolInjector() *TransferToolInjector { return &TransferToolInjector{} }

// Name returns the processor's identifier.
func (p *TransferToolInjector) Name() string { return "transfer_tool_injector" }

// ProcessRequest injects the transfer tool definition and lists the
// reachable agents in its description.
func (p *TransferToolInjector) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	subAgents := agent.GetSubAgents()
	if !agent.IsTransferEnabled() || len(subAgents) == 0 {
		return nil
	}

	for _, def := range req.Tools {
		if def.Function.Name == transferToolName {
			return nil
		}
	}

	targets := make([]string, 0, len(subAgents))
	for _, sub := range subAgents {
		targets = append(targets, sub.GetName())
	}

	req.Tools = append(req.Tools, model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        transferToolName,
			Description: fmt.Sprintf("Transfer the conversation to another agent. Available agents: %v", targets),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"agent_name": map[string]any{
						"type":        "string",
						"description": "Name of the agent to transfer to",
					},
				},
				"required": []string{"agent_name"},
			},
		},
	})

	return nil
}
