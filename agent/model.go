package agent

import (
	"fmt"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/flow"
	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/tool"
)

// transferToolName matches the reserved tool name the flow layer injects for
// agent handoff.
const transferToolName = "transfer_to_agent"

// ModelAgentOptions configures a ModelAgent instance. Use functional options
// with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Instruction        Instruction
	EnableStreaming    bool
	OutputKey          string
	MaxHistoryMessages int
	AllowTransfer      bool
	Tools              map[string]tool.Tool
}

// ModelAgent integrates a language model into the agent tree. It supports
// conversation through system instructions, function calling with registered
// tools, streaming responses, output-key state capture and transfer to
// sub-agents. Execution is delegated to the flow package.
type ModelAgent struct {
	BaseAgent
	m                  model.Model
	instruction        Instruction
	tools              map[string]tool.Tool
	enableStreaming    bool
	outputKey          string
	maxHistoryMessages int
	allowTransfer      bool
}

// NewModelAgent creates a model-backed agent. Defaults: streaming on, a
// 20-message history window, transfer allowed, an empty tool registry and a
// generic assistant instruction.
func NewModelAgent(name string, m model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		EnableStreaming:    true,
		MaxHistoryMessages: 20,
		AllowTransfer:      true,
		Tools:              make(map[string]tool.Tool),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ModelAgent{
		BaseAgent:          NewBaseAgent(name),
		m:                  m,
		instruction:        opts.Instruction,
		enableStreaming:    opts.EnableStreaming,
		outputKey:          opts.OutputKey,
		maxHistoryMessages: opts.MaxHistoryMessages,
		allowTransfer:      opts.AllowTransfer,
		tools:              opts.Tools,
	}
}

// RegisterTool adds a tool to the agent's capability set. Registered tools
// become callable by the model during conversations.
func (a *ModelAgent) RegisterTool(t tool.Tool) {
	a.tools[t.Name()] = t
}

// RegisterTools adds multiple tools at once.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// UnregisterTool removes a tool. Returns true if it was registered.
func (a *ModelAgent) UnregisterTool(name string) bool {
	if _, exists := a.tools[name]; exists {
		delete(a.tools, name)
		return true
	}
	return false
}

// HasTool reports whether a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	_, exists := a.tools[name]
	return exists
}

// GetTool retrieves a specific tool by name.
func (a *ModelAgent) GetTool(name string) (tool.Tool, bool) {
	t, exists := a.tools[name]
	return t, exists
}

// GetName implements flow.FlowAgent.
func (a *ModelAgent) GetName() string { return a.Name() }

// GetModel returns the language model driving this agent.
func (a *ModelAgent) GetModel() model.Model { return a.m }

// GetTools returns a copy of the registered tools. When the agent can
// delegate, the transfer tool is included so the model's handoff calls have
// an executable target.
func (a *ModelAgent) GetTools() map[string]tool.Tool {
	tools := make(map[string]tool.Tool, len(a.tools)+1)
	for name, t := range a.tools {
		tools[name] = t
	}

	if a.allowTransfer && len(a.SubAgents()) > 0 {
		if _, ok := tools[transferToolName]; !ok {
			tools[transferToolName] = tool.NewTransferToAgentTool()
		}
	}

	return tools
}

// GetSubAgents returns child agents that participate in flows.
func (a *ModelAgent) GetSubAgents() []flow.FlowAgent {
	subAgents := a.SubAgents()
	flowAgents := make([]flow.FlowAgent, 0, len(subAgents))
	for _, subAgent := range subAgents {
		if flowAgent, ok := subAgent.(flow.FlowAgent); ok {
			flowAgents = append(flowAgents, flowAgent)
		}
	}
	return flowAgents
}

// IsStreamingEnabled reports whether partial responses stream.
func (a *ModelAgent) IsStreamingEnabled() bool { return a.enableStreaming }

// IsTransferEnabled reports whether the agent may hand off control.
func (a *ModelAgent) IsTransferEnabled() bool { return a.allowTransfer }

// GetOutputKey returns the session state key for saving final responses.
func (a *ModelAgent) GetOutputKey() string { return a.outputKey }

// MaxHistoryMessages bounds the replayed conversation history.
func (a *ModelAgent) MaxHistoryMessages() int { return a.maxHistoryMessages }

// ResolveInstructions produces the system prompt by resolving the static or
// dynamic instruction source.
func (a *ModelAgent) ResolveInstructions(runCtx *core.RunContext) (string, error) {
	return a.instruction.Resolve(runCtx)
}

// Run implements core.Agent. It selects an execution flow matching the
// agent's capabilities and streams the flow's events to the run context.
func (a *ModelAgent) Run(runCtx *core.RunContext) error {
	runCtx.LogDebug("agent.run.start", "agent", a.Name(), "run", runCtx.RunID)

	fl := flow.NewSelector().SelectFlow(a)

	runCtx.LogDebug("agent.flow.selected", "agent", a.Name(), "flow", fmt.Sprintf("%T", fl))

	eventCh, errCh, err := fl.Execute(runCtx)
	if err != nil {
		return fmt.Errorf("flow execution failed: %w", err)
	}

	for event := range eventCh {
		select {
		case runCtx.Emit <- event:
		case <-runCtx.Done():
			runCtx.LogWarn("agent.run.context_done", "agent", a.Name(), "error", runCtx.Err())
			return runCtx.Err()
		}
	}

	if err := <-errCh; err != nil {
		runCtx.LogError("agent.flow.error", "agent", a.Name(), "error", err.Error())
		return err
	}

	runCtx.LogDebug("agent.run.complete", "agent", a.Name())

	return nil
}
