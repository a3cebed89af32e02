package flow

// MultiAgentFlow orchestrates an agent that may call tools and transfer
// control to sub-agents, enabling hierarchical delegation. It extends the
// single-agent processor stack with dynamic transfer tool injection.
type MultiAgentFlow struct{ *BaseFlow }

// NewMultiAgentFlow creates a new multi-agent flow with default processors.
func NewMultiAgentFlow(agent FlowAgent) *MultiAgentFlow {
	baseFlow := NewBaseFlow(agent)

	baseFlow.AddRequestProcessor(NewInstructionsProcessor())
	baseFlow.AddRequestProcessor(NewContentsProcessor())
	baseFlow.AddRequestProcessor(NewToolDeclarationsProcessor())
	// Inject the transfer_to_agent definition dynamically when applicable.
	baseFlow.AddRequestProcessor(NewTransferToolInjector())

	return &MultiAgentFlow{BaseFlow: baseFlow}
}
