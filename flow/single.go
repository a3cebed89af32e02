package flow

// SingleAgentFlow executes a standalone agent: no transfers, no sub-agent
// delegation. It wires the default processors for instruction resolution,
// content assembly and tool declarations.
type SingleAgentFlow struct{ *BaseFlow }

// NewSingleAgentFlow creates a new single-agent flow.
func NewSingleAgentFlow(agent FlowAgent) *SingleAgentFlow {
	baseFlow := NewBaseFlow(agent)

	baseFlow.AddRequestProcessor(NewInstructionsProcessor())
	baseFlow.AddRequestProcessor(NewContentsProcessor())
	baseFlow.AddRequestProcessor(NewToolDeclarationsProcessor())

	return &SingleAgentFlow{BaseFlow: baseFlow}
}
