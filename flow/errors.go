package flow

import "fmt"

// Error codes attached to error events emitted by flows. These mark
// recoverable failures that end the turn but not the run protocol.
const (
	// ErrCodeModelError marks a failure returned by the language model.
	ErrCodeModelError = "MODEL_ERROR"

	// ErrCodeToolError marks a tool execution failure.
	ErrCodeToolError = "TOOL_ERROR"

	// ErrCodeMaxModelCalls marks exhaustion of the per-run model call budget.
	ErrCodeMaxModelCalls = "MAX_MODEL_CALLS"
)

// maxTransferDepth bounds the chain of agent-to-agent transfers within a
// single run, guarding against transfer cycles between cooperating agents.
const maxTransferDepth = 16

// FlowInvariantError reports a violation of the event stream protocol, such
// as a flow ending on a partial event with no final event following it.
// It is fatal: the runner surfaces it on the error channel rather than as
// an error event.
type FlowInvariantError struct {
	Reason string
}

func (e *FlowInvariantError) Error() string {
	return fmt.Sprintf("flow invariant violated: %s", e.Reason)
}

// TransferTargetNotFoundError reports a transfer_to_agent action naming an
// agent that does not exist in the agent tree. It is fatal.
type TransferTargetNotFoundError struct {
	Target string
}

func (e *TransferTargetNotFoundError) Error() string {
	return fmt.Sprintf("transfer target not found: %q", e.Target)
}
