// Package tool implements the function calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side effects) with
// schema validated arguments, consistent error handling and rich metadata for
// model guidance.
package tool

import (
	"fmt"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/internal/util"
)

// DefaultMaxRetryAttempts bounds retries for tools that opt into retry via
// the Retryable interface without naming their own limit.
const DefaultMaxRetryAttempts = 3

// Tool is the contract for extending agent capabilities with callable
// functions. Arguments arrive already parsed from JSON and are validated
// against the tool's schema before Call runs.
//
// Implementations should:
//   - Provide clear names (snake_case) and descriptions the model can act on
//   - Define a proper JSON schema for parameters
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description provided to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool. The ToolContext gives access to session state,
	// flow control actions, memory and artifacts.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// LongRunner marks tools whose work outlives the turn. The flow records the
// call id in LongRunningToolIDs instead of waiting for an inline result; the
// tool reports progress later through ToolContext.EmitEvent.
type LongRunner interface {
	IsLongRunning() bool
}

// Retryable marks tools whose transient failures should be retried before a
// structured error result is returned to the model.
type Retryable interface {
	// ShouldRetryOnFailure reports whether failed calls may be reissued.
	ShouldRetryOnFailure() bool

	// MaxRetryAttempts bounds the number of retries. Values < 1 fall back to
	// DefaultMaxRetryAttempts.
	MaxRetryAttempts() int
}

// ValidationError carries details about an argument that failed schema
// validation.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
