package tool

import (
	"fmt"
	"time"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/internal/util"
)

// FunctionTool adapts a plain Go function into a Tool.
//
// Responsibilities:
//   - Holds a JSON-Schema-like parameter specification
//   - Validates supplied arguments against that schema before execution
//   - Invokes the wrapped function with a *core.ToolContext
//   - Normalizes errors into *ToolError with consistent codes:
//     VALIDATION_ERROR -> schema / argument mismatch
//     EXECUTION_ERROR  -> underlying function returned a non-ToolError error
//     (custom codes preserved when the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)

	longRunning bool
	retry       bool
	maxRetries  int
}

// FunctionToolOption customizes FunctionTool construction.
type FunctionToolOption func(*FunctionTool)

// WithLongRunning marks the tool as long-running: the flow will not wait for
// an inline result and records the call id for later correlation.
func WithLongRunning() FunctionToolOption {
	return func(t *FunctionTool) { t.longRunning = true }
}

// WithRetry opts the tool into retry-on-failure with the given attempt bound.
// maxAttempts < 1 falls back to DefaultMaxRetryAttempts.
func WithRetry(maxAttempts int) FunctionToolOption {
	return func(t *FunctionTool) {
		t.retry = true
		t.maxRetries = maxAttempts
	}
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	opts ...FunctionToolOption,
) *FunctionTool {
	t := &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection, equivalent to util.CreateSchema(structType).
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	opts ...FunctionToolOption,
) *FunctionTool {
	schema := util.CreateSchema(structType)
	return NewFunctionTool(name, description, schema, fn, opts...)
}

// Name returns the unique tool name used in function call declarations.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// IsLongRunning implements LongRunner.
func (t *FunctionTool) IsLongRunning() bool { return t.longRunning }

// ShouldRetryOnFailure implements Retryable.
func (t *FunctionTool) ShouldRetryOnFailure() bool { return t.retry }

// MaxRetryAttempts implements Retryable.
func (t *FunctionTool) MaxRetryAttempts() int {
	if t.maxRetries < 1 {
		return DefaultMaxRetryAttempts
	}
	return t.maxRetries
}

// Call validates args against the declared schema then invokes the wrapped
// function. Validation or execution failures come back as *ToolError so the
// flow can turn them into structured results for the model instead of
// aborting the run.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    "VALIDATION_ERROR",
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    "EXECUTION_ERROR",
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
