package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kaptinlin/jsonrepair"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/tool"
)

// FunctionExecutorConfig configures the parallel function executor.
type FunctionExecutorConfig struct {
	// MaxParallel bounds concurrent tool executions within one batch.
	// Values < 1 mean no explicit limit.
	MaxParallel int
}

// FunctionExecutor runs a batch of function calls, possibly in parallel, and
// aggregates the outcomes into a single function response event. Guarantees:
//   - Exactly one FunctionResponse per call, in the original call order,
//     except long-running calls which record their id instead
//   - Tool failures become structured error responses, never batch failures
//   - Panics inside tools are recovered and reported as failures
//   - ToolContext actions accumulate onto the aggregated event in call order
type FunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewFunctionExecutor constructs an executor with the given config.
func NewFunctionExecutor(cfg FunctionExecutorConfig) *FunctionExecutor {
	return &FunctionExecutor{cfg: cfg}
}

// Execute runs the calls and returns the aggregated response event. The only
// error it returns is context cancellation; everything else is encoded in
// the event.
func (e *FunctionExecutor) Execute(
	runCtx *core.RunContext,
	agent FlowAgent,
	toolRegistry map[string]tool.Tool,
	fnCalls []core.FunctionCall,
) (core.Event, error) {
	n := len(fnCalls)

	results := make([]*core.FunctionResponse, n)
	toolCtxs := make([]*core.ToolContext, n)
	longRunning := make([]string, n)

	maxPar := e.cfg.MaxParallel
	if maxPar < 1 || maxPar > n {
		maxPar = n
	}

	sem := make(chan struct{}, maxPar)

	var wg sync.WaitGroup

	batchStart := time.Now()

	for i := range fnCalls {
		if runCtx.Context.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()

			if runCtx.Context.Err() != nil {
				return
			}

			toolCtx := core.NewToolContext(runCtx, fc.ID)
			toolCtxs[idx] = toolCtx

			impl, ok := toolRegistry[fc.Name]
			if !ok {
				results[idx] = &core.FunctionResponse{
					ID:    fc.ID,
					Name:  fc.Name,
					Error: fmt.Sprintf("tool %s not found", fc.Name),
				}
				return
			}

			args, err := parseArguments(fc.Arguments)
			if err != nil {
				results[idx] = &core.FunctionResponse{
					ID:    fc.ID,
					Name:  fc.Name,
					Error: err.Error(),
				}
				return
			}

			execStart := time.Now()
			result, err := callTool(toolCtx, impl, args)
			dur := time.Since(execStart)

			runCtx.LogInfo(
				"agent.function.executed",
				"agent", agent.GetName(),
				"function", fc.Name,
				"duration_ms", dur.Milliseconds(),
				"error", err != nil,
			)

			if lr, isLR := impl.(tool.LongRunner); isLR && lr.IsLongRunning() {
				if err != nil {
					runCtx.LogError("agent.function.long_running.start_failed", "function", fc.Name, "error", err.Error())
					results[idx] = &core.FunctionResponse{ID: fc.ID, Name: fc.Name, Error: err.Error()}
					return
				}
				longRunning[idx] = fc.ID
				return
			}

			fr := &core.FunctionResponse{ID: fc.ID, Name: fc.Name}
			if err != nil {
				fr.Error = err.Error()
			} else {
				fr.Response = result
			}
			results[idx] = fr
		}(i, fnCalls[i])
	}

	wg.Wait()

	if err := runCtx.Context.Err(); err != nil {
		return core.Event{}, err
	}

	responses := make([]core.FunctionResponse, 0, n)
	for _, r := range results {
		if r != nil {
			responses = append(responses, *r)
		}
	}

	ev := core.NewFunctionResponsesEvent(runCtx.RunID, agent.GetName(), responses)

	for _, id := range longRunning {
		if id != "" {
			ev.LongRunningToolIDs = append(ev.LongRunningToolIDs, id)
		}
	}

	// Actions merge in call order so concurrent flow-control writes resolve
	// deterministically.
	for _, tc := range toolCtxs {
		if tc != nil {
			tc.InternalApplyActions(&ev)
		}
	}

	runCtx.LogDebug(
		"agent.functions.batch.complete",
		"agent", agent.GetName(),
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return ev, nil
}

// callTool invokes the tool with panic safety, retrying transient failures
// for tools that opt in via the Retryable interface. Validation failures are
// never retried.
func callTool(toolCtx *core.ToolContext, impl tool.Tool, args map[string]any) (any, error) {
	attempts := 1
	if r, ok := impl.(tool.Retryable); ok && r.ShouldRetryOnFailure() {
		attempts = r.MaxRetryAttempts()
		if attempts < 1 {
			attempts = tool.DefaultMaxRetryAttempts
		}
	}

	if attempts <= 1 {
		return safeCall(toolCtx, impl, args)
	}

	var result any

	operation := func() error {
		var err error
		result, err = safeCall(toolCtx, impl, args)
		if err == nil {
			return nil
		}

		var te *tool.ToolError
		if errors.As(err, &te) && te.Code == "VALIDATION_ERROR" {
			return backoff.Permanent(err)
		}
		var ve *tool.ValidationError
		if errors.As(err, &ve) {
			return backoff.Permanent(err)
		}

		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(attempts-1)), toolCtx.Context())); err != nil {
		return nil, err
	}

	return result, nil
}

// safeCall executes the tool and converts panics into errors.
func safeCall(toolCtx *core.ToolContext, impl tool.Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", impl.Name(), r)
			toolCtx.Logger().Error("agent.function.panic", "function", impl.Name(), "recover", r, "stack", string(debug.Stack()))
		}
	}()

	return impl.Call(toolCtx, args)
}

// parseArguments decodes the serialized argument payload, attempting repair
// of malformed JSON before giving up. Models occasionally emit truncated or
// single-quoted argument strings; repairing beats bouncing the whole turn.
func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return nil, fmt.Errorf("malformed function arguments: %w", repairErr)
	}

	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("malformed function arguments after repair: %w", err)
	}

	return args, nil
}
