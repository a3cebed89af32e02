package flow

import (
	"fmt"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/model"
)

// defaultEventBuffer sizes the flow's outbound event channel. Partials can
// arrive faster than consumers drain them; a modest buffer keeps streaming
// smooth without hiding backpressure.
const defaultEventBuffer = 100

// BaseFlow drives the request -> model -> tool loop for one agent with
// pluggable pre/post processors. Concrete flows differ only in the processor
// stack they install.
type BaseFlow struct {
	agent              FlowAgent
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
	executor           *FunctionExecutor
}

// NewBaseFlow creates a flow for the given agent with no processors
// installed.
func NewBaseFlow(agent FlowAgent) *BaseFlow {
	return &BaseFlow{
		agent:              agent,
		requestProcessors:  []RequestProcessor{},
		responseProcessors: []ResponseProcessor{},
		executor:           NewFunctionExecutor(FunctionExecutorConfig{}),
	}
}

// AddRequestProcessor appends a request processor; registration order defines
// execution order.
func (f *BaseFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// AddResponseProcessor appends a response processor executed after each model
// chunk.
func (f *BaseFlow) AddResponseProcessor(processor ResponseProcessor) {
	f.responseProcessors = append(f.responseProcessors, processor)
}

// Execute implements Flow. The returned event channel closes when the flow
// finishes; the error channel carries at most one fatal error.
func (f *BaseFlow) Execute(runCtx *core.RunContext) (<-chan core.Event, <-chan error, error) {
	eventCh := make(chan core.Event, defaultEventBuffer)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		if err := f.run(runCtx, eventCh); err != nil {
			errCh <- err
		}
	}()

	return eventCh, errCh, nil
}

// run loops over model turns until the conversation reaches a final response,
// a graceful stop (error event, transfer, escalation) or a fatal error.
func (f *BaseFlow) run(runCtx *core.RunContext, out chan<- core.Event) error {
	for {
		done, err := f.runTurn(runCtx, out)
		if err != nil {
			return err
		}

		if done || runCtx.Ended() {
			return nil
		}
	}
}

// runTurn performs one model turn including any tool executions. It reports
// done=true when the run should stop after this turn; done=false requests
// another model turn (tool results need summarizing).
func (f *BaseFlow) runTurn(runCtx *core.RunContext, out chan<- core.Event) (bool, error) {
	// Request processors must see the freshest session snapshot so tool
	// results persisted in the previous turn appear in history.
	if err := runCtx.RefreshSession(); err != nil {
		runCtx.LogWarn("flow.session.refresh_failed", "agent", f.agent.GetName(), "error", err.Error())
	}

	req := model.Request{Stream: f.agent.IsStreamingEnabled()}

	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(runCtx, &req, f.agent); err != nil {
			return false, fmt.Errorf("request processor %s failed: %w", processor.Name(), err)
		}
	}

	if runCtx.Limiter != nil {
		if err := runCtx.Limiter.Increment(); err != nil {
			ev := core.NewErrorEvent(runCtx.RunID, f.agent.GetName(), ErrCodeMaxModelCalls, err.Error())
			if emitErr := f.emit(runCtx, out, ev); emitErr != nil {
				return false, emitErr
			}
			return true, nil
		}
	}

	respCh, modelErrCh := f.agent.GetModel().Generate(runCtx.Context, req)

	var (
		final      *core.Event
		sawPartial bool
	)

	for resp := range respCh {
		r := resp

		for _, processor := range f.responseProcessors {
			if err := processor.ProcessResponse(runCtx, &r, f.agent); err != nil {
				return false, fmt.Errorf("response processor %s failed: %w", processor.Name(), err)
			}
		}

		ev := core.NewEvent(runCtx.RunID, f.agent.GetName())
		content := r.Content
		partial := r.Partial
		ev.Content = &content
		ev.Partial = &partial

		if r.Partial {
			sawPartial = true
			if err := f.emit(runCtx, out, ev); err != nil {
				return false, err
			}
			continue
		}

		sawPartial = false
		final = &ev
	}

	if err := <-modelErrCh; err != nil {
		if runCtx.Context.Err() != nil {
			return false, runCtx.Context.Err()
		}

		runCtx.LogError("flow.model.error", "agent", f.agent.GetName(), "error", err.Error())

		ev := core.NewErrorEvent(runCtx.RunID, f.agent.GetName(), ErrCodeModelError, err.Error())
		if emitErr := f.emit(runCtx, out, ev); emitErr != nil {
			return false, emitErr
		}
		return true, nil
	}

	if final == nil {
		if sawPartial {
			return false, &FlowInvariantError{Reason: "model stream ended on a partial response"}
		}
		return false, &FlowInvariantError{Reason: "model produced no response"}
	}

	assignFunctionCallIDs(final)

	// Stage the final text under the agent's output key before emission so
	// the delta rides on the final event.
	if key := f.agent.GetOutputKey(); key != "" {
		if text := final.Content.Text(); text != "" {
			runCtx.SetState(key, text)
		}
	}

	fnCalls := final.GetFunctionCalls()

	if err := f.emit(runCtx, out, *final); err != nil {
		return false, err
	}

	if len(fnCalls) == 0 {
		return true, nil
	}

	respEv, err := f.executor.Execute(runCtx, f.agent, f.agent.GetTools(), fnCalls)
	if err != nil {
		return false, err
	}

	if err := f.emit(runCtx, out, respEv); err != nil {
		return false, err
	}

	if target := respEv.Actions.TransferToAgent; target != nil {
		if err := f.transferTo(runCtx, out, *target); err != nil {
			return false, err
		}
		return true, nil
	}

	if respEv.Actions.Escalate != nil && *respEv.Actions.Escalate {
		return true, nil
	}

	if respEv.Actions.SkipSummarization != nil && *respEv.Actions.SkipSummarization {
		return true, nil
	}

	// All calls were long-running: nothing inline to summarize, results
	// arrive through later events.
	if len(respEv.GetFunctionResponses()) == 0 {
		return true, nil
	}

	if runCtx.Ended() {
		return true, nil
	}

	return false, nil
}

// emit prepares and sends an event on the flow channel, then blocks until
// persistence is acknowledged for non-partial events.
func (f *BaseFlow) emit(runCtx *core.RunContext, out chan<- core.Event, ev core.Event) error {
	if !ev.IsPartial() {
		runCtx.PrepareEvent(&ev)
	} else if ev.Branch == nil && runCtx.Branch != "" {
		b := runCtx.Branch
		ev.Branch = &b
	}

	select {
	case <-runCtx.Context.Done():
		return runCtx.Context.Err()
	case out <- ev:
	}

	if !ev.IsPartial() {
		return runCtx.WaitForResume()
	}

	return nil
}

// transferTo hands the conversation to another agent in the tree. Child
// events are relayed through the flow channel; the child shares the parent's
// resume channel so persistence handshakes keep working.
func (f *BaseFlow) transferTo(runCtx *core.RunContext, out chan<- core.Event, target string) error {
	if runCtx.RootAgent == nil {
		return &TransferTargetNotFoundError{Target: target}
	}

	// FindAgent's self-match returns an embedded-base wrapper that cannot
	// run, so the root is matched by name before searching the subtree.
	var next core.Agent
	if runCtx.RootAgent.Name() == target {
		next = runCtx.RootAgent
	} else {
		next = runCtx.RootAgent.FindAgent(target)
	}
	if next == nil {
		return &TransferTargetNotFoundError{Target: target}
	}

	if runCtx.CallDepth >= maxTransferDepth {
		return &FlowInvariantError{Reason: fmt.Sprintf("transfer chain exceeds depth %d", maxTransferDepth)}
	}

	runCtx.LogInfo("flow.transfer", "from", f.agent.GetName(), "to", target)

	relay := make(chan core.Event)
	childCtx := runCtx.NewChildContext(relay, runCtx.Resume, "")
	childCtx.Agent = core.AgentInfo{Name: next.Name(), Type: "model"}

	errCh := make(chan error, 1)

	go func() {
		defer close(relay)
		errCh <- next.Run(childCtx)
	}()

	for ev := range relay {
		select {
		case <-runCtx.Context.Done():
			return runCtx.Context.Err()
		case out <- ev:
		}
	}

	return <-errCh
}

// assignFunctionCallIDs fills in ids for function calls the provider left
// unidentified, so responses can be correlated.
func assignFunctionCallIDs(ev *core.Event) {
	if ev.Content == nil {
		return
	}

	for i, p := range ev.Content.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok && fc.FunctionCall.ID == "" {
			fc.FunctionCall.ID = core.NewID()
			ev.Content.Parts[i] = fc
		}
	}
}
