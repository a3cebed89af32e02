package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentloom/agentloom/agent"
	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/session"
)

// scriptedAgent emits canned messages through the run context.
type scriptedAgent struct {
	agent.BaseAgent
	messages []string
	fail     error
	block    bool
}

func newScriptedAgent(name string, messages ...string) *scriptedAgent {
	return &scriptedAgent{BaseAgent: agent.NewBaseAgent(name), messages: messages}
}

func (a *scriptedAgent) Run(runCtx *core.RunContext) error {
	if a.block {
		<-runCtx.Done()
		return runCtx.Err()
	}
	for _, msg := range a.messages {
		ev := core.NewMessageEvent(a.Name(), msg)
		ev.RunID = runCtx.RunID
		if err := runCtx.EmitEvent(ev); err != nil {
			return err
		}
		if err := runCtx.WaitForResume(); err != nil {
			return err
		}
	}
	return a.fail
}

func userText(msg string) core.Content {
	return core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: msg}}}
}

func newRunnerWithSession(t *testing.T, a core.Agent, optFns ...func(o *Options)) (*Runner, string) {
	t.Helper()

	store := session.NewInMemoryStore()
	sess, err := store.Create("test-app", "user-1", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	optFns = append([]func(o *Options){func(o *Options) { o.SessionStore = store }}, optFns...)
	return New(a, optFns...), sess.ID
}

func collect(t *testing.T, eventsCh <-chan core.Event, errorsCh <-chan error) ([]core.Event, error) {
	t.Helper()

	var (
		events []core.Event
		runErr error
	)
	timeout := time.After(5 * time.Second)
	for eventsCh != nil || errorsCh != nil {
		select {
		case ev, ok := <-eventsCh:
			if !ok {
				eventsCh = nil
				continue
			}
			events = append(events, ev)
		case err, ok := <-errorsCh:
			if !ok {
				errorsCh = nil
				continue
			}
			if err != nil {
				runErr = err
			}
		case <-timeout:
			t.Fatal("timed out waiting for run to finish")
		}
	}
	return events, runErr
}

func TestRunner_RunDeliversAndPersistsEvents(t *testing.T) {
	a := newScriptedAgent("talker", "one", "two")
	r, sessionID := newRunnerWithSession(t, a)

	runID, eventsCh, errorsCh, err := r.Run(context.Background(), sessionID, userText("go"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if runID == "" {
		t.Fatal("empty run id")
	}

	events, runErr := collect(t, eventsCh, errorsCh)
	if runErr != nil {
		t.Fatalf("run error: %v", runErr)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Content.Text() != "one" || events[1].Content.Text() != "two" {
		t.Fatalf("unexpected event order: %v, %v", events[0].Content.Text(), events[1].Content.Text())
	}

	// History holds the user event plus both agent events.
	sess, err := r.SessionStore().Get(sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(sess.Events) != 3 {
		t.Fatalf("expected 3 persisted events, got %d", len(sess.Events))
	}
	if sess.Events[0].Content.Text() != "go" {
		t.Fatalf("user event not first in history: %v", sess.Events[0])
	}
}

func TestRunner_UnknownSessionFailsFast(t *testing.T) {
	r := New(newScriptedAgent("talker"))

	if _, _, _, err := r.Run(context.Background(), "missing", userText("go")); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestRunner_StateDeltaAppliedBeforeResume(t *testing.T) {
	a := &stateWritingAgent{BaseAgent: agent.NewBaseAgent("writer")}
	r, sessionID := newRunnerWithSession(t, a)

	_, eventsCh, errorsCh, err := r.Run(context.Background(), sessionID, userText("go"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, runErr := collect(t, eventsCh, errorsCh); runErr != nil {
		t.Fatalf("run error: %v", runErr)
	}

	sess, err := r.SessionStore().Get(sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.State["answer"] != "42" {
		t.Fatalf("state delta not applied: %v", sess.State)
	}
	if a.observed != "42" {
		t.Fatalf("agent resumed before state was committed, saw %q", a.observed)
	}
}

// stateWritingAgent stages a delta, emits, waits for the persistence
// acknowledgement, then reads the committed state back.
type stateWritingAgent struct {
	agent.BaseAgent
	observed any
}

func (a *stateWritingAgent) Run(runCtx *core.RunContext) error {
	runCtx.SetState("answer", "42")
	ev := core.NewMessageEvent(a.Name(), "stored")
	ev.RunID = runCtx.RunID
	if err := runCtx.EmitEvent(ev); err != nil {
		return err
	}
	if err := runCtx.WaitForResume(); err != nil {
		return err
	}

	sess, err := runCtx.SessionStore.Get(runCtx.SessionID)
	if err != nil {
		return err
	}
	a.observed = sess.State["answer"]
	return nil
}

func TestRunner_AgentErrorSurfacesOnErrorChannel(t *testing.T) {
	a := newScriptedAgent("broken")
	a.fail = errors.New("boom")
	r, sessionID := newRunnerWithSession(t, a)

	_, eventsCh, errorsCh, err := r.Run(context.Background(), sessionID, userText("go"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	_, runErr := collect(t, eventsCh, errorsCh)
	if runErr == nil {
		t.Fatal("expected run error")
	}
}

func TestRunner_CancelStopsRun(t *testing.T) {
	a := newScriptedAgent("stuck")
	a.block = true
	r, sessionID := newRunnerWithSession(t, a)

	runID, eventsCh, errorsCh, err := r.Run(context.Background(), sessionID, userText("go"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := r.Cancel(runID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	collect(t, eventsCh, errorsCh)

	if err := r.Cancel(runID); err == nil {
		t.Fatal("expected cancelling a finished run to fail")
	}
}

func TestRunner_ConcurrentRunLimit(t *testing.T) {
	a := newScriptedAgent("stuck")
	a.block = true
	r, sessionID := newRunnerWithSession(t, a, func(o *Options) { o.MaxConcurrentRuns = 1 })

	runID, eventsCh, errorsCh, err := r.Run(context.Background(), sessionID, userText("go"))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	if _, _, _, err := r.Run(context.Background(), sessionID, userText("go")); err == nil {
		t.Fatal("expected second run to be rejected")
	}

	if err := r.Cancel(runID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	collect(t, eventsCh, errorsCh)
}
