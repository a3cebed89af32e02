package agent

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/agentloom/core"
)

func TestLoopAgent_RunsUntilMaxIterations(t *testing.T) {
	worker := newFakeAgent("worker", nil)
	loop := NewLoopAgent("loop", []core.Agent{worker}, WithMaxIterations(4))

	rc, _ := newTestRunContext(t, 8)
	require.NoError(t, loop.Run(rc))
	assert.EqualValues(t, 4, worker.runs.Load())
}

func TestLoopAgent_StopsOnEscalation(t *testing.T) {
	worker := newFakeAgent("worker", func(a *fakeAgent, runCtx *core.RunContext) error {
		if a.runs.Load() == 3 {
			return runCtx.EmitEvent(NewEscalationEvent(runCtx.RunID, "worker", nil))
		}
		return runCtx.EmitEvent(core.NewMessageEvent("worker", "still trying"))
	})
	loop := NewLoopAgent("loop", []core.Agent{worker}, WithMaxIterations(10))

	rc, emit := newTestRunContext(t, 32)
	require.NoError(t, loop.Run(rc))

	assert.EqualValues(t, 3, worker.runs.Load())

	events := drainEvents(emit)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.NotNil(t, last.Actions.Escalate)
	assert.True(t, *last.Actions.Escalate, "escalating event must still reach the parent stream")
}

func TestLoopAgent_PredicateStopsLoop(t *testing.T) {
	worker := newFakeAgent("worker", func(a *fakeAgent, runCtx *core.RunContext) error {
		msg := "working"
		if a.runs.Load() == 2 {
			msg = "done"
		}
		return runCtx.EmitEvent(core.NewMessageEvent("worker", msg))
	})
	loop := NewLoopAgent("loop", []core.Agent{worker},
		WithMaxIterations(10),
		WithPredicate(func(output string) bool { return output == "done" }),
	)

	rc, _ := newTestRunContext(t, 32)
	require.NoError(t, loop.Run(rc))
	assert.EqualValues(t, 2, worker.runs.Load())
}

func TestLoopAgent_ChildErrorStopsLoop(t *testing.T) {
	boom := errors.New("boom")
	worker := newFakeAgent("worker", func(a *fakeAgent, _ *core.RunContext) error {
		if a.runs.Load() == 2 {
			return boom
		}
		return nil
	})
	loop := NewLoopAgent("loop", []core.Agent{worker}, WithMaxIterations(10))

	rc, _ := newTestRunContext(t, 8)
	err := loop.Run(rc)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 2, worker.runs.Load())
}

func TestLoopAgent_RunsChildListInOrderEachIteration(t *testing.T) {
	rec := &orderRecorder{}
	loop := NewLoopAgent("loop", []core.Agent{
		recordingAgent("plan", rec),
		recordingAgent("act", rec),
	}, WithMaxIterations(2))

	rc, _ := newTestRunContext(t, 8)
	require.NoError(t, loop.Run(rc))
	assert.Equal(t, []string{"plan", "act", "plan", "act"}, rec.ordered())
}

func TestLoopAgent_IntervalDelaysIterations(t *testing.T) {
	worker := newFakeAgent("worker", nil)
	loop := NewLoopAgent("loop", []core.Agent{worker},
		WithMaxIterations(3),
		WithInterval(20*time.Millisecond),
	)

	rc, _ := newTestRunContext(t, 8)
	start := time.Now()
	require.NoError(t, loop.Run(rc))

	// Two intervals between three iterations.
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.EqualValues(t, 3, worker.runs.Load())
}
