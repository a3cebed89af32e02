package agent

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/agentloom/core"
)

// emittingAgent emits the given messages in order via the run context.
func emittingAgent(name string, messages ...string) *fakeAgent {
	return newFakeAgent(name, func(_ *fakeAgent, runCtx *core.RunContext) error {
		for _, msg := range messages {
			if err := runCtx.EmitEvent(core.NewMessageEvent(name, msg)); err != nil {
				return err
			}
		}
		return nil
	})
}

func eventTexts(events []core.Event, author string) []string {
	var texts []string
	for _, ev := range events {
		if ev.Author != author || ev.Content == nil {
			continue
		}
		texts = append(texts, ev.Content.Text())
	}
	return texts
}

func TestParallelAgent_MergesPreservingPerChildOrder(t *testing.T) {
	par := NewParallelAgent("fanout",
		emittingAgent("alpha", "a1", "a2", "a3"),
		emittingAgent("beta", "b1", "b2"),
	)

	rc, emit := newTestRunContext(t, 16)
	require.NoError(t, par.Run(rc))

	events := drainEvents(emit)
	require.Len(t, events, 5)
	assert.Equal(t, []string{"a1", "a2", "a3"}, eventTexts(events, "alpha"))
	assert.Equal(t, []string{"b1", "b2"}, eventTexts(events, "beta"))
}

func TestParallelAgent_ChildErrorDoesNotAbortSiblings(t *testing.T) {
	par := NewParallelAgent("fanout",
		newFakeAgent("broken", func(_ *fakeAgent, _ *core.RunContext) error {
			return errors.New("boom")
		}),
		emittingAgent("healthy", "h1", "h2"),
	)

	rc, emit := newTestRunContext(t, 16)
	require.NoError(t, par.Run(rc))

	events := drainEvents(emit)
	assert.Equal(t, []string{"h1", "h2"}, eventTexts(events, "healthy"))
}

func TestParallelAgent_ChildrenGetDistinctBranches(t *testing.T) {
	var mu sync.Mutex
	branches := make(map[string]string)

	mkChild := func(name string) *fakeAgent {
		return newFakeAgent(name, func(_ *fakeAgent, runCtx *core.RunContext) error {
			mu.Lock()
			branches[name] = runCtx.Branch
			mu.Unlock()
			return nil
		})
	}

	par := NewParallelAgent("fanout", mkChild("left"), mkChild("right"))

	rc, _ := newTestRunContext(t, 4)
	require.NoError(t, par.Run(rc))

	assert.Equal(t, "fanout.left", branches["left"])
	assert.Equal(t, "fanout.right", branches["right"])
}

func TestParallelAgent_NoChildrenIsNoOp(t *testing.T) {
	par := NewParallelAgent("empty")

	rc, emit := newTestRunContext(t, 1)
	require.NoError(t, par.Run(rc))
	assert.Empty(t, drainEvents(emit))
}

func TestParallelAgent_AllChildrenRun(t *testing.T) {
	a := emittingAgent("a", "x")
	b := emittingAgent("b", "y")
	c := emittingAgent("c", "z")
	par := NewParallelAgent("fanout", a, b, c)

	rc, _ := newTestRunContext(t, 16)
	require.NoError(t, par.Run(rc))

	assert.EqualValues(t, 1, a.runs.Load())
	assert.EqualValues(t, 1, b.runs.Load())
	assert.EqualValues(t, 1, c.runs.Load())
}

// A child may run at most one completed emit ahead of the merge loop's
// pending downstream send, so a stalled consumer bounds every branch at
// consumed+2 completed emits instead of letting it race to the end.
func TestParallelAgent_BackpressureBoundsChildEmits(t *testing.T) {
	const perChild = 6

	counted := func(name string, emitted *atomic.Int32) *fakeAgent {
		return newFakeAgent(name, func(_ *fakeAgent, runCtx *core.RunContext) error {
			for i := 0; i < perChild; i++ {
				if err := runCtx.EmitEvent(core.NewMessageEvent(name, fmt.Sprintf("%s-%d", name, i))); err != nil {
					return err
				}
				emitted.Add(1)
			}
			return nil
		})
	}

	var leftEmitted, rightEmitted atomic.Int32
	par := NewParallelAgent("fanout",
		counted("left", &leftEmitted),
		counted("right", &rightEmitted),
	)

	rc, emit := newTestRunContext(t, 0) // unbuffered: the test paces consumption

	done := make(chan error, 1)
	go func() { done <- par.Run(rc) }()

	consumed := map[string]int{}
	for total := 0; total < 2*perChild; total++ {
		// Let any branch that could race ahead do so before checking.
		time.Sleep(10 * time.Millisecond)

		for name, n := range map[string]int32{"left": leftEmitted.Load(), "right": rightEmitted.Load()} {
			if int(n) > consumed[name]+2 {
				t.Fatalf("%s completed %d emits with only %d consumed", name, n, consumed[name])
			}
		}

		ev := <-emit
		consumed[ev.Author]++
	}

	require.NoError(t, <-done)
	assert.EqualValues(t, perChild, leftEmitted.Load())
	assert.EqualValues(t, perChild, rightEmitted.Load())
}
