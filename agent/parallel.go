package agent

import (
	"golang.org/x/sync/errgroup"

	"github.com/agentloom/agentloom/core"
)

// ParallelAgent runs its children concurrently, each in a derived branch
// context, and merges their event streams into the parent's stream with two
// guarantees:
//
//   - Per-child order: events from one child are never reordered or skipped
//     relative to each other.
//   - Strict backpressure: at most one not-yet-consumed event is in flight
//     per child; the merge advances only after the previously yielded event
//     has been handed downstream.
//
// A child whose run fails is removed from the merge and its error logged,
// not propagated: one branch's failure must not abort its siblings. State
// written by concurrent branches merges last-write-wins per key, so branch
// authors must choose disjoint keys or accept the race.
type ParallelAgent struct {
	BaseAgent
	children []core.Agent
}

// NewParallelAgent creates a parallel execution coordinator over the given
// children.
func NewParallelAgent(name string, children ...core.Agent) *ParallelAgent {
	a := &ParallelAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
	}
	_ = a.SetSubAgents(children...)
	return a
}

// mergedEvent tags an event with the index of the child that produced it.
type mergedEvent struct {
	child int
	event core.Event
}

// Run implements core.Agent. Children emit into per-child unbuffered
// channels; forwarders funnel them through one unbuffered merge channel, so
// each blocked send is exactly the one in-flight event its child is allowed.
func (p *ParallelAgent) Run(runCtx *core.RunContext) error {
	if len(p.children) == 0 {
		return nil
	}

	merged := make(chan mergedEvent) // unbuffered: strict backpressure
	resumes := make([]chan struct{}, len(p.children))

	var g errgroup.Group

	for i, child := range p.children {
		intercept := make(chan core.Event) // unbuffered: one in-flight per child
		resume := make(chan struct{}, 1)
		resumes[i] = resume

		branch := buildBranchPath(runCtx.Branch, p.Name()+"."+child.Name())
		childCtx := runCtx.NewChildContext(intercept, resume, branch)

		idx, c := i, child

		g.Go(func() error {
			childDone := make(chan error, 1)

			go func() {
				childDone <- c.Run(childCtx)
				close(intercept)
			}()

			for ev := range intercept {
				select {
				case merged <- mergedEvent{child: idx, event: ev}:
				case <-runCtx.Done():
					return runCtx.Err()
				}
			}

			if err := <-childDone; err != nil {
				// Best-effort parallel semantics: log and keep siblings alive.
				runCtx.LogError("agent.parallel.child_failed", "parent", p.Name(), "child", c.Name(), "error", err.Error())
			}

			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(merged)
	}()

	for me := range merged {
		select {
		case runCtx.Emit <- me.event:
		case <-runCtx.Done():
			return runCtx.Err()
		}

		if me.event.IsPartial() {
			continue
		}

		// The runner acknowledges persistence on the parent's resume
		// channel; relay the acknowledgement to the emitting child.
		if err := runCtx.WaitForResume(); err != nil {
			return err
		}

		select {
		case resumes[me.child] <- struct{}{}:
		default:
			// Child is not waiting for acknowledgements.
		}
	}

	return <-waitErr
}
