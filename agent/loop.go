package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/agentloom/agentloom/core"
)

// errEscalated signals that a child agent raised the escalate flag.
var errEscalated = errors.New("child agent escalated")

// LoopAgent repeats its child list sequentially up to a configured number of
// iterations. On each pass every child runs in order, exactly as
// SequentialAgent would run them; the whole list then repeats. The loop
// terminates early the first time any emitted event carries the escalate
// action flag. No event is suppressed: escalation is detected by inspecting
// each event as it flows by, and the escalating event still reaches the
// parent stream.
type LoopAgent struct {
	BaseAgent
	children      []core.Agent
	maxIterations int
	interval      time.Duration
	predicate     func(output string) bool
}

// LoopOption customizes LoopAgent behavior.
type LoopOption func(*LoopAgent)

// WithMaxIterations caps the number of passes over the child list. The loop
// stops after this many iterations even without escalation.
func WithMaxIterations(n int) LoopOption {
	return func(l *LoopAgent) { l.maxIterations = n }
}

// WithInterval inserts a delay between iterations, useful for polling
// scenarios or giving external systems time to settle.
func WithInterval(d time.Duration) LoopOption {
	return func(l *LoopAgent) { l.interval = d }
}

// WithPredicate installs a termination condition evaluated against the last
// non-partial text output of each iteration; returning true stops the loop.
func WithPredicate(pred func(output string) bool) LoopOption {
	return func(l *LoopAgent) { l.predicate = pred }
}

// NewLoopAgent constructs a looping coordinator. Defaults: 100 iterations,
// no interval, no predicate.
func NewLoopAgent(name string, children []core.Agent, opts ...LoopOption) *LoopAgent {
	la := &LoopAgent{
		BaseAgent:     NewBaseAgent(name),
		children:      children,
		maxIterations: 100,
	}

	for _, o := range opts {
		o(la)
	}

	_ = la.SetSubAgents(children...)

	return la
}

// Run implements core.Agent, executing the child list repeatedly with
// escalation monitoring.
func (l *LoopAgent) Run(runCtx *core.RunContext) error {
	for i := 0; i < l.maxIterations; i++ {
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		default:
		}

		if runCtx.Ended() {
			return nil
		}

		runCtx.LogDebug("agent.loop.iteration", "agent", l.Name(), "iteration", i+1)

		lastOutput, err := l.runIteration(runCtx)
		if errors.Is(err, errEscalated) {
			runCtx.LogInfo("agent.loop.escalated", "agent", l.Name(), "iteration", i+1)
			return nil
		}
		if err != nil {
			return fmt.Errorf("loop iteration %d failed: %w", i+1, err)
		}

		if l.predicate != nil && l.predicate(lastOutput) {
			runCtx.LogDebug("agent.loop.predicate_stop", "agent", l.Name(), "iteration", i+1)
			return nil
		}

		if l.interval > 0 && i < l.maxIterations-1 {
			select {
			case <-runCtx.Done():
				return runCtx.Err()
			case <-time.After(l.interval):
			}
		}
	}

	return nil
}

// runIteration executes one pass over the child list and returns the last
// non-partial text output observed, for predicate evaluation.
func (l *LoopAgent) runIteration(runCtx *core.RunContext) (string, error) {
	var lastOutput string

	for _, child := range l.children {
		branch := buildBranchPath(runCtx.Branch, l.Name()+"."+child.Name())

		output, err := l.runChildWithEscalationMonitoring(runCtx, child, branch)
		if output != "" {
			lastOutput = output
		}
		if err != nil {
			return lastOutput, err
		}
	}

	return lastOutput, nil
}

// runChildWithEscalationMonitoring routes the child's events through an
// intercept channel, forwarding each to the parent while checking for the
// escalate flag. It returns errEscalated when the flag is seen, after the
// escalating event has been forwarded.
func (l *LoopAgent) runChildWithEscalationMonitoring(runCtx *core.RunContext, child core.Agent, branch string) (string, error) {
	intercept := make(chan core.Event)
	resume := make(chan struct{}, 1)
	childCtx := runCtx.NewChildContext(intercept, resume, branch)

	done := make(chan error, 1)

	go func() {
		done <- child.Run(childCtx)
		close(intercept)
	}()

	var (
		lastOutput string
		escalated  bool
	)

	for ev := range intercept {
		if ev.Content != nil && !ev.IsPartial() {
			if text := ev.Content.Text(); text != "" {
				lastOutput = text
			}
		}

		if ev.Actions.Escalate != nil && *ev.Actions.Escalate {
			escalated = true
		}

		select {
		case runCtx.Emit <- ev:
		case <-runCtx.Done():
			return lastOutput, runCtx.Err()
		}

		if !ev.IsPartial() {
			if err := runCtx.WaitForResume(); err != nil {
				return lastOutput, err
			}

			select {
			case resume <- struct{}{}:
			default:
			}
		}
	}

	err := <-done

	if escalated {
		return lastOutput, errEscalated
	}

	return lastOutput, err
}

// NewEscalationEvent constructs an event carrying the escalate flag, for
// agents that determine they cannot complete their task and need the loop
// above them to stop.
func NewEscalationEvent(runID, author string, content *core.Content) core.Event {
	escalate := true
	ev := core.NewEvent(runID, author)
	ev.Actions.Escalate = &escalate
	ev.Content = content
	return ev
}
