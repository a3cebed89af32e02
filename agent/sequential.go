package agent

import (
	"fmt"

	"github.com/agentloom/agentloom/core"
)

// SequentialAgent runs its children strictly in list order. Each child's
// full run, including any transfers it performs, completes before the next
// child starts. All children share the session, so every child observes the
// state its predecessors committed.
type SequentialAgent struct {
	BaseAgent
	children []core.Agent
}

// NewSequentialAgent creates a sequential execution coordinator over the
// given children.
func NewSequentialAgent(name string, children ...core.Agent) *SequentialAgent {
	a := &SequentialAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
	}
	_ = a.SetSubAgents(children...)
	return a
}

// Run implements core.Agent. Each child runs in a derived branch context;
// the first error stops further processing.
func (s *SequentialAgent) Run(runCtx *core.RunContext) error {
	for _, child := range s.children {
		if runCtx.Ended() {
			return nil
		}

		select {
		case <-runCtx.Done():
			return runCtx.Err()
		default:
		}

		branchCtx := runCtx.WithBranch(buildBranchPath(runCtx.Branch, s.Name()+"."+child.Name()))

		if err := child.Run(branchCtx); err != nil {
			return fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}
	}

	return nil
}
