package agent

import (
	"fmt"

	"github.com/agentloom/agentloom/core"
)

// GraphNode names an agent within a graph and declares its outgoing edges.
type GraphNode struct {
	Name    string
	Agent   core.Agent
	Targets []string
}

// GraphAgent executes agents arranged as a directed graph. Execution starts
// at the root node; after a node's agent finishes, every declared target is
// scheduled, in declaration order. Semantics are fan-out only: a node with
// multiple predecessors runs once per completed incoming edge, with no join
// barrier. Diamond shapes therefore run the shared target more than once;
// model graphs accordingly or add an explicit gate agent.
//
// A step budget bounds total node executions so cyclic graphs terminate.
type GraphAgent struct {
	BaseAgent
	nodes    map[string]GraphNode
	rootNode string
	maxSteps int
}

// GraphOption customizes GraphAgent behavior.
type GraphOption func(*GraphAgent)

// WithMaxSteps caps the total number of node executions. The default is 100.
func WithMaxSteps(n int) GraphOption {
	return func(g *GraphAgent) { g.maxSteps = n }
}

// NewGraphAgent creates a graph execution coordinator. Node names must be
// unique; rootNode and all edge targets must refer to declared nodes, which
// is validated at Run time.
func NewGraphAgent(name, rootNode string, nodes []GraphNode, opts ...GraphOption) *GraphAgent {
	g := &GraphAgent{
		BaseAgent: NewBaseAgent(name),
		nodes:     make(map[string]GraphNode, len(nodes)),
		rootNode:  rootNode,
		maxSteps:  100,
	}

	children := make([]core.Agent, 0, len(nodes))
	for _, n := range nodes {
		g.nodes[n.Name] = n
		children = append(children, n.Agent)
	}
	_ = g.SetSubAgents(children...)

	for _, o := range opts {
		o(g)
	}

	return g
}

// Run implements core.Agent, draining a scheduling queue seeded with the
// root node. Node agent errors stop the graph.
func (g *GraphAgent) Run(runCtx *core.RunContext) error {
	if _, ok := g.nodes[g.rootNode]; !ok {
		return fmt.Errorf("graph root node %q not declared", g.rootNode)
	}

	steps := 0
	queue := []string{g.rootNode}

	for len(queue) > 0 {
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		default:
		}

		if runCtx.Ended() {
			return nil
		}

		name := queue[0]
		queue = queue[1:]

		node, ok := g.nodes[name]
		if !ok {
			return fmt.Errorf("graph edge targets undeclared node %q", name)
		}

		steps++
		if steps > g.maxSteps {
			return fmt.Errorf("graph exceeded step budget of %d node executions", g.maxSteps)
		}

		runCtx.LogDebug("agent.graph.node", "agent", g.Name(), "node", name, "step", steps)

		branchCtx := runCtx.WithBranch(buildBranchPath(runCtx.Branch, g.Name()+"."+name))

		if err := node.Agent.Run(branchCtx); err != nil {
			return fmt.Errorf("graph node %s failed: %w", name, err)
		}

		queue = append(queue, node.Targets...)
	}

	return nil
}
