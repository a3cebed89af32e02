package core

// Agent is the interface implemented by every node of a composition tree:
// model-backed agents as well as the sequential / parallel / loop / graph
// operators. Agents receive a RunContext, emit events through it and return
// when their part of the run completes.
//
// Implementations must:
//   - Respect context cancellation and the run's end flag
//   - Emit events only through the provided RunContext
//   - Treat emitted events as immutable
type Agent interface {
	Name() string
	Description() string
	Run(runCtx *RunContext) error
	SetSubAgents(children ...Agent) error
	SubAgents() []Agent
	Parent() Agent
	FindAgent(name string) Agent
}

// AgentInfo carries identifying details about an agent used in contexts and
// events. Name is the external identifier; Type categorizes the
// implementation (e.g. "model", "sequential", "graph").
type AgentInfo struct{ Name, Type string }
