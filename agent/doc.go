// Package agent contains the agent implementations and composition
// operators for building Agentloom execution trees:
//
//  1. Hierarchy plumbing shared by all agents (BaseAgent)
//  2. Composition operators (SequentialAgent, ParallelAgent, LoopAgent,
//     GraphAgent)
//  3. The model-backed conversational / tool-calling agent (ModelAgent)
//
// Design principles:
//   - No hidden global state: wiring happens through runner and RunContext
//   - Composability: agents nest arbitrarily via SetSubAgents / FindAgent
//   - Extensibility: embed BaseAgent and implement Run plus any custom API
//
// Execution model:
//   - An agent's Run receives a *core.RunContext (shared or derived)
//   - Composite agents coordinate child Runs in derived branch contexts
//   - ModelAgent delegates to the flow package to stream model events
//
// Persistence, model specifics and tool abstractions live in their own
// packages to avoid cyclic dependencies.
package agent
