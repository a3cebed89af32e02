// Package core provides the foundational domain types, interfaces and
// execution contexts used by Agentloom. It defines:
//
//   - Agents (units of autonomous / orchestrated work)
//   - Sessions (stateful conversational containers with event history)
//   - Events (immutable communication + orchestration records)
//   - RunContext / ToolContext (scoped execution & tool sandboxing)
//   - Pluggable stores for session state, artifacts and memory recall
//
// The package keeps implementation concerns (persistence backends, concrete
// agents, transports) out of scope, exposing small interfaces so custom
// backends can be supplied.
package core
