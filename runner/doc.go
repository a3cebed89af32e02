// Package runner orchestrates agent execution. A Runner binds a root agent
// to session, artifact and memory stores, starts runs against existing
// sessions, persists every non-partial event before acknowledging it to the
// emitting agent, applies event side effects to session state, and exposes
// cooperative cancellation by run ID.
package runner
