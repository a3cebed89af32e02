package core

import "context"

// Runner executes a root agent against a session and streams the resulting
// events.
//
// Guarantees:
//   - Events for one run are delivered in the order the agent pipeline
//     produced them.
//   - The events channel closes when the run completes (success, error or
//     cancellation). The error channel carries at most one terminal error and
//     then closes.
//   - Cancellation happens through ctx or an explicit Cancel(runID); either
//     stops further emission and triggers cleanup.
//   - Partial events may appear in the stream; consumers decide persistence
//     and display with Event.IsPartial.
type Runner interface {
	// Run starts an asynchronous execution bound to sessionID with userContent
	// as the new input. It returns the run id (for Cancel), the ordered event
	// stream and the terminal error channel. The immediate error covers
	// startup failures such as a missing session.
	Run(ctx context.Context, sessionID string, userContent Content) (string, <-chan Event, <-chan error, error)

	// Cancel requests cooperative termination of an in-flight run. Cancelling
	// an unknown or finished run returns an error describing the condition.
	Cancel(runID string) error
}
