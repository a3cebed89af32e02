// Package agentloom provides a high-level facade over the runner and service
// abstractions (sessions, artifacts, memory, logging) for building multi-agent
// reasoning systems. Most applications interact with this package by:
//  1. Creating a Loom via New() around a root agent (optionally overriding
//     the default in-memory services)
//  2. Creating a session
//  3. Running turns asynchronously (Run) or synchronously (RunSync)
//
// The facade delegates orchestration to runner.Runner while keeping setup
// concise. All defaults are safe for local development and testing;
// production deployments typically supply durable store implementations and
// a structured logger.
package agentloom

import (
	"context"

	"github.com/agentloom/agentloom/artifact"
	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/logging"
	"github.com/agentloom/agentloom/memory"
	"github.com/agentloom/agentloom/runner"
	"github.com/agentloom/agentloom/session"
)

// Options configures the Loom instance.
type Options struct {
	// MaxConcurrentRuns caps simultaneously active runs.
	MaxConcurrentRuns int

	// EventBufferSize sets the channel buffer size for event delivery.
	// Larger buffers reduce blocking but increase memory usage.
	EventBufferSize int

	// MaxModelCalls limits model invocations per run.
	MaxModelCalls int

	// Stores (default to in-memory implementations if not provided).
	SessionStore  core.SessionStore
	ArtifactStore core.ArtifactStore
	MemoryStore   core.MemoryStore

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Loom is the high-level facade aggregating the runner and its services.
type Loom struct {
	opts   Options
	runner *runner.Runner
}

// New creates a Loom around a root agent with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(rootAgent core.Agent, optFns ...func(o *Options)) *Loom {
	opts := Options{
		MaxConcurrentRuns: 10,
		EventBufferSize:   100,
		MaxModelCalls:     100,
		SessionStore:      session.NewInMemoryStore(),
		ArtifactStore:     artifact.NewInMemoryStore(),
		MemoryStore:       memory.NewInMemoryStore(),
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	r := runner.New(rootAgent, func(o *runner.Options) {
		o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		o.EventBufferSize = opts.EventBufferSize
		o.MaxModelCalls = opts.MaxModelCalls
		o.SessionStore = opts.SessionStore
		o.ArtifactStore = opts.ArtifactStore
		o.MemoryStore = opts.MemoryStore
		o.Logger = opts.Logger
	})

	return &Loom{opts: opts, runner: r}
}

// CreateSession creates a new session for appName and userID with optional
// initial state and returns its ID.
func (l *Loom) CreateSession(appName, userID string, initialState map[string]any) (string, error) {
	sess, err := l.opts.SessionStore.Create(appName, userID, initialState)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// SessionStore exposes the underlying session store.
func (l *Loom) SessionStore() core.SessionStore { return l.opts.SessionStore }

// Run starts an asynchronous run returning the run ID plus event and error
// channels.
func (l *Loom) Run(
	ctx context.Context,
	sessionID string,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	return l.runner.Run(ctx, sessionID, userContent)
}

// RunText is a convenience wrapper building user content from plain text.
func (l *Loom) RunText(
	ctx context.Context,
	sessionID string,
	text string,
) (string, <-chan core.Event, <-chan error, error) {
	return l.Run(ctx, sessionID, UserText(text))
}

// RunSync drains the async channels, accumulates events and returns the run
// ID together with the collected events.
func (l *Loom) RunSync(
	ctx context.Context,
	sessionID string,
	userContent core.Content,
) (string, []core.Event, error) {
	runID, eventsCh, errorsCh, err := l.runner.Run(ctx, sessionID, userContent)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event
	for {
		select {
		case <-ctx.Done():
			return runID, events, ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				select {
				case err := <-errorsCh:
					return runID, events, err
				default:
					return runID, events, nil
				}
			}
			events = append(events, event)

		case err, ok := <-errorsCh:
			if !ok {
				errorsCh = nil
				continue
			}
			if err != nil {
				return runID, events, err
			}
		}
	}
}

// Cancel requests cooperative termination of an in-flight run.
func (l *Loom) Cancel(runID string) error { return l.runner.Cancel(runID) }

// UserText builds user-role content from plain text.
func UserText(text string) core.Content {
	return core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: text}}}
}
