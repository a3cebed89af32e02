package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentloom/agentloom/artifact"
	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/logging"
	"github.com/agentloom/agentloom/memory"
	"github.com/agentloom/agentloom/session"
)

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// MaxConcurrentRuns caps simultaneously active runs; further Run calls
	// fail fast instead of queueing.
	MaxConcurrentRuns int
	// EventBufferSize sets channel buffering for event delivery.
	EventBufferSize int
	// MaxModelCalls limits the number of model calls per run.
	MaxModelCalls int
	// Session management services.
	SessionStore core.SessionStore
	// Artifact management services.
	ArtifactStore core.ArtifactStore
	// Memory management services.
	MemoryStore core.MemoryStore
	// Logging services.
	Logger logging.Logger
}

// Runner coordinates agent execution: it creates run contexts, streams
// events, applies side effects and persists history. Public methods are safe
// for concurrent use.
type Runner struct {
	agent core.Agent

	eventBufferSize int
	maxModelCalls   int

	sessionStore  core.SessionStore
	artifactStore core.ArtifactStore
	memoryStore   core.MemoryStore
	logger        logging.Logger

	slots chan struct{}

	mu         sync.Mutex
	activeRuns map[string]context.CancelFunc
}

var _ core.Runner = (*Runner)(nil)

// New constructs a Runner around a root agent with optional overrides.
// Unset stores default to in-memory implementations.
func New(agent core.Agent, optFns ...func(o *Options)) *Runner {
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

	return &Runner{
		agent:           agent,
		eventBufferSize: opts.EventBufferSize,
		maxModelCalls:   opts.MaxModelCalls,
		sessionStore:    opts.SessionStore,
		artifactStore:   opts.ArtifactStore,
		memoryStore:     opts.MemoryStore,
		logger:          opts.Logger,
		slots:           make(chan struct{}, opts.MaxConcurrentRuns),
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// SessionStore exposes the runner's session store so callers can create and
// inspect sessions.
func (r *Runner) SessionStore() core.SessionStore { return r.sessionStore }

// Run starts an asynchronous run against an existing session. The user
// content is appended to the session history before the agent sees it.
func (r *Runner) Run(
	ctx context.Context,
	sessionID string,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	sess, err := r.sessionStore.Get(sessionID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	select {
	case r.slots <- struct{}{}:
	default:
		return "", nil, nil, fmt.Errorf("too many concurrent runs (limit %d)", cap(r.slots))
	}

	runID := core.NewID()

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)
	agentEmit := make(chan core.Event, r.eventBufferSize)
	resumeCh := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	runCtx := core.NewRunContext(ctx, core.RunContextConfig{
		SessionID:     sessionID,
		RunID:         runID,
		Agent:         core.AgentInfo{Name: r.agent.Name(), Type: "root"},
		RootAgent:     r.agent,
		UserContent:   userContent,
		MaxModelCalls: r.maxModelCalls,
		Emit:          agentEmit,
		Resume:        resumeCh,
		Session:       sess,
		SessionStore:  r.sessionStore,
		ArtifactStore: r.artifactStore,
		MemoryStore:   r.memoryStore,
		Logger:        r.logger,
	})

	userEvent := core.NewUserContentEvent(runID, &userContent)
	if err := r.sessionStore.AppendEvent(sessionID, userEvent); err != nil {
		r.release(runID)
		return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
	}

	r.logger.Info("runner.run.started", "run_id", runID, "session_id", sessionID, "agent", r.agent.Name())

	go func() {
		defer func() {
			close(agentEmit)
			r.release(runID)
		}()

		if err := r.agent.Run(runCtx); err != nil {
			select {
			case <-runCtx.Done():
			case errorsCh <- fmt.Errorf("agent execution failed: %w", err):
			}
		}
	}()

	go func() {
		defer func() { close(eventsCh); close(errorsCh) }()

		r.processEvents(runCtx, sessionID, agentEmit, resumeCh, eventsCh, errorsCh)
	}()

	return runID, eventsCh, errorsCh, nil
}

// Cancel requests cooperative termination of an in-flight run.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()
	return nil
}

// release frees the concurrency slot and cancel registration of a run.
func (r *Runner) release(runID string) {
	r.mu.Lock()
	if cancel, ok := r.activeRuns[runID]; ok {
		cancel()
		delete(r.activeRuns, runID)
	}
	r.mu.Unlock()

	<-r.slots
}

// processEvents drains the agent's emit channel. For each non-partial event
// it applies side effects and appends to the session history before the
// event is delivered and the resume acknowledgement sent; an agent therefore
// never advances past an unpersisted event.
func (r *Runner) processEvents(
	runCtx *core.RunContext,
	sessionID string,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
	errorsCh chan<- error,
) {
	for {
		select {
		case <-runCtx.Done():
			return
		case ev, ok := <-agentEmit:
			if !ok {
				return
			}

			if !ev.IsPartial() {
				if err := r.applyEventActions(sessionID, ev); err != nil {
					r.deliverError(runCtx, errorsCh, fmt.Errorf("failed to apply event actions: %w", err))
					return
				}
				if err := r.sessionStore.AppendEvent(sessionID, ev); err != nil {
					r.deliverError(runCtx, errorsCh, fmt.Errorf("failed to append event to session: %w", err))
					return
				}
			}

			select {
			case <-runCtx.Done():
				return
			case eventsCh <- ev:
				r.logger.Debug("runner.event.delivered", "event_id", ev.ID, "session_id", sessionID, "partial", ev.IsPartial())
			}

			if !ev.IsPartial() {
				select {
				case <-runCtx.Done():
					return
				case resumeCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (r *Runner) deliverError(runCtx *core.RunContext, errorsCh chan<- error, err error) {
	select {
	case <-runCtx.Done():
	case errorsCh <- err:
	}
}

// applyEventActions commits the side effects a non-partial event carries.
func (r *Runner) applyEventActions(sessionID string, ev core.Event) error {
	if len(ev.Actions.StateDelta) > 0 {
		if err := r.sessionStore.ApplyDelta(sessionID, ev.Actions.StateDelta); err != nil {
			return fmt.Errorf("failed to apply state delta: %w", err)
		}
	}

	// Artifacts are written by the producing agent at save time; the delta
	// on the event is bookkeeping for consumers.
	if len(ev.Actions.ArtifactDelta) > 0 {
		r.logger.Debug("runner.event.artifacts", "session_id", sessionID, "count", len(ev.Actions.ArtifactDelta))
	}

	if ev.Actions.TransferToAgent != nil && *ev.Actions.TransferToAgent != "" {
		r.logger.Debug("runner.event.transfer_to_agent", "target", *ev.Actions.TransferToAgent, "session_id", sessionID)
	}

	if ev.Actions.Escalate != nil && *ev.Actions.Escalate {
		r.logger.Debug("runner.event.escalate", "session_id", sessionID)
	}

	return nil
}
