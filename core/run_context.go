package core

import (
	"context"
	"fmt"
	"maps"
	"sync/atomic"

	"github.com/agentloom/agentloom/logging"
)

// RunContext carries execution state and helpers for one agent run. It
// aggregates:
//   - The ambient cancellation Context plus a cooperative end-of-run flag
//   - Identifiers (SessionID, RunID, Agent info, Branch path, CallDepth)
//   - The root of the agent tree, for transfer target resolution
//   - Input user Content
//   - Emission / resumption coordination channels
//   - Backing services (session, artifact, memory)
//   - A working Session reference and pending StateDelta to commit
//
// State mutations performed via SetState accumulate in StateDelta until
// CommitStateDelta or EmitEvent applies them. Child contexts derived per
// sub-agent share the session and services by reference but get fresh delta
// buffers and an extended Branch path, so state written by one branch is
// visible to its siblings while per-branch bookkeeping stays isolated.
type RunContext struct {
	Context          context.Context
	SessionID, RunID string
	Agent            AgentInfo
	RootAgent        Agent
	UserContent      Content
	Emit             chan<- Event
	Resume           <-chan struct{}
	SessionStore     SessionStore
	ArtifactStore    ArtifactStore
	MemoryStore      MemoryStore
	Limiter          *ModelLimiter
	Session          *Session
	StateDelta       map[string]any
	Artifacts        []string
	Branch           string
	CallDepth        int

	// ended is shared across all contexts derived from the same run so one
	// branch can halt the whole invocation.
	ended *atomic.Bool

	*loggerAdapter
}

// RunContextConfig bundles the dependencies needed to start a run.
type RunContextConfig struct {
	SessionID     string
	RunID         string
	Agent         AgentInfo
	RootAgent     Agent
	UserContent   Content
	MaxModelCalls int
	Emit          chan<- Event
	Resume        <-chan struct{}
	Session       *Session
	SessionStore  SessionStore
	ArtifactStore ArtifactStore
	MemoryStore   MemoryStore
	Logger        logging.Logger
}

// NewRunContext constructs a root RunContext with empty delta buffers.
func NewRunContext(ctx context.Context, cfg RunContextConfig) *RunContext {
	return &RunContext{
		Context:       ctx,
		SessionID:     cfg.SessionID,
		RunID:         cfg.RunID,
		Agent:         cfg.Agent,
		RootAgent:     cfg.RootAgent,
		UserContent:   cfg.UserContent,
		Emit:          cfg.Emit,
		Resume:        cfg.Resume,
		Session:       cfg.Session,
		SessionStore:  cfg.SessionStore,
		ArtifactStore: cfg.ArtifactStore,
		MemoryStore:   cfg.MemoryStore,
		Limiter:       NewModelLimiter(cfg.MaxModelCalls),
		StateDelta:    map[string]any{},
		Artifacts:     []string{},
		ended:         &atomic.Bool{},
		loggerAdapter: newLoggerAdapter(cfg.Logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// EndRun sets the cooperative end-of-run flag. Flows check it between steps:
// once set, no new model or tool calls are issued, but in-flight work runs to
// completion.
func (rc *RunContext) EndRun() { rc.ended.Store(true) }

// Ended reports whether the run has been flagged to end.
func (rc *RunContext) Ended() bool { return rc.ended.Load() }

// GetState returns a staged (delta) value if present, else the persisted
// session value.
func (rc *RunContext) GetState(k string) (any, bool) {
	if v, ok := rc.StateDelta[k]; ok {
		return v, true
	}

	if rc.Session != nil {
		return rc.Session.GetState(k)
	}

	return nil, false
}

// SetState stages a state mutation in the in-memory delta buffer.
func (rc *RunContext) SetState(k string, v any) { rc.StateDelta[k] = v }

// ApplyStateDelta merges all pairs from d into the staged StateDelta.
func (rc *RunContext) ApplyStateDelta(d map[string]any) {
	maps.Copy(rc.StateDelta, d)
}

// AddArtifact stages an artifact id to be attached to the next emitted event.
func (rc *RunContext) AddArtifact(id string) { rc.Artifacts = append(rc.Artifacts, id) }

// SaveArtifact stores bytes in the ArtifactStore and stages the id for the
// next emitted event.
func (rc *RunContext) SaveArtifact(id string, data []byte) error {
	if rc.ArtifactStore == nil {
		return fmt.Errorf("artifact store not configured")
	}

	if err := rc.ArtifactStore.Save(rc.SessionID, id, data); err != nil {
		return err
	}

	rc.AddArtifact(id)

	return nil
}

// GetArtifact retrieves previously saved artifact bytes.
func (rc *RunContext) GetArtifact(id string) ([]byte, error) {
	if rc.ArtifactStore == nil {
		return nil, fmt.Errorf("artifact store not configured")
	}

	return rc.ArtifactStore.Get(rc.SessionID, id)
}

// SearchMemory queries the MemoryStore for relevant content.
func (rc *RunContext) SearchMemory(q string, limit int) ([]SearchResult, error) {
	if rc.MemoryStore == nil {
		return []SearchResult{}, nil
	}

	return rc.MemoryStore.Search(rc.SessionID, q, limit)
}

// StoreMemory appends content plus metadata to the MemoryStore.
func (rc *RunContext) StoreMemory(content string, md map[string]any) error {
	if rc.MemoryStore == nil {
		return fmt.Errorf("memory store not configured")
	}
	return rc.MemoryStore.Store(rc.SessionID, content, md)
}

// RefreshSession reloads the session snapshot from the SessionStore.
func (rc *RunContext) RefreshSession() error {
	if rc.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}

	s, err := rc.SessionStore.Get(rc.SessionID)
	if err != nil {
		return err
	}

	rc.Session = s

	return nil
}

// CommitStateDelta persists the accumulated StateDelta then clears the buffer.
func (rc *RunContext) CommitStateDelta() error {
	if len(rc.StateDelta) == 0 {
		return nil
	}

	if rc.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}

	if err := rc.SessionStore.ApplyDelta(rc.SessionID, rc.StateDelta); err != nil {
		return err
	}

	rc.StateDelta = map[string]any{}

	return nil
}

// GetSessionHistory returns all historical events for the session.
func (rc *RunContext) GetSessionHistory() []Event {
	if rc.Session == nil {
		return []Event{}
	}

	return rc.Session.GetEvents()
}

// GetAgentName returns the logical agent name for this run.
func (rc *RunContext) GetAgentName() string { return rc.Agent.Name }

// GetAgentType returns a categorization label for the agent.
func (rc *RunContext) GetAgentType() string { return rc.Agent.Type }

// Clone returns a shallow copy with deep-copied delta and artifact buffers.
func (rc *RunContext) Clone() *RunContext {
	c := &RunContext{
		Context:       rc.Context,
		SessionID:     rc.SessionID,
		RunID:         rc.RunID,
		Agent:         rc.Agent,
		RootAgent:     rc.RootAgent,
		UserContent:   rc.UserContent,
		Emit:          rc.Emit,
		Resume:        rc.Resume,
		SessionStore:  rc.SessionStore,
		ArtifactStore: rc.ArtifactStore,
		MemoryStore:   rc.MemoryStore,
		Limiter:       rc.Limiter,
		Session:       rc.Session,
		StateDelta:    map[string]any{},
		Artifacts:     []string{},
		Branch:        rc.Branch,
		CallDepth:     rc.CallDepth,
		ended:         rc.ended,
		loggerAdapter: rc.loggerAdapter,
	}

	maps.Copy(c.StateDelta, rc.StateDelta)

	c.Artifacts = append(c.Artifacts, rc.Artifacts...)

	return c
}

// WithBranch clones the context and sets the Branch label.
func (rc *RunContext) WithBranch(b string) *RunContext {
	c := rc.Clone()
	c.Branch = b
	return c
}

// NewChildContext derives a context for a nested child execution path. The
// child shares session, services, limiter and the end flag with the parent
// but gets fresh delta buffers, replacement Emit/Resume channels, an
// optionally extended branch and an incremented call depth.
func (rc *RunContext) NewChildContext(emit chan<- Event, resume <-chan struct{}, branch string) *RunContext {
	finalBranch := rc.Branch
	if branch != "" {
		finalBranch = branch
	}

	return &RunContext{
		Context:       rc.Context,
		SessionID:     rc.SessionID,
		RunID:         rc.RunID,
		Agent:         rc.Agent,
		RootAgent:     rc.RootAgent,
		UserContent:   rc.UserContent,
		Emit:          emit,
		Resume:        resume,
		SessionStore:  rc.SessionStore,
		ArtifactStore: rc.ArtifactStore,
		MemoryStore:   rc.MemoryStore,
		Limiter:       rc.Limiter,
		Session:       rc.Session,
		StateDelta:    map[string]any{}, // fresh buffers
		Artifacts:     []string{},
		Branch:        finalBranch,
		CallDepth:     rc.CallDepth + 1,
		ended:         rc.ended,
		loggerAdapter: rc.loggerAdapter,
	}
}

// PrepareEvent merges pending StateDelta / Artifacts into the event's
// actions, stamps the branch if unset and clears the buffers. EmitEvent
// calls it before sending; flows that emit on their own channels call it
// directly so staged mutations ride on the emitted event.
func (rc *RunContext) PrepareEvent(ev *Event) {
	if len(rc.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		maps.Copy(ev.Actions.StateDelta, rc.StateDelta)
	}

	if len(rc.Artifacts) > 0 {
		if ev.Actions.ArtifactDelta == nil {
			ev.Actions.ArtifactDelta = map[string]int{}
		}
		for _, id := range rc.Artifacts {
			ev.Actions.ArtifactDelta[id] = 1
		}
	}

	if ev.Branch == nil && rc.Branch != "" {
		b := rc.Branch
		ev.Branch = &b
	}

	rc.StateDelta = map[string]any{}
	rc.Artifacts = []string{}
}

// EmitEvent prepares the event (see PrepareEvent) and emits it. Returns the
// cancellation error if the context is done before emission succeeds.
func (rc *RunContext) EmitEvent(ev Event) error {
	rc.PrepareEvent(&ev)

	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
	}

	return nil
}

// WaitForResume blocks until Resume signals or the context is cancelled.
// With a nil Resume channel it returns immediately.
func (rc *RunContext) WaitForResume() error {
	if rc.Resume == nil {
		return nil
	}

	select {
	case <-rc.Resume:
		return nil
	case <-rc.Context.Done():
		return rc.Context.Err()
	}
}
