// Package flow provides execution flow management for Agentloom agents.
//
// A flow drives the turn loop of a model-backed agent: building the model
// request through pluggable processors, streaming the model response,
// executing any requested tool calls, and handing control to other agents
// when a transfer is requested. Different flow implementations select
// different processor stacks.
package flow

import (
	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/tool"
)

// Flow is the interface for agent execution flows.
//
// Execute launches the flow asynchronously and returns the ordered event
// stream plus a terminal error channel. The event channel closes when the
// flow finishes; the error channel carries at most one fatal error and then
// closes. Recoverable failures (model errors, tool errors) surface as error
// events in the stream instead.
type Flow interface {
	Execute(runCtx *core.RunContext) (<-chan core.Event, <-chan error, error)
}

// FlowAgent is the view of an agent a flow needs to run it, without exposing
// the full agent implementation.
type FlowAgent interface {
	// GetName returns the agent's display name, used as event author.
	GetName() string

	// GetModel returns the language model driving this agent.
	GetModel() model.Model

	// ResolveInstructions produces the system prompt for the current turn.
	ResolveInstructions(runCtx *core.RunContext) (string, error)

	// GetTools returns the registered tools for function calling.
	GetTools() map[string]tool.Tool

	// GetSubAgents returns the child agents reachable for transfer.
	GetSubAgents() []FlowAgent

	// IsStreamingEnabled reports whether partial responses should stream.
	IsStreamingEnabled() bool

	// IsTransferEnabled reports whether the agent may hand off control.
	IsTransferEnabled() bool

	// GetOutputKey returns the state key for saving final responses, or "".
	GetOutputKey() string

	// MaxHistoryMessages bounds how much conversation history is replayed.
	MaxHistoryMessages() int
}

// RequestProcessor mutates the model request before generation.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request before model execution.
	ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error
}

// ResponseProcessor inspects or mutates each model response chunk.
type ResponseProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessResponse handles a model response and may adjust it in place.
	ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error
}
