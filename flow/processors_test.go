package flow

import (
	"testing"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/tool"
)

func TestInstructionsProcessor_RendersStateTemplate(t *testing.T) {
	runCtx := newFlowRunContext(t, "hi")
	runCtx.Session.SetState("name", "World")

	agent := &testAgent{name: "tester", instr: "Hello {{.name}}"}
	req := &model.Request{}

	if err := NewInstructionsProcessor().ProcessRequest(runCtx, req, agent); err != nil {
		t.Fatalf("process: %v", err)
	}
	if req.Instructions != "Hello World" {
		t.Errorf("instructions = %q, want %q", req.Instructions, "Hello World")
	}
}

func TestContentsProcessor_CapsHistory(t *testing.T) {
	runCtx := newFlowRunContext(t, "first")
	runCtx.Session.AddEvent(core.NewUserMessageEvent("run-1", "second"))
	runCtx.Session.AddEvent(core.NewUserMessageEvent("run-1", "third"))
	runCtx.Session.AddEvent(core.NewUserMessageEvent("run-1", "fourth"))

	agent := &testAgent{name: "tester", maxHistory: 2}
	req := &model.Request{Instructions: "sys"}

	if err := NewContentsProcessor().ProcessRequest(runCtx, req, agent); err != nil {
		t.Fatalf("process: %v", err)
	}

	// System content plus the two most recent history entries.
	if len(req.Contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(req.Contents))
	}
	if req.Contents[0].Role != "system" {
		t.Errorf("first content role = %q, want system", req.Contents[0].Role)
	}
	if got := req.Contents[1].Text(); got != "third" {
		t.Errorf("expected oldest retained message %q, got %q", "third", got)
	}
	if got := req.Contents[2].Text(); got != "fourth" {
		t.Errorf("expected newest message %q, got %q", "fourth", got)
	}
}

func TestContentsProcessor_SkipsPartialEvents(t *testing.T) {
	runCtx := newFlowRunContext(t, "hi")

	partial := core.NewMessageEvent("tester", "chunk")
	p := true
	partial.Partial = &p
	runCtx.Session.AddEvent(partial)

	agent := &testAgent{name: "tester"}
	req := &model.Request{Instructions: "sys"}

	if err := NewContentsProcessor().ProcessRequest(runCtx, req, agent); err != nil {
		t.Fatalf("process: %v", err)
	}

	for _, c := range req.Contents[1:] {
		if c.Text() == "chunk" {
			t.Fatal("partial events must not appear in model history")
		}
	}
}

func TestToolDeclarationsProcessor_DeterministicOrder(t *testing.T) {
	registry := map[string]tool.Tool{
		"zeta":  tool.NewFunctionTool("zeta", "z", map[string]any{"type": "object"}, nil),
		"alpha": tool.NewFunctionTool("alpha", "a", map[string]any{"type": "object"}, nil),
	}

	runCtx := newFlowRunContext(t, "hi")
	agent := &testAgent{name: "tester", tools: registry}
	req := &model.Request{}

	if err := NewToolDeclarationsProcessor().ProcessRequest(runCtx, req, agent); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(req.Tools) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(req.Tools))
	}
	if req.Tools[0].Function.Name != "alpha" || req.Tools[1].Function.Name != "zeta" {
		t.Errorf("definitions not sorted: %s, %s", req.Tools[0].Function.Name, req.Tools[1].Function.Name)
	}
}

func TestTransferToolInjector_InjectsOnce(t *testing.T) {
	agent := &testAgent{
		name:      "root",
		transfer:  true,
		subAgents: []FlowAgent{&testAgent{name: "child"}},
	}

	runCtx := newFlowRunContext(t, "hi")
	req := &model.Request{}
	inj := NewTransferToolInjector()

	if err := inj.ProcessRequest(runCtx, req, agent); err != nil {
		t.Fatalf("inject: %v", err)
	}

	count := 0
	for _, td := range req.Tools {
		if td.Function.Name == transferToolName {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected injected definition, got %d", count)
	}

	// A second pass must not duplicate.
	if err := inj.ProcessRequest(runCtx, req, agent); err != nil {
		t.Fatalf("inject: %v", err)
	}

	count = 0
	for _, td := range req.Tools {
		if td.Function.Name == transferToolName {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected single definition after second pass, got %d", count)
	}
}

func TestTransferToolInjector_SkipsIsolatedAgents(t *testing.T) {
	runCtx := newFlowRunContext(t, "hi")
	req := &model.Request{}

	noTransfer := &testAgent{name: "solo", subAgents: []FlowAgent{&testAgent{name: "child"}}}
	if err := NewTransferToolInjector().ProcessRequest(runCtx, req, noTransfer); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if len(req.Tools) != 0 {
		t.Error("transfer-disabled agent must not get a transfer tool")
	}

	noChildren := &testAgent{name: "leaf", transfer: true}
	if err := NewTransferToolInjector().ProcessRequest(runCtx, req, noChildren); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if len(req.Tools) != 0 {
		t.Error("childless agent must not get a transfer tool")
	}
}
