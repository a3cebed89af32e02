package core

import "testing"

func TestEvent_ConstructorsAndHelpers(t *testing.T) {
	e := NewEvent("run-123", "authorA")
	if e.Author != "authorA" || e.RunID != "run-123" || e.ID == "" || e.Timestamp.IsZero() {
		t.Fatalf("NewEvent did not initialize fields: %+v", e)
	}

	msg := NewMessageEvent("agent1", "hello world")
	if msg.Content == nil || msg.Content.Role != "assistant" || len(msg.Content.Parts) != 1 {
		t.Fatalf("NewMessageEvent malformed: %+v", msg)
	}

	user := NewUserMessageEvent("run-123", "hi")
	if user.Content == nil || user.Content.Role != "user" || user.RunID != "run-123" {
		t.Fatalf("NewUserMessageEvent malformed: %+v", user)
	}

	resp := NewFunctionResponsesEvent("run-123", "agent2", []FunctionResponse{
		{ID: "call-1", Name: "do_stuff", Response: 42},
		{ID: "call-2", Name: "do_stuff", Error: "boom"},
	})
	resps := resp.GetFunctionResponses()
	if len(resps) != 2 {
		t.Fatalf("expected both responses in one event, got %d", len(resps))
	}
	if resps[0].Response.(int) != 42 || resps[0].Error != "" {
		t.Fatalf("success response extraction failed: %+v", resps[0])
	}
	if resps[1].Error != "boom" {
		t.Fatalf("error response extraction failed: %+v", resps[1])
	}

	errEv := NewErrorEvent("run-123", "agent2", "MODEL_ERROR", "upstream timeout")
	if errEv.ErrorCode == nil || *errEv.ErrorCode != "MODEL_ERROR" || errEv.ErrorMessage == nil {
		t.Fatalf("NewErrorEvent malformed: %+v", errEv)
	}
}

func TestEvent_GetFunctionCalls(t *testing.T) {
	e := NewEvent("run", "agent")
	e.Content = &Content{Role: "assistant", Parts: []Part{
		TextPart{Text: "calling"},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c1", Name: "lookup", Arguments: `{"q":"x"}`}},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c2", Name: "store", Arguments: `{}`}},
	}}

	calls := e.GetFunctionCalls()
	if len(calls) != 2 || calls[0].Name != "lookup" || calls[1].ID != "c2" {
		t.Fatalf("function call extraction failed: %+v", calls)
	}
}

func TestEvent_IsFinalResponse(t *testing.T) {
	e := NewEvent("run", "agent")
	if !e.IsFinalResponse() {
		t.Error("plain event should be final")
	}

	partial := true
	e2 := NewEvent("run", "agent")
	e2.Partial = &partial
	if e2.IsFinalResponse() {
		t.Error("partial event should not be final")
	}

	e3 := NewEvent("run", "agent")
	e3.Content = &Content{Role: "assistant", Parts: []Part{
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c1", Name: "f"}},
	}}
	if e3.IsFinalResponse() {
		t.Error("event with pending function call should not be final")
	}

	e4 := NewFunctionResponsesEvent("run", "agent", []FunctionResponse{{ID: "c1", Name: "f", Response: "ok"}})
	if e4.IsFinalResponse() {
		t.Error("function response event should not be final")
	}

	skip := true
	e5 := NewEvent("run", "agent")
	e5.Partial = &partial
	e5.Actions.SkipSummarization = &skip
	if !e5.IsFinalResponse() {
		t.Error("skip summarization should force final")
	}

	e6 := NewEvent("run", "agent")
	e6.LongRunningToolIDs = []string{"tool1"}
	if !e6.IsFinalResponse() {
		t.Error("long running tool ids should mark final")
	}
}

func TestEvent_IDUniqueness(t *testing.T) {
	if NewID() == NewID() {
		t.Error("expected unique ids")
	}
}

func TestParts_DiscriminatedUnion(t *testing.T) {
	parts := []Part{
		TextPart{Text: "hello"},
		DataPart{Data: map[string]any{"k": "v"}},
		FilePart{Name: "report.pdf", MimeType: "application/pdf", URI: "file://x"},
		FunctionCallPart{FunctionCall: FunctionCall{Name: "f"}},
		FunctionResponsePart{FunctionResponse: FunctionResponse{Name: "f"}},
	}
	for _, p := range parts {
		switch pt := p.(type) {
		case TextPart, DataPart, FilePart, FunctionCallPart, FunctionResponsePart:
		default:
			t.Fatalf("unexpected part type: %T (%v)", pt, pt)
		}
	}
}

func TestContent_Text(t *testing.T) {
	c := Content{Role: "assistant", Parts: []Part{
		TextPart{Text: "hello "},
		FunctionCallPart{FunctionCall: FunctionCall{Name: "f"}},
		TextPart{Text: "world"},
	}}
	if c.Text() != "hello world" {
		t.Fatalf("Text() = %q", c.Text())
	}
}
