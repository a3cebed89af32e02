package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentloom/agentloom/model"
)

func TestCreateMessageParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  CreateMessageParams
		wantErr bool
	}{
		{
			name:    "empty messages rejected",
			params:  CreateMessageParams{},
			wantErr: true,
		},
		{
			name: "missing role rejected",
			params: CreateMessageParams{Messages: []SamplingMessage{
				{Content: SamplingContent{Type: "text", Text: "hi"}},
			}},
			wantErr: true,
		},
		{
			name: "non-text content rejected",
			params: CreateMessageParams{Messages: []SamplingMessage{
				{Role: "user", Content: SamplingContent{Type: "image"}},
			}},
			wantErr: true,
		},
		{
			name: "missing text rejected",
			params: CreateMessageParams{Messages: []SamplingMessage{
				{Role: "user", Content: SamplingContent{Type: "text"}},
			}},
			wantErr: true,
		},
		{
			name: "valid message accepted",
			params: CreateMessageParams{Messages: []SamplingMessage{
				{Role: "user", Content: SamplingContent{Type: "text", Text: "hi"}},
			}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateMessageParams_ToModelRequest(t *testing.T) {
	params := CreateMessageParams{
		SystemPrompt: "be brief",
		Messages: []SamplingMessage{
			{Role: "user", Content: SamplingContent{Type: "text", Text: "hello"}},
			{Role: "assistant", Content: SamplingContent{Type: "text", Text: "hi"}},
		},
	}

	req := params.toModelRequest()
	if req.Instructions != "be brief" {
		t.Fatalf("unexpected instructions: %q", req.Instructions)
	}
	if len(req.Contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(req.Contents))
	}
	if req.Contents[0].Role != "user" || req.Contents[0].Text() != "hello" {
		t.Fatalf("unexpected first content: %+v", req.Contents[0])
	}
	if req.Contents[1].Role != "assistant" || req.Contents[1].Text() != "hi" {
		t.Fatalf("unexpected second content: %+v", req.Contents[1])
	}
}

func TestModelSamplingHandler_CreateMessage(t *testing.T) {
	mock := model.NewMockModel("mock-1", "test")
	mock.AddResponse("what is 2+2", "4")

	handler := NewModelSamplingHandler(mock)
	result, err := handler.CreateMessage(context.Background(), &CreateMessageParams{
		Messages: []SamplingMessage{
			{Role: "user", Content: SamplingContent{Type: "text", Text: "what is 2+2"}},
		},
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	if result.Role != "assistant" {
		t.Fatalf("unexpected role: %s", result.Role)
	}
	if result.Content.Text != "4" {
		t.Fatalf("unexpected text: %q", result.Content.Text)
	}
	if result.Model != "mock-1" {
		t.Fatalf("unexpected model: %s", result.Model)
	}
	if result.StopReason != "stop" {
		t.Fatalf("unexpected stop reason: %s", result.StopReason)
	}
}

func TestClient_HandleSamplingRespondsOverTransport(t *testing.T) {
	mock := model.NewMockModel("mock-1", "test")
	mock.AddResponse("ping", "pong")

	ft := newFakeTransport(answerHandshake(nil))
	c := newTestClient(t, Config{Name: "test"},
		func(context.Context) (Transport, error) { return ft, nil },
		WithSamplingHandler(NewModelSamplingHandler(mock)))

	params, _ := json.Marshal(CreateMessageParams{
		Messages: []SamplingMessage{
			{Role: "user", Content: SamplingContent{Type: "text", Text: "ping"}},
		},
	})
	c.handleSampling(ft, &rpcMessage{JSONRPC: jsonRPCVersion, ID: "srv-1", Method: "sampling/createMessage", Params: params})

	responses := ft.responses()
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}

	var resp rpcResponse
	if err := json.Unmarshal(responses[0], &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %v", resp.Error)
	}

	var result CreateMessageResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Content.Text != "pong" {
		t.Fatalf("unexpected completion: %q", result.Content.Text)
	}
}

func TestClient_HandleSamplingRejectsInvalidParams(t *testing.T) {
	ft := newFakeTransport(answerHandshake(nil))
	c := newTestClient(t, Config{Name: "test"},
		func(context.Context) (Transport, error) { return ft, nil },
		WithSamplingHandler(NewModelSamplingHandler(model.NewMockModel("mock", "test"))))

	c.handleSampling(ft, &rpcMessage{JSONRPC: jsonRPCVersion, ID: "srv-2", Method: "sampling/createMessage", Params: []byte(`{"messages":[]}`)})

	responses := ft.responses()
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}

	var resp rpcResponse
	if err := json.Unmarshal(responses[0], &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("expected invalid params error, got %+v", resp.Error)
	}
}
