package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/internal/util"
	"github.com/agentloom/agentloom/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newToolContextForTest(t *testing.T) *core.ToolContext {
	t.Helper()

	rc := core.NewRunContext(context.Background(), core.RunContextConfig{
		SessionID:   "sess-1",
		RunID:       "run-1",
		Agent:       core.AgentInfo{Name: "test-agent", Type: "test"},
		UserContent: core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: "hi"}}},
		Session:     core.NewSession("sess-1", "test-app", "test-user"),
		Logger:      logging.NoOpLogger{},
	})

	return core.NewToolContext(rc, "fc-1")
}

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")

	req, _ := schema["required"].([]string)
	assert.ElementsMatch(t, []string{"a"}, req)
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// []any mirrors a JSON decoded schema shape
		"required": []any{"x"},
	}

	assert.NoError(t, util.ValidateParameters(map[string]any{"x": 5}, schema))

	err := util.ValidateParameters(map[string]any{}, schema)
	require.Error(t, err)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "x", vErr.Field)

	err = util.ValidateParameters(map[string]any{"x": "nope"}, schema)
	assert.Error(t, err)
}

func TestFunctionTool_CallSuccess(t *testing.T) {
	sum := NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)

	result, err := sum.Call(newToolContextForTest(t), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationFailureIsStructured(t *testing.T) {
	echo := NewFunctionToolFromStruct(
		"echo",
		"Echo a message",
		struct {
			Message string `json:"message"`
		}{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return args["message"], nil
		},
	)

	_, err := echo.Call(newToolContextForTest(t), map[string]any{})
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	assert.Equal(t, "echo", toolErr.Tool)
}

func TestFunctionTool_ExecutionErrorWrapped(t *testing.T) {
	failing := NewFunctionTool(
		"failing",
		"Always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return nil, errors.New("boom")
		},
	)

	_, err := failing.Call(newToolContextForTest(t), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
}

func TestFunctionTool_ToolErrorPassthrough(t *testing.T) {
	custom := NewFunctionTool(
		"custom",
		"Returns custom tool error",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return nil, NewToolError("custom", "rate limited", "RATE_LIMITED")
		},
	)

	_, err := custom.Call(newToolContextForTest(t), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "RATE_LIMITED", toolErr.Code)
}

func TestFunctionTool_Options(t *testing.T) {
	plain := NewFunctionTool("plain", "", map[string]any{}, nil)
	assert.False(t, plain.IsLongRunning())
	assert.False(t, plain.ShouldRetryOnFailure())
	assert.Equal(t, DefaultMaxRetryAttempts, plain.MaxRetryAttempts())

	lr := NewFunctionTool("lr", "", map[string]any{}, nil, WithLongRunning())
	assert.True(t, lr.IsLongRunning())

	retrying := NewFunctionTool("retrying", "", map[string]any{}, nil, WithRetry(5))
	assert.True(t, retrying.ShouldRetryOnFailure())
	assert.Equal(t, 5, retrying.MaxRetryAttempts())

	defaulted := NewFunctionTool("defaulted", "", map[string]any{}, nil, WithRetry(0))
	assert.Equal(t, DefaultMaxRetryAttempts, defaulted.MaxRetryAttempts())
}

func TestTransferToAgentTool(t *testing.T) {
	transfer := NewTransferToAgentTool()

	tc := newToolContextForTest(t)
	result, err := transfer.Call(tc, map[string]any{"agent_name": "researcher"})
	require.NoError(t, err)

	m := result.(map[string]any)
	assert.Equal(t, true, m["transferred"])
	require.NotNil(t, tc.Actions().TransferToAgent)
	assert.Equal(t, "researcher", *tc.Actions().TransferToAgent)

	_, err = transfer.Call(newToolContextForTest(t), map[string]any{})
	assert.Error(t, err)

	_, err = transfer.Call(newToolContextForTest(t), map[string]any{"agent_name": ""})
	assert.Error(t, err)
}

func TestStateManagerTool_Operations(t *testing.T) {
	sm := NewStateManagerTool()
	tc := newToolContextForTest(t)

	_, err := sm.Call(tc, map[string]any{"operation": "set_state", "key": "topic", "value": "go"})
	require.NoError(t, err)

	result, err := sm.Call(tc, map[string]any{"operation": "get_state", "key": "topic"})
	require.NoError(t, err)
	m := result.(map[string]any)
	assert.Equal(t, true, m["exists"])
	assert.Equal(t, "go", m["value"])

	_, err = sm.Call(tc, map[string]any{"operation": "escalate"})
	require.NoError(t, err)
	assert.NotNil(t, tc.Actions().Escalate)

	_, err = sm.Call(tc, map[string]any{"operation": "end_run"})
	require.NoError(t, err)
	assert.True(t, tc.InternalRunContext().Ended())

	_, err = sm.Call(tc, map[string]any{"operation": "bogus"})
	assert.Error(t, err)
}
