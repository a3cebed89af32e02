package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphAgent_RunsLinearChainInOrder(t *testing.T) {
	rec := &orderRecorder{}
	graph := NewGraphAgent("graph", "a", []GraphNode{
		{Name: "a", Agent: recordingAgent("a", rec), Targets: []string{"b"}},
		{Name: "b", Agent: recordingAgent("b", rec), Targets: []string{"c"}},
		{Name: "c", Agent: recordingAgent("c", rec)},
	})

	rc, _ := newTestRunContext(t, 8)
	require.NoError(t, graph.Run(rc))
	assert.Equal(t, []string{"a", "b", "c"}, rec.ordered())
}

func TestGraphAgent_FanOutRunsTargetsInDeclarationOrder(t *testing.T) {
	rec := &orderRecorder{}
	graph := NewGraphAgent("graph", "root", []GraphNode{
		{Name: "root", Agent: recordingAgent("root", rec), Targets: []string{"left", "right"}},
		{Name: "left", Agent: recordingAgent("left", rec)},
		{Name: "right", Agent: recordingAgent("right", rec)},
	})

	rc, _ := newTestRunContext(t, 8)
	require.NoError(t, graph.Run(rc))
	assert.Equal(t, []string{"root", "left", "right"}, rec.ordered())
}

func TestGraphAgent_DiamondRunsSharedTargetPerIncomingEdge(t *testing.T) {
	rec := &orderRecorder{}
	sink := recordingAgent("sink", rec)
	graph := NewGraphAgent("graph", "src", []GraphNode{
		{Name: "src", Agent: recordingAgent("src", rec), Targets: []string{"left", "right"}},
		{Name: "left", Agent: recordingAgent("left", rec), Targets: []string{"sink"}},
		{Name: "right", Agent: recordingAgent("right", rec), Targets: []string{"sink"}},
		{Name: "sink", Agent: sink},
	})

	rc, _ := newTestRunContext(t, 16)
	require.NoError(t, graph.Run(rc))

	// Fan-out without a join barrier: the sink runs once per incoming edge.
	assert.EqualValues(t, 2, sink.runs.Load())
	assert.Equal(t, []string{"src", "left", "right", "sink", "sink"}, rec.ordered())
}

func TestGraphAgent_CycleHitsStepBudget(t *testing.T) {
	worker := newFakeAgent("spin", nil)
	graph := NewGraphAgent("graph", "spin", []GraphNode{
		{Name: "spin", Agent: worker, Targets: []string{"spin"}},
	}, WithMaxSteps(3))

	rc, _ := newTestRunContext(t, 8)
	err := graph.Run(rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step budget")
	assert.EqualValues(t, 3, worker.runs.Load())
}

func TestGraphAgent_UndeclaredRootFails(t *testing.T) {
	graph := NewGraphAgent("graph", "ghost", []GraphNode{
		{Name: "a", Agent: newFakeAgent("a", nil)},
	})

	rc, _ := newTestRunContext(t, 1)
	err := graph.Run(rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestGraphAgent_UndeclaredTargetFails(t *testing.T) {
	graph := NewGraphAgent("graph", "a", []GraphNode{
		{Name: "a", Agent: newFakeAgent("a", nil), Targets: []string{"missing"}},
	})

	rc, _ := newTestRunContext(t, 8)
	err := graph.Run(rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}
