package executor

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/agentkit/common/logger"
	"github.com/lyzr/agentkit/internal/errs"
	"github.com/lyzr/agentkit/internal/handlers"
	"github.com/lyzr/agentkit/internal/models"
)

// memoryStore is an in-memory RunStore double, sufficient to assert on
// what the executor persisted without a database.
type memoryStore struct {
	runs     []models.WorkflowRun
	nodeRuns []models.NodeRun
}

func (s *memoryStore) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	s.runs = append(s.runs, *run)
	return nil
}

func (s *memoryStore) UpdateRun(ctx context.Context, run *models.WorkflowRun) error {
	s.runs = append(s.runs, *run)
	return nil
}

func (s *memoryStore) CreateNodeRun(ctx context.Context, nodeRun *models.NodeRun) error {
	s.nodeRuns = append(s.nodeRuns, *nodeRun)
	return nil
}

func (s *memoryStore) UpdateNodeRun(ctx context.Context, nodeRun *models.NodeRun) error {
	s.nodeRuns = append(s.nodeRuns, *nodeRun)
	return nil
}

func newTestExecutor(registry *handlers.Registry) (*Executor, *memoryStore) {
	store := &memoryStore{}
	log := logger.New("error", "text")
	return New(registry, store, nil, nil, log), store
}

func node(key, nodeType string) models.Node {
	return models.Node{ID: uuid.New(), Key: key, Type: nodeType, Data: map[string]any{}}
}

func edge(source, target string) models.Edge {
	return models.Edge{SourceKey: source, TargetKey: target}
}

func TestExecute_LinearWorkflowCompletesInOrder(t *testing.T) {
	reg := handlers.NewRegistry("")
	reg.Register("passthrough", func() handlers.Handler { return passthroughHandler{} })

	wf := &models.Workflow{
		ID:    uuid.New(),
		Nodes: []models.Node{node("a", "passthrough"), node("b", "passthrough")},
		Edges: []models.Edge{edge("a", "b")},
	}

	exec, store := newTestExecutor(reg)
	run, err := exec.Execute(context.Background(), wf, map[string]any{"x": 1}, "manual")

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	require.Len(t, run.NodeRuns, 2)
	assert.Equal(t, "a", run.NodeRuns[0].NodeKey)
	assert.Equal(t, "b", run.NodeRuns[1].NodeKey)
	assert.Len(t, store.runs, 2) // create + final update
}

func TestExecute_CycleFailsBeforeExecutingAnyNode(t *testing.T) {
	reg := handlers.NewRegistry("")
	reg.Register("passthrough", func() handlers.Handler { return passthroughHandler{} })

	wf := &models.Workflow{
		ID:    uuid.New(),
		Nodes: []models.Node{node("a", "passthrough"), node("b", "passthrough")},
		Edges: []models.Edge{edge("a", "b"), edge("b", "a")},
	}

	exec, _ := newTestExecutor(reg)
	run, err := exec.Execute(context.Background(), wf, map[string]any{}, "manual")

	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Empty(t, run.NodeRuns)
	assert.Contains(t, run.Error, "cycle")
}

func TestExecute_UnknownNodeTypeFailsRunWithNodeKeyInMessage(t *testing.T) {
	reg := handlers.NewRegistry("")

	wf := &models.Workflow{
		ID:    uuid.New(),
		Nodes: []models.Node{node("S", "nonexistent_type")},
	}

	exec, _ := newTestExecutor(reg)
	run, err := exec.Execute(context.Background(), wf, map[string]any{}, "manual")

	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	require.Len(t, run.NodeRuns, 1)
	assert.Equal(t, models.NodeRunFailed, run.NodeRuns[0].Status)
	assert.Contains(t, run.NodeRuns[0].Error, string(errs.KindUnknownNodeType))
	assert.Contains(t, run.Error, "Node S failed:")
}

func TestExecute_FailedNodeStopsDownstreamScheduling(t *testing.T) {
	reg := handlers.NewRegistry("")
	reg.Register("passthrough", func() handlers.Handler { return passthroughHandler{} })
	reg.Register("failing", func() handlers.Handler { return failingHandler{} })

	wf := &models.Workflow{
		ID: uuid.New(),
		Nodes: []models.Node{
			node("a", "failing"),
			node("b", "passthrough"),
		},
		Edges: []models.Edge{edge("a", "b")},
	}

	exec, _ := newTestExecutor(reg)
	run, err := exec.Execute(context.Background(), wf, map[string]any{}, "manual")

	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	require.Len(t, run.NodeRuns, 1, "downstream node b must never be scheduled")
	assert.Equal(t, "a", run.NodeRuns[0].NodeKey)
}

func TestExecute_OutputPayloadIsLastNodesOutput(t *testing.T) {
	reg := handlers.NewRegistry("")
	reg.Register("passthrough", func() handlers.Handler { return passthroughHandler{} })
	reg.Register("marker", func() handlers.Handler { return markerHandler{value: "final"} })

	wf := &models.Workflow{
		ID:    uuid.New(),
		Nodes: []models.Node{node("a", "passthrough"), node("b", "marker")},
		Edges: []models.Edge{edge("a", "b")},
	}

	exec, _ := newTestExecutor(reg)
	run, err := exec.Execute(context.Background(), wf, map[string]any{}, "manual")

	require.NoError(t, err)
	assert.Equal(t, "final", run.OutputData["marker"])
}

func TestTopologicalOrder_BreaksTiesByInsertionOrder(t *testing.T) {
	wf := &models.Workflow{
		Nodes: []models.Node{node("c", "x"), node("a", "x"), node("b", "x")},
	}

	order, err := topologicalOrder(wf)

	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, order)
}

type passthroughHandler struct{}

func (passthroughHandler) Execute(ctx context.Context, data, runContext map[string]any, side handlers.SideChannel) (handlers.Output, error) {
	return handlers.Output{Data: map[string]any{}}, nil
}

type failingHandler struct{}

func (failingHandler) Execute(ctx context.Context, data, runContext map[string]any, side handlers.SideChannel) (handlers.Output, error) {
	return handlers.Output{}, errs.New(errs.KindConfigError, "boom")
}

type markerHandler struct{ value string }

func (h markerHandler) Execute(ctx context.Context, data, runContext map[string]any, side handlers.SideChannel) (handlers.Output, error) {
	return handlers.Output{Data: map[string]any{"marker": h.value}}, nil
}
