// Package executor implements the workflow execution engine: topological
// scheduling, per-node lifecycle, context propagation and run/node-run
// recording.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/agentkit/common/logger"
	"github.com/lyzr/agentkit/internal/errs"
	"github.com/lyzr/agentkit/internal/expr"
	"github.com/lyzr/agentkit/internal/handlers"
	"github.com/lyzr/agentkit/internal/models"
)

// RunStore is the slice of the persistence façade the executor consumes:
// unit-of-work style create/update for runs and node runs. Partial flushes
// (after each node run's creation and completion) let concurrent readers
// observe progress mid-run.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.WorkflowRun) error
	UpdateRun(ctx context.Context, run *models.WorkflowRun) error
	CreateNodeRun(ctx context.Context, nodeRun *models.NodeRun) error
	UpdateNodeRun(ctx context.Context, nodeRun *models.NodeRun) error
}

// Metrics is the telemetry surface the executor records to. Satisfied
// structurally by *telemetry.Telemetry.
type Metrics interface {
	RecordRun(ctx context.Context, workflowID string, duration time.Duration, success bool, nodeCount int)
	RecordNode(ctx context.Context, nodeType string, duration time.Duration, success bool)
}

// Executor runs a single workflow to completion.
type Executor struct {
	registry *handlers.Registry
	store    RunStore
	metrics  Metrics
	side     handlers.SideChannel
	log      *logger.Logger
}

// New builds an Executor.
func New(registry *handlers.Registry, store RunStore, metrics Metrics, side handlers.SideChannel, log *logger.Logger) *Executor {
	return &Executor{registry: registry, store: store, metrics: metrics, side: side, log: log}
}

// Execute builds the initial context, topologically orders workflow's
// nodes, and runs them sequentially, recording a WorkflowRun and one
// NodeRun per attempted node. It only returns an error if the initial run
// record cannot be created; failures to persist later updates are logged,
// and node failures are reflected in the returned run's status instead.
func (e *Executor) Execute(ctx context.Context, wf *models.Workflow, inputPayload map[string]any, triggerKind string) (*models.WorkflowRun, error) {
	start := time.Now()

	run := &models.WorkflowRun{
		ID:          uuid.New(),
		WorkflowID:  wf.ID,
		Status:      models.RunRunning,
		TriggerKind: triggerKind,
		InputData:   inputPayload,
		StartedAt:   start,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run record: %w", err)
	}

	runContext := map[string]any{
		"trigger":  map[string]any{"body": inputPayload, "type": triggerKind},
		"workflow": map[string]any{"variables": wf.Variables, "id": wf.IDString()},
		"env":      map[string]any{},
	}

	order, err := topologicalOrder(wf)
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		e.finalize(ctx, run, start, 0)
		return run, nil
	}

	nodesByKey := make(map[string]*models.Node, len(wf.Nodes))
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		nodesByKey[nodeKey(*n)] = n
	}

	executed := 0
	for _, key := range order {
		node, ok := nodesByKey[key]
		if !ok {
			continue
		}

		nodeRun := e.executeNode(ctx, run, node, runContext)
		executed++

		if nodeRun.Status == models.NodeRunFailed {
			run.Status = models.RunFailed
			run.Error = fmt.Sprintf("Node %s failed: %s", key, nodeRun.Error)
			break
		}
	}

	if run.Status != models.RunFailed {
		run.Status = models.RunCompleted
		if lastOutput, ok := runContext["_last_output"].(map[string]any); ok {
			run.OutputData = lastOutput
		} else {
			run.OutputData = map[string]any{}
		}
	}

	e.finalize(ctx, run, start, executed)
	return run, nil
}

func (e *Executor) executeNode(ctx context.Context, run *models.WorkflowRun, node *models.Node, runContext map[string]any) *models.NodeRun {
	key := nodeKey(*node)

	nodeRun := &models.NodeRun{
		ID:      uuid.New(),
		RunID:   run.ID,
		NodeID:  node.ID,
		NodeKey: key,
		Status:  models.NodeRunRunning,
		StartedAt: time.Now(),
	}
	if err := e.store.CreateNodeRun(ctx, nodeRun); err != nil {
		e.log.Error("failed to persist node run start", "node", key, "error", err)
	}

	nodeStart := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				nodeRun.Status = models.NodeRunFailed
				nodeRun.Error = fmt.Sprintf("panic: %v", r)
			}
		}()

		resolved, _ := expr.Interpolate(node.Data, runContext).(map[string]any)
		if resolved == nil {
			resolved = map[string]any{}
		}
		nodeRun.InputData = resolved

		handler, err := e.registry.HandlerFor(node.Type)
		if err != nil {
			nodeRun.Status = models.NodeRunFailed
			nodeRun.Error = err.Error()
			return
		}

		out, err := handler.Execute(ctx, resolved, runContext, e.side)
		if err != nil {
			nodeRun.Status = models.NodeRunFailed
			nodeRun.Error = err.Error()
			return
		}

		runContext[key] = map[string]any{"output": out.Data}
		runContext["_last_output"] = out.Data
		nodeRun.OutputData = out.Data
		nodeRun.TokenUsage = out.TokenUsage
		nodeRun.Status = models.NodeRunCompleted
	}()

	elapsed := time.Since(nodeStart)
	nodeRun.ExecutionTimeMs = elapsed.Milliseconds()
	completedAt := time.Now()
	nodeRun.CompletedAt = &completedAt

	if e.metrics != nil {
		e.metrics.RecordNode(ctx, node.Type, elapsed, nodeRun.Status == models.NodeRunCompleted)
	}

	if err := e.store.UpdateNodeRun(ctx, nodeRun); err != nil {
		e.log.Error("failed to persist node run completion", "node", key, "error", err)
	}

	run.NodeRuns = append(run.NodeRuns, *nodeRun)
	return nodeRun
}

func (e *Executor) finalize(ctx context.Context, run *models.WorkflowRun, start time.Time, nodeCount int) {
	completedAt := time.Now()
	run.CompletedAt = &completedAt

	if err := e.store.UpdateRun(ctx, run); err != nil {
		e.log.Error("failed to persist run completion", "run", run.ID, "error", err)
	}

	if e.metrics != nil {
		e.metrics.RecordRun(ctx, run.WorkflowID.String(), time.Since(start), run.Status == models.RunCompleted, nodeCount)
	}
}

// nodeKey returns a node's author-assigned key, falling back to its
// persistent id string when the key is unset.
func nodeKey(n models.Node) string {
	if n.Key != "" {
		return n.Key
	}
	return n.ID.String()
}

// topologicalOrder runs Kahn's algorithm over the workflow's author-keyed
// graph, breaking ties between zero-in-degree nodes by FIFO insertion
// order (the order nodes appear in wf.Nodes, then the order edges appear
// in wf.Edges) so the result is deterministic for a fixed graph.
func topologicalOrder(wf *models.Workflow) ([]string, error) {
	keys := make([]string, 0, len(wf.Nodes))
	inDegree := make(map[string]int, len(wf.Nodes))
	adjacency := make(map[string][]string)

	validKeys := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		k := nodeKey(n)
		keys = append(keys, k)
		inDegree[k] = 0
		validKeys[k] = true
	}

	for _, e := range wf.Edges {
		if !validKeys[e.SourceKey] || !validKeys[e.TargetKey] {
			return nil, errs.New(errs.KindCycleDetected, "workflow graph contains a dangling edge")
		}
		adjacency[e.SourceKey] = append(adjacency[e.SourceKey], e.TargetKey)
		inDegree[e.TargetKey]++
	}

	queue := make([]string, 0, len(keys))
	for _, k := range keys {
		if inDegree[k] == 0 {
			queue = append(queue, k)
		}
	}

	result := make([]string, 0, len(keys))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, neighbor := range adjacency[current] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(result) < len(keys) {
		return nil, errs.New(errs.KindCycleDetected, "workflow graph contains a cycle or dangling edge")
	}

	return result, nil
}
