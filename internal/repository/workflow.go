// Package repository implements the persistence façade as raw-SQL
// repositories over a pgx connection pool: no ORM, explicit queries,
// explicit scans.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lyzr/agentkit/common/db"
	"github.com/lyzr/agentkit/internal/models"
)

// WorkflowRepository loads and lists workflow graphs.
type WorkflowRepository struct {
	db *db.DB
}

// NewWorkflowRepository builds a WorkflowRepository.
func NewWorkflowRepository(database *db.DB) *WorkflowRepository {
	return &WorkflowRepository{db: database}
}

// LoadWithGraph fetches a workflow and its full node/edge graph in one
// round trip per table, matching the executor's expectation of a fully
// hydrated in-memory graph before a run starts.
func (r *WorkflowRepository) LoadWithGraph(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	wf := &models.Workflow{}
	var variables []byte

	row := r.db.QueryRow(ctx, `
		SELECT id, owner_id, name, status, variables, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`, id)

	if err := row.Scan(&wf.ID, &wf.OwnerID, &wf.Name, &wf.Status, &variables, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", id, err)
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &wf.Variables); err != nil {
			return nil, fmt.Errorf("decode workflow variables: %w", err)
		}
	}

	nodes, err := r.loadNodes(ctx, id)
	if err != nil {
		return nil, err
	}
	wf.Nodes = nodes

	edges, err := r.loadEdges(ctx, id)
	if err != nil {
		return nil, err
	}
	wf.Edges = edges

	return wf, nil
}

func (r *WorkflowRepository) loadNodes(ctx context.Context, workflowID uuid.UUID) ([]models.Node, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, workflow_id, key, type, data, custom_node_id
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY key ASC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		var n models.Node
		var data []byte
		if err := rows.Scan(&n.ID, &n.WorkflowID, &n.Key, &n.Type, &data, &n.CustomNodeID); err != nil {
			return nil, fmt.Errorf("scan workflow node: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("decode node data for %s: %w", n.Key, err)
			}
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow nodes: %w", err)
	}

	return nodes, nil
}

func (r *WorkflowRepository) loadEdges(ctx context.Context, workflowID uuid.UUID) ([]models.Edge, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, workflow_id, source_key, target_key, source_port, target_port, condition
		FROM workflow_edges
		WHERE workflow_id = $1
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow edges: %w", err)
	}
	defer rows.Close()

	var edges []models.Edge
	for rows.Next() {
		var e models.Edge
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.SourceKey, &e.TargetKey, &e.SourcePort, &e.TargetPort, &e.Condition); err != nil {
			return nil, fmt.Errorf("scan workflow edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow edges: %w", err)
	}

	return edges, nil
}

// List returns workflows owned by ownerID, optionally filtered by status.
func (r *WorkflowRepository) List(ctx context.Context, ownerID uuid.UUID, status *models.WorkflowStatus) ([]*models.Workflow, error) {
	query := `
		SELECT id, owner_id, name, status, variables, created_at, updated_at
		FROM workflows
		WHERE owner_id = $1
	`
	args := []any{ownerID}
	if status != nil {
		query += " AND status = $2"
		args = append(args, *status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf := &models.Workflow{}
		var variables []byte
		if err := rows.Scan(&wf.ID, &wf.OwnerID, &wf.Name, &wf.Status, &variables, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		if len(variables) > 0 {
			if err := json.Unmarshal(variables, &wf.Variables); err != nil {
				return nil, fmt.Errorf("decode workflow variables: %w", err)
			}
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}

	return workflows, nil
}
