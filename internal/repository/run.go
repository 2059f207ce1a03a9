package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lyzr/agentkit/common/db"
	"github.com/lyzr/agentkit/internal/models"
)

// RunRepository persists workflow runs and their node runs. It implements
// executor.RunStore.
type RunRepository struct {
	db *db.DB
}

// NewRunRepository builds a RunRepository.
func NewRunRepository(database *db.DB) *RunRepository {
	return &RunRepository{db: database}
}

// CreateRun inserts a run in its initial (running) state.
func (r *RunRepository) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	input, err := json.Marshal(run.InputData)
	if err != nil {
		return fmt.Errorf("encode run input: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, status, trigger_kind, input_data, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, run.WorkflowID, run.Status, run.TriggerKind, input, run.StartedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateRun flushes a run's terminal fields: status, output, error and
// completion timestamp.
func (r *RunRepository) UpdateRun(ctx context.Context, run *models.WorkflowRun) error {
	output, err := json.Marshal(run.OutputData)
	if err != nil {
		return fmt.Errorf("encode run output: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		UPDATE workflow_runs
		SET status = $2, output_data = $3, error = $4, completed_at = $5
		WHERE id = $1
	`, run.ID, run.Status, output, run.Error, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// CreateNodeRun inserts a node run when it starts executing.
func (r *RunRepository) CreateNodeRun(ctx context.Context, nodeRun *models.NodeRun) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO node_runs (id, run_id, node_id, node_key, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, nodeRun.ID, nodeRun.RunID, nodeRun.NodeID, nodeRun.NodeKey, nodeRun.Status, nodeRun.StartedAt)
	if err != nil {
		return fmt.Errorf("create node run: %w", err)
	}
	return nil
}

// UpdateNodeRun flushes a node run's completion fields.
func (r *RunRepository) UpdateNodeRun(ctx context.Context, nodeRun *models.NodeRun) error {
	input, err := json.Marshal(nodeRun.InputData)
	if err != nil {
		return fmt.Errorf("encode node run input: %w", err)
	}
	output, err := json.Marshal(nodeRun.OutputData)
	if err != nil {
		return fmt.Errorf("encode node run output: %w", err)
	}
	var tokenUsage []byte
	if nodeRun.TokenUsage != nil {
		tokenUsage, err = json.Marshal(nodeRun.TokenUsage)
		if err != nil {
			return fmt.Errorf("encode node run token usage: %w", err)
		}
	}

	_, err = r.db.Exec(ctx, `
		UPDATE node_runs
		SET status = $2, input_data = $3, output_data = $4, error = $5,
		    execution_time_ms = $6, token_usage = $7, completed_at = $8
		WHERE id = $1
	`, nodeRun.ID, nodeRun.Status, input, output, nodeRun.Error,
		nodeRun.ExecutionTimeMs, tokenUsage, nodeRun.CompletedAt)
	if err != nil {
		return fmt.Errorf("update node run: %w", err)
	}
	return nil
}

// Get loads a run together with its node runs, ordered by start time.
func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (*models.WorkflowRun, error) {
	run := &models.WorkflowRun{}
	var input, output []byte

	row := r.db.QueryRow(ctx, `
		SELECT id, workflow_id, status, trigger_kind, input_data, output_data, error, started_at, completed_at
		FROM workflow_runs
		WHERE id = $1
	`, id)

	if err := row.Scan(&run.ID, &run.WorkflowID, &run.Status, &run.TriggerKind, &input, &output, &run.Error,
		&run.StartedAt, &run.CompletedAt); err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &run.InputData); err != nil {
			return nil, fmt.Errorf("decode run input: %w", err)
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &run.OutputData); err != nil {
			return nil, fmt.Errorf("decode run output: %w", err)
		}
	}

	nodeRuns, err := r.listNodeRuns(ctx, id)
	if err != nil {
		return nil, err
	}
	run.NodeRuns = nodeRuns

	return run, nil
}

func (r *RunRepository) listNodeRuns(ctx context.Context, runID uuid.UUID) ([]models.NodeRun, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, run_id, node_id, node_key, status, input_data, output_data, error,
		       execution_time_ms, token_usage, started_at, completed_at
		FROM node_runs
		WHERE run_id = $1
		ORDER BY started_at ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list node runs: %w", err)
	}
	defer rows.Close()

	var nodeRuns []models.NodeRun
	for rows.Next() {
		var nr models.NodeRun
		var input, output, tokenUsage []byte
		if err := rows.Scan(&nr.ID, &nr.RunID, &nr.NodeID, &nr.NodeKey, &nr.Status, &input, &output, &nr.Error,
			&nr.ExecutionTimeMs, &tokenUsage, &nr.StartedAt, &nr.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan node run: %w", err)
		}
		if len(input) > 0 {
			if err := json.Unmarshal(input, &nr.InputData); err != nil {
				return nil, fmt.Errorf("decode node run input: %w", err)
			}
		}
		if len(output) > 0 {
			if err := json.Unmarshal(output, &nr.OutputData); err != nil {
				return nil, fmt.Errorf("decode node run output: %w", err)
			}
		}
		if len(tokenUsage) > 0 {
			nr.TokenUsage = &models.TokenUsage{}
			if err := json.Unmarshal(tokenUsage, nr.TokenUsage); err != nil {
				return nil, fmt.Errorf("decode node run token usage: %w", err)
			}
		}
		nodeRuns = append(nodeRuns, nr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node runs: %w", err)
	}

	return nodeRuns, nil
}

// List returns the most recent runs, optionally scoped to one workflow.
func (r *RunRepository) List(ctx context.Context, workflowID *uuid.UUID, limit int) ([]*models.WorkflowRun, error) {
	query := `
		SELECT id, workflow_id, status, trigger_kind, input_data, output_data, error, started_at, completed_at
		FROM workflow_runs
	`
	args := []any{}
	if workflowID != nil {
		query += " WHERE workflow_id = $1"
		args = append(args, *workflowID)
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.WorkflowRun
	for rows.Next() {
		run := &models.WorkflowRun{}
		var input, output []byte
		if err := rows.Scan(&run.ID, &run.WorkflowID, &run.Status, &run.TriggerKind, &input, &output, &run.Error,
			&run.StartedAt, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if len(input) > 0 {
			if err := json.Unmarshal(input, &run.InputData); err != nil {
				return nil, fmt.Errorf("decode run input: %w", err)
			}
		}
		if len(output) > 0 {
			if err := json.Unmarshal(output, &run.OutputData); err != nil {
				return nil, fmt.Errorf("decode run output: %w", err)
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for _, run := range runs {
		nodeRuns, err := r.listNodeRuns(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		run.NodeRuns = nodeRuns
	}

	return runs, nil
}
