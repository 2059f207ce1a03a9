package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a WorkflowRun.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// NodeRunStatus is the lifecycle state of a NodeRun.
type NodeRunStatus string

const (
	NodeRunPending   NodeRunStatus = "pending"
	NodeRunRunning   NodeRunStatus = "running"
	NodeRunCompleted NodeRunStatus = "completed"
	NodeRunFailed    NodeRunStatus = "failed"
	NodeRunSkipped   NodeRunStatus = "skipped"
)

// TokenUsage is the optional LLM token-accounting sidecar a handler may
// attach to its NodeRun.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// WorkflowRun is a single execution of a Workflow.
type WorkflowRun struct {
	ID          uuid.UUID       `json:"id"`
	WorkflowID  uuid.UUID       `json:"workflow_id"`
	Status      RunStatus       `json:"status"`
	TriggerKind string          `json:"trigger_kind"` // "manual" | "webhook" | "gmail"
	InputData   map[string]any  `json:"input_data"`
	OutputData  map[string]any  `json:"output_data"`
	Error       string          `json:"error,omitempty"`
	NodeRuns    []NodeRun       `json:"node_runs"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NodeRun is one node's execution within a run.
type NodeRun struct {
	ID              uuid.UUID     `json:"id"`
	RunID           uuid.UUID     `json:"run_id"`
	NodeID          uuid.UUID     `json:"node_id"`
	NodeKey         string        `json:"node_key"`
	Status          NodeRunStatus `json:"status"`
	InputData       map[string]any `json:"input_data"`
	OutputData      map[string]any `json:"output_data"`
	Error           string        `json:"error,omitempty"`
	ExecutionTimeMs int64         `json:"execution_time_ms"`
	TokenUsage      *TokenUsage   `json:"token_usage,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}
