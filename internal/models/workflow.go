// Package models defines the persistent entities the workflow engine reads
// and writes: workflows and their graphs, integrations, runs and node runs.
package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus is the publication state of a Workflow.
type WorkflowStatus string

const (
	WorkflowDraft     WorkflowStatus = "draft"
	WorkflowPublished WorkflowStatus = "published"
)

// Workflow is a persistent directed graph of Nodes and Edges.
type Workflow struct {
	ID        uuid.UUID      `json:"id"`
	OwnerID   uuid.UUID      `json:"owner_id"`
	Name      string         `json:"name"`
	Status    WorkflowStatus `json:"status"`
	Variables map[string]any `json:"variables"`
	Nodes     []Node         `json:"nodes"`
	Edges     []Edge         `json:"edges"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IDString returns the workflow id as exposed to expression context under
// workflow.id.
func (w *Workflow) IDString() string {
	return w.ID.String()
}

// Node is one vertex of a workflow graph.
type Node struct {
	ID           uuid.UUID      `json:"id"`
	WorkflowID   uuid.UUID      `json:"workflow_id"`
	Key          string         `json:"key"`  // author-assigned, stable, used in edges/expressions
	Type         string         `json:"type"` // discriminator resolved to a handler
	Data         map[string]any `json:"data"`
	CustomNodeID *uuid.UUID     `json:"custom_node_id,omitempty"`
}

// Edge links two node keys within the same workflow.
type Edge struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID uuid.UUID `json:"workflow_id"`
	SourceKey  string    `json:"source_key"`
	TargetKey  string    `json:"target_key"`
	SourcePort string    `json:"source_port,omitempty"`
	TargetPort string    `json:"target_port,omitempty"`
	// Condition is modelled and persisted but never evaluated; see
	// DESIGN.md for why it stays inert.
	Condition *string `json:"condition,omitempty"`
}
