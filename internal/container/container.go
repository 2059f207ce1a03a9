// Package container wires the service together: repositories, the node
// handler registry, the executor, the credential sealer and the Gmail
// poller, built bottom-up from a single set of bootstrapped components.
package container

import (
	"fmt"
	"time"

	"github.com/lyzr/agentkit/common/bootstrap"
	"github.com/lyzr/agentkit/common/crypto"
	"github.com/lyzr/agentkit/internal/executor"
	"github.com/lyzr/agentkit/internal/handlers"
	"github.com/lyzr/agentkit/internal/poller"
	"github.com/lyzr/agentkit/internal/repository"
)

// Container holds every wired dependency an HTTP handler or background
// loop needs. Fields are public so handlers can take exactly what they use.
type Container struct {
	Components *bootstrap.Components

	WorkflowRepo    *repository.WorkflowRepository
	IntegrationRepo *repository.IntegrationRepository
	RunRepo         *repository.RunRepository

	Registry *handlers.Registry
	Sealer   *crypto.Sealer
	Executor *executor.Executor
	Poller   *poller.Poller
}

// New builds a Container from already-bootstrapped components.
func New(components *bootstrap.Components) (*Container, error) {
	sealer, err := crypto.NewSealer(components.Config.Secrets.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("build credential sealer: %w", err)
	}

	workflowRepo := repository.NewWorkflowRepository(components.DB)
	integrationRepo := repository.NewIntegrationRepository(components.DB)
	runRepo := repository.NewRunRepository(components.DB)

	registry := handlers.NewRegistry(components.Config.Secrets.OpenAIAPIKey)

	var execMetrics executor.Metrics
	var pollMetrics poller.Metrics
	if components.Telemetry != nil {
		execMetrics = components.Telemetry
		pollMetrics = components.Telemetry
	}

	exec := executor.New(registry, runRepo, execMetrics, integrationRepo, components.Logger)

	interval := time.Duration(components.Config.Poller.IntervalSeconds) * time.Second
	gmailPoller := poller.New(integrationRepo, workflowRepo, exec, sealer, pollMetrics, components.Logger, interval)

	return &Container{
		Components:      components,
		WorkflowRepo:    workflowRepo,
		IntegrationRepo: integrationRepo,
		RunRepo:         runRepo,
		Registry:        registry,
		Sealer:          sealer,
		Executor:        exec,
		Poller:          gmailPoller,
	}, nil
}
