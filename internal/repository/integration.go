package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lyzr/agentkit/common/db"
	"github.com/lyzr/agentkit/internal/errs"
	"github.com/lyzr/agentkit/internal/models"
)

// IntegrationRepository stores sealed external credentials.
type IntegrationRepository struct {
	db *db.DB
}

// NewIntegrationRepository builds an IntegrationRepository.
func NewIntegrationRepository(database *db.DB) *IntegrationRepository {
	return &IntegrationRepository{db: database}
}

// Get fetches a single integration by id.
func (r *IntegrationRepository) Get(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	integration := &models.Integration{}
	var metadata []byte

	row := r.db.QueryRow(ctx, `
		SELECT id, owner_id, kind, sealed_credentials, status, metadata, created_at, updated_at
		FROM integrations
		WHERE id = $1
	`, id)

	if err := row.Scan(&integration.ID, &integration.OwnerID, &integration.Kind, &integration.SealedCredentials,
		&integration.Status, &metadata, &integration.CreatedAt, &integration.UpdatedAt); err != nil {
		return nil, fmt.Errorf("load integration %s: %w", id, err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &integration.Metadata); err != nil {
			return nil, fmt.Errorf("decode integration metadata: %w", err)
		}
	}

	return integration, nil
}

// LoadIntegration implements handlers.SideChannel, parsing the string id
// handed down through node config before delegating to Get.
func (r *IntegrationRepository) LoadIntegration(ctx context.Context, id string) (*models.Integration, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfigError, "invalid integration id", err)
	}
	return r.Get(ctx, parsed)
}

// ListByKindAndStatus returns integrations the poller should watch.
func (r *IntegrationRepository) ListByKindAndStatus(ctx context.Context, kind string, status models.IntegrationStatus) ([]*models.Integration, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, kind, sealed_credentials, status, metadata, created_at, updated_at
		FROM integrations
		WHERE kind = $1 AND status = $2
		ORDER BY created_at ASC
	`, kind, status)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var integrations []*models.Integration
	for rows.Next() {
		integration := &models.Integration{}
		var metadata []byte
		if err := rows.Scan(&integration.ID, &integration.OwnerID, &integration.Kind, &integration.SealedCredentials,
			&integration.Status, &metadata, &integration.CreatedAt, &integration.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &integration.Metadata); err != nil {
				return nil, fmt.Errorf("decode integration metadata: %w", err)
			}
		}
		integrations = append(integrations, integration)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate integrations: %w", err)
	}

	return integrations, nil
}

// UpdateCredentials persists a refreshed credential bundle that the caller
// has already re-sealed.
// Callers should only invoke this when the sealed bytes actually changed,
// to avoid a write on every poll tick.
func (r *IntegrationRepository) UpdateCredentials(ctx context.Context, id uuid.UUID, sealed []byte) error {
	_, err := r.db.Exec(ctx, `
		UPDATE integrations SET sealed_credentials = $2, updated_at = NOW()
		WHERE id = $1
	`, id, sealed)
	if err != nil {
		return fmt.Errorf("update integration credentials: %w", err)
	}
	return nil
}

// UpdateStatus transitions an integration's health status, e.g. to "error"
// after a credential refresh failure.
func (r *IntegrationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.IntegrationStatus) error {
	_, err := r.db.Exec(ctx, `
		UPDATE integrations SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update integration status: %w", err)
	}
	return nil
}

// Create inserts a new integration with already-sealed credentials.
func (r *IntegrationRepository) Create(ctx context.Context, integration *models.Integration) error {
	metadata, err := json.Marshal(integration.Metadata)
	if err != nil {
		return fmt.Errorf("encode integration metadata: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO integrations (id, owner_id, kind, sealed_credentials, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`, integration.ID, integration.OwnerID, integration.Kind, integration.SealedCredentials, integration.Status, metadata)

	if err := row.Scan(&integration.CreatedAt, &integration.UpdatedAt); err != nil {
		return fmt.Errorf("create integration: %w", err)
	}
	return nil
}
