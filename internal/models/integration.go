package models

import (
	"time"

	"github.com/google/uuid"
)

// IntegrationStatus tracks whether an Integration is usable by the poller.
type IntegrationStatus string

const (
	IntegrationActive   IntegrationStatus = "active"
	IntegrationInactive IntegrationStatus = "inactive"
	IntegrationError    IntegrationStatus = "error"
)

// Integration is a sealed external credential bundle (e.g. a Gmail OAuth2
// grant). Credentials are opaque sealed bytes; only the crypto.Sealer and
// the handler/poller that owns the integration kind may interpret them.
type Integration struct {
	ID                uuid.UUID         `json:"id"`
	OwnerID           uuid.UUID         `json:"owner_id"`
	Kind              string            `json:"kind"` // e.g. "gmail"
	SealedCredentials []byte            `json:"-"`
	Status            IntegrationStatus `json:"status"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
