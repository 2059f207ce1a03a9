package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/agentkit/internal/container"
	"github.com/lyzr/agentkit/internal/models"
	"github.com/lyzr/agentkit/internal/poller"
)

// gmailCallTimeout bounds every live call this handler makes to the Gmail
// API, matching the 30s timeout the google_sheets handler uses.
const gmailCallTimeout = 30 * time.Second

// GmailHandler manages Gmail integration credentials and manual polling.
type GmailHandler struct {
	c *container.Container
}

// NewGmailHandler builds a GmailHandler from the wired container.
func NewGmailHandler(c *container.Container) *GmailHandler {
	return &GmailHandler{c: c}
}

// RegisterGmailRoutes registers the Gmail integration routes.
func RegisterGmailRoutes(e *echo.Echo, c *container.Container) {
	h := NewGmailHandler(c)
	e.POST("/api/gmail/setup", h.Setup)
	e.POST("/api/gmail/:id/test", h.Test)
	e.POST("/api/gmail/:id/poll-now", h.PollNow)
	e.GET("/api/gmail/oauth-instructions", h.OAuthInstructions)
}

type gmailSetupRequest struct {
	OwnerID     string         `json:"owner_id"`
	Credentials map[string]any `json:"credentials"`
}

// Setup registers a Gmail integration, sealing its OAuth2 credentials at
// rest.
// POST /api/gmail/setup
func (h *GmailHandler) Setup(c echo.Context) error {
	ctx := c.Request().Context()

	var req gmailSetupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
	}

	if req.OwnerID == "" {
		req.OwnerID = c.Request().Header.Get("X-User-ID")
	}
	if req.OwnerID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "owner_id is required"})
	}
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid owner_id"})
	}
	if len(req.Credentials) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "credentials is required"})
	}

	sealed, err := h.c.Sealer.Seal(req.Credentials)
	if err != nil {
		h.c.Components.Logger.Error("seal gmail credentials failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "failed to seal credentials"})
	}

	integration := &models.Integration{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		Kind:              "gmail",
		SealedCredentials: sealed,
		Status:            models.IntegrationActive,
		Metadata:          map[string]any{},
	}
	if err := h.c.IntegrationRepo.Create(ctx, integration); err != nil {
		h.c.Components.Logger.Error("create gmail integration failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "failed to create integration"})
	}

	return c.JSON(http.StatusCreated, integration)
}

// Test verifies a Gmail integration's credentials still work by fetching
// one unread message.
// POST /api/gmail/:id/test
func (h *GmailHandler) Test(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), gmailCallTimeout)
	defer cancel()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid integration id"})
	}

	integration, err := h.c.IntegrationRepo.Get(ctx, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "integration not found"})
	}

	creds, err := h.c.Sealer.Unseal(integration.SealedCredentials)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "failed to unseal credentials"})
	}

	client, err := poller.NewGmailClient(ctx, poller.DecodeCredentials(creds), "")
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]interface{}{"ok": false, "error": err.Error()})
	}

	messages, err := client.UnreadMessages(ctx, 1)
	if err != nil {
		_ = h.c.IntegrationRepo.UpdateStatus(ctx, id, models.IntegrationError)
		return c.JSON(http.StatusBadGateway, map[string]interface{}{"ok": false, "error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "fetched": len(messages)})
}

// PollNow triggers an out-of-band poll of a single integration, independent
// of the background loop's configured schedule (60s by default).
// POST /api/gmail/:id/poll-now
func (h *GmailHandler) PollNow(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), gmailCallTimeout)
	defer cancel()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid integration id"})
	}

	integration, err := h.c.IntegrationRepo.Get(ctx, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "integration not found"})
	}

	h.c.Poller.PollOne(ctx, integration)

	return c.JSON(http.StatusOK, map[string]interface{}{"message": "poll triggered"})
}

// OAuthInstructions returns static setup instructions for wiring a Gmail
// OAuth2 app to this service. It makes no live call to Google; the contract
// is fixed instructional text.
// GET /api/gmail/oauth-instructions
func (h *GmailHandler) OAuthInstructions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"steps": []string{
			"Create an OAuth2 client in the Google Cloud Console under APIs & Services > Credentials.",
			"Enable the Gmail API for that project.",
			"Run the OAuth2 consent flow for the scopes below to obtain an access token and refresh token.",
			"POST the resulting credentials to /api/gmail/setup.",
		},
		"required_scopes": []string{
			"https://www.googleapis.com/auth/gmail.readonly",
		},
		"credentials_shape": map[string]string{
			"access_token":  "string",
			"refresh_token": "string",
			"token_uri":     "string, defaults to https://oauth2.googleapis.com/token",
			"client_id":     "string",
			"client_secret": "string",
		},
	})
}
