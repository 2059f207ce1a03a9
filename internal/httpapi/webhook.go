package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/agentkit/internal/container"
	"github.com/lyzr/agentkit/internal/models"
)

// WebhookHandler triggers published workflows from external callers.
type WebhookHandler struct {
	c *container.Container
}

// NewWebhookHandler builds a WebhookHandler from the wired container.
func NewWebhookHandler(c *container.Container) *WebhookHandler {
	return &WebhookHandler{c: c}
}

// RegisterWebhookRoutes registers the inbound webhook route.
func RegisterWebhookRoutes(e *echo.Echo, c *container.Container) {
	h := NewWebhookHandler(c)
	e.POST("/api/webhook/:workflow_id", h.Trigger)
}

// Trigger fires a published workflow from an external webhook call. A body
// that fails to parse as JSON is treated as an empty payload rather than a
// request error.
// POST /api/webhook/:workflow_id
func (h *WebhookHandler) Trigger(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("workflow_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid workflow id"})
	}

	var payload map[string]any
	if err := c.Bind(&payload); err != nil || payload == nil {
		payload = map[string]any{}
	}

	wf, err := h.c.WorkflowRepo.LoadWithGraph(ctx, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "workflow not found"})
	}
	if wf.Status != models.WorkflowPublished {
		return c.JSON(http.StatusForbidden, map[string]interface{}{"error": "workflow is not published"})
	}

	run, err := h.c.Executor.Execute(ctx, wf, payload, "webhook")
	if err != nil {
		h.c.Components.Logger.Error("webhook trigger failed", "workflow", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, run)
}
