package httpapi

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/agentkit/internal/container"
)

const defaultRunListLimit = 50

// RunHandler reads run history.
type RunHandler struct {
	c *container.Container
}

// NewRunHandler builds a RunHandler from the wired container.
func NewRunHandler(c *container.Container) *RunHandler {
	return &RunHandler{c: c}
}

// RegisterRunRoutes registers the run history routes.
func RegisterRunRoutes(e *echo.Echo, c *container.Container) {
	h := NewRunHandler(c)
	e.GET("/api/runs", h.List)
	e.GET("/api/runs/:id", h.Get)
}

// List returns recent runs, each including its node_runs, optionally scoped
// to one workflow via ?workflow_id= and bounded by ?limit=.
// GET /api/runs
func (h *RunHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	var workflowID *uuid.UUID
	if raw := c.QueryParam("workflow_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid workflow_id"})
		}
		workflowID = &parsed
	}

	limit := defaultRunListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.c.RunRepo.List(ctx, workflowID, limit)
	if err != nil {
		h.c.Components.Logger.Error("list runs failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "failed to list runs"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// Get returns a single run with its node_runs.
// GET /api/runs/:id
func (h *RunHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid run id"})
	}

	run, err := h.c.RunRepo.Get(ctx, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "run not found"})
	}

	return c.JSON(http.StatusOK, run)
}
