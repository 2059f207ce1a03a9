package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/agentkit/internal/container"
)

// WorkflowHandler handles manual workflow execution.
type WorkflowHandler struct {
	c *container.Container
}

// NewWorkflowHandler builds a WorkflowHandler from the wired container.
func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{c: c}
}

// RegisterWorkflowRoutes registers all workflow-related routes.
func RegisterWorkflowRoutes(e *echo.Echo, c *container.Container) {
	h := NewWorkflowHandler(c)
	e.POST("/api/workflows/:id/run", h.Run)
}

// Run loads a workflow and executes it with the request body as trigger
// input. A body that fails to parse as JSON is treated as an empty payload.
// POST /api/workflows/:id/run
func (h *WorkflowHandler) Run(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
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

	run, err := h.c.Executor.Execute(ctx, wf, payload, "manual")
	if err != nil {
		h.c.Components.Logger.Error("run workflow failed", "workflow", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, run)
}
