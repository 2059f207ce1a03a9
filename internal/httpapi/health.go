package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/agentkit/internal/container"
)

// RegisterHealthRoutes registers the liveness endpoint.
func RegisterHealthRoutes(e *echo.Echo, c *container.Container) {
	e.GET("/api/health", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "agentkit",
		})
	})
}
