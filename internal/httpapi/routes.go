// Package httpapi implements the service's external HTTP surface as
// labstack/echo/v4 route groups, one handler type per resource, mirroring
// the container directly rather than a constructor per service.
package httpapi

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/agentkit/internal/container"
)

// RegisterRoutes wires every HTTP route this service exposes onto e.
func RegisterRoutes(e *echo.Echo, c *container.Container) {
	RegisterHealthRoutes(e, c)
	RegisterWorkflowRoutes(e, c)
	RegisterWebhookRoutes(e, c)
	RegisterGmailRoutes(e, c)
	RegisterRunRoutes(e, c)
}
