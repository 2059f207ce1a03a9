package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/agentkit/common/bootstrap"
	"github.com/lyzr/agentkit/common/server"
	"github.com/lyzr/agentkit/internal/container"
	"github.com/lyzr/agentkit/internal/httpapi"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "agentkit")
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := components.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown failed: %v\n", err)
		}
	}()

	c, err := container.New(components)
	if err != nil {
		components.Logger.Error("container wiring failed", "error", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e, components)
	httpapi.RegisterRoutes(e, c)

	pollerCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()
	if components.Config.Poller.Enabled {
		go c.Poller.Run(pollerCtx)
		components.Logger.Info("gmail poller started", "interval_seconds", components.Config.Poller.IntervalSeconds)
	}

	srv := server.New("agentkit", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server exited with error", "error", err)
	}

	if components.Config.Poller.Enabled {
		c.Poller.Stop()
	}
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

func setupMiddleware(e *echo.Echo, components *bootstrap.Components) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: components.Config.Service.CORSOrigins,
	}))
}
