package bootstrap

import (
	"context"
	"fmt"

	"github.com/lyzr/agentkit/common/config"
	"github.com/lyzr/agentkit/common/db"
	"github.com/lyzr/agentkit/common/logger"
	"github.com/lyzr/agentkit/common/telemetry"
)

// Setup initializes all service components (config, logger, DB, telemetry).
// This is the main entry point for the service binary.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing database connection")
			components.DB.Close()
			return nil
		})

		if options.dbInitHook != nil {
			components.Logger.Info("running database init hook")
			if err := options.dbInitHook(components.DB); err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("database init hook failed: %w", err)
			}
		}
	}

	if !options.skipTelemetry && components.Config.Telemetry.EnableMetrics {
		components.Logger.Info("initializing telemetry")
		components.Telemetry, err = telemetry.New(
			ctx,
			components.Config.Telemetry.PprofPort,
			components.Config.Telemetry.MetricsPort,
			components.Config.Telemetry.EnablePprof,
			components.Logger,
		)
		if err != nil {
			components.Logger.Warn("failed to initialize telemetry", "error", err)
		} else if err := components.Telemetry.Start(ctx); err != nil {
			components.Logger.Warn("failed to start telemetry", "error", err)
		}
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error. Useful for services that
// can't recover from initialization failure.
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
