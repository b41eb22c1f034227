package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/config"
)

// Wire initializes all dependencies and returns a fully configured
// container. Order of operations:
//  1. Open and migrate databases
//  2. Build the event bus, stores, services and handlers
//  3. Build the job manager, runners, worker pool and maintenance jobs
//
// The caller owns the container and must Close it on shutdown.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	InitializeServices(container, cfg, log)
	InitializeJobs(container, cfg, log)

	log.Info().Msg("Dependency injection wiring completed")
	return container, nil
}
