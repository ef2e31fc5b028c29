package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations: databases, repositories, services.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	InitializeRepositories(container, log)

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed")

	return container, nil
}
