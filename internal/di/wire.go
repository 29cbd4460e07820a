package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tidemark-app/tidemark/internal/config"
	"github.com/tidemark-app/tidemark/internal/modules/cleanup"
	"github.com/tidemark-app/tidemark/internal/modules/ingest"
	"github.com/tidemark-app/tidemark/internal/scheduler"
)

// Wire builds the full dependency graph. Initialization is layered so each
// step only sees what the previous steps produced.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	// Step 1: Databases and document store
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, err
	}

	// Step 2: Repositories
	if err := InitializeRepositories(container, log); err != nil {
		container.Close()
		return nil, err
	}

	// Step 3: Services
	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, err
	}

	// Step 4: Background jobs
	if err := initializeJobs(container, cfg, log); err != nil {
		container.Close()
		return nil, err
	}

	return container, nil
}

func initializeJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Scheduler = scheduler.New(log)

	container.TrendingJob = ingest.NewTrendingScanJob(
		container.DocStore,
		container.FeedRepo,
		container.UserRepo,
		cfg.Feed.SignificanceThreshold,
		log,
	)
	container.CleanupJob = cleanup.NewFeedCleanupJob(
		container.FeedRepo,
		cfg.Jobs.SeenRetention,
		log,
	)

	if !cfg.Jobs.Enabled {
		log.Info().Msg("Background jobs disabled")
		return nil
	}

	if err := container.Scheduler.AddJob(cfg.Jobs.TrendingSchedule, container.TrendingJob); err != nil {
		return fmt.Errorf("failed to schedule trending scan: %w", err)
	}
	if err := container.Scheduler.AddJob(cfg.Jobs.CleanupSchedule, container.CleanupJob); err != nil {
		return fmt.Errorf("failed to schedule feed cleanup: %w", err)
	}

	return nil
}
