// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/tidemark-app/tidemark/internal/database"
	"github.com/tidemark-app/tidemark/internal/docstore"
	"github.com/tidemark-app/tidemark/internal/modules/cleanup"
	"github.com/tidemark-app/tidemark/internal/modules/feed"
	"github.com/tidemark-app/tidemark/internal/modules/ingest"
	"github.com/tidemark-app/tidemark/internal/modules/users"
	"github.com/tidemark-app/tidemark/internal/scheduler"
)

// Container holds all application dependencies, wired in layers: databases,
// then repositories, then services, then jobs.
type Container struct {
	// Databases
	SocialDB *database.DB
	FeedDB   *database.DB

	// Document store
	DocStore *docstore.Client

	// Repositories
	UserRepo *users.Repository
	FeedRepo *feed.Repository

	// Services
	FeedService *feed.Service

	// Background jobs
	Scheduler   *scheduler.Scheduler
	TrendingJob *ingest.TrendingScanJob
	CleanupJob  *cleanup.FeedCleanupJob
}

// Close releases the container's database connections.
func (c *Container) Close() {
	if c.SocialDB != nil {
		_ = c.SocialDB.Close()
	}
	if c.FeedDB != nil {
		_ = c.FeedDB.Close()
	}
}
