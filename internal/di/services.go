package di

import (
	"github.com/rs/zerolog"

	"github.com/tidemark-app/tidemark/internal/config"
	"github.com/tidemark-app/tidemark/internal/modules/feed"
)

// InitializeServices creates all services from repositories.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.FeedService = feed.NewService(
		container.FeedRepo,
		container.DocStore,
		container.UserRepo,
		cfg.Feed,
		log,
	)
	return nil
}
