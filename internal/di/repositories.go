package di

import (
	"github.com/rs/zerolog"

	"github.com/tidemark-app/tidemark/internal/modules/feed"
	"github.com/tidemark-app/tidemark/internal/modules/users"
)

// InitializeRepositories creates all repositories with database connections.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	container.UserRepo = users.NewRepository(container.SocialDB.Conn(), log)
	container.FeedRepo = feed.NewRepository(container.FeedDB.Conn(), container.SocialDB.Conn(), log)
	return nil
}
