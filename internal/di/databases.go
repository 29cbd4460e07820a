package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/tidemark-app/tidemark/internal/config"
	"github.com/tidemark-app/tidemark/internal/database"
	"github.com/tidemark-app/tidemark/internal/docstore"
)

// InitializeDatabases opens the relational databases and the document store
// client and applies schema migrations.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	socialDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "social.db"),
		Profile: database.ProfileStandard,
		Name:    "social",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open social.db: %w", err)
	}
	container.SocialDB = socialDB

	feedDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "feed.db"),
		Profile: database.ProfileEventLog,
		Name:    "feed",
	})
	if err != nil {
		socialDB.Close()
		return nil, fmt.Errorf("failed to open feed.db: %w", err)
	}
	container.FeedDB = feedDB

	for _, db := range []*database.DB{socialDB, feedDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s: %w", db.Name(), err)
		}
		log.Info().Str("database", db.Name()).Str("path", db.Path()).Msg("Database ready")
	}

	docs, err := docstore.New(context.Background(), docstore.Config{
		Region:         cfg.AWSRegion,
		Endpoint:       cfg.DynamoEndpoint,
		ContractsTable: cfg.ContractsTable,
		CommentsTable:  cfg.CommentsTable,
	}, log)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}
	container.DocStore = docs

	return container, nil
}
