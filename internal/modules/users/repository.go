// Package users provides the user profile repository and the current-user
// endpoint.
package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tidemark-app/tidemark/internal/domain"
)

// Repository handles user database operations against social.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new users repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "users").Logger(),
	}
}

// GetUser retrieves a user by id. Returns nil if the user doesn't exist.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var (
		user      domain.User
		avatarURL sql.NullString
		bio       sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, username, avatar_url, bio, created_time FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Name, &user.Username, &avatarURL, &bio, &user.CreatedTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	user.AvatarURL = avatarURL.String
	user.Bio = bio.String
	return &user, nil
}

// GetPrivateUser retrieves a user's private settings (block lists).
// Returns nil if no private record exists, which readers treat as
// "nothing blocked".
func (r *Repository) GetPrivateUser(ctx context.Context, id string) (*domain.PrivateUser, error) {
	var (
		private          domain.PrivateUser
		blockedUsers     string
		blockedContracts string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, blocked_user_ids, blocked_contract_ids FROM private_users WHERE id = ?`, id).
		Scan(&private.ID, &blockedUsers, &blockedContracts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get private user %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(blockedUsers), &private.BlockedUserIDs); err != nil {
		r.log.Warn().Err(err).Str("user_id", id).Msg("Unreadable blocked_user_ids, treating as empty")
	}
	if err := json.Unmarshal([]byte(blockedContracts), &private.BlockedContractIDs); err != nil {
		r.log.Warn().Err(err).Str("user_id", id).Msg("Unreadable blocked_contract_ids, treating as empty")
	}
	return &private, nil
}

// ListIDs returns every user id. Used by the ingest job when fanning feed
// events out per user.
func (r *Repository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
