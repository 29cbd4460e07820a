// Package feed implements the feed timeline aggregator: the event store
// adapter, relevance filtering, timeline item assembly, the per-session
// cache, and the incremental fetch controller that ties them together.
package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidemark-app/tidemark/internal/domain"
)

// TimestampLayout is the store-native form of created_time columns: UTC with
// millisecond precision, matching sqlite's strftime('%Y-%m-%dT%H:%M:%fZ').
// Lexicographic order on these strings equals chronological order, which is
// what the cursor comparisons in SQL rely on.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in the store-native cursor form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// parseCreatedTime derives the numeric epoch-millisecond form of a
// store-native timestamp. The string form stays authoritative for cursors.
func parseCreatedTime(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// ViewCommentThreadEvent is the user_events name recorded when a user opens
// a comment thread.
const ViewCommentThreadEvent = "view comment thread"

// Repository is the event store adapter: read-only queries over the
// relational store's feed event log and auxiliary collections, plus the
// writers used by the ingest and cleanup jobs.
type Repository struct {
	feedDB   *sql.DB // user_feed, user_events, user_disinterests
	socialDB *sql.DB // news, boosts
	log      zerolog.Logger
}

// NewRepository creates a new feed repository.
func NewRepository(feedDB, socialDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		feedDB:   feedDB,
		socialDB: socialDB,
		log:      log.With().Str("repository", "feed").Logger(),
	}
}

// QueryEvents returns feed events for the user ordered by descending
// created_time, capped at opts.Limit.
func (r *Repository) QueryEvents(ctx context.Context, userID string, opts domain.EventQueryOptions) ([]domain.FeedEvent, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, user_id, creator_id, data_type, reason, created_time,
		       contract_id, comment_id, news_id, seen_time, is_copied, data
		FROM user_feed
		WHERE user_id = ?`)
	args := []any{userID}

	if opts.NewerThan != "" {
		sb.WriteString(" AND created_time > ?")
		args = append(args, opts.NewerThan)
	}
	if opts.OlderThan != "" {
		sb.WriteString(" AND created_time < ?")
		args = append(args, opts.OlderThan)
	}
	if len(opts.DataTypes) > 0 {
		sb.WriteString(" AND data_type IN (" + placeholders(len(opts.DataTypes)) + ")")
		for _, dt := range opts.DataTypes {
			args = append(args, string(dt))
		}
	}
	if opts.UnseenOnly {
		sb.WriteString(" AND seen_time IS NULL")
	}
	if len(opts.ExcludeIDs) > 0 {
		sb.WriteString(" AND id NOT IN (" + placeholders(len(opts.ExcludeIDs)) + ")")
		for _, id := range opts.ExcludeIDs {
			args = append(args, id)
		}
	}

	sb.WriteString(" ORDER BY created_time DESC")
	if opts.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	}

	rows, err := r.feedDB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user_feed: %w", err)
	}
	defer rows.Close()

	var events []domain.FeedEvent
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			r.log.Warn().Err(err).Msg("Skipping unreadable feed event row")
			continue
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// scanEvent reads one user_feed row, deriving the numeric creation time from
// the store-native string and rejecting rows with unknown data types.
func (r *Repository) scanEvent(rows *sql.Rows) (domain.FeedEvent, error) {
	var (
		event      domain.FeedEvent
		creatorID  sql.NullString
		contractID sql.NullString
		commentID  sql.NullString
		newsID     sql.NullString
		seenTime   sql.NullString
		dataJSON   sql.NullString
		dataType   string
		reason     string
	)

	if err := rows.Scan(
		&event.ID, &event.UserID, &creatorID, &dataType, &reason,
		&event.CreatedTimestamp, &contractID, &commentID, &newsID,
		&seenTime, &event.IsCopied, &dataJSON,
	); err != nil {
		return domain.FeedEvent{}, err
	}

	event.DataType = domain.FeedDataType(dataType)
	if !event.DataType.Valid() {
		return domain.FeedEvent{}, fmt.Errorf("unknown feed data type %q (event %d)", dataType, event.ID)
	}
	event.Reason = domain.FeedReason(reason)

	createdTime, err := parseCreatedTime(event.CreatedTimestamp)
	if err != nil {
		return domain.FeedEvent{}, fmt.Errorf("bad created_time %q: %w", event.CreatedTimestamp, err)
	}
	event.CreatedTime = createdTime

	event.CreatorID = creatorID.String
	event.ContractID = nullableString(contractID)
	event.CommentID = nullableString(commentID)
	event.NewsID = nullableString(newsID)
	event.SeenTime = nullableString(seenTime)

	if dataJSON.Valid && dataJSON.String != "" {
		if err := json.Unmarshal([]byte(dataJSON.String), &event.Data); err != nil {
			r.log.Warn().Err(err).Int64("event_id", event.ID).Msg("Dropping unreadable event payload")
			event.Data = nil
		}
	}
	return event, nil
}

// GetNews resolves news entities by id. Missing ids are skipped.
func (r *Repository) GetNews(ctx context.Context, ids []string) ([]domain.News, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id, title, url, image_url, published_time FROM news
	          WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := r.socialDB.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query news: %w", err)
	}
	defer rows.Close()

	var news []domain.News
	for rows.Next() {
		var n domain.News
		var imageURL sql.NullString
		if err := rows.Scan(&n.ID, &n.Title, &n.URL, &imageURL, &n.PublishedTime); err != nil {
			return nil, fmt.Errorf("failed to scan news row: %w", err)
		}
		n.ImageURL = imageURL.String
		news = append(news, n)
	}
	return news, rows.Err()
}

// GetDisinterestedContractIDs returns the subset of contractIDs the user has
// marked as uninteresting.
func (r *Repository) GetDisinterestedContractIDs(ctx context.Context, userID string, contractIDs []string) (map[string]bool, error) {
	if len(contractIDs) == 0 {
		return map[string]bool{}, nil
	}

	query := `SELECT contract_id FROM user_disinterests
	          WHERE user_id = ? AND contract_id IN (` + placeholders(len(contractIDs)) + `)`
	args := append([]any{userID}, stringArgs(contractIDs)...)

	rows, err := r.feedDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user_disinterests: %w", err)
	}
	defer rows.Close()

	return scanIDSet(rows)
}

// GetSeenCommentIDs returns the subset of commentIDs whose threads the user
// has opened since the given instant.
func (r *Repository) GetSeenCommentIDs(ctx context.Context, userID string, commentIDs []string, since time.Time) (map[string]bool, error) {
	if len(commentIDs) == 0 {
		return map[string]bool{}, nil
	}

	query := `SELECT comment_id FROM user_events
	          WHERE user_id = ? AND name = ? AND ts > ?
	          AND comment_id IN (` + placeholders(len(commentIDs)) + `)`
	args := append([]any{userID, ViewCommentThreadEvent, FormatTimestamp(since)}, stringArgs(commentIDs)...)

	rows, err := r.feedDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user_events: %w", err)
	}
	defer rows.Close()

	return scanIDSet(rows)
}

// GetBoosts returns funded sponsored listings.
func (r *Repository) GetBoosts(ctx context.Context, userID string) ([]domain.Boost, error) {
	rows, err := r.socialDB.QueryContext(ctx,
		`SELECT id, contract_id, funded, data FROM boosts WHERE funded > 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query boosts: %w", err)
	}
	defer rows.Close()

	var boosts []domain.Boost
	for rows.Next() {
		var b domain.Boost
		var dataJSON sql.NullString
		if err := rows.Scan(&b.ID, &b.ContractID, &b.Funded, &dataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan boost row: %w", err)
		}
		if dataJSON.Valid && dataJSON.String != "" {
			if err := json.Unmarshal([]byte(dataJSON.String), &b.Data); err != nil {
				r.log.Warn().Err(err).Str("boost_id", b.ID).Msg("Dropping unreadable boost payload")
			}
		}
		boosts = append(boosts, b)
	}
	return boosts, rows.Err()
}

// InsertEvents appends rows to the feed event log. Used by the ingest job.
func (r *Repository) InsertEvents(ctx context.Context, events []domain.FeedEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.feedDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_feed
			(user_id, creator_id, data_type, reason, created_time,
			 contract_id, comment_id, news_id, is_copied, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		var dataJSON any
		if event.Data != nil {
			raw, err := json.Marshal(event.Data)
			if err != nil {
				return fmt.Errorf("failed to marshal event payload: %w", err)
			}
			dataJSON = string(raw)
		}

		createdTimestamp := event.CreatedTimestamp
		if createdTimestamp == "" {
			createdTimestamp = FormatTimestamp(time.Now())
		}

		if _, err := stmt.ExecContext(ctx,
			event.UserID, orNil(event.CreatorID), string(event.DataType), string(event.Reason),
			createdTimestamp, event.ContractID, event.CommentID, event.NewsID,
			event.IsCopied, dataJSON,
		); err != nil {
			return fmt.Errorf("failed to insert feed event: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteSeenBefore removes seen feed rows older than the cutoff. Used by the
// cleanup job; returns the number of rows removed.
func (r *Repository) DeleteSeenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.feedDB.ExecContext(ctx,
		`DELETE FROM user_feed WHERE seen_time IS NOT NULL AND seen_time < ?`,
		FormatTimestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete seen feed rows: %w", err)
	}
	return res.RowsAffected()
}

// DeleteUserEventsBefore removes UI interaction events older than the cutoff.
func (r *Repository) DeleteUserEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.feedDB.ExecContext(ctx,
		`DELETE FROM user_events WHERE ts < ?`, FormatTimestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete user events: %w", err)
	}
	return res.RowsAffected()
}

// Helpers

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanIDSet(rows *sql.Rows) (map[string]bool, error) {
	set := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		set[id] = true
	}
	return set, rows.Err()
}
