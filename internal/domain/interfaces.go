package domain

import (
	"context"
	"time"
)

// EventQueryOptions shapes one query against the per-user feed event log.
// Timestamp bounds are store-native strings and compare against the verbatim
// created_time column, not a parsed epoch value.
type EventQueryOptions struct {
	NewerThan  string         // exclusive lower bound on created_time
	OlderThan  string         // exclusive upper bound on created_time
	DataTypes  []FeedDataType // restrict to these types (empty = all)
	UnseenOnly bool           // only rows with no seen_time marker
	ExcludeIDs []int64        // drop rows already returned by a companion query
	Limit      int
}

// EventStore is the query interface over the relational store: the per-user
// feed event log plus its auxiliary per-user collections. All methods are
// read-only except the ingest/cleanup writers, which live on the concrete
// repository rather than this interface.
type EventStore interface {
	// QueryEvents returns feed events for the user ordered by descending
	// created_time, capped at opts.Limit.
	QueryEvents(ctx context.Context, userID string, opts EventQueryOptions) ([]FeedEvent, error)

	// GetNews resolves news entities by id. Missing ids are skipped.
	GetNews(ctx context.Context, ids []string) ([]News, error)

	// GetDisinterestedContractIDs returns the subset of contractIDs the user
	// has marked as uninteresting.
	GetDisinterestedContractIDs(ctx context.Context, userID string, contractIDs []string) (map[string]bool, error)

	// GetSeenCommentIDs returns the subset of commentIDs whose threads the
	// user has opened since the given instant.
	GetSeenCommentIDs(ctx context.Context, userID string, commentIDs []string, since time.Time) (map[string]bool, error)

	// GetBoosts returns funded sponsored listings for the user.
	GetBoosts(ctx context.Context, userID string) ([]Boost, error)
}

// DocumentStore is the query interface over the document store holding
// contract and comment documents. Lookups are batch-by-id; filtering that the
// store cannot express is applied before returning.
type DocumentStore interface {
	// GetContracts resolves contracts by id, dropping resolved contracts and
	// contracts whose close time has passed. Missing ids are skipped.
	GetContracts(ctx context.Context, ids []string) ([]Contract, error)

	// GetComments resolves comments by id, dropping comments below the likes
	// threshold. Missing ids are skipped.
	GetComments(ctx context.Context, ids []string, minLikes int) ([]Comment, error)
}
