package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-app/tidemark/internal/config"
	"github.com/tidemark-app/tidemark/internal/domain"
)

// fakeEventStore records every query and answers via a pluggable respond
// function.
type fakeEventStore struct {
	mu      sync.Mutex
	queries []domain.EventQueryOptions
	respond func(opts domain.EventQueryOptions) ([]domain.FeedEvent, error)

	news   []domain.News
	boosts []domain.Boost

	// blockQueries, when non-nil, makes QueryEvents park until released.
	blockQueries chan struct{}
	queryStarted chan struct{}
}

func (f *fakeEventStore) QueryEvents(_ context.Context, _ string, opts domain.EventQueryOptions) ([]domain.FeedEvent, error) {
	f.mu.Lock()
	f.queries = append(f.queries, opts)
	block := f.blockQueries
	started := f.queryStarted
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(opts)
}

func (f *fakeEventStore) GetNews(_ context.Context, _ []string) ([]domain.News, error) {
	return f.news, nil
}

func (f *fakeEventStore) GetDisinterestedContractIDs(_ context.Context, _ string, _ []string) (map[string]bool, error) {
	return nil, nil
}

func (f *fakeEventStore) GetSeenCommentIDs(_ context.Context, _ string, _ []string, _ time.Time) (map[string]bool, error) {
	return nil, nil
}

func (f *fakeEventStore) GetBoosts(_ context.Context, _ string) ([]domain.Boost, error) {
	return f.boosts, nil
}

func (f *fakeEventStore) recorded() []domain.EventQueryOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EventQueryOptions, len(f.queries))
	copy(out, f.queries)
	return out
}

type fakeDocumentStore struct {
	contracts    []domain.Contract
	comments     []domain.Comment
	contractsErr error
}

func (f *fakeDocumentStore) GetContracts(_ context.Context, ids []string) ([]domain.Contract, error) {
	if f.contractsErr != nil {
		return nil, f.contractsErr
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []domain.Contract
	for _, contract := range f.contracts {
		if wanted[contract.ID] {
			out = append(out, contract)
		}
	}
	return out, nil
}

func (f *fakeDocumentStore) GetComments(_ context.Context, ids []string, _ int) ([]domain.Comment, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []domain.Comment
	for _, comment := range f.comments {
		if wanted[comment.ID] {
			out = append(out, comment)
		}
	}
	return out, nil
}

func testFeedConfig() config.FeedConfig {
	return config.FeedConfig{
		PageSize:              25,
		HighSignalCap:         15,
		UnseenHorizon:         5 * 24 * time.Hour,
		CommentSeenWindow:     5 * 24 * time.Hour,
		BootstrapAttempts:     5,
		BootstrapMinimum:      2,
		MinCommentLikes:       1,
		SignificanceThreshold: 0.055,
		LivePushInterval:      30 * time.Second,
	}
}

func newTestController(events domain.EventStore, docs domain.DocumentStore, cfg config.FeedConfig) *Controller {
	return NewController("viewer-1", "home", nil, events, docs, NewCache(), cfg, zerolog.Nop())
}

func recentEvent(id int64, dataType domain.FeedDataType, contractID string, now time.Time, age time.Duration) domain.FeedEvent {
	createdTime := now.Add(-age).UnixMilli()
	return marketEvent(id, dataType, contractID, createdTime)
}

func TestController_BackfillPrioritizesHighSignal(t *testing.T) {
	now := time.Now()
	highSignal := []domain.FeedEvent{
		recentEvent(1, domain.DataTypeTrendingContract, "m1", now, time.Hour),
		recentEvent(2, domain.DataTypeTrendingContract, "m2", now, 2*time.Hour),
	}
	general := []domain.FeedEvent{
		recentEvent(3, domain.DataTypeNewContract, "m3", now, 3*time.Hour),
		recentEvent(4, domain.DataTypeNewContract, "m4", now, 4*time.Hour),
	}

	events := &fakeEventStore{
		respond: func(opts domain.EventQueryOptions) ([]domain.FeedEvent, error) {
			if len(opts.DataTypes) > 0 {
				return highSignal, nil
			}
			return general, nil
		},
	}
	docs := &fakeDocumentStore{contracts: []domain.Contract{
		openContract("m1", 10, now),
		openContract("m2", 10, now),
		openContract("m3", 10, now),
		openContract("m4", 10, now),
	}}
	controller := newTestController(events, docs, testFeedConfig())

	n, err := controller.LoadMoreOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	queries := events.recorded()
	require.Len(t, queries, 2)

	first := queries[0]
	assert.ElementsMatch(t, []domain.FeedDataType{
		domain.DataTypeProbabilityChanged,
		domain.DataTypeTrendingContract,
	}, first.DataTypes)
	assert.True(t, first.UnseenOnly)
	assert.Equal(t, 15, first.Limit)
	assert.NotEmpty(t, first.NewerThan)

	second := queries[1]
	assert.Empty(t, second.DataTypes)
	assert.ElementsMatch(t, []int64{1, 2}, second.ExcludeIDs)
	assert.NotEmpty(t, second.OlderThan)
	assert.Equal(t, 25, second.Limit)

	items, err := controller.Items()
	require.NoError(t, err)
	require.Len(t, items, 4)
	seen := make(map[int64]int)
	for _, item := range items {
		seen[item.ID]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "item %d duplicated", id)
	}
}

func TestController_BootstrapStopsAtAttemptLimit(t *testing.T) {
	now := time.Now()
	events := &fakeEventStore{
		respond: func(opts domain.EventQueryOptions) ([]domain.FeedEvent, error) {
			if len(opts.DataTypes) > 0 {
				return nil, nil
			}
			// One item per page, always below the bootstrap minimum.
			return []domain.FeedEvent{recentEvent(1, domain.DataTypeNewContract, "m1", now, time.Hour)}, nil
		},
	}
	docs := &fakeDocumentStore{contracts: []domain.Contract{openContract("m1", 10, now)}}
	controller := newTestController(events, docs, testFeedConfig())

	err := controller.Bootstrap(context.Background())
	require.NoError(t, err)

	// Five fetches, two queries each.
	assert.Len(t, events.recorded(), 10)
}

func TestController_BootstrapStopsOnceSatisfied(t *testing.T) {
	now := time.Now()
	events := &fakeEventStore{
		respond: func(opts domain.EventQueryOptions) ([]domain.FeedEvent, error) {
			if len(opts.DataTypes) > 0 {
				return nil, nil
			}
			return []domain.FeedEvent{
				recentEvent(1, domain.DataTypeNewContract, "m1", now, time.Hour),
				recentEvent(2, domain.DataTypeNewContract, "m2", now, 2*time.Hour),
				recentEvent(3, domain.DataTypeNewContract, "m3", now, 3*time.Hour),
			}, nil
		},
	}
	docs := &fakeDocumentStore{contracts: []domain.Contract{
		openContract("m1", 10, now),
		openContract("m2", 10, now),
		openContract("m3", 10, now),
	}}
	controller := newTestController(events, docs, testFeedConfig())

	err := controller.Bootstrap(context.Background())
	require.NoError(t, err)

	assert.Len(t, events.recorded(), 2)
}

func TestController_CursorsFollowMerges(t *testing.T) {
	now := time.Now()
	batch := []domain.FeedEvent{
		recentEvent(1, domain.DataTypeNewContract, "m1", now, time.Hour),
		recentEvent(2, domain.DataTypeNewContract, "m2", now, 2*time.Hour),
	}
	events := &fakeEventStore{
		respond: func(opts domain.EventQueryOptions) ([]domain.FeedEvent, error) {
			if len(opts.DataTypes) > 0 {
				return nil, nil
			}
			return batch, nil
		},
	}
	docs := &fakeDocumentStore{contracts: []domain.Contract{
		openContract("m1", 10, now),
		openContract("m2", 10, now),
	}}
	controller := newTestController(events, docs, testFeedConfig())

	_, err := controller.LoadMoreOlder(context.Background())
	require.NoError(t, err)

	newest, oldest := controller.Cursors()
	assert.Equal(t, batch[0].CreatedTimestamp, newest)
	assert.Equal(t, batch[1].CreatedTimestamp, oldest)

	// A newer item moves only the newest cursor.
	newer := recentEvent(3, domain.DataTypeNewContract, "m3", now, time.Minute)
	newerItem := domain.TimelineItem{
		ID:               newer.ID,
		DataType:         newer.DataType,
		CreatedTime:      newer.CreatedTime,
		CreatedTimestamp: newer.CreatedTimestamp,
	}
	controller.AddTimelineItems([]domain.TimelineItem{newerItem}, MergeOptions{New: true})

	newest, oldestAfter := controller.Cursors()
	assert.Equal(t, newer.CreatedTimestamp, newest)
	assert.Equal(t, oldest, oldestAfter)
}

func TestController_OldestCursorNonIncreasingAcrossBackfills(t *testing.T) {
	now := time.Now()
	pages := [][]domain.FeedEvent{
		{
			recentEvent(1, domain.DataTypeNewContract, "m1", now, 1*time.Hour),
			recentEvent(2, domain.DataTypeNewContract, "m2", now, 2*time.Hour),
		},
		{
			recentEvent(3, domain.DataTypeNewContract, "m3", now, 3*time.Hour),
			recentEvent(4, domain.DataTypeNewContract, "m4", now, 4*time.Hour),
		},
		{
			recentEvent(5, domain.DataTypeNewContract, "m5", now, 5*time.Hour),
		},
	}

	page := 0
	events := &fakeEventStore{
		respond: func(opts domain.EventQueryOptions) ([]domain.FeedEvent, error) {
			if len(opts.DataTypes) > 0 {
				return nil, nil
			}
			batch := pages[page]
			if page < len(pages)-1 {
				page++
			}
			return batch, nil
		},
	}
	docs := &fakeDocumentStore{contracts: []domain.Contract{
		openContract("m1", 10, now),
		openContract("m2", 10, now),
		openContract("m3", 10, now),
		openContract("m4", 10, now),
		openContract("m5", 10, now),
	}}
	controller := newTestController(events, docs, testFeedConfig())

	// Lexicographic order on cursor strings equals chronological order, so
	// each successive backfill must leave the oldest cursor <= the previous.
	_, previousOldest := controller.Cursors()
	for i := 0; i < len(pages); i++ {
		n, err := controller.LoadMoreOlder(context.Background())
		require.NoError(t, err)
		require.NotZero(t, n)

		_, oldest := controller.Cursors()
		assert.LessOrEqual(t, oldest, previousOldest)
		previousOldest = oldest
	}
	assert.Equal(t, pages[2][0].CreatedTimestamp, previousOldest)
}

func TestController_CheckForNewerDoesNotMutateCache(t *testing.T) {
	now := time.Now()
	backfill := []domain.FeedEvent{
		recentEvent(1, domain.DataTypeNewContract, "m1", now, 2*time.Hour),
	}
	newer := []domain.FeedEvent{
		recentEvent(2, domain.DataTypeNewContract, "m2", now, time.Minute),
	}
	events := &fakeEventStore{
		respond: func(opts domain.EventQueryOptions) ([]domain.FeedEvent, error) {
			if len(opts.DataTypes) > 0 {
				return nil, nil
			}
			if opts.OlderThan != "" {
				return backfill, nil
			}
			return newer, nil
		},
	}
	docs := &fakeDocumentStore{contracts: []domain.Contract{
		openContract("m1", 10, now),
		openContract("m2", 10, now),
	}}
	controller := newTestController(events, docs, testFeedConfig())

	_, err := controller.LoadMoreOlder(context.Background())
	require.NoError(t, err)
	newestBefore, _ := controller.Cursors()

	found, err := controller.CheckForNewer(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(2), found[0].ID)

	// Neither the cache nor the cursor moved; merging is the caller's call.
	items, err := controller.Items()
	require.NoError(t, err)
	assert.Len(t, items, 1)
	newestAfter, _ := controller.Cursors()
	assert.Equal(t, newestBefore, newestAfter)

	controller.AddTimelineItems(found, MergeOptions{New: true})
	items, err = controller.Items()
	require.NoError(t, err)
	assert.Len(t, items, 2)
	newestAfter, _ = controller.Cursors()
	assert.Equal(t, found[0].CreatedTimestamp, newestAfter)
}

func TestController_ConcurrentFetchIsDropped(t *testing.T) {
	events := &fakeEventStore{
		blockQueries: make(chan struct{}),
		queryStarted: make(chan struct{}, 1),
	}
	docs := &fakeDocumentStore{}
	controller := newTestController(events, docs, testFeedConfig())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = controller.LoadMoreOlder(context.Background())
	}()

	<-events.queryStarted

	// The second fetch arrives mid-flight and is dropped, not queued.
	items, err := controller.CheckForNewer(context.Background())
	require.NoError(t, err)
	assert.Nil(t, items)

	close(events.blockQueries)
	<-done
}

func TestController_EnrichmentFailureDegradesToEmpty(t *testing.T) {
	now := time.Now()
	events := &fakeEventStore{
		respond: func(opts domain.EventQueryOptions) ([]domain.FeedEvent, error) {
			if len(opts.DataTypes) > 0 {
				return nil, nil
			}
			return []domain.FeedEvent{
				recentEvent(1, domain.DataTypeNewContract, "m1", now, time.Hour),
			}, nil
		},
	}
	docs := &fakeDocumentStore{contractsErr: errors.New("document store unavailable")}
	controller := newTestController(events, docs, testFeedConfig())

	n, err := controller.LoadMoreOlder(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestController_BoostsExcludeMarketsAlreadyInFeed(t *testing.T) {
	now := time.Now()
	events := &fakeEventStore{
		respond: func(opts domain.EventQueryOptions) ([]domain.FeedEvent, error) {
			if len(opts.DataTypes) > 0 {
				return nil, nil
			}
			return []domain.FeedEvent{
				recentEvent(1, domain.DataTypeNewContract, "m1", now, time.Hour),
			}, nil
		},
		boosts: []domain.Boost{
			{ID: "b1", ContractID: "m1"},
			{ID: "b2", ContractID: "m9"},
		},
	}
	docs := &fakeDocumentStore{contracts: []domain.Contract{openContract("m1", 10, now)}}
	controller := newTestController(events, docs, testFeedConfig())

	_, err := controller.LoadMoreOlder(context.Background())
	require.NoError(t, err)

	boosts, err := controller.Boosts(context.Background())
	require.NoError(t, err)
	require.Len(t, boosts, 1)
	assert.Equal(t, "b2", boosts[0].ID)
}
