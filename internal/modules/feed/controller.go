package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidemark-app/tidemark/internal/config"
	"github.com/tidemark-app/tidemark/internal/domain"
)

// fetchOptions selects one of the two query plans: a "newer" fetch bounded
// below by a cursor, or a two-phase backfill ("old") fetch.
type fetchOptions struct {
	newerThan string
	old       bool
}

// Controller owns the incremental fetch state machine for one
// (user, feed key) pair: the pagination cursors, the in-flight gate, and the
// session cache. All state is per-instance; nothing is shared across pairs.
type Controller struct {
	userID  string
	feedKey string
	viewer  *domain.PrivateUser
	events  domain.EventStore
	docs    domain.DocumentStore
	cache   *Cache
	cfg     config.FeedConfig
	log     zerolog.Logger
	now     func() time.Time

	// fetching is a drop-latest gate, not a queue: a fetch arriving while
	// one is in flight returns empty and the caller re-requests.
	fetching atomic.Bool

	cursorMu        sync.Mutex
	newestTimestamp string
	oldestTimestamp string
}

// NewController creates a fetch controller bound to one (user, feed key)
// pair. Cursors resume from the session cache when it already holds items.
func NewController(
	userID, feedKey string,
	viewer *domain.PrivateUser,
	events domain.EventStore,
	docs domain.DocumentStore,
	cache *Cache,
	cfg config.FeedConfig,
	log zerolog.Logger,
) *Controller {
	c := &Controller{
		userID:  userID,
		feedKey: feedKey,
		viewer:  viewer,
		events:  events,
		docs:    docs,
		cache:   cache,
		cfg:     cfg,
		log: log.With().
			Str("component", "feed_controller").
			Str("user_id", userID).
			Str("feed_key", feedKey).
			Logger(),
		now: time.Now,
	}

	startCursor := FormatTimestamp(c.now())
	c.newestTimestamp = startCursor
	c.oldestTimestamp = startCursor
	if first, ok := cache.First(); ok {
		c.newestTimestamp = first.CreatedTimestamp
	}
	if last, ok := cache.Last(); ok {
		c.oldestTimestamp = last.CreatedTimestamp
	}
	return c
}

// LoadMoreOlder runs one backfill fetch, merges the result into the cache,
// and returns the number of items fetched.
func (c *Controller) LoadMoreOlder(ctx context.Context) (int, error) {
	items, err := c.fetch(ctx, fetchOptions{old: true})
	if err != nil {
		return 0, err
	}
	c.AddTimelineItems(items, MergeOptions{Old: true})
	return len(items), nil
}

// CheckForNewer fetches items newer than the newest cursor and returns them
// without touching the cache. Merging is the caller's decision, via
// AddTimelineItems.
func (c *Controller) CheckForNewer(ctx context.Context) ([]domain.TimelineItem, error) {
	c.cursorMu.Lock()
	newerThan := c.newestTimestamp
	c.cursorMu.Unlock()

	return c.fetch(ctx, fetchOptions{newerThan: newerThan})
}

// Bootstrap compensates for a single fetch returning very few items after
// filtering: it keeps issuing backfill fetches until one yields at least the
// configured minimum or the attempt limit is reached.
func (c *Controller) Bootstrap(ctx context.Context) error {
	attempts := 0
	for attempts < c.cfg.BootstrapAttempts {
		n, err := c.LoadMoreOlder(ctx)
		if err != nil {
			return err
		}
		if n < c.cfg.BootstrapMinimum {
			attempts++
		} else {
			break
		}
	}
	return nil
}

// AddTimelineItems is the explicit merge entry point.
//
// Cursor policy: a new-direction merge (or any merge into an empty cache)
// advances the newest cursor to the first item's timestamp; an old or
// non-new merge (or a merge into an empty cache) moves the oldest cursor to
// the last item's timestamp. Items arrive ordered newest first.
func (c *Controller) AddTimelineItems(items []domain.TimelineItem, opts MergeOptions) {
	c.cursorMu.Lock()
	wasEmpty := c.cache.Len() == 0
	if (opts.New || wasEmpty) && len(items) > 0 {
		c.newestTimestamp = items[0].CreatedTimestamp
	}
	if (!opts.New || opts.Old || wasEmpty) && len(items) > 0 {
		c.oldestTimestamp = items[len(items)-1].CreatedTimestamp
	}
	c.cursorMu.Unlock()

	c.cache.Merge(items, opts)
}

// Items returns a deep-copied snapshot of the cached feed, nil when the feed
// has never been loaded.
func (c *Controller) Items() ([]domain.TimelineItem, error) {
	return c.cache.Snapshot()
}

// Loaded reports whether this feed has been loaded at least once.
func (c *Controller) Loaded() bool {
	return c.cache.Loaded()
}

// Cursors returns the current cursor pair (newest, oldest).
func (c *Controller) Cursors() (string, string) {
	c.cursorMu.Lock()
	defer c.cursorMu.Unlock()
	return c.newestTimestamp, c.oldestTimestamp
}

// Boosts returns sponsored listings, excluding markets already in the feed.
func (c *Controller) Boosts(ctx context.Context) ([]domain.Boost, error) {
	boosts, err := c.events.GetBoosts(ctx, c.userID)
	if err != nil {
		return nil, err
	}
	inFeed := c.cache.ContractIDs()
	kept := make([]domain.Boost, 0, len(boosts))
	for _, boost := range boosts {
		if inFeed[boost.ContractID] {
			continue
		}
		kept = append(kept, boost)
	}
	return kept, nil
}

// fetch runs one fetch cycle: query the event log, enrich concurrently,
// filter, and build timeline items. A fetch arriving while another is in
// flight returns empty immediately.
func (c *Controller) fetch(ctx context.Context, opts fetchOptions) ([]domain.TimelineItem, error) {
	if !c.fetching.CompareAndSwap(false, true) {
		return nil, nil
	}
	defer c.fetching.Store(false)

	events, err := c.queryEvents(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	sets := c.collectIDSets(events)
	enriched := c.enrich(ctx, sets)

	contracts := FilterContracts(enriched.contracts, c.viewer, enriched.disinterested)
	comments := FilterComments(enriched.comments, c.viewer, enriched.seenComments)

	// Comments on markets already surfaced in this feed are still
	// interesting: re-attach the cached contract so the builder can resolve
	// them instead of dropping the event.
	contracts = append(contracts, c.cachedContractsFor(comments, contracts)...)

	items := BuildTimelineItems(events, contracts, comments, enriched.news, c.now(), c.cfg.SignificanceThreshold)
	return items, nil
}

// queryEvents runs the query plan for the requested direction.
//
// Backfill is two-phase: first up to HighSignalCap unseen high-signal events
// (probability moves, trending) within the horizon, then up to PageSize
// general unseen events older than the oldest cursor, excluding the ids the
// first phase already returned. High-value content surfaces before generic
// chronological backfill.
func (c *Controller) queryEvents(ctx context.Context, opts fetchOptions) ([]domain.FeedEvent, error) {
	if !opts.old {
		return c.events.QueryEvents(ctx, c.userID, domain.EventQueryOptions{
			NewerThan: opts.newerThan,
			Limit:     c.cfg.PageSize,
		})
	}

	horizon := FormatTimestamp(c.now().Add(-c.cfg.UnseenHorizon))

	highSignal, err := c.events.QueryEvents(ctx, c.userID, domain.EventQueryOptions{
		DataTypes:  []domain.FeedDataType{domain.DataTypeProbabilityChanged, domain.DataTypeTrendingContract},
		NewerThan:  horizon,
		UnseenOnly: true,
		Limit:      c.cfg.HighSignalCap,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("High-signal query failed, falling back to general backfill")
		highSignal = nil
	}

	excludeIDs := make([]int64, 0, len(highSignal))
	for _, event := range highSignal {
		excludeIDs = append(excludeIDs, event.ID)
	}

	c.cursorMu.Lock()
	olderThan := c.oldestTimestamp
	c.cursorMu.Unlock()

	general, err := c.events.QueryEvents(ctx, c.userID, domain.EventQueryOptions{
		NewerThan:  horizon,
		OlderThan:  olderThan,
		UnseenOnly: true,
		ExcludeIDs: excludeIDs,
		Limit:      c.cfg.PageSize,
	})
	if err != nil {
		if len(highSignal) == 0 {
			return nil, err
		}
		c.log.Warn().Err(err).Msg("General backfill query failed, serving high-signal events only")
		general = nil
	}

	return append(highSignal, general...), nil
}

// idSets are the enrichment lookups derived from one batch of raw events,
// already pruned of ids the cache holds (redundant fetches become duplicate
// items).
type idSets struct {
	contractIDs        []string
	commentIDs         []string
	potentiallySeenIDs []string
	newsIDs            []string
}

func (c *Controller) collectIDSets(events []domain.FeedEvent) idSets {
	cachedContracts := c.cache.ContractIDs()
	cachedNews := c.cache.NewsIDs()

	var sets idSets
	seenContract := make(map[string]bool)
	seenNews := make(map[string]bool)
	commentByCreator := make(map[string]bool)

	for _, event := range events {
		if event.ContractID != nil {
			id := *event.ContractID
			if !seenContract[id] && !cachedContracts[id] {
				seenContract[id] = true
				sets.contractIDs = append(sets.contractIDs, id)
			}
		}
		if event.CommentID != nil {
			// One comment per creator per batch keeps feed pages varied.
			if !commentByCreator[event.CreatorID] {
				commentByCreator[event.CreatorID] = true
				sets.commentIDs = append(sets.commentIDs, *event.CommentID)
			}
			if event.SeenTime == nil {
				sets.potentiallySeenIDs = append(sets.potentiallySeenIDs, *event.CommentID)
			}
		}
		if event.NewsID != nil {
			id := *event.NewsID
			if !seenNews[id] && !cachedNews[id] {
				seenNews[id] = true
				sets.newsIDs = append(sets.newsIDs, id)
			}
		}
	}
	return sets
}

// enrichment holds the joined results of the concurrent sub-queries. Each
// sub-query resolves independently; a failure degrades to its zero value and
// never aborts the others.
type enrichment struct {
	contracts     []domain.Contract
	comments      []domain.Comment
	news          []domain.News
	disinterested map[string]bool
	seenComments  map[string]bool
}

func (c *Controller) enrich(ctx context.Context, sets idSets) enrichment {
	var (
		wg     sync.WaitGroup
		result enrichment
	)

	wg.Add(5)
	go func() {
		defer wg.Done()
		contracts, err := c.docs.GetContracts(ctx, sets.contractIDs)
		if err != nil {
			c.log.Warn().Err(err).Msg("Contract enrichment failed, continuing without")
			return
		}
		result.contracts = contracts
	}()
	go func() {
		defer wg.Done()
		comments, err := c.docs.GetComments(ctx, sets.commentIDs, c.cfg.MinCommentLikes)
		if err != nil {
			c.log.Warn().Err(err).Msg("Comment enrichment failed, continuing without")
			return
		}
		result.comments = comments
	}()
	go func() {
		defer wg.Done()
		news, err := c.events.GetNews(ctx, sets.newsIDs)
		if err != nil {
			c.log.Warn().Err(err).Msg("News enrichment failed, continuing without")
			return
		}
		result.news = news
	}()
	go func() {
		defer wg.Done()
		disinterested, err := c.events.GetDisinterestedContractIDs(ctx, c.userID, sets.contractIDs)
		if err != nil {
			c.log.Warn().Err(err).Msg("Disinterest lookup failed, continuing without")
			return
		}
		result.disinterested = disinterested
	}()
	go func() {
		defer wg.Done()
		seen, err := c.events.GetSeenCommentIDs(ctx, c.userID, sets.potentiallySeenIDs, c.now().Add(-c.cfg.CommentSeenWindow))
		if err != nil {
			c.log.Warn().Err(err).Msg("Seen-comment lookup failed, continuing without")
			return
		}
		result.seenComments = seen
	}()
	wg.Wait()

	return result
}

// cachedContractsFor finds contracts for comments whose market is absent
// from the freshly-fetched set but already present in the cache.
func (c *Controller) cachedContractsFor(comments []domain.Comment, fetched []domain.Contract) []domain.Contract {
	fetchedIDs := make(map[string]bool, len(fetched))
	for _, contract := range fetched {
		fetchedIDs[contract.ID] = true
	}

	var reattached []domain.Contract
	added := make(map[string]bool)
	for _, comment := range comments {
		if fetchedIDs[comment.ContractID] || added[comment.ContractID] {
			continue
		}
		if contract := c.cache.CachedContract(comment.ContractID); contract != nil {
			added[comment.ContractID] = true
			reattached = append(reattached, *contract)
		}
	}
	return reattached
}
