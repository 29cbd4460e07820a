package feed

import (
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tidemark-app/tidemark/internal/domain"
)

// MergeOptions selects the merge direction. New items are prepended, older
// items appended; either way the first occurrence of an id wins.
type MergeOptions struct {
	New bool
	Old bool
}

// Cache is the ordered, deduplicated sequence of timeline items for one
// (user, feed key) pair. The fetch controller is its only writer; the
// presentation layer reads snapshots.
//
// Items are ordered by descending creation time and deduplicated by event
// id. The id dedup is a safety net on top of the builder's business-level
// contract-id dedup.
type Cache struct {
	mu     sync.RWMutex
	items  []domain.TimelineItem
	loaded bool // distinguishes "never loaded" from "loaded, empty"
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Merge combines items into the cache: prepend for new, append for old,
// dedup by id keeping the first occurrence and preserving relative order.
// Merging the same batch twice is a no-op.
func (c *Cache) Merge(items []domain.TimelineItem, opts MergeOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var combined []domain.TimelineItem
	if opts.New {
		combined = append(append(combined, items...), c.items...)
	} else {
		combined = append(append(combined, c.items...), items...)
	}

	seen := make(map[int64]bool, len(combined))
	deduped := combined[:0]
	for _, item := range combined {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		deduped = append(deduped, item)
	}

	c.items = deduped
	c.loaded = true
}

// Len returns the number of cached items.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Loaded reports whether the cache has ever been merged into. An unloaded
// cache reads as nil, which the API layer surfaces as "not yet loaded"
// rather than "loaded, nothing new".
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Items returns the ordered deduplicated sequence. The returned slice shares
// item payloads with the cache; callers inside the aggregator must not
// mutate them. External consumers use Snapshot.
func (c *Cache) Items() []domain.TimelineItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.TimelineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Snapshot returns a deep copy of the cached sequence, isolated from the
// cache through a msgpack round-trip so consumers cannot mutate shared
// payload maps. Returns nil when the cache has never been loaded.
func (c *Cache) Snapshot() ([]domain.TimelineItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.loaded {
		return nil, nil
	}

	raw, err := msgpack.Marshal(c.items)
	if err != nil {
		return nil, err
	}
	var items []domain.TimelineItem
	if err := msgpack.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	if items == nil {
		// Loaded but empty must stay distinguishable from never loaded.
		items = []domain.TimelineItem{}
	}
	return items, nil
}

// ContractIDs returns the set of contract ids currently in the cache.
func (c *Cache) ContractIDs() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make(map[string]bool)
	for _, item := range c.items {
		if item.ContractID != nil {
			ids[*item.ContractID] = true
		}
	}
	return ids
}

// NewsIDs returns the set of news ids currently in the cache.
func (c *Cache) NewsIDs() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make(map[string]bool)
	for _, item := range c.items {
		if item.NewsID != nil {
			ids[*item.NewsID] = true
		}
	}
	return ids
}

// CachedContract returns the cached contract for the given id, if any item
// carries it. Used to re-attach orphaned comments to markets already on
// screen.
func (c *Cache) CachedContract(contractID string) *domain.Contract {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, item := range c.items {
		if item.ContractID != nil && *item.ContractID == contractID && item.Contract != nil {
			return item.Contract
		}
	}
	return nil
}

// First returns the newest cached item.
func (c *Cache) First() (domain.TimelineItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.items) == 0 {
		return domain.TimelineItem{}, false
	}
	return c.items[0], true
}

// Last returns the oldest cached item.
func (c *Cache) Last() (domain.TimelineItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.items) == 0 {
		return domain.TimelineItem{}, false
	}
	return c.items[len(c.items)-1], true
}

// SessionStore keeps one cache per (user id, feed key) pair for the lifetime
// of the process, so a feed survives presentation-layer remounts but not
// restarts. No cross-pair state is shared.
type SessionStore struct {
	mu     sync.Mutex
	caches map[string]*Cache
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{caches: make(map[string]*Cache)}
}

// Get returns the cache for the pair, creating it on first use.
func (s *SessionStore) Get(userID, feedKey string) *Cache {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID + "\x00" + feedKey
	cache, ok := s.caches[key]
	if !ok {
		cache = NewCache()
		s.caches[key] = cache
	}
	return cache
}
