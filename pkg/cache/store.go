package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/geoatlas/spatial-sync/pkg/spatial"
)

// Capacities configures the per-kind entry limits of the LRU store.
type Capacities struct {
	Coverage int
	Heatmap  int
}

// DefaultCapacities returns the default per-kind limits.
func DefaultCapacities() Capacities {
	return Capacities{
		Coverage: 200,
		Heatmap:  200,
	}
}

// KindStats is a snapshot of one kind's cache state.
type KindStats struct {
	Count     int   `json:"count"`
	Capacity  int   `json:"capacity"`
	HitCount  int64 `json:"hit_count"`
	MissCount int64 `json:"miss_count"`
	Evictions int64 `json:"evictions"`
}

// lruEntry is one element of a shard's recency list.
type lruEntry struct {
	key   string
	entry *Entry
}

// shard holds the entries of one artifact kind. Each shard has its own
// lock so operations on one kind never block the other.
type shard struct {
	mu       sync.Mutex
	capacity int

	// order is the recency list, most recently used at the front.
	// lookup maps key -> list element for O(1) access.
	order  *list.List
	lookup map[string]*list.Element

	hits      int64
	misses    int64
	evictions int64
}

// Store is the in-process artifact cache with independent per-kind LRU
// eviction. Safe for concurrent use.
type Store struct {
	shards map[spatial.ArtifactKind]*shard
	logger zerolog.Logger
}

// NewStore creates a store with the given per-kind capacities.
func NewStore(caps Capacities) *Store {
	if caps.Coverage <= 0 {
		caps.Coverage = DefaultCapacities().Coverage
	}
	if caps.Heatmap <= 0 {
		caps.Heatmap = DefaultCapacities().Heatmap
	}

	newShard := func(capacity int) *shard {
		return &shard{
			capacity: capacity,
			order:    list.New(),
			lookup:   make(map[string]*list.Element),
		}
	}

	s := &Store{
		shards: map[spatial.ArtifactKind]*shard{
			spatial.KindCoverage: newShard(caps.Coverage),
			spatial.KindHeatmap:  newShard(caps.Heatmap),
		},
		logger: log.With().Str("component", "cache").Logger(),
	}
	for kind := range s.shards {
		cacheEntries.WithLabelValues(string(kind)).Set(0)
	}
	return s
}

// Get returns the entry for key, or nil on a miss. A hit refreshes the
// entry's LRU position.
func (s *Store) Get(key Key) *Entry {
	sh := s.shards[key.Kind]
	if sh == nil {
		return nil
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	elem, ok := sh.lookup[key.String()]
	if !ok {
		sh.misses++
		cacheMisses.WithLabelValues(string(key.Kind)).Inc()
		return nil
	}

	sh.order.MoveToFront(elem)
	sh.hits++
	cacheHits.WithLabelValues(string(key.Kind), "memory").Inc()
	return elem.Value.(*lruEntry).entry
}

// Put inserts or replaces the entry for key. When the shard is at
// capacity the least-recently-used entry of the same kind is evicted first.
func (s *Store) Put(key Key, entry *Entry) {
	sh := s.shards[key.Kind]
	if sh == nil || entry == nil {
		return
	}

	ks := key.String()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if elem, ok := sh.lookup[ks]; ok {
		// Replace in place, keep a single element per key.
		elem.Value.(*lruEntry).entry = entry
		sh.order.MoveToFront(elem)
		return
	}

	if sh.order.Len() >= sh.capacity {
		s.evictOldest(key.Kind, sh)
	}

	elem := sh.order.PushFront(&lruEntry{key: ks, entry: entry})
	sh.lookup[ks] = elem
	cacheEntries.WithLabelValues(string(key.Kind)).Set(float64(sh.order.Len()))
}

// evictOldest removes the back of the recency list. Caller holds sh.mu.
func (s *Store) evictOldest(kind spatial.ArtifactKind, sh *shard) {
	back := sh.order.Back()
	if back == nil {
		return
	}
	le := back.Value.(*lruEntry)
	sh.order.Remove(back)
	delete(sh.lookup, le.key)
	sh.evictions++
	cacheEvictions.WithLabelValues(string(kind)).Inc()

	s.logger.Debug().
		Str("kind", string(kind)).
		Str("key", le.key).
		Msg("Evicted LRU entry")
}

// InvalidateOlderThan removes entries of kind whose source dataset
// timestamp precedes cutoff. Returns the number of removed entries.
func (s *Store) InvalidateOlderThan(kind spatial.ArtifactKind, cutoff time.Time) int {
	sh := s.shards[kind]
	if sh == nil {
		return 0
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	removed := 0
	for elem := sh.order.Front(); elem != nil; {
		next := elem.Next()
		le := elem.Value.(*lruEntry)
		if le.entry.SourceTimestamp.Before(cutoff) {
			sh.order.Remove(elem)
			delete(sh.lookup, le.key)
			removed++
		}
		elem = next
	}

	cacheEntries.WithLabelValues(string(kind)).Set(float64(sh.order.Len()))

	if removed > 0 {
		s.logger.Info().
			Str("kind", string(kind)).
			Int("removed", removed).
			Time("cutoff", cutoff).
			Msg("Invalidated stale cache entries")
	}

	return removed
}

// Stats returns a snapshot of all shards.
func (s *Store) Stats() map[spatial.ArtifactKind]KindStats {
	stats := make(map[spatial.ArtifactKind]KindStats, len(s.shards))
	for kind, sh := range s.shards {
		sh.mu.Lock()
		stats[kind] = KindStats{
			Count:     sh.order.Len(),
			Capacity:  sh.capacity,
			HitCount:  sh.hits,
			MissCount: sh.misses,
			Evictions: sh.evictions,
		}
		sh.mu.Unlock()
	}
	return stats
}

// Len returns the entry count for one kind.
func (s *Store) Len(kind spatial.ArtifactKind) int {
	sh := s.shards[kind]
	if sh == nil {
		return 0
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.order.Len()
}

// oldestKey returns the key at the eviction end of a kind's recency list,
// or "" when the shard is empty. Exposed for eviction-order tests.
func (s *Store) oldestKey(kind spatial.ArtifactKind) string {
	sh := s.shards[kind]
	if sh == nil {
		return ""
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	back := sh.order.Back()
	if back == nil {
		return ""
	}
	return back.Value.(*lruEntry).key
}
