// Package cache stores derived spatial artifacts keyed by request
// parameters.
//
// The primary tier is an in-process LRU store with independent capacities
// per artifact kind, so coverage grids and heatmaps cannot evict each
// other. An optional Redis tier persists entries across restarts: puts are
// written through, and an LRU miss falls back to Redis before reporting a
// miss to the caller.
//
// Entries are immutable after insertion; they are only ever replaced or
// evicted. Eviction order is maintained in an explicit recency list so it
// can be asserted in tests.
package cache
