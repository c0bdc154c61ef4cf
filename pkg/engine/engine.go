// Package engine owns the scheduled synchronization and spatial cache
// lifecycle: it collects datasets from the analytics source on interval
// and daily triggers, derives coverage and heatmap artifacts, and serves
// them from a bounded two-tier cache.
//
// On-demand policy: a cache miss is answered by synchronous aggregation
// from the most recent dataset of the artifact's source kind when one
// exists; the result is cached. Before the first successful refresh a
// miss surfaces as ErrNotAvailable rather than a hard error.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/geoatlas/spatial-sync/pkg/cache"
	"github.com/geoatlas/spatial-sync/pkg/collector"
	"github.com/geoatlas/spatial-sync/pkg/scheduler"
	"github.com/geoatlas/spatial-sync/pkg/source"
	"github.com/geoatlas/spatial-sync/pkg/spatial"
)

// ErrNotAvailable is returned for an artifact request that cannot be
// served yet because no refresh of its source kind has completed.
var ErrNotAvailable = errors.New("data not yet available")

// Job names registered with the scheduler.
const (
	JobVendorRefresh = "vendor-refresh"
	JobOrderRefresh  = "order-refresh"
	JobCacheCleanup  = "cache-cleanup"
)

// Engine is the process-wide synchronization and cache engine. Create it
// once with New, start it with Start, release it with Close.
type Engine struct {
	config    Config
	collector *collector.Collector
	store     *cache.Store
	redisTier *cache.RedisTier
	sched     *scheduler.Scheduler
	logger    zerolog.Logger

	// mu guards datasets: the most recent dataset per source kind,
	// used for on-demand aggregation.
	mu       sync.RWMutex
	datasets map[source.Kind]*source.Dataset

	// refreshMu serializes refreshes per source kind, so a manual
	// refresh can never overlap a scheduled one of the same kind.
	refreshMu map[source.Kind]*sync.Mutex

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates the engine and registers its jobs. The engine does not run
// anything until Start is called.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	col := collector.New(cfg.Fetcher, collector.Config{
		Workers:          cfg.Workers,
		PageSize:         cfg.PageSize,
		MaxRetries:       cfg.MaxRetries,
		FailureThreshold: cfg.FailureThreshold,
		Backoff:          cfg.Backoff,
	})

	store := cache.NewStore(cache.Capacities{
		Coverage: cfg.CoverageCapacity,
		Heatmap:  cfg.HeatmapCapacity,
	})

	var redisTier *cache.RedisTier
	if cfg.Redis != nil {
		redisTier = cache.NewRedisTier(cfg.Redis, cfg.RedisTTL)
	}

	e := &Engine{
		config:    cfg,
		collector: col,
		store:     store,
		redisTier: redisTier,
		sched:     scheduler.New(scheduler.Config{TickInterval: cfg.SchedulerTick}),
		logger:    log.With().Str("component", "engine").Logger(),
		datasets:  make(map[source.Kind]*source.Dataset),
		refreshMu: map[source.Kind]*sync.Mutex{
			source.KindVendor: {},
			source.KindOrder:  {},
		},
	}

	jobs := []scheduler.Job{
		{
			Name:    JobVendorRefresh,
			Trigger: scheduler.IntervalTrigger{Every: cfg.VendorRefreshInterval},
			Run:     func(ctx context.Context) error { return e.refresh(ctx, source.KindVendor) },
		},
		{
			Name:    JobOrderRefresh,
			Trigger: scheduler.DailyTrigger{Hour: cfg.OrderRefreshAt.Hour, Minute: cfg.OrderRefreshAt.Minute},
			Run:     func(ctx context.Context) error { return e.refresh(ctx, source.KindOrder) },
		},
		{
			Name:    JobCacheCleanup,
			Trigger: scheduler.DailyTrigger{Hour: cfg.CleanupAt.Hour, Minute: cfg.CleanupAt.Minute},
			Run:     e.cleanup,
		},
	}
	for _, job := range jobs {
		if err := e.sched.Register(job); err != nil {
			return nil, fmt.Errorf("register %s: %w", job.Name, err)
		}
	}

	return e, nil
}

// Start launches the scheduling loop. It returns immediately.
func (e *Engine) Start() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.cancel != nil {
		return fmt.Errorf("engine already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		if err := e.sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error().Err(err).Msg("Scheduler loop exited")
		}
	}()

	e.logger.Info().Msg("Engine started")
	return nil
}

// Close stops the scheduling loop and waits for in-flight jobs to drain.
func (e *Engine) Close() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.cancel == nil {
		return nil
	}
	e.cancel()
	<-e.done
	e.cancel = nil

	e.logger.Info().Msg("Engine stopped")
	return nil
}

// RefreshNow collects a dataset and rebuilds its artifacts immediately,
// outside the schedule. Refreshes of one kind are serialized, so a
// manual refresh blocks until a scheduled run of the same kind finishes
// rather than overlapping it.
func (e *Engine) RefreshNow(ctx context.Context, kind source.Kind) error {
	return e.refresh(ctx, kind)
}

// artifactSource maps an artifact kind to the source kind it is derived
// from: coverage grids come from vendors, heatmaps from orders.
func artifactSource(kind spatial.ArtifactKind) source.Kind {
	if kind == spatial.KindHeatmap {
		return source.KindOrder
	}
	return source.KindVendor
}

// refresh collects a fresh dataset and replaces the precomputed artifacts
// for the configured region. Artifacts for all resolutions are derived
// before any cache write, so a failed derivation never leaves the cache
// partially updated.
func (e *Engine) refresh(ctx context.Context, kind source.Kind) error {
	mu := e.refreshMu[kind]
	mu.Lock()
	defer mu.Unlock()

	ds, err := e.collector.Collect(ctx, kind, 0)
	if err != nil {
		return err
	}
	return e.refreshFromDataset(ctx, kind, ds)
}

// refreshFromDataset derives and caches artifacts from an already
// collected dataset.
func (e *Engine) refreshFromDataset(ctx context.Context, kind source.Kind, ds *source.Dataset) error {
	type derived struct {
		key   cache.Key
		entry *cache.Entry
	}
	var batch []derived

	now := time.Now().UTC()
	for _, artifactKind := range []spatial.ArtifactKind{spatial.KindCoverage, spatial.KindHeatmap} {
		if artifactSource(artifactKind) != kind {
			continue
		}
		for _, res := range e.config.Resolutions {
			artifact, err := spatial.Aggregate(ds, artifactKind, e.config.Bounds, res)
			if err != nil {
				return fmt.Errorf("derive %s r%d: %w", artifactKind, res, err)
			}
			batch = append(batch, derived{
				key:   cache.Key{Kind: artifactKind, Bounds: e.config.Bounds, Resolution: res},
				entry: cache.NewEntry(artifact, now),
			})
		}
	}

	for _, d := range batch {
		e.put(ctx, d.key, d.entry)
	}

	e.mu.Lock()
	e.datasets[kind] = ds
	e.mu.Unlock()

	e.logger.Info().
		Str("kind", string(kind)).
		Str("run_id", ds.RunID).
		Int("records", len(ds.Records)).
		Bool("partial", ds.Partial).
		Int("artifacts", len(batch)).
		Msg("Refresh complete")

	return nil
}

// cleanup evicts cache entries whose source dataset is older than the
// retention window.
func (e *Engine) cleanup(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-e.config.Retention)

	removed := 0
	for _, kind := range []spatial.ArtifactKind{spatial.KindCoverage, spatial.KindHeatmap} {
		removed += e.store.InvalidateOlderThan(kind, cutoff)
	}

	e.logger.Info().
		Time("cutoff", cutoff).
		Int("removed", removed).
		Msg("Cache cleanup complete")
	return nil
}

// put writes an entry to the LRU store and, when configured, through to
// the persistent tier. Tier write failures are logged, not propagated:
// the memory tier stays authoritative.
func (e *Engine) put(ctx context.Context, key cache.Key, entry *cache.Entry) {
	e.store.Put(key, entry)
	if e.redisTier != nil {
		if err := e.redisTier.Set(ctx, key, entry); err != nil {
			e.logger.Warn().Err(err).Str("key", key.String()).Msg("Persistent tier write failed")
		}
	}
}

// GetArtifact returns the artifact for the given request parameters.
//
// Lookup order: LRU store, then the persistent tier, then synchronous
// aggregation from the most recent dataset of the artifact's source kind.
// Returns ErrNotAvailable when no refresh has completed yet.
func (e *Engine) GetArtifact(ctx context.Context, kind spatial.ArtifactKind, bounds spatial.Bounds, resolution int, filters map[string]string) (*spatial.Artifact, error) {
	key := cache.Key{Kind: kind, Bounds: bounds, Resolution: resolution, Filters: filters}

	if entry := e.store.Get(key); entry != nil {
		return entry.Artifact, nil
	}

	if e.redisTier != nil {
		entry, err := e.redisTier.Get(ctx, key)
		if err == nil {
			e.store.Put(key, entry)
			return entry.Artifact, nil
		}
		if !errors.Is(err, cache.ErrTierMiss) {
			e.logger.Warn().Err(err).Str("key", key.String()).Msg("Persistent tier read failed")
		}
	}

	e.mu.RLock()
	ds := e.datasets[artifactSource(kind)]
	e.mu.RUnlock()
	if ds == nil {
		return nil, ErrNotAvailable
	}

	artifact, err := spatial.Aggregate(filterDataset(ds, filters), kind, bounds, resolution)
	if err != nil {
		return nil, err
	}

	e.put(ctx, key, cache.NewEntry(artifact, time.Now().UTC()))
	return artifact, nil
}

// filterDataset returns a dataset restricted to records whose attributes
// match every filter. The input dataset is not modified.
func filterDataset(ds *source.Dataset, filters map[string]string) *source.Dataset {
	if len(filters) == 0 {
		return ds
	}

	filtered := *ds
	filtered.Records = nil
	for _, rec := range ds.Records {
		match := true
		for name, want := range filters {
			if rec.Attributes[name] != want {
				match = false
				break
			}
		}
		if match {
			filtered.Records = append(filtered.Records, rec)
		}
	}
	return &filtered
}
