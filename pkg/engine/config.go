package engine

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geoatlas/spatial-sync/pkg/collector"
	"github.com/geoatlas/spatial-sync/pkg/source"
	"github.com/geoatlas/spatial-sync/pkg/spatial"
)

// TimeOfDay is a daily wall-clock trigger time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

// Config holds the engine configuration. Supplied once at startup,
// immutable thereafter.
type Config struct {
	// Fetcher is the paginated fetch capability against the data source.
	Fetcher source.PageFetcher

	// Workers is the fetch worker pool size per collection run.
	Workers int

	// PageSize is the record count requested per page.
	PageSize int

	// MaxRetries and Backoff control per-page retry behavior.
	MaxRetries int
	Backoff    collector.BackoffPolicy

	// FailureThreshold is the failed-page fraction that aborts a run.
	FailureThreshold float64

	// VendorRefreshInterval is the vendor refresh period.
	VendorRefreshInterval time.Duration

	// OrderRefreshAt is the daily order refresh time (UTC).
	OrderRefreshAt TimeOfDay

	// CleanupAt is the daily cache cleanup time (UTC).
	CleanupAt TimeOfDay

	// Retention is how long cache entries outlive their source dataset
	// before the cleanup job evicts them.
	Retention time.Duration

	// CoverageCapacity / HeatmapCapacity bound the per-kind LRU caches.
	CoverageCapacity int
	HeatmapCapacity  int

	// Bounds is the region scheduled refreshes precompute artifacts for.
	Bounds spatial.Bounds

	// Resolutions are the grid resolutions precomputed per refresh.
	Resolutions []int

	// Redis optionally enables the persistent cache tier.
	Redis *redis.Client

	// RedisTTL bounds the persistent tier keyspace.
	RedisTTL time.Duration

	// SchedulerTick is the due-time check period.
	SchedulerTick time.Duration
}

// DefaultConfig returns a safe default configuration for the given
// fetcher and region.
func DefaultConfig(fetcher source.PageFetcher, bounds spatial.Bounds) Config {
	return Config{
		Fetcher:               fetcher,
		Workers:               8,
		PageSize:              500,
		MaxRetries:            3,
		Backoff:               collector.DefaultBackoffPolicy(),
		FailureThreshold:      0.5,
		VendorRefreshInterval: 30 * time.Minute,
		OrderRefreshAt:        TimeOfDay{Hour: 4},
		CleanupAt:             TimeOfDay{Hour: 5},
		Retention:             7 * 24 * time.Hour,
		CoverageCapacity:      200,
		HeatmapCapacity:       200,
		Bounds:                bounds,
		Resolutions:           []int{16, 32, 64},
		RedisTTL:              7 * 24 * time.Hour,
		SchedulerTick:         time.Second,
	}
}

// validate checks the required fields.
func (c Config) validate() error {
	if c.Fetcher == nil {
		return fmt.Errorf("fetcher is required")
	}
	if !c.Bounds.Valid() {
		return fmt.Errorf("bounds are invalid")
	}
	if len(c.Resolutions) == 0 {
		return fmt.Errorf("at least one resolution is required")
	}
	for _, r := range c.Resolutions {
		if r < 1 || r > spatial.MaxResolution {
			return fmt.Errorf("resolution %d out of range", r)
		}
	}
	if c.VendorRefreshInterval <= 0 {
		return fmt.Errorf("vendor refresh interval must be positive")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive")
	}
	return nil
}
