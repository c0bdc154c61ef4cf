// Package collector drives a bounded worker pool of parallel page fetches
// and merges the pages into one ordered dataset.
package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/geoatlas/spatial-sync/pkg/source"
)

// Prometheus metrics for collection runs.
var (
	collectRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geosync_collect_runs_total",
		Help: "Total collection runs by source kind and outcome",
	}, []string{"kind", "outcome"})

	collectPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geosync_collect_pages_total",
		Help: "Total pages by source kind and outcome",
	}, []string{"kind", "outcome"})

	collectRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geosync_collect_retries_total",
		Help: "Total page retry attempts by source kind",
	}, []string{"kind"})

	collectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geosync_collect_duration_seconds",
		Help:    "Collection run duration in seconds by source kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"kind"})
)

// Config holds collector configuration.
type Config struct {
	// Workers is the fixed size of the fetch worker pool.
	Workers int

	// PageSize is the number of records requested per page.
	PageSize int

	// MaxRetries is the number of retries per page after the first
	// attempt. Only transient failures are retried.
	MaxRetries int

	// FailureThreshold is the fraction of failed pages (0..1) above which
	// the whole run fails instead of returning a partial dataset.
	FailureThreshold float64

	// Backoff is the retry delay schedule.
	Backoff BackoffPolicy
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:          8,
		PageSize:         500,
		MaxRetries:       3,
		FailureThreshold: 0.5,
		Backoff:          DefaultBackoffPolicy(),
	}
}

// Collector fetches all pages of a source kind in parallel.
type Collector struct {
	fetcher source.PageFetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a new collector.
func New(fetcher source.PageFetcher, cfg Config) *Collector {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 0.5
	}

	return &Collector{
		fetcher: fetcher,
		config:  cfg,
		logger:  log.With().Str("component", "collector").Logger(),
	}
}

// pageResult is the outcome of fetching one page.
type pageResult struct {
	index   int
	records []source.Record
}

// Collect fetches all pages for kind and reassembles them in page order.
//
// When totalHint <= 0 the first page is fetched up front to learn the total
// record count from the source metadata. Pages that exhaust their retries
// mark the dataset partial; if the fraction of failed pages exceeds the
// configured threshold the whole run fails with a CollectionError.
func (c *Collector) Collect(ctx context.Context, kind source.Kind, totalHint int) (*source.Dataset, error) {
	start := time.Now()
	runID := uuid.New().String()
	defer func() {
		collectDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	results := make(map[int][]source.Record)
	total := totalHint

	// Learn the total from the first page when no hint is given.
	firstPageFetched := false
	if total <= 0 {
		page, err := c.fetchWithRetry(ctx, kind, 0)
		if err != nil {
			collectRunsTotal.WithLabelValues(string(kind), "failed").Inc()
			return nil, &CollectionError{
				Kind:       kind,
				TotalPages: 1,
				Err:        fmt.Errorf("first page: %w", err),
			}
		}
		total = page.TotalCount
		results[0] = page.Records
		firstPageFetched = true
	}

	totalPages := (total + c.config.PageSize - 1) / c.config.PageSize
	if totalPages < 1 {
		totalPages = 1
	}

	c.logger.Info().
		Str("run_id", runID).
		Str("kind", string(kind)).
		Int("expected", total).
		Int("total_pages", totalPages).
		Msg("Starting collection run")

	pageQueue := make(chan int, totalPages)
	for p := 0; p < totalPages; p++ {
		if p == 0 && firstPageFetched {
			continue
		}
		pageQueue <- p
	}
	close(pageQueue)

	var (
		mu          sync.Mutex
		failedPages []int
		wg          sync.WaitGroup
	)

	resultCh := make(chan pageResult, totalPages)

	for i := 0; i < c.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pageIdx := range pageQueue {
				// Stop dispatching once cancelled; in-flight pages
				// complete via the fetch context.
				select {
				case <-ctx.Done():
					return
				default:
				}

				page, err := c.fetchWithRetry(ctx, kind, pageIdx)
				if err != nil {
					collectPagesTotal.WithLabelValues(string(kind), "failed").Inc()
					c.logger.Warn().
						Err(err).
						Str("run_id", runID).
						Str("kind", string(kind)).
						Int("page", pageIdx).
						Msg("Page failed after retries")
					mu.Lock()
					failedPages = append(failedPages, pageIdx)
					mu.Unlock()
					continue
				}

				collectPagesTotal.WithLabelValues(string(kind), "fetched").Inc()
				resultCh <- pageResult{index: pageIdx, records: page.Records}
			}
		}()
	}

	wg.Wait()
	close(resultCh)

	for res := range resultCh {
		results[res.index] = res.records
	}

	if err := ctx.Err(); err != nil {
		collectRunsTotal.WithLabelValues(string(kind), "cancelled").Inc()
		return nil, fmt.Errorf("collection cancelled: %w", err)
	}

	sort.Ints(failedPages)
	failedFraction := float64(len(failedPages)) / float64(totalPages)
	if failedFraction > c.config.FailureThreshold {
		collectRunsTotal.WithLabelValues(string(kind), "failed").Inc()
		return nil, &CollectionError{
			Kind:        kind,
			FailedPages: len(failedPages),
			TotalPages:  totalPages,
			Err:         ErrTooManyFailedPages,
		}
	}

	// Reassemble in page order regardless of worker completion order.
	var records []source.Record
	for p := 0; p < totalPages; p++ {
		records = append(records, results[p]...)
	}

	dataset := &source.Dataset{
		RunID:       runID,
		Kind:        kind,
		FetchedAt:   time.Now().UTC(),
		Expected:    total,
		Records:     records,
		Partial:     len(failedPages) > 0,
		FailedPages: failedPages,
	}

	outcome := "success"
	if dataset.Partial {
		outcome = "partial"
	}
	collectRunsTotal.WithLabelValues(string(kind), outcome).Inc()

	c.logger.Info().
		Str("run_id", runID).
		Str("kind", string(kind)).
		Int("records", len(records)).
		Int("failed_pages", len(failedPages)).
		Dur("duration", time.Since(start)).
		Msg("Collection run complete")

	return dataset, nil
}

// fetchWithRetry fetches one page, retrying transient failures according to
// the backoff policy. Permanent failures are returned immediately.
func (c *Collector) fetchWithRetry(ctx context.Context, kind source.Kind, pageIdx int) (*source.Page, error) {
	cursor := source.Cursor{
		Offset:   pageIdx * c.config.PageSize,
		PageSize: c.config.PageSize,
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			collectRetriesTotal.WithLabelValues(string(kind)).Inc()
			delay := c.config.Backoff.DelayFor(attempt)
			c.logger.Debug().
				Str("kind", string(kind)).
				Int("page", pageIdx).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Retrying page after backoff")

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("page %d: %w", pageIdx, ctx.Err())
			case <-time.After(delay):
			}
		}

		page, err := c.fetcher.FetchPage(ctx, kind, cursor)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !source.IsTransient(err) {
			return nil, fmt.Errorf("page %d: %w", pageIdx, err)
		}
	}

	return nil, fmt.Errorf("page %d: retries exhausted: %w", pageIdx, lastErr)
}
