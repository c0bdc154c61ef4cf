package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/geoatlas/spatial-sync/internal/testutil"
	"github.com/geoatlas/spatial-sync/pkg/cache"
	"github.com/geoatlas/spatial-sync/pkg/collector"
	"github.com/geoatlas/spatial-sync/pkg/source"
	"github.com/geoatlas/spatial-sync/pkg/spatial"
)

var testBounds = spatial.Bounds{MinLat: 35.5, MinLon: 51.0, MaxLat: 35.9, MaxLon: 51.6}

func setupEngine(t *testing.T, mutate func(*Config)) (*Engine, *testutil.MockAnalytics) {
	t.Helper()

	mock := testutil.NewMockAnalytics()
	t.Cleanup(mock.Close)

	fetcher, err := source.NewHTTPFetcher(source.DefaultHTTPConfig(mock.URL()))
	if err != nil {
		t.Fatalf("NewHTTPFetcher() error = %v", err)
	}

	cfg := DefaultConfig(fetcher, testBounds)
	cfg.PageSize = 50
	cfg.Resolutions = []int{8, 16}
	cfg.Backoff = collector.BackoffPolicy{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return eng, mock
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil fetcher", func(c *Config) { c.Fetcher = nil }},
		{"invalid bounds", func(c *Config) { c.Bounds = spatial.Bounds{MinLat: 1, MaxLat: 0} }},
		{"no resolutions", func(c *Config) { c.Resolutions = nil }},
		{"resolution out of range", func(c *Config) { c.Resolutions = []int{0} }},
		{"zero interval", func(c *Config) { c.VendorRefreshInterval = 0 }},
		{"zero retention", func(c *Config) { c.Retention = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(stubFetcher{}, testBounds)
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New() error = nil, want validation error")
			}
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{input: "04:00", want: TimeOfDay{Hour: 4}},
		{input: "23:59", want: TimeOfDay{Hour: 23, Minute: 59}},
		{input: "24:00", wantErr: true},
		{input: "12:60", wantErr: true},
		{input: "noon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTimeOfDay(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeOfDay(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseTimeOfDay(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRefreshPrecomputesConfiguredResolutions(t *testing.T) {
	eng, mock := setupEngine(t, nil)
	mock.SetDataset(source.KindVendor, testutil.GenerateRecords(120, 35.5, 51.0, 35.9, 51.6))

	if err := eng.refresh(context.Background(), source.KindVendor); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}

	if got := eng.store.Len(spatial.KindCoverage); got != 2 {
		t.Errorf("coverage entries = %d, want 2", got)
	}
	if got := eng.store.Len(spatial.KindHeatmap); got != 0 {
		t.Errorf("heatmap entries = %d, want 0 after vendor refresh", got)
	}

	for _, res := range []int{8, 16} {
		artifact, err := eng.GetArtifact(context.Background(), spatial.KindCoverage, testBounds, res, nil)
		if err != nil {
			t.Fatalf("GetArtifact(r%d) error = %v", res, err)
		}
		if artifact.Resolution != res {
			t.Errorf("artifact.Resolution = %d, want %d", artifact.Resolution, res)
		}
		if artifact.RecordCount != 120 {
			t.Errorf("artifact.RecordCount = %d, want 120", artifact.RecordCount)
		}
	}
}

func TestRefreshOrdersProducesHeatmaps(t *testing.T) {
	eng, mock := setupEngine(t, nil)
	mock.SetDataset(source.KindOrder, testutil.GenerateRecords(60, 35.5, 51.0, 35.9, 51.6))

	if err := eng.refresh(context.Background(), source.KindOrder); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}

	if got := eng.store.Len(spatial.KindHeatmap); got != 2 {
		t.Errorf("heatmap entries = %d, want 2", got)
	}
	if got := eng.store.Len(spatial.KindCoverage); got != 0 {
		t.Errorf("coverage entries = %d, want 0 after order refresh", got)
	}
}

func TestRefreshFailureLeavesCacheUntouched(t *testing.T) {
	eng, mock := setupEngine(t, func(c *Config) {
		c.MaxRetries = 1
		c.FailureThreshold = 0.2
	})
	mock.SetDataset(source.KindVendor, testutil.GenerateRecords(150, 35.5, 51.0, 35.9, 51.6))
	// Pages 1 and 2 permanently broken: 2 of 3 pages exceeds the threshold.
	mock.FailPage(source.KindVendor, 50, testutil.FailureRule{StatusCode: 404, Times: -1})
	mock.FailPage(source.KindVendor, 100, testutil.FailureRule{StatusCode: 404, Times: -1})

	err := eng.refresh(context.Background(), source.KindVendor)
	if err == nil {
		t.Fatal("refresh() error = nil, want collection error")
	}
	if !errors.Is(err, collector.ErrTooManyFailedPages) {
		t.Errorf("refresh() error = %v, want ErrTooManyFailedPages", err)
	}

	if got := eng.store.Len(spatial.KindCoverage); got != 0 {
		t.Errorf("coverage entries = %d, want 0 after failed refresh", got)
	}
	if _, err := eng.GetArtifact(context.Background(), spatial.KindCoverage, testBounds, 8, nil); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("GetArtifact() error = %v, want ErrNotAvailable", err)
	}
}

func TestGetArtifactBeforeAnyRefresh(t *testing.T) {
	eng, _ := setupEngine(t, nil)

	_, err := eng.GetArtifact(context.Background(), spatial.KindCoverage, testBounds, 8, nil)
	if !errors.Is(err, ErrNotAvailable) {
		t.Errorf("GetArtifact() error = %v, want ErrNotAvailable", err)
	}
}

func TestGetArtifactOnDemandAggregation(t *testing.T) {
	eng, mock := setupEngine(t, nil)
	mock.SetDataset(source.KindVendor, testutil.GenerateRecords(80, 35.5, 51.0, 35.9, 51.6))

	if err := eng.refresh(context.Background(), source.KindVendor); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}

	// Resolution 32 was not precomputed; the engine aggregates it from
	// the held dataset and caches the result.
	artifact, err := eng.GetArtifact(context.Background(), spatial.KindCoverage, testBounds, 32, nil)
	if err != nil {
		t.Fatalf("GetArtifact() error = %v", err)
	}
	if artifact.Resolution != 32 {
		t.Errorf("artifact.Resolution = %d, want 32", artifact.Resolution)
	}

	if got := eng.store.Len(spatial.KindCoverage); got != 3 {
		t.Errorf("coverage entries = %d, want 3 after on-demand fill", got)
	}

	key := cache.Key{Kind: spatial.KindCoverage, Bounds: testBounds, Resolution: 32}
	if eng.store.Get(key) == nil {
		t.Error("on-demand artifact not cached")
	}
}

func TestGetArtifactAppliesFilters(t *testing.T) {
	eng, mock := setupEngine(t, nil)

	records := testutil.GenerateRecords(40, 35.5, 51.0, 35.9, 51.6)
	for i := range records {
		if i%4 == 0 {
			records[i].Attributes["business_line"] = "grocery"
		}
	}
	mock.SetDataset(source.KindVendor, records)

	if err := eng.refresh(context.Background(), source.KindVendor); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}

	artifact, err := eng.GetArtifact(context.Background(), spatial.KindCoverage, testBounds, 8,
		map[string]string{"business_line": "grocery"})
	if err != nil {
		t.Fatalf("GetArtifact() error = %v", err)
	}
	if artifact.RecordCount != 10 {
		t.Errorf("filtered RecordCount = %d, want 10", artifact.RecordCount)
	}

	unfiltered, err := eng.GetArtifact(context.Background(), spatial.KindCoverage, testBounds, 8, nil)
	if err != nil {
		t.Fatalf("GetArtifact() error = %v", err)
	}
	if unfiltered.RecordCount != 40 {
		t.Errorf("unfiltered RecordCount = %d, want 40", unfiltered.RecordCount)
	}
}

func TestCleanupEvictsStaleEntries(t *testing.T) {
	eng, mock := setupEngine(t, func(c *Config) {
		c.Retention = time.Hour
	})
	mock.SetDataset(source.KindVendor, testutil.GenerateRecords(30, 35.5, 51.0, 35.9, 51.6))

	if err := eng.refresh(context.Background(), source.KindVendor); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}
	if got := eng.store.Len(spatial.KindCoverage); got != 2 {
		t.Fatalf("coverage entries = %d, want 2", got)
	}

	// Entries derived just now are inside the retention window.
	if err := eng.cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup() error = %v", err)
	}
	if got := eng.store.Len(spatial.KindCoverage); got != 2 {
		t.Errorf("coverage entries = %d after cleanup, want 2", got)
	}

	// Age the dataset past retention and re-derive.
	stale := eng.datasets[source.KindVendor]
	stale.FetchedAt = time.Now().UTC().Add(-2 * time.Hour)
	if err := eng.refreshFromDataset(context.Background(), source.KindVendor, stale); err != nil {
		t.Fatalf("refreshFromDataset() error = %v", err)
	}
	if err := eng.cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup() error = %v", err)
	}
	if got := eng.store.Len(spatial.KindCoverage); got != 0 {
		t.Errorf("coverage entries = %d after cleanup of stale data, want 0", got)
	}
}

func TestStatusReportsSyncsAndJobs(t *testing.T) {
	eng, mock := setupEngine(t, nil)
	mock.SetDataset(source.KindVendor, testutil.GenerateRecords(25, 35.5, 51.0, 35.9, 51.6))

	if err := eng.refresh(context.Background(), source.KindVendor); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}

	status := eng.Status()

	if len(status.Jobs) != 3 {
		t.Errorf("len(status.Jobs) = %d, want 3", len(status.Jobs))
	}
	sync, ok := status.Syncs[string(source.KindVendor)]
	if !ok {
		t.Fatal("vendor sync state missing from status")
	}
	if sync.RecordCount != 25 {
		t.Errorf("sync.RecordCount = %d, want 25", sync.RecordCount)
	}
	if sync.RunID == "" {
		t.Error("sync.RunID is empty")
	}
	if sync.Partial {
		t.Error("sync.Partial = true, want false")
	}
	if status.Cache[spatial.KindCoverage].Count != 2 {
		t.Errorf("cache coverage count = %d, want 2", status.Cache[spatial.KindCoverage].Count)
	}
}

func TestStartAndClose(t *testing.T) {
	eng, mock := setupEngine(t, func(c *Config) {
		c.SchedulerTick = 5 * time.Millisecond
		c.VendorRefreshInterval = time.Hour
	})
	mock.SetDataset(source.KindVendor, testutil.GenerateRecords(10, 35.5, 51.0, 35.9, 51.6))

	if err := eng.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := eng.Start(); err == nil {
		t.Error("second Start() error = nil, want already-started error")
	}

	// The interval job fires once at startup.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if eng.store.Len(spatial.KindCoverage) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := eng.store.Len(spatial.KindCoverage); got != 2 {
		t.Fatalf("coverage entries = %d, want 2 after startup run", got)
	}

	if err := eng.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
}

func TestRefreshesOfOneKindNeverOverlap(t *testing.T) {
	fetcher := &overlapFetcher{}
	cfg := DefaultConfig(fetcher, testBounds)
	cfg.Resolutions = []int{8}

	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := eng.RefreshNow(context.Background(), source.KindVendor); err != nil {
				t.Errorf("RefreshNow() error = %v", err)
			}
		}()
	}
	wg.Wait()

	// Each run is a single page, so any fetch concurrency above one
	// means two collection runs of the same kind overlapped.
	if got := fetcher.peakConcurrency(); got != 1 {
		t.Errorf("peak concurrent fetches = %d, want 1", got)
	}
}

// overlapFetcher serves one single-record page per run and records the
// peak number of concurrent FetchPage calls.
type overlapFetcher struct {
	mu     sync.Mutex
	active int
	peak   int
}

func (f *overlapFetcher) FetchPage(ctx context.Context, kind source.Kind, cursor source.Cursor) (*source.Page, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	return &source.Page{
		Records:    []source.Record{{ID: "rec-0", Lat: 35.6, Lon: 51.2}},
		TotalCount: 1,
	}, nil
}

func (f *overlapFetcher) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

// stubFetcher satisfies source.PageFetcher for config validation tests.
type stubFetcher struct{}

func (stubFetcher) FetchPage(ctx context.Context, kind source.Kind, cursor source.Cursor) (*source.Page, error) {
	return &source.Page{}, nil
}
