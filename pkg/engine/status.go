package engine

import (
	"time"

	"github.com/geoatlas/spatial-sync/pkg/cache"
	"github.com/geoatlas/spatial-sync/pkg/scheduler"
	"github.com/geoatlas/spatial-sync/pkg/spatial"
)

// SyncState describes the most recent dataset held for one source kind.
type SyncState struct {
	RunID       string    `json:"run_id"`
	FetchedAt   time.Time `json:"fetched_at"`
	RecordCount int       `json:"record_count"`
	Partial     bool      `json:"partial"`
	FailedPages []int     `json:"failed_pages,omitempty"`
}

// Status is a point-in-time view of the engine: job schedule state,
// per-kind cache statistics and the latest sync per source kind.
type Status struct {
	Jobs  []scheduler.JobState                     `json:"jobs"`
	Cache map[spatial.ArtifactKind]cache.KindStats `json:"cache"`
	Syncs map[string]SyncState                     `json:"syncs"`
}

// Status returns a consistent snapshot of the engine's state. It is safe
// to call concurrently with running jobs.
func (e *Engine) Status() Status {
	e.mu.RLock()
	syncs := make(map[string]SyncState, len(e.datasets))
	for kind, ds := range e.datasets {
		syncs[string(kind)] = SyncState{
			RunID:       ds.RunID,
			FetchedAt:   ds.FetchedAt,
			RecordCount: len(ds.Records),
			Partial:     ds.Partial,
			FailedPages: ds.FailedPages,
		}
	}
	e.mu.RUnlock()

	return Status{
		Jobs:  e.sched.Snapshot(),
		Cache: e.store.Stats(),
		Syncs: syncs,
	}
}

// SchedulerStatus returns the scheduling state of every registered job.
func (e *Engine) SchedulerStatus() []scheduler.JobState {
	return e.sched.Snapshot()
}

// CacheStats returns the per-kind statistics of the in-memory cache tier.
func (e *Engine) CacheStats() map[spatial.ArtifactKind]cache.KindStats {
	return e.store.Stats()
}
