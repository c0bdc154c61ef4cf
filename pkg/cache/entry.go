package cache

import (
	"time"

	"github.com/geoatlas/spatial-sync/pkg/spatial"
)

// Entry is one cached artifact with its metadata. Entries are never
// mutated after insertion.
type Entry struct {
	// Artifact is the derived grid or heatmap.
	Artifact *spatial.Artifact `json:"artifact"`

	// CreatedAt is when the entry was inserted.
	CreatedAt time.Time `json:"created_at"`

	// SourceTimestamp is the fetch time of the dataset the artifact was
	// derived from; cleanup eviction cuts on this value.
	SourceTimestamp time.Time `json:"source_timestamp"`

	// Cost is the approximate size of the artifact in bytes.
	Cost int `json:"cost"`
}

// NewEntry builds an entry for an artifact.
func NewEntry(artifact *spatial.Artifact, now time.Time) *Entry {
	return &Entry{
		Artifact:        artifact,
		CreatedAt:       now,
		SourceTimestamp: artifact.SourceTimestamp,
		Cost:            artifact.Cost(),
	}
}
