// Package spatial derives coverage grids and heatmap density layers from
// collected record datasets.
package spatial

import (
	"fmt"
	"time"

	"github.com/geoatlas/spatial-sync/pkg/source"
)

// ArtifactKind identifies a derived artifact family.
type ArtifactKind string

const (
	// KindCoverage is a grid of per-cell record occupancy counts.
	KindCoverage ArtifactKind = "coverage"

	// KindHeatmap is a grid of per-cell density values.
	KindHeatmap ArtifactKind = "heatmap"
)

// Bounds is a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Valid reports whether the bounds describe a non-degenerate box within
// the valid coordinate range.
func (b Bounds) Valid() bool {
	return b.MinLat >= -90 && b.MaxLat <= 90 &&
		b.MinLon >= -180 && b.MaxLon <= 180 &&
		b.MinLat < b.MaxLat && b.MinLon < b.MaxLon
}

// Contains reports whether the coordinate falls inside the bounds.
// The maximum edges are exclusive so adjacent grids do not double-count.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat < b.MaxLat &&
		lon >= b.MinLon && lon < b.MaxLon
}

// Artifact is a derived spatial aggregate. Artifacts are immutable and a
// pure function of (dataset, kind, bounds, resolution): no wall-clock or
// random input enters the derivation.
type Artifact struct {
	Kind   ArtifactKind `json:"kind"`
	Bounds Bounds       `json:"bounds"`

	// Resolution is the number of cells per axis; the grid has
	// Resolution x Resolution cells in row-major order, row 0 at MinLat.
	Resolution int `json:"resolution"`

	// Counts holds per-cell record occupancy.
	Counts []int `json:"counts"`

	// Density holds per-cell density in records per square kilometer.
	// Only populated for heatmap artifacts.
	Density []float64 `json:"density,omitempty"`

	// SourceKind and SourceTimestamp identify the dataset this artifact
	// was derived from.
	SourceKind      source.Kind `json:"source_kind"`
	SourceTimestamp time.Time   `json:"source_timestamp"`

	// RecordCount is the number of records that fell inside the bounds.
	RecordCount int `json:"record_count"`
}

// Cost returns the approximate in-memory size of the artifact, used as the
// cache size cost.
func (a *Artifact) Cost() int {
	return 8*len(a.Counts) + 8*len(a.Density)
}

// CellIndex returns the row-major index for a cell.
func (a *Artifact) CellIndex(row, col int) int {
	return row*a.Resolution + col
}

// CountAt returns the occupancy count of a cell.
func (a *Artifact) CountAt(row, col int) int {
	return a.Counts[a.CellIndex(row, col)]
}

// AggregationError indicates a malformed dataset.
type AggregationError struct {
	Reason   string
	RecordID string
}

// Error implements the error interface.
func (e *AggregationError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("aggregation error (record %s): %s", e.RecordID, e.Reason)
	}
	return fmt.Sprintf("aggregation error: %s", e.Reason)
}
