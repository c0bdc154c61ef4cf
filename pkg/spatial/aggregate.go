package spatial

import (
	"math"

	"github.com/geoatlas/spatial-sync/pkg/source"
)

// kmPerDegree is the approximate surface distance of one degree of
// latitude. Longitude degrees are scaled by cos(latitude) per row.
const kmPerDegree = 111.32

// MaxResolution bounds the grid size; resolution^2 cells are allocated.
const MaxResolution = 1024

// Aggregate derives an artifact from a dataset.
//
// Coverage: each record inside bounds increments the count of the cell its
// coordinate falls into.
//
// Heatmap: per-cell density = count / cell area in km². Cell area is
// latCellDeg*kmPerDegree * lonCellDeg*kmPerDegree*cos(rowCenterLat). The
// kernel is fixed and deterministic; there is no sampling or smoothing.
//
// An empty dataset produces an artifact with zero-valued cells. A record
// with a missing ID or a coordinate outside the valid lat/lon range makes
// the dataset malformed and returns an AggregationError. Records that are
// valid but fall outside bounds are skipped.
func Aggregate(ds *source.Dataset, kind ArtifactKind, bounds Bounds, resolution int) (*Artifact, error) {
	if ds == nil {
		return nil, &AggregationError{Reason: "nil dataset"}
	}
	if kind != KindCoverage && kind != KindHeatmap {
		return nil, &AggregationError{Reason: "unknown artifact kind " + string(kind)}
	}
	if !bounds.Valid() {
		return nil, &AggregationError{Reason: "invalid bounds"}
	}
	if resolution < 1 || resolution > MaxResolution {
		return nil, &AggregationError{Reason: "resolution out of range"}
	}

	artifact := &Artifact{
		Kind:            kind,
		Bounds:          bounds,
		Resolution:      resolution,
		Counts:          make([]int, resolution*resolution),
		SourceKind:      ds.Kind,
		SourceTimestamp: ds.FetchedAt,
	}

	latCell := (bounds.MaxLat - bounds.MinLat) / float64(resolution)
	lonCell := (bounds.MaxLon - bounds.MinLon) / float64(resolution)

	for i := range ds.Records {
		rec := &ds.Records[i]
		if rec.ID == "" {
			return nil, &AggregationError{Reason: "missing record ID"}
		}
		if rec.Lat < -90 || rec.Lat > 90 || rec.Lon < -180 || rec.Lon > 180 {
			return nil, &AggregationError{Reason: "coordinate out of range", RecordID: rec.ID}
		}
		if !bounds.Contains(rec.Lat, rec.Lon) {
			continue
		}

		row := int((rec.Lat - bounds.MinLat) / latCell)
		col := int((rec.Lon - bounds.MinLon) / lonCell)
		// Guard against float rounding at the upper edges.
		if row >= resolution {
			row = resolution - 1
		}
		if col >= resolution {
			col = resolution - 1
		}

		artifact.Counts[row*resolution+col]++
		artifact.RecordCount++
	}

	if kind == KindHeatmap {
		artifact.Density = make([]float64, resolution*resolution)
		for row := 0; row < resolution; row++ {
			rowCenterLat := bounds.MinLat + (float64(row)+0.5)*latCell
			area := latCell * kmPerDegree * lonCell * kmPerDegree * math.Cos(rowCenterLat*math.Pi/180)
			if area <= 0 {
				continue
			}
			for col := 0; col < resolution; col++ {
				idx := row*resolution + col
				artifact.Density[idx] = float64(artifact.Counts[idx]) / area
			}
		}
	}

	return artifact, nil
}
