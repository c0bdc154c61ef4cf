package cache

import (
	"sort"
	"strconv"
	"strings"

	"github.com/geoatlas/spatial-sync/pkg/spatial"
)

// Key identifies a cached artifact. It is a pure function of the request
// parameters: identical parameters always produce the identical key.
type Key struct {
	// Kind is the artifact kind (coverage or heatmap).
	Kind spatial.ArtifactKind

	// Bounds is the requested bounding box.
	Bounds spatial.Bounds

	// Resolution is the requested grid resolution.
	Resolution int

	// Filters are request filter parameters (business line, grade, ...).
	Filters map[string]string
}

// String generates a deterministic cache key string.
// Format: geosync:kind:minLat,minLon,maxLat,maxLon:r<resolution>:f1=v1:f2=v2
// with filters sorted by name.
func (k Key) String() string {
	parts := []string{
		"geosync",
		string(k.Kind),
		formatCoord(k.Bounds.MinLat) + "," + formatCoord(k.Bounds.MinLon) + "," +
			formatCoord(k.Bounds.MaxLat) + "," + formatCoord(k.Bounds.MaxLon),
		"r" + strconv.Itoa(k.Resolution),
	}

	if len(k.Filters) > 0 {
		names := make([]string, 0, len(k.Filters))
		for name := range k.Filters {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, name+"="+k.Filters[name])
		}
	}

	return strings.Join(parts, ":")
}

// formatCoord renders a coordinate with fixed precision so equal values
// always format identically.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
