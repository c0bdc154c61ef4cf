// Package source defines the record model and the paginated fetch contract
// against the external analytics API.
package source

import (
	"context"
	"time"
)

// Kind identifies which entity family a fetch or dataset refers to.
type Kind string

const (
	// KindVendor selects vendor records.
	KindVendor Kind = "vendor"

	// KindOrder selects order records.
	KindOrder Kind = "order"
)

// Record is one vendor or order entity as returned by the analytics API.
// Records are immutable once fetched.
type Record struct {
	// ID is the source-assigned unique identifier.
	ID string `json:"id"`

	// Lat/Lon is the geographic coordinate of the record.
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`

	// CreatedAt is the source timestamp of the record.
	CreatedAt time.Time `json:"created_at"`

	// Attributes holds category-specific fields (business line, grade, ...).
	// Opaque to the engine beyond identity, coordinate and time.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Cursor addresses one page of a paginated fetch.
type Cursor struct {
	Offset   int
	PageSize int
}

// Page is one bounded slice of a paginated dataset.
type Page struct {
	Records []Record

	// TotalCount is the source-reported total number of records across
	// all pages. Used to size the collection run.
	TotalCount int
}

// Dataset is the ordered result of one collection run.
type Dataset struct {
	// RunID identifies the collection run that produced this dataset.
	RunID string

	Kind      Kind
	FetchedAt time.Time

	// Expected is the source-reported total, Records holds what was
	// actually fetched. len(Records) <= Expected always; a shortfall
	// marks the dataset partial, not failed.
	Expected int
	Records  []Record

	// Partial is true when at least one page exhausted its retries.
	Partial bool

	// FailedPages lists the page indexes that could not be fetched.
	FailedPages []int
}

// PageFetcher fetches a single page of records. Implementations must be
// safe for concurrent use and must not retry internally; retry policy
// belongs to the collector.
type PageFetcher interface {
	FetchPage(ctx context.Context, kind Kind, cursor Cursor) (*Page, error)
}
