package collector

import (
	"errors"
	"fmt"

	"github.com/geoatlas/spatial-sync/pkg/source"
)

// ErrTooManyFailedPages is returned when the fraction of failed pages in a
// collection run exceeds the configured threshold.
var ErrTooManyFailedPages = errors.New("too many failed pages")

// CollectionError describes a failed collection run.
type CollectionError struct {
	Kind        source.Kind
	FailedPages int
	TotalPages  int
	Err         error
}

// Error implements the error interface.
func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s: %d/%d pages failed: %v",
		e.Kind, e.FailedPages, e.TotalPages, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CollectionError) Unwrap() error {
	return e.Err
}
