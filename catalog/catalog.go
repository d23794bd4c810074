// Package catalog defines the contract with the remote measurement
// catalogue: the document shape, the filter language, and the store
// interface the Postgres implementation satisfies.
package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store reads that match nothing where a single
// result was required.
var ErrNotFound = errors.New("catalog: not found")

// Document is one catalogue entry: the flat projection of a run's
// parameters plus the derived fields (number, type, file, utc_time) added at
// save time. Values are the store-native scalar set, nulls included, and
// plain numeric sequences.
type Document map[string]any

type MatchMode string

const (
	MatchExact MatchMode = "exact"
	MatchRegex MatchMode = "regex"
)

// Filter describes a catalogue query. All populated conditions combine
// with AND.
type Filter struct {
	// Type restricts to one run type tag ("sweep", "timestream", ...).
	Type string
	// Equals matches named document fields. Under MatchExact values match
	// exactly; under MatchRegex string values become case-insensitive
	// regular expressions while non-string values still match exactly.
	Equals map[string]any
	// StringMatch selects the matching mode; empty means MatchExact.
	StringMatch MatchMode
	// Start and End bound utc_time inclusively; either may be nil.
	Start *time.Time
	End   *time.Time
	// Limit caps the result size when positive.
	Limit int
}

// DeviceCount is one row of the device aggregation.
type DeviceCount struct {
	Device string
	Count  int64
}

// Store is the catalogue client. Implementations must be safe for
// concurrent use; the process shares one store over one connection pool.
type Store interface {
	// InsertRun appends a document and returns the catalogue-assigned id.
	InsertRun(ctx context.Context, doc Document) (string, error)
	// MaxNumber returns the largest recorded run number, or ErrNotFound
	// when the catalogue is empty.
	MaxNumber(ctx context.Context) (string, error)
	// FindRuns returns the documents matching the filter in run-number
	// order. An empty result is not an error.
	FindRuns(ctx context.Context, f Filter) ([]Document, error)
	// CountByDevice aggregates documents per device, count descending.
	CountByDevice(ctx context.Context) ([]DeviceCount, error)
}
