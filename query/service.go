// Package query is the read side of the catalogue: filtered run selection
// and device aggregation, materialized as tabular rows. Unlike a save,
// a query has no partial-success mode; every fault is an explicit error.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/WashU-Astroparticle-Lab/daq/catalog"
)

// Request describes a run selection. All supplied conditions AND together.
type Request struct {
	// Type restricts to one measurement type tag.
	Type string
	// Device is shorthand for Equals["device"].
	Device string
	// Equals matches named document fields, including run-type-specific and
	// fit-result fields.
	Equals map[string]any
	// StringMatch is "exact" (default) or "regex"; regex matching is
	// case-insensitive and applies to string-valued fields only.
	StringMatch string
	// Start and End bound utc_time inclusively. Each accepts an ISO-8601
	// string, a time.Time, or nil for an open bound.
	Start any
	End   any
	// Limit caps the row count when positive.
	Limit int
}

type Service struct {
	store catalog.Store
}

func New(store catalog.Store) *Service {
	if store == nil {
		return nil
	}
	return &Service{store: store}
}

// SelectRuns returns the catalogue documents matching the request. An empty
// result is an empty table, not an error.
func (s *Service) SelectRuns(ctx context.Context, req Request) (Table, error) {
	if s == nil || s.store == nil {
		return Table{}, fmt.Errorf("query service not initialized")
	}
	filter, err := compileRequest(req)
	if err != nil {
		return Table{}, err
	}
	docs, err := s.store.FindRuns(ctx, filter)
	if err != nil {
		return Table{}, fmt.Errorf("select runs: %w", err)
	}
	return tableFromDocuments(docs), nil
}

// ListDevices aggregates runs per device, count descending. The two columns
// are present even when the catalogue is empty.
func (s *Service) ListDevices(ctx context.Context) (Table, error) {
	if s == nil || s.store == nil {
		return Table{}, fmt.Errorf("query service not initialized")
	}
	counts, err := s.store.CountByDevice(ctx)
	if err != nil {
		return Table{}, fmt.Errorf("list devices: %w", err)
	}
	table := Table{Columns: []string{"device", "count"}, Rows: make([][]any, 0, len(counts))}
	for _, dc := range counts {
		table.Rows = append(table.Rows, []any{dc.Device, dc.Count})
	}
	return table, nil
}

func compileRequest(req Request) (catalog.Filter, error) {
	var mode catalog.MatchMode
	switch req.StringMatch {
	case "", "exact":
		mode = catalog.MatchExact
	case "regex":
		mode = catalog.MatchRegex
	default:
		return catalog.Filter{}, fmt.Errorf("string match mode %q not supported", req.StringMatch)
	}

	equals := make(map[string]any, len(req.Equals)+1)
	for name, value := range req.Equals {
		equals[name] = value
	}
	if req.Device != "" {
		equals["device"] = req.Device
	}

	start, err := timeBound("start_time", req.Start)
	if err != nil {
		return catalog.Filter{}, err
	}
	end, err := timeBound("end_time", req.End)
	if err != nil {
		return catalog.Filter{}, err
	}

	return catalog.Filter{
		Type:        req.Type,
		Equals:      equals,
		StringMatch: mode,
		Start:       start,
		End:         end,
		Limit:       req.Limit,
	}, nil
}

// timeBound accepts the bound formats callers actually pass around: parsed
// times, ISO-8601 timestamps with or without zone, and plain dates.
var boundLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func timeBound(name string, v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		u := t.UTC()
		return &u, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		u := t.UTC()
		return &u, nil
	case string:
		if t == "" {
			return nil, nil
		}
		for _, layout := range boundLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				u := parsed.UTC()
				return &u, nil
			}
		}
		return nil, fmt.Errorf("%s %q: not an ISO-8601 timestamp", name, t)
	default:
		return nil, fmt.Errorf("%s: unsupported type %T", name, v)
	}
}
