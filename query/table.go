package query

import (
	"sort"

	"github.com/WashU-Astroparticle-Lab/daq/catalog"
)

// Table is the materialized result of a catalogue query: one row per
// document, columns the union of the fields across all matched documents.
// Fields absent from a given document are nil in its row.
type Table struct {
	Columns []string
	Rows    [][]any
}

// columnPrefix pins the identifying fields to the left edge of every table;
// remaining columns follow in sorted order.
var columnPrefix = []string{"number", "utc_time", "type", "device", "file"}

func tableFromDocuments(docs []catalog.Document) Table {
	if len(docs) == 0 {
		return Table{Rows: [][]any{}}
	}

	seen := make(map[string]bool)
	for _, doc := range docs {
		for name := range doc {
			seen[name] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for _, name := range columnPrefix {
		if seen[name] {
			columns = append(columns, name)
			delete(seen, name)
		}
	}
	rest := make([]string, 0, len(seen))
	for name := range seen {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	columns = append(columns, rest...)

	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		row := make([]any, len(columns))
		for i, name := range columns {
			row[i] = doc[name]
		}
		rows = append(rows, row)
	}
	return Table{Columns: columns, Rows: rows}
}
