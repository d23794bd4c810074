// Package postgres implements the measurement catalogue over a Postgres
// database, storing each run document in a jsonb column alongside a few
// extracted, indexed fields.
package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/WashU-Astroparticle-Lab/daq/catalog"
	"github.com/google/uuid"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

const insertRunQuery = `INSERT INTO measurements (id, number, device, type, utc_time, doc)
	VALUES ($1, $2, $3, $4, $5, $6)`

const maxNumberQuery = `SELECT number FROM measurements ORDER BY number DESC LIMIT 1`

const countByDeviceQuery = `SELECT device, COUNT(*) AS runs
	FROM measurements GROUP BY device ORDER BY runs DESC, device ASC`

func (s *Store) InsertRun(ctx context.Context, doc catalog.Document) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("catalog store not initialized")
	}
	number, err := requireString(doc, "number")
	if err != nil {
		return "", err
	}
	device, err := requireString(doc, "device")
	if err != nil {
		return "", err
	}
	runType, err := requireString(doc, "type")
	if err != nil {
		return "", err
	}
	utcRaw, err := requireString(doc, "utc_time")
	if err != nil {
		return "", err
	}
	utcTime, err := time.Parse(time.RFC3339Nano, utcRaw)
	if err != nil {
		return "", fmt.Errorf("document utc_time: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, insertRunQuery, id, number, device, runType, utcTime, raw); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

func (s *Store) MaxNumber(ctx context.Context) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("catalog store not initialized")
	}
	var number string
	if err := s.db.QueryRowContext(ctx, maxNumberQuery).Scan(&number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", catalog.ErrNotFound
		}
		return "", fmt.Errorf("max number: %w", err)
	}
	return number, nil
}

func (s *Store) FindRuns(ctx context.Context, f catalog.Filter) ([]catalog.Document, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("catalog store not initialized")
	}
	where, args, err := buildWhere(f)
	if err != nil {
		return nil, err
	}

	query := `SELECT doc FROM measurements`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY number ASC, utc_time ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find runs: %w", err)
	}
	defer rows.Close()

	docs := make([]catalog.Document, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find runs: %w", err)
	}
	return docs, nil
}

func (s *Store) CountByDevice(ctx context.Context) ([]catalog.DeviceCount, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("catalog store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, countByDeviceQuery)
	if err != nil {
		return nil, fmt.Errorf("count by device: %w", err)
	}
	defer rows.Close()

	counts := make([]catalog.DeviceCount, 0)
	for rows.Next() {
		var dc catalog.DeviceCount
		if err := rows.Scan(&dc.Device, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan device count: %w", err)
		}
		counts = append(counts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count by device: %w", err)
	}
	return counts, nil
}

func requireString(doc catalog.Document, field string) (string, error) {
	v, ok := doc[field].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("document %s is required", field)
	}
	return v, nil
}

// decodeDocument unmarshals a stored document, keeping the integer/floating
// distinction jsonb preserves instead of collapsing everything to float64.
func decodeDocument(raw []byte) (catalog.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return catalog.Document(restoreNumbers(out).(map[string]any)), nil
}

func restoreNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = restoreNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = restoreNumbers(e)
		}
		return t
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := t.Int64(); err == nil {
				return n
			}
		}
		f, err := t.Float64()
		if err != nil {
			return s
		}
		return f
	default:
		return v
	}
}
