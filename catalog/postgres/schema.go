package postgres

import (
	"context"
	"fmt"
)

// Schema bootstrap. The catalogue is schemaless at the document level; the
// extracted columns exist only to make max-number, device, and time-range
// queries indexable.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS measurements (
		id       UUID PRIMARY KEY,
		number   TEXT NOT NULL,
		device   TEXT NOT NULL,
		type     TEXT NOT NULL,
		utc_time TIMESTAMPTZ NOT NULL,
		doc      JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS measurements_number_idx ON measurements (number)`,
	`CREATE INDEX IF NOT EXISTS measurements_device_idx ON measurements (device)`,
	`CREATE INDEX IF NOT EXISTS measurements_utc_time_idx ON measurements (utc_time)`,
}

// EnsureSchema creates the measurements table and its indexes when absent.
// Idempotent; meant to run once at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("catalog store not initialized")
	}
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
