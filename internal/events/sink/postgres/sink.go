package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"seisreg/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS registry_events (
	id          UUID PRIMARY KEY,
	seq         BIGINT NOT NULL UNIQUE,
	kind        TEXT NOT NULL,
	asset_id    BIGINT,
	license_id  BIGINT,
	purchase_id BIGINT,
	actor       TEXT NOT NULL,
	payload     JSONB NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
)`

// Sink materializes forwarded events into the registry_events table so
// indexers can query history with SQL. Inserts are idempotent on event id.
type Sink struct {
	db *sql.DB
}

func New(db *sql.DB) *Sink {
	return &Sink{db: db}
}

func (s *Sink) Name() string {
	return "postgres"
}

// Migrate creates the events table if it does not exist.
func (s *Sink) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create registry_events: %w", err)
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	query := `
		INSERT INTO registry_events (id, seq, kind, asset_id, license_id, purchase_id, actor, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		int64(event.Seq),
		string(event.Kind),
		nullableID(uint64(event.AssetID)),
		nullableID(uint64(event.LicenseID)),
		nullableID(uint64(event.PurchaseID)),
		event.Actor.String(),
		payload,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert registry event: %w", err)
	}
	return nil
}

// CountByKind is a read helper for operators and integration tests.
func (s *Sink) CountByKind(ctx context.Context, kind events.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registry_events WHERE kind = $1`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registry events: %w", err)
	}
	return n, nil
}

func nullableID(v uint64) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}
