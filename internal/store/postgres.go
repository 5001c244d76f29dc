package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/hitherto/hitherto/internal/regime"
	"github.com/hitherto/hitherto/internal/signal"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cycles (
	cycle_id   TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	regime     TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	record     JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS regime_transitions (
	id          BIGSERIAL PRIMARY KEY,
	from_label  TEXT NOT NULL,
	to_label    TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	manual      BOOLEAN NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS overrides (
	id            BIGSERIAL PRIMARY KEY,
	target_module TEXT NOT NULL,
	command       TEXT NOT NULL,
	reason        TEXT NOT NULL,
	issued_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_occurred ON regime_transitions (occurred_at DESC);
`

// Postgres persists cycle traces in a relational store. Cycle rows carry the
// full record as JSONB next to the indexed columns.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// SaveCycle writes the cycle row inside a transaction so a partial write
// never survives a crash.
func (s *Postgres) SaveCycle(ctx context.Context, rec CycleRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cycle record: %w", err)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cycle tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cycles (cycle_id, started_at, regime, confidence, record)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.CycleID, rec.StartedAt, rec.Regime, rec.Confidence, raw); err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return tx.Commit()
}

func (s *Postgres) RecordRegimeTransition(ctx context.Context, t regime.Transition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO regime_transitions (from_label, to_label, confidence, manual, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.From, t.To, t.Confidence, t.Manual, t.At)
	if err != nil {
		return fmt.Errorf("insert regime transition: %w", err)
	}
	return nil
}

func (s *Postgres) RecordOverride(ctx context.Context, o signal.Override) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO overrides (target_module, command, reason, issued_at)
		 VALUES ($1, $2, $3, $4)`,
		o.TargetModule, o.Command, o.Reason, o.IssuedAt)
	if err != nil {
		return fmt.Errorf("insert override: %w", err)
	}
	return nil
}

func (s *Postgres) ActiveRegime(ctx context.Context) (regime.Label, float64, error) {
	var row struct {
		To         string  `db:"to_label"`
		Confidence float64 `db:"confidence"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT to_label, confidence FROM regime_transitions ORDER BY occurred_at DESC, id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, ErrNoRegime
	}
	if err != nil {
		return "", 0, fmt.Errorf("query active regime: %w", err)
	}
	return regime.Label(row.To), row.Confidence, nil
}

func (s *Postgres) Close() error { return s.db.Close() }
