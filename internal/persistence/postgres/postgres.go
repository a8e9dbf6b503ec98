// Package postgres stores resolved records in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/records"
)

// Config holds connection settings.
type Config struct {
	DSN string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`

	MaxConns int32 `mapstructure:"max_conns" yaml:"max_conns" json:"max_conns"`
	MinConns int32 `mapstructure:"min_conns" yaml:"min_conns" json:"min_conns"`
}

// Enabled reports whether a DSN is configured.
func (c Config) Enabled() bool { return c.DSN != "" }

const schemaSQL = `
CREATE TABLE IF NOT EXISTS resolved_records (
	id                 TEXT PRIMARY KEY,
	subject_key        TEXT NOT NULL,
	subject_name       TEXT NOT NULL,
	record             JSONB NOT NULL,
	overall_confidence DOUBLE PRECISION NOT NULL,
	generated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS resolved_records_subject_idx
	ON resolved_records (subject_key, generated_at DESC);
CREATE TABLE IF NOT EXISTS field_decisions (
	record_id          TEXT NOT NULL REFERENCES resolved_records(id) ON DELETE CASCADE,
	field              TEXT NOT NULL,
	classification     TEXT NOT NULL,
	winner_value       JSONB,
	winner_confidence  DOUBLE PRECISION NOT NULL,
	rules_applied      TEXT[] NOT NULL,
	signals_considered INTEGER NOT NULL,
	PRIMARY KEY (record_id, field)
);`

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store wraps a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects and pings the database.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.NewConfigError("postgres", "dsn is required", nil)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.NewConfigError("postgres", "parsing database config", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	} else {
		poolCfg.MinConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction, rolling back if it fails.
func (s *Store) WithTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	// no-op once committed
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Save upserts the record and replaces its per-field rows.
func (s *Store) Save(ctx context.Context, record *records.ResolvedRecord) error {
	if record == nil || record.ID == "" {
		return errors.NewValidationError("record.id", "", "record ID is required")
	}
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	rows, err := fieldRows(record)
	if err != nil {
		return err
	}

	err = s.WithTx(ctx, func(q querier) error {
		if _, err := q.Exec(ctx, `
			INSERT INTO resolved_records (id, subject_key, subject_name, record, overall_confidence, generated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				record = EXCLUDED.record,
				overall_confidence = EXCLUDED.overall_confidence,
				generated_at = EXCLUDED.generated_at`,
			record.ID, record.Subject.Key(), record.Subject.Name, body,
			record.OverallConfidence, record.GeneratedAt,
		); err != nil {
			return fmt.Errorf("upserting record: %w", err)
		}
		if _, err := q.Exec(ctx, `DELETE FROM field_decisions WHERE record_id = $1`, record.ID); err != nil {
			return fmt.Errorf("clearing field decisions: %w", err)
		}
		for _, r := range rows {
			if _, err := q.Exec(ctx, `
				INSERT INTO field_decisions
					(record_id, field, classification, winner_value, winner_confidence, rules_applied, signals_considered)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				record.ID, r.field, r.classification, r.winner, r.confidence, r.rules, r.signals,
			); err != nil {
				return fmt.Errorf("inserting field %s: %w", r.field, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logging.FromContext(ctx).Debug().
		Str("record_id", record.ID).
		Int("fields", len(rows)).
		Msg("Stored resolved record")
	return nil
}

// Get loads a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*records.ResolvedRecord, error) {
	return scanRecord(s.pool.QueryRow(ctx, `SELECT record FROM resolved_records WHERE id = $1`, id), id)
}

// Latest loads the newest record for a subject.
func (s *Store) Latest(ctx context.Context, subject records.Subject) (*records.ResolvedRecord, error) {
	return scanRecord(s.pool.QueryRow(ctx, `
		SELECT record FROM resolved_records
		WHERE subject_key = $1
		ORDER BY generated_at DESC, id DESC
		LIMIT 1`, subject.Key()), subject.Key())
}

func scanRecord(row pgx.Row, key string) (*records.ResolvedRecord, error) {
	var body []byte
	if err := row.Scan(&body); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("record", key)
		}
		return nil, fmt.Errorf("loading record: %w", err)
	}
	var rec records.ResolvedRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &rec, nil
}

type fieldRow struct {
	field          string
	classification string
	winner         []byte
	confidence     float64
	rules          []string
	signals        int
}

// fieldRows flattens decisions in field-name order.
func fieldRows(record *records.ResolvedRecord) ([]fieldRow, error) {
	rows := make([]fieldRow, 0, len(record.Fields))
	for _, name := range record.FieldNames() {
		d := record.Fields[name]
		var winner []byte
		if d.WinnerValue != nil {
			b, err := json.Marshal(d.WinnerValue)
			if err != nil {
				return nil, fmt.Errorf("encoding winner for %s: %w", name, err)
			}
			winner = b
		}
		rules := make([]string, len(d.RulesApplied))
		for i, r := range d.RulesApplied {
			rules[i] = string(r)
		}
		rows = append(rows, fieldRow{
			field:          string(name),
			classification: d.Classification.String(),
			winner:         winner,
			confidence:     d.WinnerConfidence,
			rules:          rules,
			signals:        d.SignalsConsidered,
		})
	}
	return rows, nil
}
