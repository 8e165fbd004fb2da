// Package sqlite provides a SQLite-backed EventStore. The table's UNIQUE
// index on (aggregate stream, version) is the optimistic lock: a concurrent
// writer that lost the race hits the constraint and the whole batch rolls
// back with es.ErrConcurrencyConflict.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/codewandler/evsrc-go/core/es"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    envelope_id    TEXT    NOT NULL,
    aggregate_type TEXT    NOT NULL,
    aggregate_id   TEXT    NOT NULL,
    version        INTEGER NOT NULL,
    event_type     TEXT    NOT NULL,
    occurred_at    INTEGER NOT NULL,
    data           BLOB,
    UNIQUE (aggregate_type, aggregate_id, version)
);
`

type Config struct {
	Path    string       // Path to the database file; ":memory:" for ephemeral stores.
	Log     *slog.Logger // Log for diagnostics (optional)
	Metrics es.Metrics   // Metrics instrumentation (optional)
}

// EventStore persists envelopes in a single SQLite table.
type EventStore struct {
	db      *sql.DB
	log     *slog.Logger
	metrics es.Metrics
}

// Open opens (and if necessary creates) the store at cfg.Path.
func Open(cfg Config) (*EventStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store path is required")
	}

	dsn := cfg.Path
	if dsn != ":memory:" {
		dsn = filepath.Clean(dsn) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// the modernc driver serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent appends
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite db: %w", es.ErrStorageUnavailable, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure events table: %w", err)
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = es.NopMetrics()
	}

	return &EventStore{
		db:      db,
		log:     log.With(slog.String("store", "sqlite"), slog.String("path", cfg.Path)),
		metrics: metrics,
	}, nil
}

func (s *EventStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *EventStore) Load(
	ctx context.Context,
	aggType string,
	aggID string,
	opts ...es.StoreLoadOption,
) ([]es.Envelope, error) {
	if aggType == "" {
		return nil, errors.New("aggregate type is empty")
	}
	if aggID == "" {
		return nil, errors.New("aggregate id is empty")
	}

	defer s.metrics.StoreLoadDuration(aggType).ObserveDuration()

	loadOpts := &loadOptions{}
	for _, opt := range opts {
		opt.ApplyToStoreLoadOptions(loadOpts)
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT seq, envelope_id, version, event_type, occurred_at, data
		   FROM events
		  WHERE aggregate_type = ? AND aggregate_id = ? AND version >= ? AND seq >= ?
		  ORDER BY version ASC`,
		aggType, aggID, uint64(loadOpts.startVersion), loadOpts.startSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load events: %w", es.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []es.Envelope
	for rows.Next() {
		var (
			env        es.Envelope
			version    uint64
			occurredAt int64
		)
		if err := rows.Scan(&env.Seq, &env.ID, &version, &env.Type, &occurredAt, &env.Data); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		env.AggregateType = aggType
		env.AggregateID = aggID
		env.Version = es.Version(version)
		env.OccurredAt = time.UnixMilli(occurredAt).UTC()
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate event rows: %w", es.ErrStorageUnavailable, err)
	}

	if out == nil {
		return nil, es.ErrAggregateNotFound
	}
	return out, nil
}

func (s *EventStore) Append(
	ctx context.Context,
	aggType string,
	aggID string,
	expectedVersion es.Version,
	events []es.Envelope,
) (*es.StoreAppendResult, error) {
	if len(events) == 0 {
		return nil, es.ErrStoreNoEvents
	}
	if aggType == "" {
		return nil, errors.New("aggregate type is empty")
	}
	if aggID == "" {
		return nil, errors.New("aggregate id is empty")
	}

	defer s.metrics.StoreAppendDuration(aggType).ObserveDuration()

	for _, e := range events {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %w", es.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	// the expected-version check closes the window between a stale read and
	// the unique index; the index remains the authoritative guard
	var curVersion uint64
	err = tx.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_type = ? AND aggregate_id = ?`,
		aggType, aggID,
	).Scan(&curVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: read stream version: %w", es.ErrStorageUnavailable, err)
	}
	if es.Version(curVersion) != expectedVersion {
		return nil, fmt.Errorf(
			"%w: expected version %d, got %d (agg_type=%s agg_id=%s)",
			es.ErrConcurrencyConflict, expectedVersion, curVersion, aggType, aggID,
		)
	}

	var lastSeq uint64
	for _, e := range events {
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO events (envelope_id, aggregate_type, aggregate_id, version, event_type, occurred_at, data)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, aggType, aggID, uint64(e.Version), e.Type, e.OccurredAt.UTC().UnixMilli(), []byte(e.Data),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf(
					"%w: version %d already exists (agg_type=%s agg_id=%s)",
					es.ErrConcurrencyConflict, e.Version, aggType, aggID,
				)
			}
			return nil, fmt.Errorf("%w: insert event: %w", es.ErrStorageUnavailable, err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		lastSeq = uint64(seq)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %w", es.ErrConcurrencyConflict, err)
		}
		return nil, fmt.Errorf("%w: commit tx: %w", es.ErrStorageUnavailable, err)
	}

	s.metrics.EventsAppended(aggType, len(events))
	s.log.Debug(
		"append",
		slog.Uint64("last_seq", lastSeq),
		slog.Int("num_events", len(events)),
	)

	return &es.StoreAppendResult{LastSeq: lastSeq}, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

type loadOptions struct {
	startVersion es.Version
	startSeq     uint64
}

func (l *loadOptions) SetStartVersion(v es.Version) { l.startVersion = v }
func (l *loadOptions) SetStartSeq(seq uint64)       { l.startSeq = seq }

var _ es.EventStore = (*EventStore)(nil)
