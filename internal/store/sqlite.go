package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailreply/internal/ratelimit"
)

// SQLiteStore keeps the request history and the outcome log in a local
// SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// An in-memory database exists per connection, so keep exactly one.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

type historyRow struct {
	Sender      string `db:"sender"`
	RequestedAt int64  `db:"requested_at"`
}

// Load returns the stored request history.
func (s *SQLiteStore) Load(ctx context.Context) (ratelimit.History, error) {
	var rows []historyRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT sender, requested_at FROM request_history ORDER BY sender, requested_at, id")
	if err != nil {
		return nil, fmt.Errorf("querying request history: %w", err)
	}
	return toHistory(rows), nil
}

// Update applies fn to the stored history inside one transaction and
// replaces the stored rows with its result.
func (s *SQLiteStore) Update(ctx context.Context, fn func(ratelimit.History) (ratelimit.History, error)) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var rows []historyRow
	err = tx.SelectContext(ctx, &rows,
		"SELECT sender, requested_at FROM request_history ORDER BY sender, requested_at, id")
	if err != nil {
		return fmt.Errorf("querying request history: %w", err)
	}

	next, err := fn(toHistory(rows))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM request_history"); err != nil {
		return fmt.Errorf("clearing request history: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx,
		"INSERT INTO request_history (sender, requested_at) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for sender, stamps := range next {
		for _, ts := range stamps {
			if _, err := stmt.ExecContext(ctx, sender, ts.Unix()); err != nil {
				return fmt.Errorf("inserting request for %s: %w", sender, err)
			}
		}
	}

	return tx.Commit()
}

func toHistory(rows []historyRow) ratelimit.History {
	h := make(ratelimit.History)
	for _, r := range rows {
		h[r.Sender] = append(h[r.Sender], time.Unix(r.RequestedAt, 0))
	}
	return h
}

// RecordOutcome appends a processed-message outcome to the log.
// If the record has no ID, a new UUID is generated.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, rec OutcomeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}
	rec.ProcessedAt = rec.ProcessedAt.UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO processed_messages (
			id, message_id, sender, subject, outcome, detail, processed_at
		) VALUES (
			:id, :message_id, :sender, :subject, :outcome, :detail, :processed_at
		)`, rec)
	if err != nil {
		return fmt.Errorf("recording outcome for %s: %w", rec.MessageID, err)
	}

	return nil
}

// RecentOutcomes returns up to limit outcome records, newest first.
func (s *SQLiteStore) RecentOutcomes(ctx context.Context, limit int) ([]OutcomeRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var records []OutcomeRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, message_id, sender, subject, outcome, detail, processed_at
		FROM processed_messages
		ORDER BY processed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}

	return records, nil
}
