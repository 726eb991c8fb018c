// Package storage keeps the audit log of dataset load events in SQLite. Only
// the summary figures of a load are stored, never the uploaded rows.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	applog "gradeboard/internal/log"

	_ "modernc.org/sqlite"
)

// Fixed-width UTC timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Event is one recorded dataset load.
type Event struct {
	SessionID  string
	Source     string
	Rows       int
	Classes    int
	Students   int64
	LoadedAt   time.Time
	ReceivedAt time.Time
}

// Totals aggregates every recorded event.
type Totals struct {
	Events   int64
	Sessions int64
	Students int64
	Last     time.Time
}

// SourceCount is the number of loads from one source.
type SourceCount struct {
	Source string
	Events int64
}

type SQLiteRepository struct {
	db     *sql.DB
	logger *applog.Logger
	now    func() time.Time
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := MigrateAuditLog(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger := applog.WithComponent(applog.ComponentStorage)
	logger.Info("Audit log ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// RecordEvent stores e and reports whether it was new. An event with the
// same session and load time as a stored one is a redelivery and is skipped.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, e Event) (bool, error) {
	received := e.ReceivedAt
	if received.IsZero() {
		received = r.now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO dataset_events
			(session_id, source, row_count, classes, students, loaded_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Source, e.Rows, e.Classes, e.Students,
		e.LoadedAt.UTC().Format(timeLayout), received.UTC().Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("insert dataset event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		r.logger.DebugContext(ctx, "Dataset event already recorded", applog.FieldSessionID, e.SessionID)
		return false, nil
	}
	return true, nil
}

// Totals sums every recorded event.
func (r *SQLiteRepository) Totals(ctx context.Context) (Totals, error) {
	var (
		t    Totals
		last sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT session_id), COALESCE(SUM(students), 0), MAX(loaded_at)
		FROM dataset_events`).Scan(&t.Events, &t.Sessions, &t.Students, &last)
	if err != nil {
		return Totals{}, fmt.Errorf("query totals: %w", err)
	}
	if last.Valid {
		if t.Last, err = time.Parse(timeLayout, last.String); err != nil {
			return Totals{}, fmt.Errorf("parse loaded_at %q: %w", last.String, err)
		}
	}
	return t, nil
}

// SourceCounts lists sources by number of loads, most used first.
func (r *SQLiteRepository) SourceCounts(ctx context.Context) ([]SourceCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source, COUNT(*) AS n FROM dataset_events
		GROUP BY source ORDER BY n DESC, source ASC`)
	if err != nil {
		return nil, fmt.Errorf("query source counts: %w", err)
	}
	defer rows.Close()

	var out []SourceCount
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Events); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// RecentEvents returns up to limit events, newest load first.
func (r *SQLiteRepository) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, source, row_count, classes, students, loaded_at, received_at
		FROM dataset_events ORDER BY loaded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                  Event
			loaded, receivedAt string
		)
		if err := rows.Scan(&e.SessionID, &e.Source, &e.Rows, &e.Classes, &e.Students, &loaded, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.LoadedAt, err = time.Parse(timeLayout, loaded); err != nil {
			return nil, fmt.Errorf("parse loaded_at %q: %w", loaded, err)
		}
		if e.ReceivedAt, err = time.Parse(timeLayout, receivedAt); err != nil {
			return nil, fmt.Errorf("parse received_at %q: %w", receivedAt, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
