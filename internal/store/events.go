// Package store keeps an append-only SQLite record of handled events for
// observability. Nothing in here feeds back into generation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gembot/internal/domain"

	_ "modernc.org/sqlite"
)

// EventLog implements domain.EventStore using SQLite.
type EventLog struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(dbPath string, logger *slog.Logger) (*EventLog, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log := &EventLog{db: db, logger: logger}
	if err := log.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return log, nil
}

func (s *EventLog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		channel     TEXT NOT NULL,
		chat_id     TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		reason      TEXT,
		chunks      INTEGER DEFAULT 0,
		latency_ms  INTEGER DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_time ON events(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *EventLog) Record(ctx context.Context, rec domain.EventRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (channel, chat_id, outcome, reason, chunks, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Channel, rec.ChatID, rec.Outcome, rec.Reason, rec.Chunks, rec.LatencyMs, rec.CreatedAt,
	)
	return err
}

// Recent returns the newest records, newest first.
func (s *EventLog) Recent(ctx context.Context, limit int) ([]domain.EventRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, chat_id, outcome, reason, chunks, latency_ms, created_at
		 FROM events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.EventRecord
	for rows.Next() {
		var r domain.EventRecord
		var reason sql.NullString
		if err := rows.Scan(&r.Channel, &r.ChatID, &r.Outcome, &reason, &r.Chunks, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Reason = reason.String
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *EventLog) Close() error {
	return s.db.Close()
}
