// Package pg holds the optional Postgres-backed dead-letter journal.
// Terminal pipeline failures land here so operators can inspect and alert
// on them; the pipeline itself never reads this table.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DeadLetter is one terminally failed task.
type DeadLetter struct {
	ID        uuid.UUID
	MessageID string
	SenderID  string
	Channel   string
	Payload   []byte
	Reason    string
	Attempts  int
	CreatedAt time.Time
}

// DeadLetterStore journals terminal failures to Postgres.
type DeadLetterStore struct {
	db *sql.DB
}

// Open connects to Postgres and verifies reachability.
func Open(dsn string) (*DeadLetterStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DeadLetterStore{db: db}, nil
}

// Record inserts one dead letter. Duplicate message ids are kept: a task can
// fail terminally more than once across dedup windows, and each occurrence
// matters for alerting.
func (s *DeadLetterStore) Record(ctx context.Context, dl DeadLetter) error {
	if dl.ID == uuid.Nil {
		dl.ID = uuid.Must(uuid.NewV7())
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relay_dead_letters (id, message_id, sender_id, channel, payload, reason, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		dl.ID, dl.MessageID, dl.SenderID, dl.Channel, dl.Payload, dl.Reason, dl.Attempts, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record dead letter %s: %w", dl.MessageID, err)
	}
	return nil
}

// List returns the most recent dead letters, newest first.
func (s *DeadLetterStore) List(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, sender_id, channel, payload, reason, attempts, created_at
		 FROM relay_dead_letters ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		if err := rows.Scan(&dl.ID, &dl.MessageID, &dl.SenderID, &dl.Channel, &dl.Payload, &dl.Reason, &dl.Attempts, &dl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

// Ping reports database reachability (doctor command).
func (s *DeadLetterStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *DeadLetterStore) Close() error {
	return s.db.Close()
}
