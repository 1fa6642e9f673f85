package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SignalLogStore remembers advisory signals already delivered so each is sent
// once per (chore, user, cycle).
type SignalLogStore struct {
	db *sql.DB
}

func NewSignalLogStore(db *sql.DB) *SignalLogStore {
	return &SignalLogStore{db: db}
}

func (s *SignalLogStore) RecordSent(ctx context.Context, kind, choreID, userID, cycle string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO signal_log (kind, chore_id, user_id, cycle) VALUES (?, ?, ?, ?)`,
		kind, choreID, userID, cycle,
	)
	if err != nil {
		return fmt.Errorf("record sent signal: %w", err)
	}
	return nil
}

func (s *SignalLogStore) WasSent(ctx context.Context, kind, choreID, userID, cycle string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signal_log WHERE kind = ? AND chore_id = ? AND user_id = ? AND cycle = ?`,
		kind, choreID, userID, cycle,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check sent signal: %w", err)
	}
	return count > 0, nil
}

// CleanupSent deletes log rows older than before.
func (s *SignalLogStore) CleanupSent(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM signal_log WHERE sent_at < ?`, before.UTC())
	if err != nil {
		return fmt.Errorf("cleanup sent signals: %w", err)
	}
	return nil
}
