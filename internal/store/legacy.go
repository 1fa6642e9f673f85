package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/chorekeeper/internal/model"
)

// MetaUsersUnifiedAt is set once user unification has committed.
const MetaUsersUnifiedAt = "users_unified_at"

// LegacyStore holds pre-unification kid/parent records until they are
// migrated, and the remap log the migration leaves behind.
type LegacyStore struct {
	db *sql.DB
}

func NewLegacyStore(db *sql.DB) *LegacyStore {
	return &LegacyStore{db: db}
}

// Stage writes one legacy record verbatim, replacing an earlier copy.
func (s *LegacyStore) Stage(ctx context.Context, bucket, id string, body json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO legacy_records (bucket, id, body) VALUES (?, ?, ?)
		 ON CONFLICT(bucket, id) DO UPDATE SET body = excluded.body`,
		bucket, id, string(body),
	)
	if err != nil {
		return fmt.Errorf("stage legacy record: %w", err)
	}
	return nil
}

func (s *LegacyStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM legacy_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count legacy records: %w", err)
	}
	return n, nil
}

// Load returns every staged record ordered by bucket and id.
func (s *LegacyStore) Load(ctx context.Context) ([]model.LegacyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, id, body FROM legacy_records ORDER BY bucket, id`)
	if err != nil {
		return nil, fmt.Errorf("load legacy records: %w", err)
	}
	defer rows.Close()

	var out []model.LegacyRecord
	for rows.Next() {
		var r model.LegacyRecord
		var body string
		if err := rows.Scan(&r.Bucket, &r.ID, &body); err != nil {
			return nil, fmt.Errorf("scan legacy record: %w", err)
		}
		r.Body = json.RawMessage(body)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Apply commits a unification plan atomically: it inserts the new users and
// remap entries, clears the staged legacy records and stamps the meta table.
func (s *LegacyStore) Apply(ctx context.Context, users []model.User, remaps []model.RemapEntry, at time.Time) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		for i := range users {
			if err := insertUser(ctx, tx, &users[i]); err != nil {
				return err
			}
		}
		for _, r := range remaps {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO migration_remaps (bucket, legacy_id, new_user_id, created_at) VALUES (?, ?, ?, ?)`,
				r.Bucket, r.LegacyID, r.NewUserID, at.UTC()); err != nil {
				return fmt.Errorf("insert remap: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM legacy_records`); err != nil {
			return fmt.Errorf("clear legacy records: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			MetaUsersUnifiedAt, at.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("stamp meta: %w", err)
		}
		return nil
	})
}

func (s *LegacyStore) ListRemaps(ctx context.Context) ([]model.RemapEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bucket, legacy_id, new_user_id, created_at FROM migration_remaps ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list remaps: %w", err)
	}
	defer rows.Close()

	var out []model.RemapEntry
	for rows.Next() {
		var r model.RemapEntry
		if err := rows.Scan(&r.ID, &r.Bucket, &r.LegacyID, &r.NewUserID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan remap: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Meta returns the value stored under key, or "" when unset.
func (s *LegacyStore) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return v, nil
}
