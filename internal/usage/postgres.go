// AngelaMos | 2026
// postgres.go

package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore persists counters in the usage_counters table. A row whose
// expires_at has passed reads as zero and restarts at one on the next
// increment.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (int64, error) {
	query := `
		SELECT count FROM usage_counters
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`

	var n int64
	err := s.db.GetContext(ctx, &n, query, key, s.now())
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select usage counter: %w", err)
	}

	return n, nil
}

func (s *PostgresStore) Increment(
	ctx context.Context,
	key string,
	ttl time.Duration,
) (int64, error) {
	query := `
		INSERT INTO usage_counters (key, count, expires_at, updated_at)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE
				WHEN usage_counters.expires_at IS NOT NULL AND usage_counters.expires_at <= $3
				THEN 1
				ELSE usage_counters.count + 1
			END,
			expires_at = CASE
				WHEN usage_counters.expires_at IS NOT NULL AND usage_counters.expires_at <= $3
				THEN EXCLUDED.expires_at
				ELSE usage_counters.expires_at
			END,
			updated_at = $3
		RETURNING count`

	now := s.now()

	var expiresAt *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		expiresAt = &t
	}

	var n int64
	if err := s.db.GetContext(ctx, &n, query, key, expiresAt, now); err != nil {
		return 0, fmt.Errorf("increment usage counter: %w", err)
	}

	return n, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM usage_counters WHERE key = $1`

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete usage counter: %w", err)
	}

	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM usage_counters
		WHERE expires_at IS NOT NULL AND expires_at <= $1`

	result, err := s.db.ExecContext(ctx, query, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge usage counters: %w", err)
	}

	return result.RowsAffected()
}
