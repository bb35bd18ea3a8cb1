// AngelaMos | 2026
// repository.go

package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/templates/access-control/internal/access"
	"github.com/carterperez-dev/templates/access-control/internal/core"
)

type Repository interface {
	GetByUserID(ctx context.Context, userID string) (*Subscription, error)
	Upsert(ctx context.Context, sub *Subscription, changedBy string) error
	List(ctx context.Context, params ListParams) ([]Subscription, int, error)
	History(ctx context.Context, userID string, limit int) ([]Event, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByUserID(
	ctx context.Context,
	userID string,
) (*Subscription, error) {
	query := `
		SELECT user_id, tier, status, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1`

	var sub Subscription
	err := r.db.GetContext(ctx, &sub, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get subscription: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	return &sub, nil
}

// Upsert writes the subscription and appends a history event in one
// transaction. The existing row is locked so concurrent changes record
// a consistent from_tier.
func (r *repository) Upsert(
	ctx context.Context,
	sub *Subscription,
	changedBy string,
) error {
	return core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var previous *access.Tier
		err := tx.GetContext(ctx, &previous,
			`SELECT tier FROM subscriptions WHERE user_id = $1 FOR UPDATE`,
			sub.UserID,
		)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock subscription: %w", err)
		}

		upsert := `
			INSERT INTO subscriptions (user_id, tier, status, current_period_end)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE
			SET tier = EXCLUDED.tier,
			    status = EXCLUDED.status,
			    current_period_end = EXCLUDED.current_period_end,
			    updated_at = NOW()
			RETURNING created_at, updated_at`

		row := tx.QueryRowxContext(ctx, upsert,
			sub.UserID,
			sub.Tier,
			sub.Status,
			sub.CurrentPeriodEnd,
		)
		if err := row.Scan(&sub.CreatedAt, &sub.UpdatedAt); err != nil {
			if isCheckViolation(err) {
				return fmt.Errorf("upsert subscription: %w", core.ErrInvalidInput)
			}
			return fmt.Errorf("upsert subscription: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO subscription_events (id, user_id, from_tier, to_tier, status, changed_by)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(),
			sub.UserID,
			previous,
			sub.Tier,
			sub.Status,
			changedBy,
		)
		if err != nil {
			return fmt.Errorf("record subscription event: %w", err)
		}

		return nil
	})
}

func (r *repository) List(
	ctx context.Context,
	params ListParams,
) ([]Subscription, int, error) {
	params.Normalize()

	var conditions []string
	var args []any
	argIdx := 1

	if params.Tier != "" {
		conditions = append(conditions, fmt.Sprintf("tier = $%d", argIdx))
		args = append(args, params.Tier)
		argIdx++
	}

	if params.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, params.Status)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM subscriptions %s", whereClause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subscriptions: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT user_id, tier, status, current_period_end, created_at, updated_at
		FROM subscriptions
		%s
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIdx, argIdx+1)

	args = append(args, params.PageSize, params.Offset())

	var subs []Subscription
	if err := r.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subscriptions: %w", err)
	}

	return subs, total, nil
}

func (r *repository) History(
	ctx context.Context,
	userID string,
	limit int,
) ([]Event, error) {
	query := `
		SELECT id, user_id, from_tier, to_tier, status, changed_by, changed_at
		FROM subscription_events
		WHERE user_id = $1
		ORDER BY changed_at DESC
		LIMIT $2`

	events := []Event{}
	if err := r.db.SelectContext(ctx, &events, query, userID, limit); err != nil {
		return nil, fmt.Errorf("subscription history: %w", err)
	}

	return events, nil
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}
