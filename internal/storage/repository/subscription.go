package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

const subscriptionColumns = `user_id, purchased_at, period_days, expires_at, tariff,
	warn_sent, expired_sent, keys_revoked`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var sub models.Subscription
	if err := row.Scan(&sub.UserID, &sub.PurchasedAt, &sub.PeriodDays, &sub.ExpiresAt, &sub.Tariff,
		&sub.WarnSent, &sub.ExpiredSent, &sub.KeysRevoked); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Subscription возвращает подписку пользователя без блокировки.
func (s *Storage) Subscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "storage.Subscription"
	sub, err := scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return sub, nil
}

func (s *Storage) TrackedSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	const op = "storage.TrackedSubscriptions"

	rows, err := s.pool.Query(ctx, `SELECT `+subscriptionColumns+`
			  FROM subscriptions
			  WHERE expires_at IS NOT NULL
			  ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// Subscription блокирует строку подписки до конца транзакции.
func (t *Tx) Subscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "storage.Tx.Subscription"
	sub, err := scanSubscription(t.q.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return sub, nil
}

// SaveSubscription вставляет или перезаписывает строку подписки.
func (t *Tx) SaveSubscription(ctx context.Context, sub models.Subscription) error {
	const op = "storage.Tx.SaveSubscription"

	query := `INSERT INTO subscriptions (` + subscriptionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  ON CONFLICT (user_id) DO UPDATE
			  SET purchased_at = EXCLUDED.purchased_at,
			      period_days = EXCLUDED.period_days,
			      expires_at = EXCLUDED.expires_at,
			      tariff = EXCLUDED.tariff,
			      warn_sent = EXCLUDED.warn_sent,
			      expired_sent = EXCLUDED.expired_sent,
			      keys_revoked = EXCLUDED.keys_revoked`
	if _, err := t.q.Exec(ctx, query, sub.UserID, sub.PurchasedAt, sub.PeriodDays, sub.ExpiresAt,
		sub.Tariff, sub.WarnSent, sub.ExpiredSent, sub.KeysRevoked); err != nil {
		return mapErr(op, err)
	}
	return nil
}
