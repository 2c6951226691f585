package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

const userColumns = `id, first_name, last_name, username, created_at,
	referrer_id, first_paid, first_paid_at, referral_bonus_awarded`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.CreatedAt,
		&u.ReferrerID, &u.FirstPaid, &u.FirstPaidAt, &u.ReferralBonusAwarded); err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureUser вставляет пользователя или обновляет его имя. created == true для новой строки.
func (s *Storage) EnsureUser(ctx context.Context, p models.Profile, now time.Time) (bool, error) {
	const op = "storage.EnsureUser"

	query := `INSERT INTO users (id, first_name, last_name, username, created_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (id) DO UPDATE
			  SET first_name = EXCLUDED.first_name,
			      last_name = EXCLUDED.last_name,
			      username = EXCLUDED.username
			  RETURNING (xmax = 0)`
	var created bool
	if err := s.pool.QueryRow(ctx, query, p.ID, p.FirstName, p.LastName, p.Username, now.UTC()).
		Scan(&created); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// User возвращает пользователя без блокировки.
func (s *Storage) User(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.User"
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

func (s *Storage) Referrals(ctx context.Context, referrerID int64) ([]models.Referral, error) {
	const op = "storage.Referrals"

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE referrer_id = $1
			  ORDER BY created_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.Referral
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, models.Referral{
			UserID:               u.ID,
			FullName:             u.FullName(),
			CreatedAt:            u.CreatedAt,
			FirstPaidAt:          u.FirstPaidAt,
			ReferralBonusAwarded: u.ReferralBonusAwarded,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// Stats считает всех пользователей и подписки, действующие на момент now.
func (s *Storage) Stats(ctx context.Context, now time.Time) (models.Stats, error) {
	const op = "storage.Stats"

	query := `SELECT (SELECT COUNT(*) FROM users),
			         (SELECT COUNT(*) FROM subscriptions WHERE expires_at > $1)`
	var st models.Stats
	if err := s.pool.QueryRow(ctx, query, now.UTC()).Scan(&st.TotalUsers, &st.ActiveSubscriptions); err != nil {
		return models.Stats{}, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}

// User блокирует строку пользователя до конца транзакции.
func (t *Tx) User(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.Tx.User"
	u, err := scanUser(t.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

func (t *Tx) SaveUser(ctx context.Context, u models.User) error {
	const op = "storage.Tx.SaveUser"

	query := `UPDATE users
			  SET first_name = $2, last_name = $3, username = $4,
			      referrer_id = $5, first_paid = $6, first_paid_at = $7,
			      referral_bonus_awarded = $8
			  WHERE id = $1`
	tag, err := t.q.Exec(ctx, query, u.ID, u.FirstName, u.LastName, u.Username,
		u.ReferrerID, u.FirstPaid, u.FirstPaidAt, u.ReferralBonusAwarded)
	if err != nil {
		return mapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %d: %w", op, u.ID, storage.ErrNotFound)
	}
	return nil
}
