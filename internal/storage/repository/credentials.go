package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

// Credentials возвращает выданные пользователю ключи. Отозванные ключи не возвращаются.
func (s *Storage) Credentials(ctx context.Context, userID int64) (*models.Credentials, error) {
	const op = "storage.Credentials"

	rows, err := s.pool.Query(ctx, `SELECT kind, secret, updated_at, updated_by
			  FROM provisioned_credentials
			  WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	c := &models.Credentials{UserID: userID, Secrets: map[models.CredentialKind]string{}}
	for rows.Next() {
		var (
			kind      string
			secret    *string
			updatedAt time.Time
			updatedBy int64
		)
		if err := rows.Scan(&kind, &secret, &updatedAt, &updatedBy); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if secret != nil {
			c.Secrets[models.CredentialKind(kind)] = *secret
		}
		if c.UpdatedAt == nil || updatedAt.After(*c.UpdatedAt) {
			c.UpdatedAt, c.UpdatedBy = &updatedAt, &updatedBy
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// SetCredential сохраняет ключ, заменяя прежнее значение того же типа.
func (t *Tx) SetCredential(ctx context.Context, userID int64, kind models.CredentialKind, secret string, at time.Time, by int64) error {
	const op = "storage.Tx.SetCredential"

	query := `INSERT INTO provisioned_credentials (user_id, kind, secret, updated_at, updated_by)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (user_id, kind) DO UPDATE
			  SET secret = EXCLUDED.secret,
			      updated_at = EXCLUDED.updated_at,
			      updated_by = EXCLUDED.updated_by`
	if _, err := t.q.Exec(ctx, query, userID, string(kind), secret, at.UTC(), by); err != nil {
		return mapErr(op, err)
	}
	return nil
}

// ClearCredentials отзывает все ключи пользователя.
func (t *Tx) ClearCredentials(ctx context.Context, userID int64, at time.Time, by int64) error {
	const op = "storage.Tx.ClearCredentials"

	query := `UPDATE provisioned_credentials
			  SET secret = NULL, updated_at = $2, updated_by = $3
			  WHERE user_id = $1`
	if _, err := t.q.Exec(ctx, query, userID, at.UTC(), by); err != nil {
		return mapErr(op, err)
	}
	return nil
}
