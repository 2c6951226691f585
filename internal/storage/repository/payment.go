package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

func (s *Storage) CreatePendingPayment(ctx context.Context, p models.PendingPayment) (int64, error) {
	const op = "storage.CreatePendingPayment"

	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	query := `INSERT INTO pending_payments (user_id, created_at, proof_ref, tariff, note, status)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	var id int64
	if err := s.pool.QueryRow(ctx, query, p.UserID, p.CreatedAt.UTC(), p.ProofRef, p.Tariff, p.Note, p.Status).
		Scan(&id); err != nil {
		return 0, mapErr(op, err)
	}
	return id, nil
}

// LatestPendingPayment блокирует последнюю ожидающую заявку пользователя.
func (t *Tx) LatestPendingPayment(ctx context.Context, userID int64) (*models.PendingPayment, error) {
	const op = "storage.Tx.LatestPendingPayment"

	query := `SELECT id, user_id, created_at, proof_ref, tariff, note, status
			  FROM pending_payments
			  WHERE user_id = $1 AND status = $2
			  ORDER BY id DESC
			  LIMIT 1
			  FOR UPDATE`
	var p models.PendingPayment
	if err := t.q.QueryRow(ctx, query, userID, models.PaymentPending).
		Scan(&p.ID, &p.UserID, &p.CreatedAt, &p.ProofRef, &p.Tariff, &p.Note, &p.Status); err != nil {
		return nil, mapErr(op, err)
	}
	return &p, nil
}

func (t *Tx) SetPaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error {
	const op = "storage.Tx.SetPaymentStatus"

	tag, err := t.q.Exec(ctx, `UPDATE pending_payments SET status = $2 WHERE id = $1`, paymentID, status)
	if err != nil {
		return mapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %d: %w", op, paymentID, storage.ErrNotFound)
	}
	return nil
}
