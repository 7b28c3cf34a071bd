package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
	"github.com/joao-fontenele/gamestore-orderflow/internal/postgres"
)

const onePendingPerOrder = "payments_one_pending_per_order"

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, order_id, user_id, amount, provider, status, provider_payment_id,
	previous_provider_payment_id, failure_reason, created_at, completed_at`

func scanPayment(row interface{ Scan(...any) error }, p *domain.Payment) error {
	return row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.Provider, &p.Status, &p.ExternalID,
		&p.PreviousExternalID, &p.FailureReason, &p.CreatedAt, &p.CompletedAt)
}

// Insert stores a new payment. A second pending payment for the same order
// is rejected by a partial unique index and reported as
// ErrPaymentInProgress.
func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO payments (order_id, user_id, amount, provider, status, provider_payment_id,
			previous_provider_payment_id, failure_reason, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, p.OrderID, p.UserID, p.Amount, p.Provider, p.Status, p.ExternalID,
		p.PreviousExternalID, p.FailureReason, p.CreatedAt, p.CompletedAt).Scan(&p.ID)
	if err != nil {
		if postgres.IsUniqueViolation(err, onePendingPerOrder) {
			return domain.ErrPaymentInProgress
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) HasPending(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND status = $2)
	`, orderID, domain.PaymentStatusPending).Scan(&exists)
	return exists, err
}

func (r *PaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := scanPayment(postgres.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE provider_payment_id = $1
	`, externalID), p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// Complete moves a pending payment to a terminal status. It reports false
// when the payment is no longer pending.
func (r *PaymentRepository) Complete(ctx context.Context, c domain.PaymentCompletion) (bool, error) {
	result, err := postgres.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE payments
		SET status = $2, failure_reason = $3, completed_at = $4
		WHERE id = $1 AND status = $5
	`, c.PaymentID, c.Status, c.FailureReason, c.CompletedAt, domain.PaymentStatusPending)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

// Latest returns the order's most recently created payment.
func (r *PaymentRepository) Latest(ctx context.Context, orderID int64) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := scanPayment(postgres.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, orderID), p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Payment, error) {
	return r.list(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
}

func (r *PaymentRepository) ListByOrderForUser(ctx context.Context, userID, orderID int64) ([]domain.Payment, error) {
	return r.list(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE user_id = $1 AND order_id = $2
		ORDER BY created_at DESC, id DESC
	`, userID, orderID)
}

// ListByOrder returns every payment of the order in creation order.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	return r.list(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
}

func (r *PaymentRepository) list(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := postgres.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	payments := []domain.Payment{}
	for rows.Next() {
		var p domain.Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}
