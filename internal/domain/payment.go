package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Payment struct {
	ID                 int64           `json:"payment_id"`
	OrderID            int64           `json:"order_id"`
	UserID             int64           `json:"user_id"`
	Amount             decimal.Decimal `json:"amount"`
	Provider           string          `json:"provider"`
	Status             PaymentStatus   `json:"status"`
	ExternalID         string          `json:"provider_payment_id"`
	PreviousExternalID *string         `json:"previous_provider_payment_id,omitempty"`
	FailureReason      *string         `json:"failure_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

// OccurredAt is the moment the payment last changed state.
func (p *Payment) OccurredAt() time.Time {
	if p.CompletedAt != nil {
		return *p.CompletedAt
	}
	return p.CreatedAt
}

// PaymentCompletion moves a pending payment into a terminal state.
type PaymentCompletion struct {
	PaymentID     int64
	Status        PaymentStatus
	FailureReason *string
	CompletedAt   time.Time
}
