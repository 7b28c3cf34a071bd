package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeline and notification event types.
const (
	EventOrderCreated     = "ORDER_CREATED"
	EventPaymentInitiated = "PAYMENT_INITIATED"
	EventPaymentSuccess   = "PAYMENT_SUCCESS"
	EventPaymentFailed    = "PAYMENT_FAILED"
	EventPaymentUnknown   = "PAYMENT_UNKNOWN"
)

// Event is anything published to a topic; EventType labels the message.
type Event interface {
	EventType() string
}

type OrderCreatedEvent struct {
	OrderID   int64           `json:"order_id"`
	UserID    int64           `json:"user_id"`
	Items     []OrderItem     `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Timestamp time.Time       `json:"timestamp"`
}

func (OrderCreatedEvent) EventType() string { return EventOrderCreated }

type PaymentEvent struct {
	Type       string          `json:"type"`
	OrderID    int64           `json:"order_id"`
	UserID     int64           `json:"user_id"`
	ExternalID string          `json:"provider_payment_id"`
	Provider   string          `json:"provider"`
	Amount     decimal.Decimal `json:"amount"`
	Status     PaymentStatus   `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (e PaymentEvent) EventType() string { return e.Type }

// NewPaymentEvent classifies a payment's current status into an event type.
func NewPaymentEvent(p *Payment) PaymentEvent {
	event := PaymentEvent{
		Type:       PaymentEventType(p.Status),
		OrderID:    p.OrderID,
		UserID:     p.UserID,
		ExternalID: p.ExternalID,
		Provider:   p.Provider,
		Amount:     p.Amount,
		Status:     p.Status,
		Timestamp:  p.OccurredAt(),
	}
	if p.FailureReason != nil {
		event.Reason = *p.FailureReason
	}
	return event
}

func PaymentEventType(status PaymentStatus) string {
	switch status {
	case PaymentStatusPending:
		return EventPaymentInitiated
	case PaymentStatusPaid:
		return EventPaymentSuccess
	case PaymentStatusFailed:
		return EventPaymentFailed
	default:
		return EventPaymentUnknown
	}
}

// TimelineEvent is one entry of an order's audit timeline.
type TimelineEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	EventType string          `json:"event_type"`
	Status    string          `json:"status"`
	Provider  string          `json:"provider"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message"`
}
