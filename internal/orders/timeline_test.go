package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
)

func TestBuildTimeline(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	order := &domain.Order{ID: 1, Status: domain.OrderStatusPaid, CreatedAt: created, TotalAmount: price("39.99")}

	t.Run("order without payments", func(t *testing.T) {
		events := BuildTimeline(order, nil)
		require.Len(t, events, 1)
		assert.Equal(t, domain.TimelineEvent{
			Timestamp: created,
			EventType: domain.EventOrderCreated,
			Status:    "Paid",
			Provider:  "N/A",
			Amount:    price("39.99"),
			Message:   "Order Created",
		}, events[0])
	})

	t.Run("classifies and orders payments newest first", func(t *testing.T) {
		declined := "card declined"
		failedAt := created.Add(5 * time.Minute)
		paidAt := created.Add(20 * time.Minute)
		payments := []domain.Payment{
			// Deliberately out of creation order.
			{ID: 2, Provider: "Stripe", Status: domain.PaymentStatusPaid, CreatedAt: created.Add(10 * time.Minute), CompletedAt: &paidAt},
			{ID: 1, Provider: "Stripe", Status: domain.PaymentStatusFailed, FailureReason: &declined, CreatedAt: created.Add(time.Minute), CompletedAt: &failedAt},
		}

		events := BuildTimeline(order, payments)
		require.Len(t, events, 3)

		assert.Equal(t, domain.EventPaymentSuccess, events[0].EventType)
		assert.Equal(t, "Payment Success", events[0].Message)
		assert.Equal(t, paidAt, events[0].Timestamp)

		assert.Equal(t, domain.EventPaymentFailed, events[1].EventType)
		assert.Equal(t, "Payment failed: card declined", events[1].Message)
		assert.Equal(t, failedAt, events[1].Timestamp)
		assert.Equal(t, "Stripe", events[1].Provider)

		assert.Equal(t, domain.EventOrderCreated, events[2].EventType)
	})

	t.Run("failure without a reason", func(t *testing.T) {
		events := BuildTimeline(order, []domain.Payment{
			{ID: 1, Status: domain.PaymentStatusFailed, CreatedAt: created.Add(time.Minute)},
		})
		assert.Equal(t, "Payment failed", events[0].Message)
	})

	t.Run("unrecognised payment status", func(t *testing.T) {
		events := BuildTimeline(order, []domain.Payment{
			{ID: 1, Status: domain.PaymentStatusUnknown, CreatedAt: created.Add(time.Minute)},
		})
		require.Len(t, events, 2)
		assert.Equal(t, domain.EventPaymentUnknown, events[0].EventType)
		assert.Equal(t, "Unknown Payment state", events[0].Message)
		assert.Equal(t, "Unknown", events[0].Status)
	})

	t.Run("ties keep the creation event ahead of payments in creation order", func(t *testing.T) {
		payments := []domain.Payment{
			{ID: 4, Status: domain.PaymentStatusPending, CreatedAt: created},
			{ID: 3, Status: domain.PaymentStatusFailed, CreatedAt: created},
		}

		events := BuildTimeline(order, payments)
		require.Len(t, events, 3)
		assert.Equal(t, domain.EventOrderCreated, events[0].EventType)
		assert.Equal(t, domain.EventPaymentFailed, events[1].EventType)
		assert.Equal(t, domain.EventPaymentInitiated, events[2].EventType)
	})

	t.Run("does not reorder the caller's slice", func(t *testing.T) {
		payments := []domain.Payment{
			{ID: 2, Status: domain.PaymentStatusPending, CreatedAt: created.Add(2 * time.Minute)},
			{ID: 1, Status: domain.PaymentStatusFailed, CreatedAt: created.Add(time.Minute)},
		}
		BuildTimeline(order, payments)
		assert.Equal(t, int64(2), payments[0].ID)
	})
}
