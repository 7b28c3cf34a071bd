package orders

import (
	"sort"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
)

// BuildTimeline merges the order's creation with its payment attempts,
// newest first. Events with equal timestamps keep their input order: the
// creation event first, then payments in creation order.
func BuildTimeline(order *domain.Order, payments []domain.Payment) []domain.TimelineEvent {
	sorted := make([]domain.Payment, len(payments))
	copy(sorted, payments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	events := make([]domain.TimelineEvent, 0, len(sorted)+1)
	events = append(events, domain.TimelineEvent{
		Timestamp: order.CreatedAt,
		EventType: domain.EventOrderCreated,
		Status:    order.Status.String(),
		Provider:  "N/A",
		Amount:    order.TotalAmount,
		Message:   "Order Created",
	})

	for i := range sorted {
		events = append(events, paymentTimelineEvent(&sorted[i]))
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	return events
}

func paymentTimelineEvent(p *domain.Payment) domain.TimelineEvent {
	eventType := domain.PaymentEventType(p.Status)

	var message string
	switch eventType {
	case domain.EventPaymentInitiated:
		message = "Payment Initiated"
	case domain.EventPaymentSuccess:
		message = "Payment Success"
	case domain.EventPaymentFailed:
		message = "Payment failed"
		if p.FailureReason != nil && *p.FailureReason != "" {
			message += ": " + *p.FailureReason
		}
	default:
		message = "Unknown Payment state"
	}

	return domain.TimelineEvent{
		Timestamp: p.OccurredAt(),
		EventType: eventType,
		Status:    p.Status.String(),
		Provider:  p.Provider,
		Amount:    p.Amount,
		Message:   message,
	}
}
