package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
	"github.com/joao-fontenele/gamestore-orderflow/internal/messaging"
)

type mailbox struct {
	mu     sync.Mutex
	emails []email
	status int
}

func newMailbox(t *testing.T) (*mailbox, *httptest.Server) {
	t.Helper()
	box := &mailbox{status: http.StatusOK}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		var mail email
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&mail))
		box.mu.Lock()
		defer box.mu.Unlock()
		box.emails = append(box.emails, mail)
		w.WriteHeader(box.status)
	}))
	t.Cleanup(server.Close)
	return box, server
}

func newHandler(server *httptest.Server) *NotificationHandler {
	return NewNotificationHandler(server.URL, "gamestore.test", server.Client(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func message(t *testing.T, event domain.Event) messaging.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return messaging.Message{Key: "12", Type: event.EventType(), Payload: payload}
}

func TestNotificationHandler(t *testing.T) {
	reason := "card declined"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		event   domain.Event
		subject string
		body    string
	}{
		{
			name: "order created",
			event: domain.OrderCreatedEvent{
				OrderID: 12, UserID: 7, Total: decimal.RequireFromString("59.99"), Timestamp: now,
				Items: []domain.OrderItem{{GameID: 1}, {GameID: 2}},
			},
			subject: "Order #12 received",
			body:    "Thanks for your order #12: 2 item(s), total 59.99. Complete the payment to get your games.",
		},
		{
			name: "payment success",
			event: domain.NewPaymentEvent(&domain.Payment{
				OrderID: 12, UserID: 7, Amount: decimal.RequireFromString("59.99"), Provider: "Manual",
				Status: domain.PaymentStatusPaid, CreatedAt: now, CompletedAt: &now,
			}),
			subject: "Payment received for order #12",
			body:    "We received your payment of 59.99 via Manual. Enjoy your games!",
		},
		{
			name: "payment failed",
			event: domain.NewPaymentEvent(&domain.Payment{
				OrderID: 12, UserID: 7, Amount: decimal.RequireFromString("59.99"), Provider: "Manual",
				Status: domain.PaymentStatusFailed, FailureReason: &reason, CreatedAt: now, CompletedAt: &now,
			}),
			subject: "Payment failed for order #12",
			body:    "Your payment of 59.99 failed: card declined. You can retry from your orders page.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box, server := newMailbox(t)

			err := newHandler(server).Handle(context.Background(), message(t, tt.event))
			require.NoError(t, err)

			require.Len(t, box.emails, 1)
			assert.Equal(t, "user-7@gamestore.test", box.emails[0].To)
			assert.Equal(t, tt.subject, box.emails[0].Subject)
			assert.Equal(t, tt.body, box.emails[0].Body)
		})
	}
}

func TestNotificationHandler_SkipsSilentEvents(t *testing.T) {
	box, server := newMailbox(t)
	h := newHandler(server)

	initiated := domain.NewPaymentEvent(&domain.Payment{OrderID: 12, UserID: 7, Status: domain.PaymentStatusPending})
	require.NoError(t, h.Handle(context.Background(), message(t, initiated)))
	require.NoError(t, h.Handle(context.Background(), messaging.Message{Type: "SOMETHING_ELSE", Payload: []byte(`{}`)}))
	require.NoError(t, h.Handle(context.Background(), messaging.Message{Type: domain.EventOrderCreated, Payload: []byte(`not json`)}))

	assert.Empty(t, box.emails)
}

func TestNotificationHandler_EmailServiceError(t *testing.T) {
	box, server := newMailbox(t)
	box.status = http.StatusServiceUnavailable

	event := domain.OrderCreatedEvent{OrderID: 12, UserID: 7, Total: decimal.RequireFromString("10")}
	err := newHandler(server).Handle(context.Background(), message(t, event))
	assert.ErrorContains(t, err, "email service returned status 503")
}
