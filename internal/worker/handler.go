package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
	"github.com/joao-fontenele/gamestore-orderflow/internal/messaging"
)

// NotificationHandler turns order and payment events into customer emails.
type NotificationHandler struct {
	emailServiceURL string
	recipientDomain string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL, recipientDomain string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		recipientDomain: recipientDomain,
		httpClient:      client,
		logger:          logger,
	}
}

type email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Handle sends the notification for msg. Event types without a customer
// notification are acknowledged and skipped.
func (h *NotificationHandler) Handle(ctx context.Context, msg messaging.Message) error {
	var (
		mail email
		err  error
	)

	switch msg.Type {
	case domain.EventOrderCreated:
		mail, err = h.orderCreated(msg.Payload)
	case domain.EventPaymentSuccess, domain.EventPaymentFailed:
		mail, err = h.paymentCompleted(msg.Payload)
	case domain.EventPaymentInitiated:
		h.logger.DebugContext(ctx, "no notification for event", "event_type", msg.Type, "key", msg.Key)
		return nil
	default:
		h.logger.WarnContext(ctx, "skipping unknown event type", "event_type", msg.Type, "key", msg.Key)
		return nil
	}
	if err != nil {
		// A payload that cannot be decoded will never succeed; skip it.
		h.logger.ErrorContext(ctx, "failed to decode event", "error", err, "event_type", msg.Type, "key", msg.Key)
		return nil
	}

	if err := h.sendEmail(ctx, mail); err != nil {
		h.logger.ErrorContext(ctx, "failed to send notification", "error", err, "event_type", msg.Type, "key", msg.Key)
		return fmt.Errorf("send %s notification: %w", msg.Type, err)
	}

	h.logger.InfoContext(ctx, "notification sent", "event_type", msg.Type, "key", msg.Key, "to", mail.To)
	return nil
}

func (h *NotificationHandler) orderCreated(payload []byte) (email, error) {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return email{}, fmt.Errorf("unmarshal order created event: %w", err)
	}

	return email{
		To:      h.recipient(event.UserID),
		Subject: fmt.Sprintf("Order #%d received", event.OrderID),
		Body: fmt.Sprintf("Thanks for your order #%d: %d item(s), total %s. Complete the payment to get your games.",
			event.OrderID, len(event.Items), event.Total.StringFixed(2)),
	}, nil
}

func (h *NotificationHandler) paymentCompleted(payload []byte) (email, error) {
	var event domain.PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return email{}, fmt.Errorf("unmarshal payment event: %w", err)
	}

	if event.Type == domain.EventPaymentSuccess {
		return email{
			To:      h.recipient(event.UserID),
			Subject: fmt.Sprintf("Payment received for order #%d", event.OrderID),
			Body:    fmt.Sprintf("We received your payment of %s via %s. Enjoy your games!", event.Amount.StringFixed(2), event.Provider),
		}, nil
	}

	reason := event.Reason
	if reason == "" {
		reason = "the payment provider declined it"
	}
	return email{
		To:      h.recipient(event.UserID),
		Subject: fmt.Sprintf("Payment failed for order #%d", event.OrderID),
		Body:    fmt.Sprintf("Your payment of %s failed: %s. You can retry from your orders page.", event.Amount.StringFixed(2), reason),
	}, nil
}

func (h *NotificationHandler) recipient(userID int64) string {
	return fmt.Sprintf("user-%d@%s", userID, h.recipientDomain)
}

func (h *NotificationHandler) sendEmail(ctx context.Context, mail email) error {
	data, err := json.Marshal(mail)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
