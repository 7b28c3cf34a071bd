package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
)

var tracer = otel.Tracer("payments")

const DefaultProviderTimeout = 10 * time.Second

type Repository interface {
	Insert(ctx context.Context, p *domain.Payment) error
	HasPending(ctx context.Context, orderID int64) (bool, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Payment, error)
	Complete(ctx context.Context, c domain.PaymentCompletion) (bool, error)
	Latest(ctx context.Context, orderID int64) (*domain.Payment, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Payment, error)
	ListByOrderForUser(ctx context.Context, userID, orderID int64) ([]domain.Payment, error)
}

// OrderStore is the slice of the order repository payments drive.
type OrderStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	TransitionStatus(ctx context.Context, t domain.StatusTransition) (bool, error)
}

type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event domain.Event) error
}

type ServiceDeps struct {
	Repo            Repository
	Orders          OrderStore
	Provider        Provider
	UoW             UnitOfWork
	Events          EventPublisher // optional
	Logger          *slog.Logger
	Clock           func() time.Time
	ProviderTimeout time.Duration
}

type Service struct {
	repo     Repository
	orders   OrderStore
	provider Provider
	uow      UnitOfWork
	events   EventPublisher
	logger   *slog.Logger
	now      func() time.Time
	timeout  time.Duration
	metrics  *serviceMetrics
}

func NewService(deps ServiceDeps) (*Service, error) {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	timeout := deps.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}

	m, err := newServiceMetrics(otel.Meter("payments"))
	if err != nil {
		return nil, fmt.Errorf("create payment metrics: %w", err)
	}

	return &Service{
		repo:     deps.Repo,
		orders:   deps.Orders,
		provider: deps.Provider,
		uow:      deps.UoW,
		events:   deps.Events,
		logger:   deps.Logger,
		now:      func() time.Time { return now().UTC() },
		timeout:  timeout,
		metrics:  m,
	}, nil
}

type PaymentResult struct {
	OrderID    int64                `json:"order_id"`
	PaymentID  int64                `json:"payment_id"`
	ExternalID string               `json:"provider_payment_id"`
	Provider   string               `json:"provider"`
	Amount     decimal.Decimal      `json:"amount"`
	Status     domain.PaymentStatus `json:"status"`
	Message    string               `json:"message"`
}

type RetryResult struct {
	PaymentResult
	PreviousExternalID string `json:"previous_provider_payment_id"`
}

type OrderPaymentHistory struct {
	OrderID  int64            `json:"order_id"`
	Payments []domain.Payment `json:"payments"`
}

func newPaymentResult(p *domain.Payment, message string) PaymentResult {
	return PaymentResult{
		OrderID:    p.OrderID,
		PaymentID:  p.ID,
		ExternalID: p.ExternalID,
		Provider:   p.Provider,
		Amount:     p.Amount,
		Status:     p.Status,
		Message:    message,
	}
}

// StartPayment opens a payment attempt for a Pending order owned by userID.
// The provider is called first; the payment row is written only once an
// external id exists.
func (s *Service) StartPayment(ctx context.Context, orderID, userID int64) (PaymentResult, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("get order: %w", err)
	}
	if order == nil || order.UserID != userID {
		return PaymentResult{}, domain.ErrOrderNotFound
	}
	switch order.Status {
	case domain.OrderStatusPending:
	case domain.OrderStatusPaid:
		return PaymentResult{}, domain.ErrAlreadyPaid
	default:
		return PaymentResult{}, domain.ErrOrderNotFound
	}

	pending, err := s.repo.HasPending(ctx, orderID)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("check pending payment: %w", err)
	}
	if pending {
		return PaymentResult{}, domain.ErrPaymentInProgress
	}

	result, err := s.callProvider(ctx, "create payment", func(ctx context.Context) (ProviderResult, error) {
		return s.provider.CreatePayment(ctx, order.ID, order.UserID, order.TotalAmount)
	})
	if err != nil {
		return PaymentResult{}, err
	}
	if err := s.checkCreated(ctx, order.ID, result); err != nil {
		return PaymentResult{}, err
	}

	payment := &domain.Payment{
		OrderID:    order.ID,
		UserID:     userID,
		Amount:     order.TotalAmount,
		Provider:   result.Provider,
		Status:     domain.PaymentStatusPending,
		ExternalID: result.ExternalID,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Insert(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrPaymentInProgress) {
			s.logger.WarnContext(ctx, "concurrent payment start lost the race",
				"order_id", orderID, "provider_payment_id", result.ExternalID)
		}
		return PaymentResult{}, err
	}

	s.metrics.started.Add(ctx, 1)
	s.logger.InfoContext(ctx, "payment started",
		"order_id", orderID, "payment_id", payment.ID, "provider", payment.Provider, "user_id", userID)
	s.publish(ctx, payment)

	return newPaymentResult(payment, result.Message), nil
}

// ConfirmPayment asks the provider whether a pending payment went through
// and settles the payment and its order together.
func (s *Service) ConfirmPayment(ctx context.Context, externalID string) (PaymentResult, error) {
	payment, err := s.pendingPayment(ctx, externalID, domain.ErrCannotConfirmFailed)
	if err != nil {
		return PaymentResult{}, err
	}

	result, err := s.callProvider(ctx, "confirm payment", func(ctx context.Context) (ProviderResult, error) {
		return s.provider.ConfirmPayment(ctx, externalID)
	})
	if err != nil {
		return PaymentResult{}, err
	}

	completedAt := s.now()

	if result.Success {
		provider := payment.Provider
		err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.complete(ctx, payment, domain.PaymentStatusPaid, nil, completedAt); err != nil {
				return err
			}
			return s.markOrderPaid(ctx, payment.OrderID, completedAt, provider)
		})
		if err != nil {
			return PaymentResult{}, err
		}

		payment.Status = domain.PaymentStatusPaid
		payment.CompletedAt = &completedAt
		s.metrics.confirmed.Add(ctx, 1)
		s.logger.InfoContext(ctx, "payment confirmed", "order_id", payment.OrderID, "payment_id", payment.ID)
		s.publish(ctx, payment)
		return newPaymentResult(payment, result.Message), nil
	}

	reason := result.Message
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.complete(ctx, payment, domain.PaymentStatusFailed, &reason, completedAt); err != nil {
			return err
		}
		// An order that already left Pending keeps its status.
		_, err := s.orders.TransitionStatus(ctx, domain.StatusTransition{
			OrderID: payment.OrderID,
			From:    []domain.OrderStatus{domain.OrderStatusPending},
			To:      domain.OrderStatusPaymentFailed,
		})
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	payment.Status = domain.PaymentStatusFailed
	payment.FailureReason = &reason
	payment.CompletedAt = &completedAt
	s.metrics.failed.Add(ctx, 1)
	s.logger.InfoContext(ctx, "payment declined by provider",
		"order_id", payment.OrderID, "payment_id", payment.ID, "reason", reason)
	s.publish(ctx, payment)
	return newPaymentResult(payment, result.Message), nil
}

// FailPayment records a failure reported for a pending payment and puts the
// order back to Pending so the customer can pay again.
func (s *Service) FailPayment(ctx context.Context, externalID, reason string) (PaymentResult, error) {
	payment, err := s.pendingPayment(ctx, externalID, domain.ErrAlreadyFailed)
	if err != nil {
		return PaymentResult{}, err
	}

	result, err := s.callProvider(ctx, "fail payment", func(ctx context.Context) (ProviderResult, error) {
		return s.provider.FailPayment(ctx, externalID, reason)
	})
	if err != nil {
		return PaymentResult{}, err
	}

	if result.Success {
		s.metrics.invariantViolations.Add(ctx, 1, metricAttrs("fail payment"))
		s.logger.ErrorContext(ctx, "payment provider reported success for a failure request",
			"alert", true,
			"order_id", payment.OrderID,
			"payment_id", payment.ID,
			"provider", payment.Provider,
			"provider_payment_id", externalID,
		)
		return PaymentResult{}, domain.ErrUnexpectedProviderState
	}

	failure := result.Message
	if failure == "" {
		failure = reason
	}
	completedAt := s.now()

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.complete(ctx, payment, domain.PaymentStatusFailed, &failure, completedAt); err != nil {
			return err
		}
		_, err := s.orders.TransitionStatus(ctx, domain.StatusTransition{
			OrderID: payment.OrderID,
			From:    domain.OrderStatusesInto(domain.OrderStatusPending),
			To:      domain.OrderStatusPending,
		})
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	payment.Status = domain.PaymentStatusFailed
	payment.FailureReason = &failure
	payment.CompletedAt = &completedAt
	s.metrics.failed.Add(ctx, 1)
	s.logger.InfoContext(ctx, "payment failed", "order_id", payment.OrderID, "payment_id", payment.ID, "reason", failure)
	s.publish(ctx, payment)
	return newPaymentResult(payment, result.Message), nil
}

// RetryPayment opens a new attempt after the latest one failed. The provider
// issues a fresh external id; the failed attempt's id is kept for reference.
func (s *Service) RetryPayment(ctx context.Context, orderID, userID int64) (RetryResult, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return RetryResult{}, fmt.Errorf("get order: %w", err)
	}
	if order == nil || order.UserID != userID {
		return RetryResult{}, domain.ErrOrderNotFound
	}

	latest, err := s.repo.Latest(ctx, orderID)
	if err != nil {
		return RetryResult{}, fmt.Errorf("get latest payment: %w", err)
	}
	if latest == nil {
		return RetryResult{}, domain.ErrNoPriorPayment
	}
	if latest.Status != domain.PaymentStatusFailed || order.Status.Terminal() {
		return RetryResult{}, domain.ErrRetryNotAllowed
	}

	result, err := s.callProvider(ctx, "create payment", func(ctx context.Context) (ProviderResult, error) {
		return s.provider.CreatePayment(ctx, order.ID, order.UserID, order.TotalAmount)
	})
	if err != nil {
		return RetryResult{}, err
	}
	if err := s.checkCreated(ctx, order.ID, result); err != nil {
		return RetryResult{}, err
	}

	provider := result.Provider
	if provider == "" {
		provider = latest.Provider
	}
	previous := latest.ExternalID
	payment := &domain.Payment{
		OrderID:            order.ID,
		UserID:             userID,
		Amount:             order.TotalAmount,
		Provider:           provider,
		Status:             domain.PaymentStatusPending,
		ExternalID:         result.ExternalID,
		PreviousExternalID: &previous,
		CreatedAt:          s.now(),
	}

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Insert(ctx, payment); err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPaymentFailed {
			return nil
		}
		ok, err := s.orders.TransitionStatus(ctx, domain.StatusTransition{
			OrderID: order.ID,
			From:    []domain.OrderStatus{domain.OrderStatusPaymentFailed},
			To:      domain.OrderStatusPending,
		})
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if !ok {
			return domain.ErrOrderConflict
		}
		return nil
	})
	if err != nil {
		return RetryResult{}, err
	}

	s.metrics.retried.Add(ctx, 1)
	s.logger.InfoContext(ctx, "payment retried",
		"order_id", orderID, "payment_id", payment.ID, "previous_provider_payment_id", previous, "user_id", userID)
	s.publish(ctx, payment)

	return RetryResult{
		PaymentResult:      newPaymentResult(payment, result.Message),
		PreviousExternalID: previous,
	}, nil
}

func (s *Service) GetMyPayments(ctx context.Context, userID int64) ([]domain.Payment, error) {
	payments, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

func (s *Service) GetOrderPayments(ctx context.Context, userID, orderID int64) (OrderPaymentHistory, error) {
	payments, err := s.repo.ListByOrderForUser(ctx, userID, orderID)
	if err != nil {
		return OrderPaymentHistory{}, fmt.Errorf("list order payments: %w", err)
	}
	return OrderPaymentHistory{OrderID: orderID, Payments: payments}, nil
}

// pendingPayment loads a payment that confirm or fail may act on. failedErr
// is what a payment that already failed reports.
func (s *Service) pendingPayment(ctx context.Context, externalID string, failedErr error) (*domain.Payment, error) {
	payment, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}

	switch payment.Status {
	case domain.PaymentStatusPending:
		return payment, nil
	case domain.PaymentStatusPaid:
		return nil, domain.ErrAlreadyConfirmed
	case domain.PaymentStatusFailed:
		return nil, failedErr
	default:
		return nil, domain.ErrUnknownPaymentState
	}
}

// complete finishes a pending payment. Losing the race to another callback
// reports what that callback did.
func (s *Service) complete(ctx context.Context, p *domain.Payment, status domain.PaymentStatus, reason *string, at time.Time) error {
	ok, err := s.repo.Complete(ctx, domain.PaymentCompletion{
		PaymentID:     p.ID,
		Status:        status,
		FailureReason: reason,
		CompletedAt:   at,
	})
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	if ok {
		return nil
	}

	current, err := s.repo.GetByExternalID(ctx, p.ExternalID)
	if err != nil {
		return fmt.Errorf("get payment: %w", err)
	}
	if current != nil && current.Status == domain.PaymentStatusFailed {
		return domain.ErrAlreadyFailed
	}
	return domain.ErrAlreadyConfirmed
}

func (s *Service) markOrderPaid(ctx context.Context, orderID int64, paidAt time.Time, method string) error {
	ok, err := s.orders.TransitionStatus(ctx, domain.StatusTransition{
		OrderID:       orderID,
		From:          domain.OrderStatusesInto(domain.OrderStatusPaid),
		To:            domain.OrderStatusPaid,
		PaidAt:        &paidAt,
		PaymentMethod: &method,
	})
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ok {
		return nil
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	switch {
	case order == nil:
		return domain.ErrOrderNotFound
	case order.Status == domain.OrderStatusCancelled:
		s.logger.WarnContext(ctx, "provider confirmed a payment for a cancelled order",
			"order_id", orderID, "alert", true)
		return domain.ErrAlreadyCancelled
	case order.Status == domain.OrderStatusPaid:
		return domain.ErrAlreadyPaid
	default:
		return domain.ErrOrderConflict
	}
}

func (s *Service) checkCreated(ctx context.Context, orderID int64, result ProviderResult) error {
	if !result.Success {
		return domain.ProviderFailure("create payment", errors.New(result.Message))
	}
	if result.ExternalID == "" {
		s.metrics.invariantViolations.Add(ctx, 1, metricAttrs("create payment"))
		s.logger.ErrorContext(ctx, "payment provider returned no external id", "alert", true, "order_id", orderID)
		return domain.ErrUnexpectedProviderState
	}
	return nil
}

// callProvider bounds a provider call by the configured timeout and records
// its latency.
func (s *Service) callProvider(ctx context.Context, op string, call func(ctx context.Context) (ProviderResult, error)) (ProviderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "provider "+op)
	defer span.End()

	start := time.Now()
	result, err := call(ctx)
	provider := result.Provider
	if provider == "" {
		provider = "unknown"
	}
	s.metrics.recordProviderCall(ctx, op, provider, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, "payment provider call failed", "operation", op, "error", err)
		return ProviderResult{}, domain.ProviderFailure(op, err)
	}

	span.SetAttributes(
		attribute.String("payment.provider", result.Provider),
		attribute.Bool("payment.success", result.Success),
	)
	return result, nil
}

func (s *Service) publish(ctx context.Context, p *domain.Payment) {
	if s.events == nil {
		return
	}
	event := domain.NewPaymentEvent(p)
	if err := s.events.Publish(ctx, strconv.FormatInt(p.OrderID, 10), event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event", "error", err, "order_id", p.OrderID, "event_type", event.Type)
	}
}
