package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
)

type Repository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	TransitionStatus(ctx context.Context, t domain.StatusTransition) (bool, error)
	ListAdmin(ctx context.Context, f AdminFilter) ([]AdminOrderSummary, int, error)
	GetAdminDetails(ctx context.Context, id int64) (*AdminOrderDetails, error)
}

type BasketStore interface {
	Snapshot(ctx context.Context, userID int64) ([]domain.BasketLine, error)
	Clear(ctx context.Context, userID int64) error
}

type PaymentLister interface {
	ListByOrder(ctx context.Context, orderID int64) ([]domain.Payment, error)
}

type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event domain.Event) error
}

type ServiceDeps struct {
	Repo     Repository
	Basket   BasketStore
	Payments PaymentLister
	UoW      UnitOfWork
	Events   EventPublisher // optional
	Logger   *slog.Logger
	Clock    func() time.Time
}

type Service struct {
	repo     Repository
	basket   BasketStore
	payments PaymentLister
	uow      UnitOfWork
	events   EventPublisher
	logger   *slog.Logger
	now      func() time.Time

	created   metric.Int64Counter
	cancelled metric.Int64Counter
}

func NewService(deps ServiceDeps) (*Service, error) {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	meter := otel.Meter("orders")
	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders created at checkout"))
	if err != nil {
		return nil, fmt.Errorf("create orders.created counter: %w", err)
	}
	cancelled, err := meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled by owners or admins"))
	if err != nil {
		return nil, fmt.Errorf("create orders.cancelled counter: %w", err)
	}

	return &Service{
		repo:      deps.Repo,
		basket:    deps.Basket,
		payments:  deps.Payments,
		uow:       deps.UoW,
		events:    deps.Events,
		logger:    deps.Logger,
		now:       func() time.Time { return now().UTC() },
		created:   created,
		cancelled: cancelled,
	}, nil
}

// CreateOrder converts the user's basket into a Pending order and empties
// the basket in the same transaction.
func (s *Service) CreateOrder(ctx context.Context, userID int64) (*domain.Order, error) {
	var order *domain.Order

	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		lines, err := s.basket.Snapshot(ctx, userID)
		if err != nil {
			return fmt.Errorf("snapshot basket: %w", err)
		}
		if len(lines) == 0 {
			return domain.ErrEmptyBasket
		}

		items := make([]domain.OrderItem, 0, len(lines))
		total := decimal.Zero
		for _, line := range lines {
			if line.Quantity <= 0 {
				return domain.ErrInvalidQuantity
			}
			item := domain.NewOrderItem(line)
			total = total.Add(item.Subtotal)
			items = append(items, item)
		}

		order = &domain.Order{
			UserID:      userID,
			Items:       items,
			TotalAmount: total,
			Status:      domain.OrderStatusPending,
			CreatedAt:   s.now(),
		}
		if err := s.repo.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if err := s.basket.Clear(ctx, userID); err != nil {
			return fmt.Errorf("clear basket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.created.Add(ctx, 1)
	s.logger.InfoContext(ctx, "order created",
		"order_id", order.ID, "user_id", userID, "total", order.TotalAmount.StringFixed(2), "items", len(order.Items))

	s.publish(ctx, order.ID, domain.OrderCreatedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Items:     order.Items,
		Total:     order.TotalAmount,
		Timestamp: order.CreatedAt,
	})

	return order, nil
}

func (s *Service) GetOrderByID(ctx context.Context, caller domain.Identity, orderID int64) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if !order.AccessibleBy(caller.UserID, caller.Role) {
		return nil, domain.ErrOrderForbidden
	}
	return order, nil
}

func (s *Service) GetMyOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// MarkPaid is the administrative confirmation path. paymentMethod may be
// empty.
func (s *Service) MarkPaid(ctx context.Context, orderID int64, paymentMethod string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	switch order.Status {
	case domain.OrderStatusPaid:
		return nil, domain.ErrAlreadyPaid
	case domain.OrderStatusCancelled:
		return nil, domain.ErrAlreadyCancelled
	}

	paidAt := s.now()
	transition := domain.StatusTransition{
		OrderID: orderID,
		From:    domain.OrderStatusesInto(domain.OrderStatusPaid),
		To:      domain.OrderStatusPaid,
		PaidAt:  &paidAt,
	}
	if paymentMethod != "" {
		transition.PaymentMethod = &paymentMethod
	}

	if err := s.transition(ctx, transition); err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatusPaid
	order.PaidAt = &paidAt
	if transition.PaymentMethod != nil {
		order.PaymentMethod = transition.PaymentMethod
	}

	s.logger.InfoContext(ctx, "order marked paid", "order_id", orderID, "payment_method", paymentMethod)
	return order, nil
}

func (s *Service) CancelOrder(ctx context.Context, caller domain.Identity, orderID int64) (*domain.Order, error) {
	order, err := s.GetOrderByID(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case domain.OrderStatusPaid:
		return nil, domain.ErrCannotCancelPaid
	case domain.OrderStatusCancelled:
		return nil, domain.ErrAlreadyCancelled
	}

	err = s.transition(ctx, domain.StatusTransition{
		OrderID: orderID,
		From:    domain.OrderStatusesInto(domain.OrderStatusCancelled),
		To:      domain.OrderStatusCancelled,
	})
	if err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatusCancelled
	s.cancelled.Add(ctx, 1)
	s.logger.InfoContext(ctx, "order cancelled", "order_id", orderID, "user_id", caller.UserID, "role", caller.Role)
	return order, nil
}

func (s *Service) Timeline(ctx context.Context, caller domain.Identity, orderID int64) ([]domain.TimelineEvent, error) {
	order, err := s.GetOrderByID(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}

	payments, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	return BuildTimeline(order, payments), nil
}

func (s *Service) ListOrders(ctx context.Context, filter AdminFilter) (Page[AdminOrderSummary], error) {
	filter = filter.normalized()

	items, total, err := s.repo.ListAdmin(ctx, filter)
	if err != nil {
		return Page[AdminOrderSummary]{}, fmt.Errorf("list admin orders: %w", err)
	}

	return newPage(items, filter.Page, filter.Limit, total), nil
}

func (s *Service) GetOrderDetailsForAdmin(ctx context.Context, orderID int64) (*AdminOrderDetails, error) {
	details, err := s.repo.GetAdminDetails(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get admin order details: %w", err)
	}
	if details == nil {
		return nil, domain.ErrOrderNotFound
	}
	return details, nil
}

// transition applies t, reporting ErrOrderConflict when another writer
// moved the order first.
func (s *Service) transition(ctx context.Context, t domain.StatusTransition) error {
	ok, err := s.repo.TransitionStatus(ctx, t)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if !ok {
		s.logger.WarnContext(ctx, "order status changed concurrently", "order_id", t.OrderID, "to", t.To)
		return domain.ErrOrderConflict
	}
	return nil
}

func (s *Service) publish(ctx context.Context, orderID int64, event domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, strconv.FormatInt(orderID, 10), event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event", "error", err, "order_id", orderID, "event_type", event.EventType())
	}
}
