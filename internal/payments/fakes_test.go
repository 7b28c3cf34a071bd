package payments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
)

// fakePaymentRepo mirrors the table constraints: unique provider ids and at
// most one pending payment per order.
type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[int64]*domain.Payment
	nextID   int64
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: map[int64]*domain.Payment{}}
}

func (r *fakePaymentRepo) Insert(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.payments {
		if existing.ExternalID == p.ExternalID {
			return fmt.Errorf("insert payment: duplicate provider_payment_id %q", p.ExternalID)
		}
		if existing.OrderID == p.OrderID && existing.Status == domain.PaymentStatusPending && p.Status == domain.PaymentStatusPending {
			return domain.ErrPaymentInProgress
		}
	}
	r.nextID++
	p.ID = r.nextID
	stored := *p
	r.payments[p.ID] = &stored
	return nil
}

func (r *fakePaymentRepo) put(p domain.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID > r.nextID {
		r.nextID = p.ID
	}
	r.payments[p.ID] = &p
}

func (r *fakePaymentRepo) HasPending(_ context.Context, orderID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.OrderID == orderID && p.Status == domain.PaymentStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePaymentRepo) GetByExternalID(_ context.Context, externalID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ExternalID == externalID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) Complete(_ context.Context, c domain.PaymentCompletion) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[c.PaymentID]
	if !ok || p.Status != domain.PaymentStatusPending {
		return false, nil
	}
	completedAt := c.CompletedAt
	p.Status = c.Status
	p.FailureReason = c.FailureReason
	p.CompletedAt = &completedAt
	return true, nil
}

func (r *fakePaymentRepo) Latest(_ context.Context, orderID int64) (*domain.Payment, error) {
	all := r.filter(func(p *domain.Payment) bool { return p.OrderID == orderID })
	if len(all) == 0 {
		return nil, nil
	}
	return &all[0], nil
}

func (r *fakePaymentRepo) ListByUser(_ context.Context, userID int64) ([]domain.Payment, error) {
	return r.filter(func(p *domain.Payment) bool { return p.UserID == userID }), nil
}

func (r *fakePaymentRepo) ListByOrderForUser(_ context.Context, userID, orderID int64) ([]domain.Payment, error) {
	return r.filter(func(p *domain.Payment) bool { return p.UserID == userID && p.OrderID == orderID }), nil
}

// filter returns matching payments newest first.
func (r *fakePaymentRepo) filter(match func(*domain.Payment) bool) []domain.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Payment{}
	for _, p := range r.payments {
		if match(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *fakePaymentRepo) byOrder(orderID int64) []domain.Payment {
	out := r.filter(func(p *domain.Payment) bool { return p.OrderID == orderID })
	slices.Reverse(out)
	return out
}

func (r *fakePaymentRepo) snapshot() map[int64]domain.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int64]domain.Payment{}
	for id, p := range r.payments {
		out[id] = *p
	}
	return out
}

func (r *fakePaymentRepo) restore(saved map[int64]domain.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = map[int64]*domain.Payment{}
	for id, p := range saved {
		r.payments[id] = &p
	}
}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[int64]*domain.Order
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[int64]*domain.Order{}}
}

func (o *fakeOrders) put(order domain.Order) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orders[order.ID] = &order
}

func (o *fakeOrders) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (o *fakeOrders) TransitionStatus(_ context.Context, t domain.StatusTransition) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[t.OrderID]
	if !ok || !slices.Contains(t.From, order.Status) {
		return false, nil
	}
	order.Status = t.To
	if t.PaidAt != nil {
		order.PaidAt = t.PaidAt
	}
	if t.PaymentMethod != nil {
		order.PaymentMethod = t.PaymentMethod
	}
	return true, nil
}

func (o *fakeOrders) status(id int64) domain.OrderStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.orders[id].Status
}

func (o *fakeOrders) snapshot() map[int64]domain.Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := map[int64]domain.Order{}
	for id, order := range o.orders {
		out[id] = *order
	}
	return out
}

func (o *fakeOrders) restore(saved map[int64]domain.Order) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orders = map[int64]*domain.Order{}
	for id, order := range saved {
		o.orders[id] = &order
	}
}

// fakeUoW serialises transactions and restores both stores when fn fails.
type fakeUoW struct {
	mu       sync.Mutex
	payments *fakePaymentRepo
	orders   *fakeOrders
	calls    int
}

func (u *fakeUoW) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	savedPayments := u.payments.snapshot()
	savedOrders := u.orders.snapshot()
	if err := fn(ctx); err != nil {
		u.payments.restore(savedPayments)
		u.orders.restore(savedOrders)
		return err
	}
	return nil
}

// fakeProvider behaves like the manual provider unless a hook overrides an
// operation.
type fakeProvider struct {
	ids       atomic.Int64
	creates   atomic.Int64
	onCreate  func(ctx context.Context) (ProviderResult, error)
	onConfirm func(ctx context.Context, externalID string) (ProviderResult, error)
	onFail    func(ctx context.Context, externalID, reason string) (ProviderResult, error)
}

func (p *fakeProvider) CreatePayment(ctx context.Context, _, _ int64, amount decimal.Decimal) (ProviderResult, error) {
	p.creates.Add(1)
	if p.onCreate != nil {
		return p.onCreate(ctx)
	}
	return ProviderResult{
		Success:    true,
		ExternalID: fmt.Sprintf("ext-%d", p.ids.Add(1)),
		Provider:   "Fake",
		Status:     domain.PaymentStatusPending,
		Amount:     amount,
		Message:    "created",
	}, nil
}

func (p *fakeProvider) ConfirmPayment(ctx context.Context, externalID string) (ProviderResult, error) {
	if p.onConfirm != nil {
		return p.onConfirm(ctx, externalID)
	}
	return ProviderResult{Success: true, ExternalID: externalID, Provider: "Fake", Status: domain.PaymentStatusPaid, Message: "confirmed"}, nil
}

func (p *fakeProvider) FailPayment(ctx context.Context, externalID, reason string) (ProviderResult, error) {
	if p.onFail != nil {
		return p.onFail(ctx, externalID, reason)
	}
	return ProviderResult{Success: false, ExternalID: externalID, Provider: "Fake", Status: domain.PaymentStatusFailed, Message: reason}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	keys   []string
	events []domain.Event
}

func (p *fakePublisher) Publish(_ context.Context, key string, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

const (
	aliceID int64 = 1
	bobID   int64 = 2
)

type fixture struct {
	payments  *fakePaymentRepo
	orders    *fakeOrders
	uow       *fakeUoW
	provider  *fakeProvider
	publisher *fakePublisher
	service   *Service
	now       time.Time
}

type fixtureOption func(*ServiceDeps)

func withTimeout(d time.Duration) fixtureOption {
	return func(deps *ServiceDeps) { deps.ProviderTimeout = d }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		payments:  newFakePaymentRepo(),
		orders:    newFakeOrders(),
		provider:  &fakeProvider{},
		publisher: &fakePublisher{},
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.uow = &fakeUoW{payments: f.payments, orders: f.orders}

	deps := ServiceDeps{
		Repo:     f.payments,
		Orders:   f.orders,
		Provider: f.provider,
		UoW:      f.uow,
		Events:   f.publisher,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:    func() time.Time { return f.now },
	}
	for _, opt := range opts {
		opt(&deps)
	}

	service, err := NewService(deps)
	require.NoError(t, err)
	f.service = service
	return f
}

// pendingOrder stores a Pending order of 59.99 owned by alice.
func (f *fixture) pendingOrder(id int64) {
	f.orders.put(domain.Order{
		ID:          id,
		UserID:      aliceID,
		Status:      domain.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("59.99"),
		Items:       []domain.OrderItem{},
		CreatedAt:   f.now.Add(-time.Hour),
	})
}

func (f *fixture) tick() {
	f.now = f.now.Add(time.Minute)
}


func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
