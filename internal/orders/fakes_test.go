package orders

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
)

type fakeRepo struct {
	mu        sync.Mutex
	orders    map[int64]*domain.Order
	users     map[int64][2]string
	nextID    int64
	createErr error
	// loseRace makes the next TransitionStatus report a concurrent writer.
	loseRace bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: map[int64]*domain.Order{}, users: map[int64][2]string{}}
}

func (r *fakeRepo) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	order.ID = r.nextID
	stored := *order
	r.orders[order.ID] = &stored
	return nil
}

func (r *fakeRepo) put(order domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order.ID > r.nextID {
		r.nextID = order.ID
	}
	r.orders[order.ID] = &order
}

func (r *fakeRepo) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (r *fakeRepo) ListByUser(_ context.Context, userID int64) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Order{}
	for _, order := range r.orders {
		if order.UserID == userID {
			out = append(out, *order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) TransitionStatus(_ context.Context, t domain.StatusTransition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loseRace {
		r.loseRace = false
		return false, nil
	}
	order, ok := r.orders[t.OrderID]
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

func (r *fakeRepo) ListAdmin(_ context.Context, f AdminFilter) ([]AdminOrderSummary, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []AdminOrderSummary
	for _, o := range r.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		all = append(all, AdminOrderSummary{OrderID: o.ID, UserID: o.UserID, Status: o.Status, TotalAmount: o.TotalAmount, CreatedAt: o.CreatedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OrderID > all[j].OrderID })
	start := min((f.Page-1)*f.Limit, len(all))
	end := min(start+f.Limit, len(all))
	return all[start:end], len(all), nil
}

func (r *fakeRepo) GetAdminDetails(ctx context.Context, id int64) (*AdminOrderDetails, error) {
	order, _ := r.GetByID(ctx, id)
	if order == nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user := r.users[order.UserID]
	return &AdminOrderDetails{Order: *order, UserName: user[0], Email: user[1]}, nil
}

type fakeBasket struct {
	lines   map[int64][]domain.BasketLine
	cleared []int64
}

func (b *fakeBasket) Snapshot(_ context.Context, userID int64) ([]domain.BasketLine, error) {
	return b.lines[userID], nil
}

func (b *fakeBasket) Clear(_ context.Context, userID int64) error {
	delete(b.lines, userID)
	b.cleared = append(b.cleared, userID)
	return nil
}

type fakePayments struct {
	byOrder map[int64][]domain.Payment
}

func (p *fakePayments) ListByOrder(_ context.Context, orderID int64) ([]domain.Payment, error) {
	return p.byOrder[orderID], nil
}

// fakeUoW restores the basket when fn fails, mimicking a rollback.
type fakeUoW struct {
	basket *fakeBasket
	calls  int
}

func (u *fakeUoW) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.calls++
	saved := map[int64][]domain.BasketLine{}
	for k, v := range u.basket.lines {
		saved[k] = v
	}
	if err := fn(ctx); err != nil {
		u.basket.lines = saved
		return err
	}
	return nil
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

type fixture struct {
	repo      *fakeRepo
	basket    *fakeBasket
	payments  *fakePayments
	uow       *fakeUoW
	publisher *fakePublisher
	service   *Service
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:      newFakeRepo(),
		basket:    &fakeBasket{lines: map[int64][]domain.BasketLine{}},
		payments:  &fakePayments{byOrder: map[int64][]domain.Payment{}},
		publisher: &fakePublisher{},
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.uow = &fakeUoW{basket: f.basket}

	service, err := NewService(ServiceDeps{
		Repo:     f.repo,
		Basket:   f.basket,
		Payments: f.payments,
		UoW:      f.uow,
		Events:   f.publisher,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:    func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.service = service
	return f
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
