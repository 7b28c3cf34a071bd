//go:build integration

package orders_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/gamestore-orderflow/internal/basket"
	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
	"github.com/joao-fontenele/gamestore-orderflow/internal/orders"
	"github.com/joao-fontenele/gamestore-orderflow/internal/payments"
	"github.com/joao-fontenele/gamestore-orderflow/internal/pgtest"
	"github.com/joao-fontenele/gamestore-orderflow/internal/postgres"
)

// Seeded users: 1 admin, 2 Alice, 3 Bob. Seeded games: 1 Hollow Knight
// 39.99, 2 Celeste 20.00, 3 Hades 24.99.
const (
	alice int64 = 2
	bob   int64 = 3
)

func newService(t *testing.T, ctx context.Context) (*orders.Service, *orders.OrderRepository, *basket.BasketRepository) {
	t.Helper()
	db := pgtest.Postgres(ctx, t)

	repo := orders.NewOrderRepository(db)
	baskets := basket.NewBasketRepository(db)
	service, err := orders.NewService(orders.ServiceDeps{
		Repo:     repo,
		Basket:   baskets,
		Payments: payments.NewPaymentRepository(db),
		UoW:      postgres.NewUnitOfWork(db),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return service, repo, baskets
}

func TestCheckout_Postgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	service, repo, baskets := newService(t, ctx)

	require.NoError(t, baskets.Upsert(ctx, alice, 1, 1))
	require.NoError(t, baskets.Upsert(ctx, alice, 2, 1))

	order, err := service.CreateOrder(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("59.99")), order.TotalAmount.String())

	stored, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "Hollow Knight", stored.Items[0].GameName)
	assert.True(t, stored.Items[1].Subtotal.Equal(decimal.RequireFromString("20.00")))

	lines, err := baskets.Snapshot(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, lines, "checkout clears the basket")

	_, err = service.CreateOrder(ctx, alice)
	assert.ErrorIs(t, err, domain.ErrEmptyBasket)

	mine, err := service.GetMyOrders(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestTransitionStatus_Postgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	service, repo, baskets := newService(t, ctx)

	require.NoError(t, baskets.Upsert(ctx, alice, 3, 2))
	order, err := service.CreateOrder(ctx, alice)
	require.NoError(t, err)

	method := "Manual"
	paidAt := time.Now().UTC().Truncate(time.Microsecond)
	ok, err := repo.TransitionStatus(ctx, domain.StatusTransition{
		OrderID:       order.ID,
		From:          domain.OrderStatusesInto(domain.OrderStatusPaid),
		To:            domain.OrderStatusPaid,
		PaidAt:        &paidAt,
		PaymentMethod: &method,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionStatus(ctx, domain.StatusTransition{
		OrderID: order.ID,
		From:    domain.OrderStatusesInto(domain.OrderStatusCancelled),
		To:      domain.OrderStatusCancelled,
	})
	require.NoError(t, err)
	assert.False(t, ok, "paid orders are not cancellable")

	_, err = service.CancelOrder(ctx, domain.Identity{UserID: alice, Role: domain.RoleUser}, order.ID)
	assert.ErrorIs(t, err, domain.ErrCannotCancelPaid)

	stored, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	assert.True(t, paidAt.Equal(*stored.PaidAt))
	assert.Equal(t, "Manual", *stored.PaymentMethod)
}

func TestListOrders_Postgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	service, _, baskets := newService(t, ctx)

	for _, user := range []int64{alice, alice, bob} {
		require.NoError(t, baskets.Upsert(ctx, user, 4, 1))
		_, err := service.CreateOrder(ctx, user)
		require.NoError(t, err)
	}

	page, err := service.ListOrders(ctx, orders.AdminFilter{UserName: "ali"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "alice@gamestore.local", page.Items[0].Email)
	assert.Greater(t, page.Items[0].OrderID, page.Items[1].OrderID, "newest first")

	pending := domain.OrderStatusPending
	page, err = service.ListOrders(ctx, orders.AdminFilter{Status: &pending, Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 1)

	details, err := service.GetOrderDetailsForAdmin(ctx, page.Items[0].OrderID)
	require.NoError(t, err)
	assert.NotEmpty(t, details.UserName)
	assert.Len(t, details.Items, 1)
}
