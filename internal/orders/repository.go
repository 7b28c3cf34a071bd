package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
	"github.com/joao-fontenele/gamestore-orderflow/internal/postgres"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order and its items. It must run inside a unit of work
// for the two inserts to be atomic.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	conn := postgres.Conn(ctx, r.db)

	err := conn.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id
	`, order.UserID, order.TotalAmount, order.Status, order.CreatedAt).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err = conn.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, game_id, game_name, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, order.ID, i, item.GameID, item.GameName, item.Quantity, item.UnitPrice, item.Subtotal)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}

	return nil
}

const orderColumns = `id, user_id, total_amount, status, payment_method, created_at, paid_at`

func scanOrder(row interface{ Scan(...any) error }, order *domain.Order) error {
	return row.Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.Status,
		&order.PaymentMethod, &order.CreatedAt, &order.PaidAt)
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	conn := postgres.Conn(ctx, r.db)
	order := &domain.Order{Items: []domain.OrderItem{}}

	err := scanOrder(conn.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	orders := map[int64]*domain.Order{order.ID: order}
	if err := r.loadItems(ctx, conn, []int64{order.ID}, orders); err != nil {
		return nil, err
	}

	return order, nil
}

// ListByUser returns the user's orders newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	conn := postgres.Conn(ctx, r.db)

	rows, err := conn.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[int64]*domain.Order)
	var orderIDs []int64

	for rows.Next() {
		order := &domain.Order{Items: []domain.OrderItem{}}
		if err := scanOrder(rows, order); err != nil {
			return nil, err
		}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if err := r.loadItems(ctx, conn, orderIDs, orderMap); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, conn postgres.DBTX, orderIDs []int64, orders map[int64]*domain.Order) error {
	rows, err := conn.QueryContext(ctx, `
		SELECT order_id, game_id, game_name, quantity, unit_price, subtotal
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var orderID int64
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.GameID, &item.GameName, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return err
		}
		order := orders[orderID]
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

// TransitionStatus applies t only when the order is still in one of t.From.
// It reports false when the order does not exist or has moved on.
func (r *OrderRepository) TransitionStatus(ctx context.Context, t domain.StatusTransition) (bool, error) {
	from := make([]string, len(t.From))
	for i, s := range t.From {
		from[i] = s.String()
	}

	result, err := postgres.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE orders
		SET status = $3,
			paid_at = COALESCE($4, paid_at),
			payment_method = COALESCE($5, payment_method),
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
	`, t.OrderID, pq.Array(from), t.To, t.PaidAt, t.PaymentMethod)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

// ListAdmin returns one page of orders matching f, newest first, with the
// total number of matches.
func (r *OrderRepository) ListAdmin(ctx context.Context, f AdminFilter) ([]AdminOrderSummary, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != nil {
		conds = append(conds, "o.status = "+arg(*f.Status))
	}
	if f.UserID != nil {
		conds = append(conds, "o.user_id = "+arg(*f.UserID))
	}
	if f.UserName != "" {
		conds = append(conds, "u.name ILIKE '%' || "+arg(f.UserName)+" || '%'")
	}
	if f.Email != "" {
		conds = append(conds, "u.email ILIKE '%' || "+arg(f.Email)+" || '%'")
	}
	if f.From != nil {
		conds = append(conds, "o.created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "o.created_at <= "+arg(*f.To))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	conn := postgres.Conn(ctx, r.db)

	var total int
	if err := conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	limit := arg(f.Limit)
	offset := arg((f.Page - 1) * f.Limit)

	rows, err := conn.QueryContext(ctx, `
		SELECT o.id, o.user_id, COALESCE(u.name, ''), COALESCE(u.email, ''),
			o.total_amount, o.status, o.payment_method, o.created_at, o.paid_at
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		`+where+`
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []AdminOrderSummary{}
	for rows.Next() {
		var s AdminOrderSummary
		if err := rows.Scan(&s.OrderID, &s.UserID, &s.UserName, &s.Email,
			&s.TotalAmount, &s.Status, &s.PaymentMethod, &s.CreatedAt, &s.PaidAt); err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (r *OrderRepository) GetAdminDetails(ctx context.Context, id int64) (*AdminOrderDetails, error) {
	order, err := r.GetByID(ctx, id)
	if err != nil || order == nil {
		return nil, err
	}

	details := &AdminOrderDetails{Order: *order}
	err = postgres.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT name, email FROM users WHERE id = $1
	`, order.UserID).Scan(&details.UserName, &details.Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return details, nil
}
