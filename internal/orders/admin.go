package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// AdminFilter narrows the admin order listing. Nil and empty fields do not
// filter.
type AdminFilter struct {
	Status   *domain.OrderStatus
	UserID   *int64
	UserName string
	Email    string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

func (f AdminFilter) normalized() AdminFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	return f
}

type AdminOrderSummary struct {
	OrderID       int64              `json:"order_id"`
	UserID        int64              `json:"user_id"`
	UserName      string             `json:"user_name"`
	Email         string             `json:"email"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	Status        domain.OrderStatus `json:"status"`
	PaymentMethod *string            `json:"payment_method,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	PaidAt        *time.Time         `json:"paid_at,omitempty"`
}

type AdminOrderDetails struct {
	domain.Order
	UserName string `json:"user_name"`
	Email    string `json:"email"`
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

func newPage[T any](items []T, page, limit, total int) Page[T] {
	return Page[T]{
		Items:      items,
		Page:       page,
		Limit:      limit,
		TotalCount: total,
		TotalPages: (total + limit - 1) / limit,
	}
}
