package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderItem struct {
	GameID    int64           `json:"game_id"`
	GameName  string          `json:"game_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// NewOrderItem freezes a basket line into an order item.
func NewOrderItem(line BasketLine) OrderItem {
	return OrderItem{
		GameID:    line.GameID,
		GameName:  line.GameName,
		Quantity:  line.Quantity,
		UnitPrice: line.UnitPrice,
		Subtotal:  line.Subtotal(),
	}
}

type Order struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Items         []OrderItem     `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        OrderStatus     `json:"status"`
	PaymentMethod *string         `json:"payment_method,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}

// AccessibleBy reports whether the caller may read or act on the order.
func (o *Order) AccessibleBy(userID int64, role Role) bool {
	return role == RoleAdmin || o.UserID == userID
}

// StatusTransition is a compare-and-set on an order's status.
type StatusTransition struct {
	OrderID       int64
	From          []OrderStatus
	To            OrderStatus
	PaidAt        *time.Time
	PaymentMethod *string
}
