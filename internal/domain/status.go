package domain

import (
	"database/sql/driver"
	"fmt"
	"sort"
)

// OrderStatus is the order lifecycle state. The zero value is
// OrderStatusUnknown, which is what unrecognised stored values decode to.
type OrderStatus uint8

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusPending
	OrderStatusPaid
	OrderStatusCancelled
	OrderStatusPaymentFailed
)

var orderStatusNames = map[OrderStatus]string{
	OrderStatusUnknown:       "Unknown",
	OrderStatusPending:       "Pending",
	OrderStatusPaid:          "Paid",
	OrderStatusCancelled:     "Cancelled",
	OrderStatusPaymentFailed: "PaymentFailed",
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:       {OrderStatusPaid, OrderStatusCancelled, OrderStatusPaymentFailed},
	OrderStatusPaymentFailed: {OrderStatusPending, OrderStatusPaid, OrderStatusCancelled},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	for status, name := range orderStatusNames {
		if status != OrderStatusUnknown && name == s {
			return status, nil
		}
	}
	return OrderStatusUnknown, fmt.Errorf("unknown order status %q", s)
}

func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return orderStatusNames[OrderStatusUnknown]
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderStatusesInto lists every status with a legal transition to target,
// in declaration order.
func OrderStatusesInto(target OrderStatus) []OrderStatus {
	var from []OrderStatus
	for status := range orderTransitions {
		if status.CanTransitionTo(target) {
			from = append(from, status)
		}
	}
	sort.Slice(from, func(i, j int) bool { return from[i] < from[j] })
	return from
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OrderStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseOrderStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s OrderStatus) Value() (driver.Value, error) {
	if s == OrderStatusUnknown {
		return nil, fmt.Errorf("refusing to persist unknown order status")
	}
	return s.String(), nil
}

// Scan never fails on an unrecognised string; legacy rows read as Unknown.
func (s *OrderStatus) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return err
	}
	parsed, err := ParseOrderStatus(raw)
	if err != nil {
		*s = OrderStatusUnknown
		return nil
	}
	*s = parsed
	return nil
}

// PaymentStatus is the state of a single payment attempt.
type PaymentStatus uint8

const (
	PaymentStatusUnknown PaymentStatus = iota
	PaymentStatusPending
	PaymentStatusPaid
	PaymentStatusFailed
)

var paymentStatusNames = map[PaymentStatus]string{
	PaymentStatusUnknown: "Unknown",
	PaymentStatusPending: "Pending",
	PaymentStatusPaid:    "Paid",
	PaymentStatusFailed:  "Failed",
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	for status, name := range paymentStatusNames {
		if status != PaymentStatusUnknown && name == s {
			return status, nil
		}
	}
	return PaymentStatusUnknown, fmt.Errorf("unknown payment status %q", s)
}

func (s PaymentStatus) String() string {
	if name, ok := paymentStatusNames[s]; ok {
		return name
	}
	return paymentStatusNames[PaymentStatusUnknown]
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed
}

func (s PaymentStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *PaymentStatus) UnmarshalText(text []byte) error {
	parsed, err := ParsePaymentStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s PaymentStatus) Value() (driver.Value, error) {
	if s == PaymentStatusUnknown {
		return nil, fmt.Errorf("refusing to persist unknown payment status")
	}
	return s.String(), nil
}

func (s *PaymentStatus) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return err
	}
	parsed, err := ParsePaymentStatus(raw)
	if err != nil {
		*s = PaymentStatusUnknown
		return nil
	}
	*s = parsed
	return nil
}

func scanString(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("cannot scan %T into status", src)
	}
}
