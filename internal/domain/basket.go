package domain

import "github.com/shopspring/decimal"

// BasketLine is one line of a user's basket at checkout time.
type BasketLine struct {
	GameID    int64           `json:"game_id"`
	GameName  string          `json:"game_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l BasketLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Basket struct {
	UserID int64           `json:"user_id"`
	Lines  []BasketLine    `json:"items"`
	Total  decimal.Decimal `json:"total"`
}

func NewBasket(userID int64, lines []BasketLine) Basket {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	if lines == nil {
		lines = []BasketLine{}
	}
	return Basket{UserID: userID, Lines: lines, Total: total}
}
