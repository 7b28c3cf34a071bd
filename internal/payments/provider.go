package payments

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
)

// Provider is a payment backend. The service never branches on which
// implementation it holds.
type Provider interface {
	CreatePayment(ctx context.Context, orderID, userID int64, amount decimal.Decimal) (ProviderResult, error)
	ConfirmPayment(ctx context.Context, externalID string) (ProviderResult, error)
	FailPayment(ctx context.Context, externalID, reason string) (ProviderResult, error)
}

// ProviderResult is a provider's normalised answer. A returned error means
// the call itself failed; Success=false means the provider answered but the
// payment did not go through.
type ProviderResult struct {
	Success    bool
	ExternalID string
	Provider   string
	Status     domain.PaymentStatus
	Amount     decimal.Decimal
	Message    string
}
