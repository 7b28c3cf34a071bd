package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
)

const ManualProviderName = "Manual"

// ManualProvider settles instantly. It backs local development and
// out-of-band payments recorded by staff.
type ManualProvider struct{}

func NewManualProvider() *ManualProvider {
	return &ManualProvider{}
}

func (ManualProvider) CreatePayment(_ context.Context, _, _ int64, amount decimal.Decimal) (ProviderResult, error) {
	return ProviderResult{
		Success:    true,
		ExternalID: uuid.NewString(),
		Provider:   ManualProviderName,
		Status:     domain.PaymentStatusPending,
		Amount:     amount,
		Message:    "Manual payment created",
	}, nil
}

func (ManualProvider) ConfirmPayment(_ context.Context, externalID string) (ProviderResult, error) {
	return ProviderResult{
		Success:    true,
		ExternalID: externalID,
		Provider:   ManualProviderName,
		Status:     domain.PaymentStatusPaid,
		Message:    "Payment confirmed",
	}, nil
}

func (ManualProvider) FailPayment(_ context.Context, externalID, reason string) (ProviderResult, error) {
	return ProviderResult{
		Success:    false,
		ExternalID: externalID,
		Provider:   ManualProviderName,
		Status:     domain.PaymentStatusFailed,
		Message:    reason,
	}, nil
}
