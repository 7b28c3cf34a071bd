package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
)

const StripeProviderName = "Stripe"

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type StripeConfig struct {
	APIKey    string
	AccountID string
	// Currency is an ISO 4217 code; amounts are sent in its minor unit.
	Currency   string
	HTTPClient *http.Client
	Logger     *slog.Logger

	intents stripePaymentIntentAPI
}

// StripeProvider drives payments through Stripe PaymentIntents. Stripe's
// status vocabulary is translated here and nowhere else.
type StripeProvider struct {
	intents  stripePaymentIntentAPI
	account  string
	currency string
	logger   *slog.Logger
}

func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	intents := cfg.intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		var backends *stripe.Backends
		if cfg.HTTPClient != nil {
			backends = stripe.NewBackends(cfg.HTTPClient)
		}
		intents = client.New(apiKey, backends).PaymentIntents
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "inr"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeProvider{
		intents:  intents,
		account:  strings.TrimSpace(cfg.AccountID),
		currency: currency,
		logger:   logger,
	}, nil
}

func (p *StripeProvider) CreatePayment(ctx context.Context, orderID, userID int64, amount decimal.Decimal) (ProviderResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount.Shift(2).Round(0).IntPart()),
		Currency: stripe.String(p.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(fmt.Sprintf("order_%d", orderID)),
	}
	params.Context = ctx
	p.applyAccount(&params.Params)
	params.AddMetadata("order_id", strconv.FormatInt(orderID, 10))
	params.AddMetadata("user_id", strconv.FormatInt(userID, 10))

	intent, err := p.intents.New(params)
	if err != nil {
		return ProviderResult{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger.InfoContext(ctx, "stripe payment intent created",
		"order_id", orderID, "payment_intent", intent.ID, "status", intent.Status)

	return ProviderResult{
		Success:    true,
		ExternalID: intent.ID,
		Provider:   StripeProviderName,
		Status:     domain.PaymentStatusPending,
		Amount:     amount,
		Message:    "Stripe payment intent created",
	}, nil
}

func (p *StripeProvider) ConfirmPayment(ctx context.Context, externalID string) (ProviderResult, error) {
	intent, err := p.get(ctx, externalID)
	if err != nil {
		return ProviderResult{}, err
	}

	result := ProviderResult{
		ExternalID: intent.ID,
		Provider:   StripeProviderName,
		Amount:     decimal.New(intent.Amount, -2),
	}

	if settled(intent.Status) {
		result.Success = true
		result.Status = domain.PaymentStatusPaid
		result.Message = "Payment confirmed successfully"
		return result, nil
	}

	result.Status = domain.PaymentStatusFailed
	result.Message = fmt.Sprintf("Payment not successful. Status = %s", intent.Status)
	return result, nil
}

func (p *StripeProvider) FailPayment(ctx context.Context, externalID, reason string) (ProviderResult, error) {
	intent, err := p.get(ctx, externalID)
	if err != nil {
		return ProviderResult{}, err
	}

	if settled(intent.Status) {
		return ProviderResult{}, fmt.Errorf("stripe: payment intent %s is %s and cannot be marked failed", intent.ID, intent.Status)
	}

	if intent.Status != stripe.PaymentIntentStatusCanceled {
		params := &stripe.PaymentIntentCancelParams{
			CancellationReason: stripe.String("abandoned"),
		}
		params.Context = ctx
		p.applyAccount(&params.Params)

		canceled, err := p.intents.Cancel(intent.ID, params)
		if err != nil {
			return ProviderResult{}, fmt.Errorf("stripe: cancel payment intent: %w", err)
		}
		intent = canceled
	}

	message := strings.TrimSpace(reason)
	if message == "" {
		message = fmt.Sprintf("Payment failed with status %s", intent.Status)
	}

	return ProviderResult{
		Success:    false,
		ExternalID: intent.ID,
		Provider:   StripeProviderName,
		Status:     domain.PaymentStatusFailed,
		Amount:     decimal.New(intent.Amount, -2),
		Message:    message,
	}, nil
}

func (p *StripeProvider) get(ctx context.Context, externalID string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	p.applyAccount(&params.Params)

	intent, err := p.intents.Get(externalID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get payment intent: %w", err)
	}
	return intent, nil
}

func (p *StripeProvider) applyAccount(params *stripe.Params) {
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
}

// settled reports whether Stripe holds the funds: captured or authorized
// for later capture.
func settled(status stripe.PaymentIntentStatus) bool {
	return status == stripe.PaymentIntentStatusSucceeded || status == stripe.PaymentIntentStatusRequiresCapture
}
