package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/gamestore-orderflow/internal/auth"
	"github.com/joao-fontenele/gamestore-orderflow/internal/messaging"
	"github.com/joao-fontenele/gamestore-orderflow/internal/orders"
	"github.com/joao-fontenele/gamestore-orderflow/internal/payments"
	"github.com/joao-fontenele/gamestore-orderflow/internal/postgres"
	"github.com/joao-fontenele/gamestore-orderflow/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	providerTimeout := payments.DefaultProviderTimeout
	if v := os.Getenv("PAYMENT_PROVIDER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			logger.Error("PAYMENT_PROVIDER_TIMEOUT must be a positive duration", "value", v)
			os.Exit(1)
		}
		providerTimeout = d
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "payments", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("payments", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	provider, err := newProvider(logger)
	if err != nil {
		logger.Error("failed to create payment provider", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(ctx, postgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   jwtSecret,
		Issuer:   os.Getenv("JWT_ISSUER"),
		Audience: os.Getenv("JWT_AUDIENCE"),
	})
	if err != nil {
		logger.Error("failed to create token verifier", "error", err)
		os.Exit(1)
	}

	deps := payments.ServiceDeps{
		Repo:            payments.NewPaymentRepository(db),
		Orders:          orders.NewOrderRepository(db),
		Provider:        provider,
		UoW:             postgres.NewUnitOfWork(db),
		Logger:          logger,
		ProviderTimeout: providerTimeout,
	}

	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		producer := messaging.NewProducer(strings.Split(kafkaBrokers, ","), messaging.PaymentEventsTopic)
		defer func() { _ = producer.Close() }()
		deps.Events = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, payment events will not be published")
	}

	service, err := payments.NewService(deps)
	if err != nil {
		logger.Error("failed to create payment service", "error", err)
		os.Exit(1)
	}

	callbackToken := os.Getenv("PAYMENT_CALLBACK_TOKEN")
	if callbackToken == "" {
		logger.Warn("PAYMENT_CALLBACK_TOKEN not set, provider callbacks are unauthenticated")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, telemetry.RouteAttribute)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", metricsHandler)
	payments.NewHandler(service, logger).Routes(r,
		auth.Authenticate(verifier, logger),
		auth.RequireCallbackToken(callbackToken, logger),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: otelhttp.NewHandler(r, "payments"),
		// Leaves room for a provider call that runs to its timeout.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: providerTimeout + 10*time.Second,
	}

	go func() {
		logger.Info("starting payments service", "port", port, "provider_timeout", providerTimeout.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// newProvider selects the payment provider named by PAYMENT_PROVIDER.
func newProvider(logger *slog.Logger) (payments.Provider, error) {
	switch name := strings.ToLower(os.Getenv("PAYMENT_PROVIDER")); name {
	case "", "manual":
		logger.Info("using manual payment provider")
		return payments.NewManualProvider(), nil
	case "stripe":
		logger.Info("using stripe payment provider")
		provider, err := payments.NewStripeProvider(payments.StripeConfig{
			APIKey:    os.Getenv("STRIPE_API_KEY"),
			AccountID: os.Getenv("STRIPE_ACCOUNT_ID"),
			Currency:  os.Getenv("PAYMENT_CURRENCY"),
			HTTPClient: &http.Client{
				Timeout:   30 * time.Second,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		return provider, nil
	default:
		return nil, errors.New("unknown PAYMENT_PROVIDER " + name + ", expected manual or stripe")
	}
}
