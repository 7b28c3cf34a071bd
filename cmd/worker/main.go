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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/gamestore-orderflow/internal/messaging"
	"github.com/joao-fontenele/gamestore-orderflow/internal/telemetry"
	"github.com/joao-fontenele/gamestore-orderflow/internal/worker"
)

const consumerGroup = "notification-worker"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	emailServiceURL := os.Getenv("EMAIL_SERVICE_URL")
	if emailServiceURL == "" {
		logger.Error("EMAIL_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	recipientDomain := os.Getenv("EMAIL_RECIPIENT_DOMAIN")
	if recipientDomain == "" {
		recipientDomain = "example.com"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	handler := worker.NewNotificationHandler(emailServiceURL, recipientDomain, httpClient, logger)

	brokers := strings.Split(kafkaBrokers, ",")
	consumers := []*messaging.Consumer{
		messaging.NewConsumer(brokers, messaging.OrderEventsTopic, consumerGroup),
		messaging.NewConsumer(brokers, messaging.PaymentEventsTopic, consumerGroup),
	}

	logger.Info("starting notification worker", "brokers", brokers)

	g, gctx := errgroup.WithContext(ctx)
	for _, consumer := range consumers {
		defer func() { _ = consumer.Close() }()
		g.Go(func() error {
			err := consumer.Consume(gctx, handler.Handle)
			if gctx.Err() != nil {
				return nil
			}
			logger.Error("consumer stopped", "topic", consumer.Topic(), "error", err)
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
	logger.Info("consumers stopped")
}
