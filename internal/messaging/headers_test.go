package messaging

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestSetHeader(t *testing.T) {
	msg := kafka.Message{}

	setHeader(&msg, EventTypeHeader, "ORDER_CREATED")
	setHeader(&msg, EventTypeHeader, "PAYMENT_SUCCESS")
	setHeader(&msg, "other", "x")

	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "PAYMENT_SUCCESS", header(&msg, EventTypeHeader))
	assert.Equal(t, "", header(&msg, "missing"))
	assert.ElementsMatch(t, []string{EventTypeHeader, "other"}, headerCarrier{msg: &msg}.Keys())
}

func TestHeaderCarrier_PropagatesTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	propagator := propagation.TraceContext{}
	msg := kafka.Message{}
	propagator.Inject(ctx, headerCarrier{msg: &msg})
	assert.NotEmpty(t, header(&msg, "traceparent"))

	extracted := trace.SpanContextFromContext(propagator.Extract(context.Background(), headerCarrier{msg: &msg}))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.True(t, extracted.IsRemote())
}
