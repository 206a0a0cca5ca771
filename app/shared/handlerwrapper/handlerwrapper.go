package handlerwrapper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Black-And-White-Club/raffle-bot/app/shared/eventbus"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result is one outgoing message produced by a handler.
type Result struct {
	Topic    string
	Payload  any
	Metadata map[string]string
}

// Metrics records handler outcomes.
type Metrics interface {
	RecordHandlerAttempt(ctx context.Context, handlerName string)
	RecordHandlerSuccess(ctx context.Context, handlerName string)
	RecordHandlerFailure(ctx context.Context, handlerName string)
	RecordHandlerDuration(ctx context.Context, handlerName string, duration time.Duration)
}

// NoOpMetrics discards handler measurements.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordHandlerAttempt(context.Context, string)                 {}
func (NoOpMetrics) RecordHandlerSuccess(context.Context, string)                 {}
func (NoOpMetrics) RecordHandlerFailure(context.Context, string)                 {}
func (NoOpMetrics) RecordHandlerDuration(context.Context, string, time.Duration) {}

// WrapTransformingTyped adapts a typed handler into a watermill handler. The
// incoming payload is decoded into T, and every Result is encoded into an
// outgoing message that keeps the incoming correlation id. A returned error
// nacks the message so the router can retry it.
func WrapTransformingTyped[T any](
	handlerName string,
	logger *slog.Logger,
	tracer trace.Tracer,
	metrics Metrics,
	handler func(ctx context.Context, payload *T) ([]Result, error),
) message.HandlerFunc {
	if metrics == nil {
		metrics = NoOpMetrics{}
	}

	return func(msg *message.Message) ([]*message.Message, error) {
		ctx, span := tracer.Start(msg.Context(), handlerName, trace.WithAttributes(
			attribute.String("message.id", msg.UUID),
			attribute.String("message.correlation_id", middleware.MessageCorrelationID(msg)),
		))
		defer span.End()

		ctx = eventbus.WithMessage(ctx, msg)
		start := time.Now()
		metrics.RecordHandlerAttempt(ctx, handlerName)
		defer func() {
			metrics.RecordHandlerDuration(ctx, handlerName, time.Since(start))
		}()

		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			// A payload that cannot decode will never succeed; drop it.
			logger.ErrorContext(ctx, "Failed to unmarshal payload",
				slog.String("handler", handlerName),
				slog.String("message_id", msg.UUID),
				slog.Any("error", err),
			)
			metrics.RecordHandlerFailure(ctx, handlerName)
			span.RecordError(err)
			span.SetStatus(codes.Error, "unmarshal failed")
			return nil, nil
		}

		results, err := handler(ctx, payload)
		if err != nil {
			logger.ErrorContext(ctx, "Handler failed",
				slog.String("handler", handlerName),
				slog.String("message_id", msg.UUID),
				slog.Any("error", err),
			)
			metrics.RecordHandlerFailure(ctx, handlerName)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%s: %w", handlerName, err)
		}

		out := make([]*message.Message, 0, len(results))
		for _, r := range results {
			outMsg, err := newResultMessage(msg, r)
			if err != nil {
				metrics.RecordHandlerFailure(ctx, handlerName)
				span.RecordError(err)
				return nil, fmt.Errorf("%s: %w", handlerName, err)
			}
			out = append(out, outMsg)
		}

		metrics.RecordHandlerSuccess(ctx, handlerName)
		logger.DebugContext(ctx, "Handler completed",
			slog.String("handler", handlerName),
			slog.Int("results", len(out)),
		)
		return out, nil
	}
}

func newResultMessage(in *message.Message, r Result) (*message.Message, error) {
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result for %s: %w", r.Topic, err)
	}

	out := message.NewMessage(watermill.NewUUID(), data)
	out.SetContext(in.Context())
	for k, v := range r.Metadata {
		out.Metadata.Set(k, v)
	}
	// The router publishes to the topic in metadata when the handler has no
	// fixed publish topic.
	out.Metadata.Set("topic", r.Topic)
	middleware.SetCorrelationID(middleware.MessageCorrelationID(in), out)
	return out, nil
}
