package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/blackjack/internal/storage"
)

const instrumentation = "github.com/cory-johannsen/blackjack/internal/events"

// Bus publishes and consumes JSON-encoded events on a storage.EventLog.
type Bus struct {
	log    storage.EventLog
	logger *zap.Logger
	tracer trace.Tracer
}

// NewBus creates a Bus over log.
//
// Precondition: log and logger must be non-nil.
func NewBus(log storage.EventLog, logger *zap.Logger, opts ...Option) *Bus {
	o := collect(opts)
	return &Bus{log: log, logger: logger, tracer: o.tracerProvider.Tracer(instrumentation)}
}

// Publish appends payload to topic and returns the event id.
func (b *Bus) Publish(ctx context.Context, topic Topic, payload any) (string, error) {
	ctx, span := b.tracer.Start(ctx, "events.publish", trace.WithAttributes(attribute.String("topic", string(topic))))
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding %s payload: %w", topic, err)
	}
	id, err := b.log.Append(ctx, string(topic), data)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("publishing to %s: %w", topic, err)
	}
	b.logger.Debug("event published", zap.String("topic", string(topic)), zap.String("event_id", id))
	return id, nil
}

// ConsumeNext blocks until an event is leased from topic or ctx is done.
func (b *Bus) ConsumeNext(ctx context.Context, topic Topic) (storage.Event, error) {
	return b.log.Next(ctx, string(topic))
}

// Ack removes a handled event.
func (b *Bus) Ack(ctx context.Context, id string) error {
	return b.log.Ack(ctx, id)
}

// Option configures a Bus, Pool, or Listener.
type Option func(*options)

type options struct {
	tracerProvider trace.TracerProvider
}

// WithTracerProvider overrides the global otel tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

func collect(opts []Option) options {
	o := options{tracerProvider: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
