// Package outbox relays committed order events to kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"rainshop/internal/domain"
	"rainshop/internal/platform/kafka"
	"rainshop/internal/platform/observability"
	"rainshop/internal/store"
)

// BatchSize is the number of pending events drained per tick.
const BatchSize = 100

// Relay polls the outbox and publishes each pending event, marking it sent
// only after the broker accepted it. An event may therefore be published
// more than once.
type Relay struct {
	store    store.Store
	producer kafka.Producer
	logger   observability.Logger
	tracer   observability.Tracer
	interval time.Duration
}

func NewRelay(st store.Store, producer kafka.Producer, logger observability.Logger, tracer observability.Tracer, interval time.Duration) *Relay {
	return &Relay{store: st, producer: producer, logger: logger, tracer: tracer, interval: interval}
}

// Start drains the outbox every interval until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("Outbox relay started", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Context done, stopping outbox relay.")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("❌ Outbox flush failed", zap.Error(err))
			}
		}
	}
}

// Flush publishes one batch and returns how many events were marked sent.
// It stops at the first publish failure so events keep their order.
func (r *Relay) Flush(ctx context.Context) (sent int, err error) {
	ctx, span := r.tracer.Start(ctx, "outbox.flush")
	defer func() {
		span.SetAttributes(attribute.Int("outbox.sent", sent))
		observability.EndSpan(span, err, "outbox flushed")
	}()

	entries, err := r.store.PendingEvents(ctx, BatchSize)
	if err != nil {
		return 0, err
	}

	for _, entry := range entries {
		if err := r.publish(ctx, entry.Event); err != nil {
			return sent, err
		}
		if err := r.store.MarkEventSent(ctx, entry.ID); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (r *Relay) publish(ctx context.Context, event domain.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("❌ Failed to serialize order event",
			zap.Error(err),
			zap.String("event_id", event.ID),
		)
		return err
	}

	msg := kafkago.Message{
		Key:   []byte(strconv.FormatInt(event.OrderID, 10)),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := r.producer.WriteMessage(ctx, msg); err != nil {
		r.logger.Error("❌ Failed to publish order event",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.Int64("order_id", event.OrderID),
		)
		return err
	}

	r.logger.Info("📤 Sent order event",
		zap.String("event_type", event.Type),
		zap.Int64("order_id", event.OrderID),
	)
	return nil
}
