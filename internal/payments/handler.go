package payments

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"rainshop/internal/domain"
	"rainshop/internal/platform/observability"
)

// OrderPayer marks an order as paid.
type OrderPayer interface {
	MarkPaid(ctx context.Context, orderID int64) (*domain.Order, error)
}

// MessageHandler defines the interface for processing incoming messages.
type MessageHandler interface {
	HandlePaymentCompleted(ctx context.Context, msg kafkago.Message) error
}

// KafkaMessageHandler turns PaymentCompleted messages into ledger transitions.
type KafkaMessageHandler struct {
	orders OrderPayer
	logger observability.Logger
}

func NewMessageHandler(orders OrderPayer, logger observability.Logger) MessageHandler {
	return &KafkaMessageHandler{orders: orders, logger: logger}
}

// HandlePaymentCompleted processes one PaymentCompleted message. Malformed
// payloads and orders that cannot become PAID are logged and reported as
// errors; the caller moves on to the next message either way.
func (h *KafkaMessageHandler) HandlePaymentCompleted(ctx context.Context, msg kafkago.Message) error {
	msgCtx := h.extractTraceContext(ctx, msg.Headers)

	h.logger.Info("📨 Raw Kafka message received",
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var event domain.PaymentCompletedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("❌ Invalid JSON in PaymentCompleted event",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Value),
		)
		return err
	}
	if event.OrderID < 1 {
		err := domain.ErrInvalidInput("order_id", "Ensure this value is greater than or equal to 1.")
		h.logger.Error("❌ PaymentCompleted event without order id", zap.ByteString("raw_value", msg.Value))
		return err
	}

	order, err := h.orders.MarkPaid(msgCtx, event.OrderID)
	if err != nil {
		h.logger.Error("❌ Failed to mark order paid", zap.Error(err), zap.Int64("order_id", event.OrderID))
		return err
	}

	h.logger.Info("✅ Order marked paid", zap.Int64("order_id", order.ID))
	return nil
}

// extractTraceContext continues the producer's trace from the message headers.
func (h *KafkaMessageHandler) extractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		carrier[header.Key] = string(header.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
