// Package payments consumes payment confirmations and marks orders paid.
package payments

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"rainshop/internal/platform/kafka"
	"rainshop/internal/platform/observability"
)

type ConsumerService interface {
	Start(ctx context.Context) error
}

type KafkaConsumerService struct {
	consumer       kafka.Consumer
	messageHandler MessageHandler
	logger         observability.Logger
}

func NewConsumerService(consumer kafka.Consumer, messageHandler MessageHandler, logger observability.Logger) ConsumerService {
	return &KafkaConsumerService{
		consumer:       consumer,
		messageHandler: messageHandler,
		logger:         logger,
	}
}

// Start reads messages until ctx is cancelled. Read errors are logged and
// the loop keeps going.
func (c *KafkaConsumerService) Start(ctx context.Context) error {
	c.logger.Info("Kafka consumer started. Waiting for payment messages...")

	for {
		msg, err := c.consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context done, exiting Kafka read loop.", zap.Error(err))
				break
			}
			c.logger.Error("❌ Error reading from Kafka", zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if err := c.messageHandler.HandlePaymentCompleted(ctx, *msg); err != nil {
			continue
		}
	}

	c.logger.Info("Consumer service finished. Shutting down...")
	return nil
}
