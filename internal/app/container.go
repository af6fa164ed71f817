package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"rainshop/internal/config"
	"rainshop/internal/platform/kafka"
	"rainshop/internal/platform/observability"
	platformpg "rainshop/internal/platform/postgres"
	"rainshop/internal/store"
	"rainshop/internal/store/memory"
	pgstore "rainshop/internal/store/postgres"
)

const redisPingTimeout = 3 * time.Second

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config            *config.Config
	logger            *zap.Logger
	tracer            observability.Tracer
	tracerProvider    trace.TracerProvider
	store             store.Store
	redis             *redis.Client
	eventProducer     kafka.Producer
	paymentConsumer   kafka.Consumer
	otelLogShutdown   func(context.Context) error
	otelTraceShutdown func(context.Context) error
}

// NewContainer loads the configuration and initializes all infrastructure
// components. Kafka and redis are optional and stay nil when unconfigured.
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return newContainer(ctx, cfg)
}

func newContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{config: cfg}

	// Start with a basic logger until the OTel bridge is available
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	container.logger = logger

	container.setupObservability(ctx)

	setups := []func(context.Context) error{
		container.setupStore,
		container.setupRedis,
		container.setupKafka,
	}
	for _, setup := range setups {
		if err := setup(ctx); err != nil {
			return nil, errors.Join(err, container.Shutdown(context.Background()))
		}
	}
	return container, nil
}

// setupObservability configures OpenTelemetry logging and tracing. Exporter
// failures are logged and the service keeps running without them.
func (c *Container) setupObservability(ctx context.Context) {
	otelLogShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
	}
	c.otelLogShutdown = otelLogShutdown

	tp, otelTraceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
	}
	c.otelTraceShutdown = otelTraceShutdown
	c.tracerProvider = tp

	// Re-initialize logger with OTel bridge
	c.logger = observability.NewLogger()
	c.logger.Info("Logger re-initialized with OpenTelemetry bridge")

	c.tracer = otel.Tracer(config.ServiceName)
}

func (c *Container) setupStore(ctx context.Context) error {
	if c.config.StoreDriver == config.DriverMemory {
		c.store = memory.New()
		c.logger.Warn("Using in-memory store, data is lost on restart")
		return nil
	}

	pool, err := platformpg.New(ctx, c.config.DatabaseURL)
	if err != nil {
		return err
	}
	if err := platformpg.Migrate(ctx, pool); err != nil {
		pool.Close()
		return err
	}
	c.store = pgstore.New(pool)
	c.logger.Info("Connected to PostgreSQL")
	return nil
}

func (c *Container) setupRedis(ctx context.Context) error {
	if c.config.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(c.config.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	c.redis = redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := c.redis.Ping(pingCtx).Err(); err != nil {
		c.logger.Warn("Redis not reachable, stats cache will miss until it is", zap.Error(err))
		return nil
	}
	c.logger.Info("Connected to Redis")
	return nil
}

// setupKafka initializes the order event producer and the payment consumer
// with OpenTelemetry instrumentation.
func (c *Container) setupKafka(ctx context.Context) error {
	if c.config.KafkaBroker == "" {
		c.logger.Info("KAFKA_BROKER not set, outbox relay and payment consumer disabled")
		return nil
	}

	producer, err := kafka.NewProducer(c.config.KafkaBroker, config.OrderEventsTopic, c.tracerProvider)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	c.eventProducer = producer

	consumer, err := kafka.NewConsumer(c.config.KafkaBroker, config.PaymentCompletedTopic, config.GroupID)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	c.paymentConsumer = consumer
	return nil
}

// Shutdown releases every component that was set up, in reverse order.
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down infrastructure...")

	var errs []error
	if c.paymentConsumer != nil {
		if err := c.paymentConsumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close payment consumer: %w", err))
		}
	}
	if c.eventProducer != nil {
		if err := c.eventProducer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event producer: %w", err))
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.store != nil {
		c.store.Close()
	}

	if err := observability.ShutdownAll(ctx, c.otelTraceShutdown, c.otelLogShutdown); err != nil {
		errs = append(errs, fmt.Errorf("shutdown OpenTelemetry: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		c.logger.Error("Infrastructure shutdown finished with errors", zap.Error(err))
	} else {
		c.logger.Info("Infrastructure shutdown complete")
	}
	// Sync on stdout returns EINVAL on some platforms.
	_ = c.logger.Sync()
	return err
}

// Getters for accessing infrastructure components
func (c *Container) Config() *config.Config          { return c.config }
func (c *Container) Logger() observability.Logger    { return c.logger }
func (c *Container) Tracer() observability.Tracer    { return c.tracer }
func (c *Container) Store() store.Store              { return c.store }
func (c *Container) Redis() *redis.Client            { return c.redis }
func (c *Container) EventProducer() kafka.Producer   { return c.eventProducer }
func (c *Container) PaymentConsumer() kafka.Consumer { return c.paymentConsumer }
