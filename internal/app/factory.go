package app

import (
	"rainshop/internal/cart"
	"rainshop/internal/catalog"
	"rainshop/internal/httpapi"
	"rainshop/internal/orders"
	"rainshop/internal/outbox"
	"rainshop/internal/payments"
	"rainshop/internal/stats"
)

// ServiceFactory creates business logic services with their dependencies
type ServiceFactory struct {
	container *Container
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(container *Container) *ServiceFactory {
	return &ServiceFactory{container: container}
}

func (f *ServiceFactory) CreateCatalogService() *catalog.Service {
	return catalog.NewService(f.container.Store(), f.container.Logger(), f.container.Tracer())
}

func (f *ServiceFactory) CreateCartService() *cart.Service {
	return cart.NewService(f.container.Store(), f.container.Logger(), f.container.Tracer())
}

func (f *ServiceFactory) CreateOrderService() *orders.Service {
	return orders.NewService(f.container.Store(), f.container.Logger(), f.container.Tracer())
}

// CreateStatsService uses the redis cache when redis is configured.
func (f *ServiceFactory) CreateStatsService() *stats.Service {
	var cache stats.Cache = stats.NoopCache{}
	if client := f.container.Redis(); client != nil {
		cache = stats.NewRedisCache(client, f.container.Config().StatsCacheTTL)
	}
	return stats.NewService(f.container.Store(), cache, f.container.Logger(), f.container.Tracer())
}

// CreateHTTPHandler wires every service into the REST router.
func (f *ServiceFactory) CreateHTTPHandler(orderService *orders.Service) *httpapi.Handler {
	services := httpapi.Services{
		Catalog: f.CreateCatalogService(),
		Cart:    f.CreateCartService(),
		Orders:  orderService,
		Stats:   f.CreateStatsService(),
	}
	return httpapi.NewHandler(services, f.container.Store(), f.container.Logger(), f.container.Config().PageSize)
}

// CreateOutboxRelay returns nil when no kafka producer is configured.
func (f *ServiceFactory) CreateOutboxRelay() *outbox.Relay {
	producer := f.container.EventProducer()
	if producer == nil {
		return nil
	}
	return outbox.NewRelay(f.container.Store(), producer, f.container.Logger(), f.container.Tracer(),
		f.container.Config().OutboxInterval)
}

// CreatePaymentConsumer returns nil when no kafka consumer is configured.
func (f *ServiceFactory) CreatePaymentConsumer(orderService *orders.Service) payments.ConsumerService {
	consumer := f.container.PaymentConsumer()
	if consumer == nil {
		return nil
	}
	handler := payments.NewMessageHandler(orderService, f.container.Logger())
	return payments.NewConsumerService(consumer, handler, f.container.Logger())
}
