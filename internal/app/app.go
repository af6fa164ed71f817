package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rainshop/internal/outbox"
	"rainshop/internal/payments"
)

const readHeaderTimeout = 10 * time.Second

// Application holds all the components and manages the application lifecycle
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
	server    *http.Server
	relay     *outbox.Relay
	consumer  payments.ConsumerService
}

// NewApplication creates and fully initializes a new Application instance
func NewApplication(ctx context.Context) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	container, err := NewContainer(appCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	app := newApplication(appCtx, cancel, container)
	container.Logger().Info("Application initialized successfully")
	return app, nil
}

func newApplication(ctx context.Context, cancel context.CancelFunc, container *Container) *Application {
	factory := NewServiceFactory(container)
	orderService := factory.CreateOrderService()
	handler := factory.CreateHTTPHandler(orderService)

	return &Application{
		ctx:       ctx,
		cancel:    cancel,
		container: container,
		server: &http.Server{
			Addr:              container.Config().HTTPAddr,
			Handler:           handler.Routes(),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		relay:    factory.CreateOutboxRelay(),
		consumer: factory.CreatePaymentConsumer(orderService),
	}
}

// Run serves HTTP and runs the background workers until the context is
// cancelled or one of them fails.
func (app *Application) Run() error {
	logger := app.container.Logger()
	g, ctx := errgroup.WithContext(app.ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.container.Config().ShutdownTimeout)
		defer cancel()
		logger.Info("Stopping HTTP server...")
		return app.server.Shutdown(shutdownCtx)
	})

	if app.relay != nil {
		g.Go(func() error { return app.relay.Start(ctx) })
	}
	if app.consumer != nil {
		g.Go(func() error { return app.consumer.Start(ctx) })
	}

	return g.Wait()
}

// Shutdown gracefully shuts down all application components
func (app *Application) Shutdown() error {
	app.container.Logger().Info("Starting application shutdown...")

	if app.cancel != nil {
		app.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.container.Config().ShutdownTimeout)
	defer cancel()
	return app.container.Shutdown(ctx)
}
