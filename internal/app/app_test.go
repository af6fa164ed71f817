package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainshop/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		HTTPAddr:        "127.0.0.1:0",
		StoreDriver:     config.DriverMemory,
		OutboxInterval:  time.Second,
		ShutdownTimeout: time.Second,
		PageSize:        50,
		StatsCacheTTL:   time.Minute,
	}
}

func TestContainerWithMemoryStore(t *testing.T) {
	c, err := newContainer(context.Background(), memoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Shutdown(context.Background())) })

	assert.NotNil(t, c.Store())
	assert.NotNil(t, c.Tracer())
	assert.Nil(t, c.Redis())
	assert.Nil(t, c.EventProducer())
	assert.Nil(t, c.PaymentConsumer())

	factory := NewServiceFactory(c)
	assert.Nil(t, factory.CreateOutboxRelay())
	assert.Nil(t, factory.CreatePaymentConsumer(factory.CreateOrderService()))
}

func TestContainerWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	c, err := newContainer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Shutdown(context.Background())) })
	require.NotNil(t, c.Redis())

	app := newApplication(context.Background(), func() {}, c)
	rec := httptest.NewRecorder()
	app.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, mr.Exists("pr_chc:stats::"))
}

func TestContainerRejectsBadRedisURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.RedisURL = "://nope"
	_, err := newContainer(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	c, err := newContainer(context.Background(), memoryConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	app := newApplication(ctx, cancel, c)

	done := make(chan error, 1)
	go func() { done <- app.Run() }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}
	assert.NoError(t, app.Shutdown())
}
