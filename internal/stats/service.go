// Package stats builds the per-product sales report.
package stats

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"rainshop/internal/platform/observability"
	"rainshop/internal/store"
)

type Service struct {
	store  store.Reader
	cache  Cache
	logger observability.Logger
	tracer observability.Tracer
}

func NewService(st store.Reader, cache Cache, logger observability.Logger, tracer observability.Tracer) *Service {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Service{store: st, cache: cache, logger: logger, tracer: tracer}
}

// Report aggregates order items per product for orders created between
// startDate and endDate (YYYY-MM-DD, inclusive). When either date is missing
// or malformed the report covers all orders. Cache failures are logged and
// the report is computed from the store.
func (s *Service) Report(ctx context.Context, startDate, endDate string) (_ *Report, err error) {
	ctx, span := s.tracer.Start(ctx, "stats.report")
	defer func() { observability.EndSpan(span, err, "report built") }()

	filter, filtered := ParseWindow(startDate, endDate)
	key := CacheKey("", "")
	if filtered {
		key = CacheKey(startDate, endDate)
	}
	span.SetAttributes(attribute.Bool("stats.filtered", filtered), attribute.String("stats.cache_key", key))

	cached, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Stats cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		span.SetAttributes(attribute.Bool("stats.cache_hit", true))
		return cached, nil
	}

	products, err := s.store.ProductStats(ctx, filter)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.OrderCounts(ctx, filter)
	if err != nil {
		return nil, err
	}
	report := buildReport(products, counts)

	if err := s.cache.Set(ctx, key, report); err != nil {
		s.logger.Warn("Stats cache write failed", zap.String("key", key), zap.Error(err))
	}
	return report, nil
}
