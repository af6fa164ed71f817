// Package catalog manages the product inventory records.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"rainshop/internal/domain"
	"rainshop/internal/platform/observability"
	"rainshop/internal/store"
)

type Service struct {
	store  store.Store
	logger observability.Logger
	tracer observability.Tracer
	now    func() time.Time
}

func NewService(st store.Store, logger observability.Logger, tracer observability.Tracer) *Service {
	return &Service{store: st, logger: logger, tracer: tracer, now: time.Now}
}

func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (_ *domain.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "catalog.create_product")
	defer func() { observability.EndSpan(span, err, "product created") }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &domain.Product{
		Name:      strings.TrimSpace(req.Name),
		Cost:      req.Cost,
		Price:     req.Price,
		Quantity:  req.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = store.WithTx(ctx, s.store, func(tx store.Tx) error {
		return tx.InsertProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("product.id", p.ID))
	s.logger.Info("Product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrProductNotFound(id)
	}
	return p, err
}

func (s *Service) ListProducts(ctx context.Context, page store.Page) ([]domain.Product, int, error) {
	return s.store.ListProducts(ctx, page)
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req UpdateProductRequest) (_ *domain.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "catalog.update_product")
	span.SetAttributes(attribute.Int64("product.id", id))
	defer func() { observability.EndSpan(span, err, "product updated") }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	var updated *domain.Product
	err = store.WithTx(ctx, s.store, func(tx store.Tx) error {
		p, err := tx.GetProductForUpdate(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrProductNotFound(id)
		}
		if err != nil {
			return err
		}
		if req.Cost != nil {
			p.Cost = *req.Cost
		}
		if req.Price != nil {
			p.Price = *req.Price
		}
		if req.Quantity != nil {
			p.Quantity = *req.Quantity
		}
		p.UpdatedAt = s.now().UTC()
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product updated", zap.Int64("product_id", id), zap.Int("quantity", updated.Quantity))
	return updated, nil
}

// DeleteProduct removes the product. Order items keep their snapshot with a
// null product reference and cart lines for the product disappear.
func (s *Service) DeleteProduct(ctx context.Context, id int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "catalog.delete_product")
	span.SetAttributes(attribute.Int64("product.id", id))
	defer func() { observability.EndSpan(span, err, "product deleted") }()

	err = store.WithTx(ctx, s.store, func(tx store.Tx) error {
		return tx.DeleteProduct(ctx, id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrProductNotFound(id)
	}
	if err != nil {
		return err
	}

	s.logger.Info("Product deleted", zap.Int64("product_id", id))
	return nil
}
