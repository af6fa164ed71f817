// Package cart manages the per-user pending selections that checkout turns
// into orders.
package cart

import (
	"context"
	"errors"
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

// AddOrMerge adds the requested quantity to the user's line for the product,
// creating the line if needed. The combined quantity is checked against live
// stock and the line bounds; nothing is reserved.
func (s *Service) AddOrMerge(ctx context.Context, userID int64, req AddToCartRequest) (_ *domain.CartLine, err error) {
	ctx, span := s.tracer.Start(ctx, "cart.add_or_merge")
	span.SetAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int64("product.id", req.ProductID),
		attribute.Int("cart.requested_quantity", req.Quantity),
	)
	defer func() { observability.EndSpan(span, err, "cart line saved") }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	var saved *domain.CartLine
	err = store.WithTx(ctx, s.store, func(tx store.Tx) error {
		product, err := tx.GetProductForUpdate(ctx, req.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrProductNotFound(req.ProductID)
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		line, err := tx.FindCartLineForUpdate(ctx, userID, req.ProductID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			line = &domain.CartLine{UserID: userID, ProductID: req.ProductID, CreatedAt: now}
		case err != nil:
			return err
		}

		combined := line.Quantity + req.Quantity
		if combined > domain.MaxCartQuantity {
			return domain.ErrInvalidInput("quantity",
				"Ensure this value is less than or equal to 999.")
		}
		if !product.CanSupply(combined) {
			return domain.ErrInsufficientStock(product.ID, product.Quantity)
		}

		line.Quantity = combined
		line.UpdatedAt = now
		if err := tx.SaveCartLine(ctx, line); err != nil {
			return err
		}
		line.Product = product
		saved = line
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("cart.line_id", saved.ID), attribute.Int("cart.quantity", saved.Quantity))
	s.logger.Info("Cart line saved",
		zap.Int64("user_id", userID),
		zap.Int64("cart_line_id", saved.ID),
		zap.Int64("product_id", saved.ProductID),
		zap.Int("quantity", saved.Quantity),
	)
	return saved, nil
}

// UpdateCartLine replaces the line quantity. Stock is not checked here; the
// line reports availability through IsAvailableAsSelected instead.
func (s *Service) UpdateCartLine(ctx context.Context, userID, lineID int64, req UpdateCartLineRequest) (_ *domain.CartLine, err error) {
	ctx, span := s.tracer.Start(ctx, "cart.update_line")
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.Int64("cart.line_id", lineID))
	defer func() { observability.EndSpan(span, err, "cart line updated") }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	var updated *domain.CartLine
	err = store.WithTx(ctx, s.store, func(tx store.Tx) error {
		line, err := s.ownedLine(ctx, tx.GetCartLineForUpdate, userID, lineID)
		if err != nil {
			return err
		}
		line.Quantity = req.Quantity
		line.UpdatedAt = s.now().UTC()
		if err := tx.SaveCartLine(ctx, line); err != nil {
			return err
		}
		updated = line
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !updated.IsAvailableAsSelected() {
		s.logger.Info("Cart line exceeds live stock",
			zap.Int64("cart_line_id", lineID),
			zap.Int("quantity", updated.Quantity),
			zap.Int("max_quantity", updated.MaxQuantity()),
		)
	}
	return updated, nil
}

func (s *Service) RemoveCartLine(ctx context.Context, userID, lineID int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "cart.remove_line")
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.Int64("cart.line_id", lineID))
	defer func() { observability.EndSpan(span, err, "cart line removed") }()

	return store.WithTx(ctx, s.store, func(tx store.Tx) error {
		if _, err := s.ownedLine(ctx, tx.GetCartLineForUpdate, userID, lineID); err != nil {
			return err
		}
		return tx.DeleteCartLines(ctx, lineID)
	})
}

func (s *Service) GetCartLine(ctx context.Context, userID, lineID int64) (*domain.CartLine, error) {
	return s.ownedLine(ctx, s.store.GetCartLine, userID, lineID)
}

func (s *Service) ListCart(ctx context.Context, userID int64, page store.Page) ([]domain.CartLine, int, error) {
	return s.store.ListCartLines(ctx, userID, page)
}

// ownedLine loads a line and hides lines of other users behind NotFound.
func (s *Service) ownedLine(
	ctx context.Context,
	load func(context.Context, int64) (*domain.CartLine, error),
	userID, lineID int64,
) (*domain.CartLine, error) {
	line, err := load(ctx, lineID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrNotFound("cart line")
	}
	if err != nil {
		return nil, err
	}
	if line.UserID != userID {
		return nil, domain.ErrNotFound("cart line")
	}
	return line, nil
}
