// Package orders holds the order ledger: checkout turns a user's cart into an
// order, and the reversal paths (cancel, return) put the stock back.
package orders

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"rainshop/internal/domain"
	"rainshop/internal/money"
	"rainshop/internal/platform/observability"
	"rainshop/internal/store"
)

type Service struct {
	store  store.Store
	logger observability.Logger
	tracer observability.Tracer
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source used for order timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, logger observability.Logger, tracer observability.Tracer, opts ...Option) *Service {
	s := &Service{store: st, logger: logger, tracer: tracer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder converts every line of the user's cart into one CREATED order.
// The cart is read and locked inside the unit of work and validated as a
// whole before anything is written. The order with its items, the stock
// decrements, the cart cleanup and the order.created event then commit
// together or not at all.
func (s *Service) PlaceOrder(ctx context.Context, userID int64) (_ *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.place_order")
	span.SetAttributes(attribute.Int64("user.id", userID))
	defer func() { observability.EndSpan(span, err, "order placed") }()

	var order *domain.Order
	err = store.WithTx(ctx, s.store, func(tx store.Tx) error {
		lines, err := tx.CartSnapshotForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := validateCart(lines); err != nil {
			return err
		}
		if order, err = buildOrder(userID, lines, s.now().UTC()); err != nil {
			return err
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.InsertOrderItems(ctx, order.ID, order.Items); err != nil {
			return err
		}
		lineIDs := make([]int64, 0, len(lines))
		for _, line := range lines {
			if _, err := tx.AdjustStock(ctx, line.ProductID, -line.Quantity); err != nil {
				return err
			}
			lineIDs = append(lineIDs, line.ID)
		}
		if err := tx.DeleteCartLines(ctx, lineIDs...); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, domain.NewOrderEvent(domain.EventOrderCreated, order, order.CreatedAt))
	})
	var de *domain.Error
	if errors.As(err, &de) {
		s.logger.Info("Checkout rejected", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	if err != nil {
		s.logger.Error("Order creation failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, domain.ErrOrderCreationFailed(err)
	}

	span.SetAttributes(
		attribute.Int64("order.id", order.ID),
		attribute.Int("order.items", len(order.Items)),
		attribute.String("order.total", order.Total.String()),
	)
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.Total.String()),
	)
	return order, nil
}

// validateCart checks the whole snapshot before any write: the cart must not
// be empty and every line must be covered by live stock.
func validateCart(lines []domain.CartLine) error {
	if len(lines) == 0 {
		return domain.ErrEmptyCart()
	}
	for _, line := range lines {
		if line.Product == nil {
			return domain.ErrProductNotFound(line.ProductID)
		}
		if !line.Product.CanSupply(line.Quantity) {
			return domain.ErrInsufficientStock(line.ProductID, line.Product.Quantity)
		}
	}
	return nil
}

// buildOrder snapshots product name and price into one item per line.
func buildOrder(userID int64, lines []domain.CartLine, now time.Time) (*domain.Order, error) {
	order := &domain.Order{
		UserID:    userID,
		Status:    domain.OrderStatusCreated,
		Total:     money.Zero(lines[0].Product.Price.Currency),
		Items:     make([]domain.OrderItem, 0, len(lines)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, line := range lines {
		productID := line.ProductID
		lineTotal := line.Product.Price.Mul(line.Quantity)
		total, err := order.Total.Add(lineTotal)
		if err != nil {
			return nil, err
		}
		order.Total = total
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:    &productID,
			ProductName:  line.Product.Name,
			ProductPrice: line.Product.Price,
			LineTotal:    lineTotal,
			Quantity:     line.Quantity,
			CreatedAt:    now,
		})
	}
	return order, nil
}

// CancelOrder restocks every item and moves the order to CANCELLED.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	return s.reverse(ctx, "orders.cancel", userID, orderID, domain.OrderStatusCancelled, domain.EventOrderCancelled)
}

// ReturnOrder restocks every item and moves the order to RETURNED. Orders
// that were never paid can be returned as well.
func (s *Service) ReturnOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	return s.reverse(ctx, "orders.return", userID, orderID, domain.OrderStatusReturned, domain.EventOrderReturned)
}

func (s *Service) reverse(ctx context.Context, spanName string, userID, orderID int64, to domain.OrderStatus, eventType string) (_ *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, spanName)
	span.SetAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int64("order.id", orderID),
		attribute.String("order.target_status", string(to)),
	)
	defer func() { observability.EndSpan(span, err, "order reversed") }()

	order, err := s.transition(ctx, orderID, to, eventType, func(tx store.Tx, order *domain.Order) error {
		if order.UserID != userID {
			return domain.ErrNotFound("order")
		}
		if !order.Status.CanTransitionTo(to) {
			return domain.ErrInvalidTransition(order.Status, to)
		}
		return s.restock(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order reversed",
		zap.Int64("order_id", orderID),
		zap.String("status", string(order.Status)),
		zap.Int("items", len(order.Items)),
	)
	return order, nil
}

// restock puts every item quantity back on its product, in product order.
// Items whose product has been deleted are skipped.
func (s *Service) restock(ctx context.Context, tx store.Tx, order *domain.Order) error {
	items := slices.Clone(order.Items)
	slices.SortStableFunc(items, func(a, b domain.OrderItem) int {
		return cmp.Compare(productKey(a), productKey(b))
	})
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		if _, err := tx.AdjustStock(ctx, *item.ProductID, item.Quantity); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("Skipping restock of missing product",
					zap.Int64("order_id", order.ID),
					zap.Int64("product_id", *item.ProductID),
				)
				continue
			}
			return err
		}
	}
	return nil
}

func productKey(item domain.OrderItem) int64 {
	if item.ProductID == nil {
		return 0
	}
	return *item.ProductID
}

// MarkPaid moves a CREATED order to PAID. It backs the payment callback and
// the payment consumer.
func (s *Service) MarkPaid(ctx context.Context, orderID int64) (_ *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.mark_paid")
	span.SetAttributes(attribute.Int64("order.id", orderID))
	defer func() { observability.EndSpan(span, err, "order paid") }()

	order, err := s.transition(ctx, orderID, domain.OrderStatusPaid, domain.EventOrderPaid,
		func(_ store.Tx, order *domain.Order) error {
			if !order.Status.CanTransitionTo(domain.OrderStatusPaid) {
				return domain.ErrInvalidTransition(order.Status, domain.OrderStatusPaid)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order paid", zap.Int64("order_id", orderID), zap.String("total", order.Total.String()))
	return order, nil
}

// transition locks the order, runs guard (which may write inside the same
// unit of work), then flips the status and records the event.
func (s *Service) transition(
	ctx context.Context,
	orderID int64,
	to domain.OrderStatus,
	eventType string,
	guard func(tx store.Tx, order *domain.Order) error,
) (*domain.Order, error) {
	var result *domain.Order
	err := store.WithTx(ctx, s.store, func(tx store.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrNotFound("order")
		}
		if err != nil {
			return err
		}
		if err := guard(tx, order); err != nil {
			return err
		}

		from := order.Status
		now := s.now().UTC()
		if err := tx.UpdateOrderStatus(ctx, order.ID, from, to, now); err != nil {
			return err
		}
		order.Status = to
		order.UpdatedAt = now
		if err := tx.AppendEvent(ctx, domain.NewOrderEvent(eventType, order, now)); err != nil {
			return err
		}
		result = order
		return nil
	})
	return result, err
}

func (s *Service) GetOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrNotFound("order")
	}
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrNotFound("order")
	}
	return order, nil
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID int64, page store.Page) ([]domain.Order, int, error) {
	return s.store.ListOrders(ctx, userID, page)
}
