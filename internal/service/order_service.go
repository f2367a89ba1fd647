package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-marketplace/internal/event"
	"go-marketplace/internal/model"
	"go-marketplace/pkg/apierror"
)

type OrderService struct {
	orders   OrderStore
	carts    CartStore
	products ProductStore
	bus      event.Bus
}

func NewOrderService(orders OrderStore, carts CartStore, products ProductStore, bus event.Bus) *OrderService {
	return &OrderService{orders: orders, carts: carts, products: products, bus: bus}
}

// Place turns the buyer's cart into an order. Stock is reserved first and
// returned if the order cannot be written.
func (s *OrderService) Place(ctx context.Context, actor model.AuditActor, buyer string) (model.Order, error) {
	cart, err := s.carts.Get(ctx, buyer)
	if err != nil {
		return model.Order{}, err
	}
	if len(cart.Items) == 0 {
		return model.Order{}, model.ErrCartEmpty
	}

	lines, err := s.products.Reserve(ctx, cart.Items)
	if err != nil {
		return model.Order{}, err
	}

	var total int64
	for i := range lines {
		lines[i].Status = model.OrderPlaced
		total += lines[i].UnitPriceCents * int64(lines[i].Quantity)
	}

	now := time.Now().UTC()
	order := model.Order{
		ID:            uuid.NewString(),
		BuyerUsername: buyer,
		Status:        model.OrderPlaced,
		TotalCents:    total,
		Items:         lines,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		if restockErr := s.products.Restock(context.WithoutCancel(ctx), lines); restockErr != nil {
			slog.ErrorContext(ctx, "restock after failed order", "error", restockErr, "buyer", buyer)
		}
		return model.Order{}, err
	}

	if err := s.carts.Clear(ctx, buyer); err != nil {
		slog.WarnContext(ctx, "clear cart after order", "error", err, "order_id", order.ID)
	}

	e := event.New(event.TypeOrderPlaced, actor, "orders/"+order.ID)
	e.After = map[string]any{"total_cents": order.TotalCents, "items": len(order.Items)}
	publish(s.bus, e)

	return order, nil
}

func (s *OrderService) ListForBuyer(ctx context.Context, buyer string) ([]model.Order, error) {
	return s.orders.ListByBuyer(ctx, buyer)
}

func (s *OrderService) ListForSeller(ctx context.Context, seller string) ([]model.Order, error) {
	return s.orders.ListBySeller(ctx, seller)
}

// UpdateStatus moves the seller's lines of an order to shipped or cancelled.
// Cancelled lines return their quantities to stock.
func (s *OrderService) UpdateStatus(ctx context.Context, actor model.AuditActor, seller string, orderID string, rawStatus string) (model.Order, error) {
	next := model.OrderStatus(strings.ToLower(strings.TrimSpace(rawStatus)))
	if next != model.OrderShipped && next != model.OrderCancelled {
		return model.Order{}, apierror.Validation("status must be shipped or cancelled", "status")
	}
	if _, err := uuid.Parse(strings.TrimSpace(orderID)); err != nil {
		return model.Order{}, model.ErrOrderNotFound
	}

	order, err := s.orders.UpdateStatus(ctx, strings.TrimSpace(orderID), seller, next)
	if err != nil {
		return model.Order{}, err
	}

	// order carries only this seller's lines.
	if next == model.OrderCancelled {
		if err := s.products.Restock(context.WithoutCancel(ctx), order.Items); err != nil {
			slog.ErrorContext(ctx, "restock cancelled order", "error", err, "order_id", order.ID, "seller", seller)
		}
	}

	e := event.New(event.TypeOrderStatusChanged, actor, "orders/"+order.ID)
	e.Before = map[string]string{"status": string(model.OrderPlaced)}
	e.After = map[string]string{"status": string(next)}
	publish(s.bus, e)

	return order, nil
}
