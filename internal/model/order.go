package model

import (
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderPlaced    OrderStatus = "placed"
	OrderShipped   OrderStatus = "shipped"
	OrderCancelled OrderStatus = "cancelled"
)

// CanTransition reports whether a seller may move lines from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return s == OrderPlaced && (next == OrderShipped || next == OrderCancelled)
}

// Order.Status is rolled up from its lines: placed while any line is still
// placed, then shipped while any line shipped, otherwise cancelled.
type Order struct {
	ID            string      `json:"id"`
	BuyerUsername string      `json:"buyer_username"`
	Status        OrderStatus `json:"status"`
	TotalCents    int64       `json:"total_cents"`
	Items         []OrderItem `json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ProductID      string      `json:"product_id"`
	SellerUsername string      `json:"seller_username"`
	Name           string      `json:"name"`
	UnitPriceCents int64       `json:"unit_price_cents"`
	Quantity       int         `json:"quantity"`
	Status         OrderStatus `json:"status"`
}

func (i OrderItem) SoldBy(seller string) bool {
	return strings.EqualFold(i.SellerUsername, strings.TrimSpace(seller))
}

func RollupStatus(items []OrderItem) OrderStatus {
	if len(items) == 0 {
		return OrderPlaced
	}
	shipped := false
	for _, item := range items {
		switch item.Status {
		case OrderPlaced, "":
			return OrderPlaced
		case OrderShipped:
			shipped = true
		}
	}
	if shipped {
		return OrderShipped
	}
	return OrderCancelled
}

// SellerView narrows the order to one seller's lines, with Status rolled up
// from those lines only. ok is false when the seller sold nothing in it.
func (o Order) SellerView(seller string) (view Order, ok bool) {
	view = o
	view.Items = make([]OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		if item.SoldBy(seller) {
			view.Items = append(view.Items, item)
		}
	}
	if len(view.Items) == 0 {
		return Order{}, false
	}
	view.Status = RollupStatus(view.Items)
	return view, true
}

type OrderListData struct {
	Items []Order `json:"items"`
}
