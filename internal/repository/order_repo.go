package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-marketplace/internal/model"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create writes the order and its lines in one transaction.
func (r *OrderRepository) Create(ctx context.Context, order model.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, buyer_username, status, total_cents, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, order.BuyerUsername, string(order.Status), order.TotalCents, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, item := range order.Items {
		batch.Queue(
			`INSERT INTO order_items (order_id, product_id, seller_username, name, unit_price_cents, quantity, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.ID, item.ProductID, item.SellerUsername, item.Name, item.UnitPriceCents, item.Quantity, string(item.Status))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *OrderRepository) ListByBuyer(ctx context.Context, username string) ([]model.Order, error) {
	orders, err := r.listOrders(ctx,
		`SELECT id, buyer_username, status, total_cents, created_at, updated_at
		 FROM orders WHERE lower(buyer_username) = lower($1)
		 ORDER BY created_at DESC`, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	return orders, r.attachItems(ctx, orders, "")
}

// ListBySeller returns orders holding at least one of the seller's products,
// narrowed to that seller's lines.
func (r *OrderRepository) ListBySeller(ctx context.Context, username string) ([]model.Order, error) {
	seller := strings.TrimSpace(username)
	orders, err := r.listOrders(ctx,
		`SELECT o.id, o.buyer_username, o.status, o.total_cents, o.created_at, o.updated_at
		 FROM orders o
		 WHERE EXISTS (
		     SELECT 1 FROM order_items i
		     WHERE i.order_id = o.id AND lower(i.seller_username) = lower($1)
		 )
		 ORDER BY o.created_at DESC`, seller)
	if err != nil {
		return nil, err
	}
	return orders, r.attachItems(ctx, orders, seller)
}

// UpdateStatus moves the seller's lines of an order to next. Lines of other
// sellers are left alone and orders.status is rolled up from every line. The
// order row is locked so concurrent transitions see each other.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, seller string, next model.OrderStatus) (model.Order, error) {
	seller = strings.TrimSpace(seller)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Order{}, fmt.Errorf("begin order status tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var order model.Order
	var status string
	err = tx.QueryRow(ctx,
		`SELECT id, buyer_username, status, total_cents, created_at, updated_at
		 FROM orders WHERE id = $1
		 FOR UPDATE`, orderID).
		Scan(&order.ID, &order.BuyerUsername, &status, &order.TotalCents, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, model.ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("load order: %w", err)
	}
	order.Status = model.OrderStatus(status)

	order.Items, err = scanItems(tx.Query(ctx,
		`SELECT order_id, product_id, seller_username, name, unit_price_cents, quantity, status
		 FROM order_items WHERE order_id = $1
		 ORDER BY product_id`, order.ID))
	if err != nil {
		return model.Order{}, err
	}

	mine, ok := order.SellerView(seller)
	if !ok {
		return model.Order{}, model.ErrOrderNotFound
	}
	if !mine.Status.CanTransition(next) {
		return model.Order{}, model.ErrInvalidOrderStatus
	}

	for i := range order.Items {
		if order.Items[i].SoldBy(seller) {
			order.Items[i].Status = next
		}
	}
	order.Status = model.RollupStatus(order.Items)
	order.UpdatedAt = time.Now().UTC()

	if _, err := tx.Exec(ctx,
		`UPDATE order_items SET status = $3
		 WHERE order_id = $1 AND lower(seller_username) = lower($2)`,
		order.ID, seller, string(next)); err != nil {
		return model.Order{}, fmt.Errorf("update order item status: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		order.ID, string(order.Status), order.UpdatedAt); err != nil {
		return model.Order{}, fmt.Errorf("update order status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Order{}, fmt.Errorf("commit order status: %w", err)
	}

	view, _ := order.SellerView(seller)
	return view, nil
}

func (r *OrderRepository) listOrders(ctx context.Context, query string, arg string) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		var o model.Order
		var status string
		if err := rows.Scan(&o.ID, &o.BuyerUsername, &status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		o.Items = []model.OrderItem{}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// attachItems loads order lines. A non-empty seller keeps only that seller's
// lines and reports the status of those lines.
func (r *OrderRepository) attachItems(ctx context.Context, orders []model.Order, seller string) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	byOrder, err := scanItemsByOrder(r.pool.Query(ctx,
		`SELECT order_id, product_id, seller_username, name, unit_price_cents, quantity, status
		 FROM order_items
		 WHERE order_id = ANY($1::uuid[])
		 ORDER BY order_id, product_id`, ids))
	if err != nil {
		return err
	}

	for id, items := range byOrder {
		i, ok := index[id]
		if !ok {
			continue
		}
		orders[i].Items = items
		if seller == "" {
			continue
		}
		if view, ok := orders[i].SellerView(seller); ok {
			orders[i] = view
		} else {
			orders[i].Items = []model.OrderItem{}
		}
	}
	return nil
}

func scanItems(rows pgx.Rows, err error) ([]model.OrderItem, error) {
	byOrder, err := scanItemsByOrder(rows, err)
	if err != nil {
		return nil, err
	}
	items := make([]model.OrderItem, 0)
	for _, lines := range byOrder {
		items = append(items, lines...)
	}
	return items, nil
}

func scanItemsByOrder(rows pgx.Rows, err error) (map[string][]model.OrderItem, error) {
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[string][]model.OrderItem)
	for rows.Next() {
		var orderID, status string
		var item model.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.SellerUsername, &item.Name,
			&item.UnitPriceCents, &item.Quantity, &status); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Status = model.OrderStatus(status)
		byOrder[orderID] = append(byOrder[orderID], item)
	}
	return byOrder, rows.Err()
}
