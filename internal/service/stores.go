package service

import (
	"context"
	"time"

	"go-marketplace/internal/event"
	"go-marketplace/internal/model"
)

// The interfaces below are satisfied by the repository package; services take
// them so tests can substitute in-memory fakes.

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	Create(ctx context.Context, u model.User) error
	UpdatePassword(ctx context.Context, userID string, passwordHash string, changedAt time.Time) error
}

type AdminUserStore interface {
	List(ctx context.Context) ([]model.User, error)
	ListPendingSellers(ctx context.Context) ([]model.User, error)
	ReviewSeller(ctx context.Context, username string, decision model.SellerStatus) (model.User, error)
	UpdateRole(ctx context.Context, username string, role model.Role) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
}

type PasswordResetStore interface {
	Store(ctx context.Context, reset model.PasswordReset) error
	Consume(ctx context.Context, tokenHash string) (string, error)
}

type SigningKeyStore interface {
	Get(ctx context.Context, ownerID string) (model.SigningKey, error)
	GetOrCreate(ctx context.Context, ownerID string, secret string) (model.SigningKey, error)
}

type ProductStore interface {
	Create(ctx context.Context, p model.Product) error
	FindByID(ctx context.Context, id string) (model.Product, error)
	Update(ctx context.Context, id string, mutate func(*model.Product) error) (model.Product, error)
	Delete(ctx context.Context, id string, check func(model.Product) error) error
	List(ctx context.Context, query model.ProductQuery) ([]model.Product, model.Meta, error)
	Reserve(ctx context.Context, items []model.CartItem) ([]model.OrderItem, error)
	Restock(ctx context.Context, lines []model.OrderItem) error
}

type CartStore interface {
	Get(ctx context.Context, username string) (model.Cart, error)
	Put(ctx context.Context, cart model.Cart) (model.Cart, error)
	Clear(ctx context.Context, username string) error
}

type OrderStore interface {
	Create(ctx context.Context, order model.Order) error
	ListByBuyer(ctx context.Context, username string) ([]model.Order, error)
	ListBySeller(ctx context.Context, username string) ([]model.Order, error)
	UpdateStatus(ctx context.Context, orderID string, seller string, next model.OrderStatus) (model.Order, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

func publish(bus event.Bus, e event.Event) {
	if bus == nil {
		return
	}
	bus.Publish(e)
}
