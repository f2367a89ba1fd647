package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"go-marketplace/internal/model"
)

// userTable is an in-memory stand-in for the Postgres user repository.
type userTable struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newUserTable(seed ...model.User) *userTable {
	t := &userTable{users: map[string]model.User{}}
	for _, u := range seed {
		t.users[u.ID] = u
	}
	return t
}

func (t *userTable) first(match func(model.User) bool) (model.User, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range t.users {
		if match(u) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (t *userTable) FindByID(_ context.Context, id string) (model.User, error) {
	return t.first(func(u model.User) bool { return u.ID == id })
}

func (t *userTable) FindByEmail(_ context.Context, email string) (model.User, error) {
	return t.first(func(u model.User) bool { return strings.EqualFold(u.Email, email) })
}

func (t *userTable) FindByUsername(_ context.Context, username string) (model.User, error) {
	return t.first(func(u model.User) bool { return strings.EqualFold(u.Username, username) })
}

func (t *userTable) Create(_ context.Context, u model.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return model.ErrUserAlreadyExists
		}
	}
	t.users[u.ID] = u
	return nil
}

func (t *userTable) UpdatePassword(_ context.Context, userID string, hash string, changedAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	t.users[userID] = u
	return nil
}

func (t *userTable) List(context.Context) ([]model.User, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.User, 0, len(t.users))
	for _, u := range t.users {
		out = append(out, u)
	}
	return out, nil
}

func (t *userTable) ListPendingSellers(ctx context.Context) ([]model.User, error) {
	all, _ := t.List(ctx)
	out := make([]model.User, 0)
	for _, u := range all {
		if s := u.EffectiveSellerStatus(); s != nil && *s == model.SellerPending {
			out = append(out, u)
		}
	}
	return out, nil
}

func (t *userTable) ReviewSeller(ctx context.Context, username string, decision model.SellerStatus) (model.User, error) {
	u, err := t.FindByUsername(ctx, username)
	if err != nil {
		return model.User{}, err
	}
	if s := u.EffectiveSellerStatus(); s == nil || *s != model.SellerPending {
		return model.User{}, model.ErrSellerNotPending
	}
	u.SellerStatus = &decision
	t.mu.Lock()
	t.users[u.ID] = u
	t.mu.Unlock()
	return u, nil
}

func (t *userTable) UpdateRole(ctx context.Context, username string, role model.Role) (model.User, error) {
	u, err := t.FindByUsername(ctx, username)
	if err != nil {
		return model.User{}, err
	}
	u.Role = role
	if role == model.RoleSeller {
		u.SellerStatus = u.EffectiveSellerStatus()
	} else {
		u.SellerStatus = nil
	}
	t.mu.Lock()
	t.users[u.ID] = u
	t.mu.Unlock()
	return u, nil
}

type resetTable struct {
	mu     sync.Mutex
	resets map[string]model.PasswordReset
}

func (t *resetTable) Store(_ context.Context, reset model.PasswordReset) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resets[reset.TokenHash] = reset
	return nil
}

func (t *resetTable) Consume(_ context.Context, tokenHash string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	reset, ok := t.resets[tokenHash]
	if !ok || time.Now().After(reset.ExpiresAt) {
		return "", model.ErrResetTokenNotFound
	}
	delete(t.resets, tokenHash)
	return reset.UserID, nil
}

type orderTable struct {
	mu     sync.Mutex
	orders []model.Order
}

func (t *orderTable) Create(_ context.Context, order model.Order) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	order.Items = append([]model.OrderItem(nil), order.Items...)
	t.orders = append(t.orders, order)
	return nil
}

func (t *orderTable) ListByBuyer(_ context.Context, username string) ([]model.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Order, 0)
	for _, o := range t.orders {
		if strings.EqualFold(o.BuyerUsername, username) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (t *orderTable) ListBySeller(_ context.Context, username string) ([]model.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Order, 0)
	for _, o := range t.orders {
		if view, ok := o.SellerView(username); ok {
			out = append(out, view)
		}
	}
	return out, nil
}

func (t *orderTable) UpdateStatus(_ context.Context, orderID string, seller string, next model.OrderStatus) (model.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, o := range t.orders {
		if o.ID != orderID {
			continue
		}
		mine, ok := o.SellerView(seller)
		if !ok {
			return model.Order{}, model.ErrOrderNotFound
		}
		if !mine.Status.CanTransition(next) {
			return model.Order{}, model.ErrInvalidOrderStatus
		}
		for j := range o.Items {
			if o.Items[j].SoldBy(seller) {
				o.Items[j].Status = next
			}
		}
		o.Status = model.RollupStatus(o.Items)
		t.orders[i] = o
		view, _ := o.SellerView(seller)
		return view, nil
	}
	return model.Order{}, model.ErrOrderNotFound
}

type auditTable struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (t *auditTable) Log(_ context.Context, entry model.AuditEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	return nil
}

func (t *auditTable) Query(_ context.Context, _ model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]model.AuditEntry(nil), t.entries...)
	return out, model.Meta{Page: 1, Limit: len(out), Total: len(out), TotalPages: 1}, nil
}
