package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go-marketplace/internal/event"
	"go-marketplace/internal/model"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]model.User
	calls []string
	err   error
}

func newMemoryUsers(users ...model.User) *memoryUsers {
	m := &memoryUsers{users: map[string]model.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memoryUsers) find(call string, match func(model.User) bool) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if m.err != nil {
		return model.User{}, m.err
	}
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (m *memoryUsers) FindByID(_ context.Context, id string) (model.User, error) {
	return m.find("id", func(u model.User) bool { return u.ID == id })
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (model.User, error) {
	return m.find("email", func(u model.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *memoryUsers) FindByUsername(_ context.Context, username string) (model.User, error) {
	return m.find("username", func(u model.User) bool { return strings.EqualFold(u.Username, username) })
}

func (m *memoryUsers) Create(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return model.ErrUserAlreadyExists
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *memoryUsers) UpdatePassword(_ context.Context, userID string, hash string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	m.users[userID] = u
	return nil
}

func (m *memoryUsers) List(context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memoryUsers) ListPendingSellers(ctx context.Context) ([]model.User, error) {
	all, _ := m.List(ctx)
	out := make([]model.User, 0)
	for _, u := range all {
		if s := u.EffectiveSellerStatus(); s != nil && *s == model.SellerPending {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryUsers) ReviewSeller(ctx context.Context, username string, decision model.SellerStatus) (model.User, error) {
	u, err := m.FindByUsername(ctx, username)
	if err != nil {
		return model.User{}, err
	}
	if s := u.EffectiveSellerStatus(); s == nil || *s != model.SellerPending {
		return model.User{}, model.ErrSellerNotPending
	}
	u.SellerStatus = &decision
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
	return u, nil
}

func (m *memoryUsers) UpdateRole(ctx context.Context, username string, role model.Role) (model.User, error) {
	u, err := m.FindByUsername(ctx, username)
	if err != nil {
		return model.User{}, err
	}
	u.Role = role
	if role == model.RoleSeller {
		u.SellerStatus = u.EffectiveSellerStatus()
	} else {
		u.SellerStatus = nil
	}
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
	return u, nil
}

type memoryResets struct {
	mu     sync.Mutex
	resets map[string]model.PasswordReset
	now    func() time.Time
}

func newMemoryResets(now func() time.Time) *memoryResets {
	return &memoryResets{resets: map[string]model.PasswordReset{}, now: now}
}

func (m *memoryResets) Store(_ context.Context, reset model.PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[reset.TokenHash] = reset
	return nil
}

func (m *memoryResets) Consume(_ context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reset, ok := m.resets[tokenHash]
	if !ok || !m.now().Before(reset.ExpiresAt) {
		return "", model.ErrResetTokenNotFound
	}
	delete(m.resets, tokenHash)
	return reset.UserID, nil
}

type memoryKeys struct {
	mu   sync.Mutex
	keys map[string]model.SigningKey
}

func (m *memoryKeys) Get(_ context.Context, ownerID string) (model.SigningKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[ownerID]
	if !ok {
		return model.SigningKey{}, model.ErrSigningKeyNotFound
	}
	return key, nil
}

func (m *memoryKeys) GetOrCreate(_ context.Context, ownerID string, secret string) (model.SigningKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.keys[ownerID]; ok {
		return key, nil
	}
	key := model.SigningKey{OwnerID: ownerID, Secret: secret, CreatedAt: time.Now().UTC()}
	m.keys[ownerID] = key
	return key, nil
}

type memoryOrders struct {
	mu     sync.Mutex
	orders []model.Order
	err    error
}

func (m *memoryOrders) Create(_ context.Context, order model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	order.Items = append([]model.OrderItem(nil), order.Items...)
	m.orders = append(m.orders, order)
	return nil
}

func (m *memoryOrders) ListByBuyer(_ context.Context, username string) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, 0)
	for _, o := range m.orders {
		if strings.EqualFold(o.BuyerUsername, username) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memoryOrders) ListBySeller(_ context.Context, username string) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, 0)
	for _, o := range m.orders {
		if view, ok := o.SellerView(username); ok {
			out = append(out, view)
		}
	}
	return out, nil
}

func (m *memoryOrders) UpdateStatus(_ context.Context, orderID string, seller string, next model.OrderStatus) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.orders {
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
		m.orders[i] = o
		view, _ := o.SellerView(seller)
		return view, nil
	}
	return model.Order{}, model.ErrOrderNotFound
}

func (m *memoryOrders) find(orderID string) model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == orderID {
			return o
		}
	}
	return model.Order{}
}

// recordingBus delivers synchronously so tests can inspect published events.
type recordingBus struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *recordingBus) Publish(e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) Subscribe() (<-chan event.Event, func()) {
	ch := make(chan event.Event)
	return ch, func() {}
}

func (b *recordingBus) types() []event.Type {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]event.Type, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}
