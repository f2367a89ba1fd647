package service

import (
	"context"
	"strings"

	"go-marketplace/internal/event"
	"go-marketplace/internal/model"
	"go-marketplace/pkg/apierror"
)

// UserService carries the admin operations on identities.
type UserService struct {
	users AdminUserStore
	bus   event.Bus
}

func NewUserService(users AdminUserStore, bus event.Bus) *UserService {
	return &UserService{users: users, bus: bus}
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) ListPendingSellers(ctx context.Context) ([]model.User, error) {
	return s.users.ListPendingSellers(ctx)
}

// ReviewSeller approves or rejects a pending seller. Approved and rejected are
// terminal; reviewing them again yields model.ErrSellerNotPending.
func (s *UserService) ReviewSeller(ctx context.Context, actor model.AuditActor, username string, decision string) (model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.User{}, apierror.Validation("username is required", "username")
	}
	status, ok := model.ParseSellerDecision(decision)
	if !ok {
		return model.User{}, apierror.Validation("decision must be approved or rejected", "decision")
	}

	user, err := s.users.ReviewSeller(ctx, username, status)
	if err != nil {
		return model.User{}, err
	}

	e := event.New(event.TypeSellerReviewed, actor, "users/"+user.Username)
	e.Before = map[string]string{"seller_status": string(model.SellerPending)}
	e.After = map[string]string{"seller_status": string(status)}
	publish(s.bus, e)

	return user, nil
}

func (s *UserService) UpdateRole(ctx context.Context, actor model.AuditActor, username string, rawRole string) (model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.User{}, apierror.Validation("username is required", "username")
	}
	role, ok := model.ParseRole(rawRole)
	if !ok {
		return model.User{}, apierror.Validation("role must be user, seller or admin", "role")
	}

	before, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return model.User{}, err
	}

	user, err := s.users.UpdateRole(ctx, username, role)
	if err != nil {
		return model.User{}, err
	}

	e := event.New(event.TypeUserRoleChanged, actor, "users/"+user.Username)
	e.Before = map[string]string{"role": string(before.Role)}
	e.After = map[string]string{"role": string(user.Role)}
	publish(s.bus, e)

	return user, nil
}
