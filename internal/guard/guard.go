// Package guard holds the role, ownership and seller-approval checks applied
// to a resolved identity. Guards never touch storage.
package guard

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"go-marketplace/internal/model"
	"go-marketplace/pkg/apierror"
)

const (
	GuardRole      = "role"
	GuardOwnership = "ownership"
	GuardSeller    = "seller"
)

// Denial describes why a guard refused an identity. Reason is for logs and
// metrics; Message is what the client sees.
type Denial struct {
	Guard   string
	Reason  string
	Status  int
	Message string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s guard: %s", d.Guard, d.Reason)
}

func (d *Denial) APIError() *apierror.APIError {
	if d.Status == http.StatusBadRequest {
		return apierror.Validation(d.Message, "username")
	}
	return apierror.Forbidden(d.Message)
}

// RequireRole admits identities whose role is one of roles.
func RequireRole(id model.Identity, roles ...model.Role) error {
	if slices.Contains(roles, id.Role) {
		return nil
	}
	return &Denial{
		Guard:   GuardRole,
		Reason:  "role " + string(id.Role) + " not allowed",
		Status:  http.StatusForbidden,
		Message: "insufficient permissions",
	}
}

// VerifyOwnership admits the identity when resourceUsername names it by
// username or email, ignoring case. Admins get no bypass.
func VerifyOwnership(id model.Identity, resourceUsername string) error {
	owner := strings.TrimSpace(resourceUsername)
	if owner == "" {
		return &Denial{
			Guard:   GuardOwnership,
			Reason:  "missing resource owner",
			Status:  http.StatusBadRequest,
			Message: "username is required",
		}
	}
	if strings.EqualFold(owner, id.Username) || (id.Email != "" && strings.EqualFold(owner, id.Email)) {
		return nil
	}
	return &Denial{
		Guard:   GuardOwnership,
		Reason:  "not the resource owner",
		Status:  http.StatusForbidden,
		Message: "you can only access your own resources",
	}
}

// RequireApprovedSeller admits sellers whose account has been approved. A
// seller with no recorded status counts as pending.
func RequireApprovedSeller(id model.Identity) error {
	if id.Role != model.RoleSeller {
		return &Denial{
			Guard:   GuardSeller,
			Reason:  "not a seller",
			Status:  http.StatusForbidden,
			Message: "seller account required",
		}
	}

	status := model.SellerPending
	if id.SellerStatus != nil && *id.SellerStatus != "" {
		status = *id.SellerStatus
	}
	if status != model.SellerApproved {
		return &Denial{
			Guard:   GuardSeller,
			Reason:  "seller " + string(status),
			Status:  http.StatusForbidden,
			Message: "seller account is not approved",
		}
	}
	return nil
}
