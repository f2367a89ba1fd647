package event

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"go-marketplace/internal/model"
)

type Type string

const (
	TypeSellerReviewed     Type = "seller.reviewed"
	TypeUserRoleChanged    Type = "user.role_changed"
	TypeProductCreated     Type = "product.created"
	TypeProductUpdated     Type = "product.updated"
	TypeProductDeleted     Type = "product.deleted"
	TypeOrderPlaced        Type = "order.placed"
	TypeOrderStatusChanged Type = "order.status_changed"
	TypeAuthDenied         Type = "auth.denied"
)

var knownTypes = []Type{
	TypeSellerReviewed,
	TypeUserRoleChanged,
	TypeProductCreated,
	TypeProductUpdated,
	TypeProductDeleted,
	TypeOrderPlaced,
	TypeOrderStatusChanged,
	TypeAuthDenied,
}

// ParseType accepts a known event type in any case.
func ParseType(raw string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range knownTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

const (
	StatusSuccess = "success"
	StatusDenied  = "denied"
)

type Event struct {
	ID        string           `json:"id"`
	Type      Type             `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Actor     model.AuditActor `json:"actor"`
	Status    string           `json:"status"`
	Resource  string           `json:"resource,omitempty"`
	Before    any              `json:"before,omitempty"`
	After     any              `json:"after,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// New stamps an id and the current time on a successful event.
func New(t Type, actor model.AuditActor, resource string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Status:    StatusSuccess,
		Resource:  resource,
	}
}

// AuditEntry converts the event into its persisted audit form.
func (e Event) AuditEntry() model.AuditEntry {
	return model.AuditEntry{
		Action:     string(e.Type),
		OccurredAt: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Actor:      e.Actor,
		Status:     e.Status,
		Resource:   e.Resource,
		Before:     e.Before,
		After:      e.After,
		Error:      e.Error,
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
