package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go-marketplace/internal/event"
	"go-marketplace/internal/model"
	"go-marketplace/pkg/apierror"
)

type AuditService struct {
	store AuditStore
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store}
}

// Consume persists every event published on bus until ctx is done or the
// subscription closes.
func (s *AuditService) Consume(ctx context.Context, bus event.Bus) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.record(ctx, e)
		}
	}
}

func (s *AuditService) record(ctx context.Context, e event.Event) {
	// Writes outlive request cancellation but not shutdown.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.store.Log(writeCtx, e.AuditEntry()); err != nil {
		slog.Error("persist audit entry", "error", err, "type", string(e.Type), "event_id", e.ID)
	}
}

// AuditFilter is the raw admin audit filter as it arrives on the query string.
type AuditFilter struct {
	Types    []string
	Actor    string
	Role     string
	Outcome  string
	Resource string
	From     string
	To       string
	Page     int
	Limit    int
}

func (s *AuditService) Query(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, model.Meta, error) {
	query, err := buildAuditQuery(filter)
	if err != nil {
		return nil, model.Meta{}, err
	}
	return s.store.Query(ctx, query)
}

func buildAuditQuery(filter AuditFilter) (model.AuditQuery, error) {
	query := model.AuditQuery{
		ActorUsername:  strings.TrimSpace(filter.Actor),
		ResourcePrefix: strings.TrimSpace(filter.Resource),
		Page:           filter.Page,
		Limit:          filter.Limit,
	}

	for _, raw := range filter.Types {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			t, ok := event.ParseType(part)
			if !ok {
				return model.AuditQuery{}, apierror.Validation("unknown audit event type: "+strings.TrimSpace(part), "type")
			}
			query.Types = append(query.Types, string(t))
		}
	}

	if raw := strings.TrimSpace(filter.Role); raw != "" {
		role, ok := model.ParseRole(raw)
		if !ok {
			return model.AuditQuery{}, apierror.Validation("role must be user, seller or admin", "role")
		}
		query.ActorRole = role
	}

	switch outcome := strings.ToLower(strings.TrimSpace(filter.Outcome)); outcome {
	case "", event.StatusSuccess, event.StatusDenied:
		query.Outcome = outcome
	default:
		return model.AuditQuery{}, apierror.Validation("outcome must be success or denied", "outcome")
	}

	var err error
	if query.From, err = parseOptionalAuditTime(filter.From); err != nil {
		return model.AuditQuery{}, apierror.Validation("invalid 'from' datetime format", "from")
	}
	if query.To, err = parseOptionalAuditTime(filter.To); err != nil {
		return model.AuditQuery{}, apierror.Validation("invalid 'to' datetime format", "to")
	}
	if !query.From.IsZero() && !query.To.IsZero() && query.To.Before(query.From) {
		return model.AuditQuery{}, apierror.Validation("'to' is before 'from'", "to")
	}

	return query, nil
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	if value, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return value.UTC(), nil
	}

	value, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, err
	}

	return value.UTC(), nil
}
