package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-marketplace/internal/model"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	occurredAt, err := time.Parse(time.RFC3339Nano, entry.OccurredAt)
	if err != nil {
		occurredAt = time.Now().UTC()
	}
	before, err := jsonColumn(entry.Before)
	if err != nil {
		return fmt.Errorf("encode audit before: %w", err)
	}
	after, err := jsonColumn(entry.After)
	if err != nil {
		return fmt.Errorf("encode audit after: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_entries
		 (action, occurred_at, actor_user_id, actor_username, actor_role, actor_ip,
		  status, resource, before_data, after_data, error_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.Action, occurredAt,
		entry.Actor.UserID, entry.Actor.Username, entry.Actor.Role, entry.Actor.IP,
		entry.Status, entry.Resource, before, after, entry.Error)
	if err != nil {
		return fmt.Errorf("log audit entry: %w", err)
	}
	return nil
}

func jsonColumn(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// auditFilter renders an AuditQuery as a WHERE clause with numbered args.
type auditFilter struct {
	conds []string
	args  []any
}

func (f *auditFilter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(cond, len(f.args)))
}

func (f *auditFilter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(f.conds, " AND ")
}

func newAuditFilter(q model.AuditQuery) *auditFilter {
	f := &auditFilter{}
	if len(q.Types) > 0 {
		f.add("action = ANY($%d)", q.Types)
	}
	if q.ActorUsername != "" {
		f.add("lower(actor_username) = lower($%d)", q.ActorUsername)
	}
	if q.ActorRole != "" {
		f.add("actor_role = $%d", string(q.ActorRole))
	}
	if q.Outcome != "" {
		f.add("status = $%d", q.Outcome)
	}
	if q.ResourcePrefix != "" {
		f.add(`resource LIKE $%d ESCAPE '\'`, escapeLike(q.ResourcePrefix)+"%")
	}
	if !q.From.IsZero() {
		f.add("occurred_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		f.add("occurred_at <= $%d", q.To)
	}
	return f
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func clampAuditPage(q model.AuditQuery) (page int, limit int) {
	page, limit = q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	return page, limit
}

// Query returns matching entries newest first, with the total in meta.
func (r *AuditRepository) Query(ctx context.Context, q model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	page, limit := clampAuditPage(q)
	filter := newAuditFilter(q)

	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM audit_entries "+filter.where(), filter.args...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count audit entries: %w", err)
	}
	meta := model.Meta{Page: page, Limit: limit, Total: total, TotalPages: (total + limit - 1) / limit}
	if total == 0 {
		return []model.AuditEntry{}, meta, nil
	}

	args := append(filter.args, limit, (page-1)*limit)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT action, occurred_at, actor_user_id, actor_username, actor_role, actor_ip,
		        status, resource, before_data, after_data, error_text
		 FROM audit_entries %s
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`, filter.where(), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query audit entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("scan audit entries: %w", err)
	}
	return entries, meta, nil
}

func scanAuditEntry(row pgx.CollectableRow) (model.AuditEntry, error) {
	var e model.AuditEntry
	var occurredAt time.Time
	var before, after []byte
	if err := row.Scan(
		&e.Action, &occurredAt,
		&e.Actor.UserID, &e.Actor.Username, &e.Actor.Role, &e.Actor.IP,
		&e.Status, &e.Resource, &before, &after, &e.Error,
	); err != nil {
		return model.AuditEntry{}, err
	}

	e.OccurredAt = occurredAt.UTC().Format(time.RFC3339Nano)
	// Payloads are informational; an undecodable one is dropped.
	if len(before) > 0 {
		_ = json.Unmarshal(before, &e.Before)
	}
	if len(after) > 0 {
		_ = json.Unmarshal(after, &e.After)
	}
	return e, nil
}
