package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-marketplace/internal/model"
)

const uniqueViolation = "23505"

const userColumns = `id, username, email, password_hash, role, seller_status,
		        password_changed_at, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	var role string
	var status *string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &status,
		&u.PasswordChangedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	if status != nil {
		s := model.SellerStatus(*status)
		u.SellerStatus = &s
	}
	return u, nil
}

func (r *UserRepository) findOne(ctx context.Context, where string, arg string, label string) (model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by %s: %w", label, err)
	}
	return u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	return r.findOne(ctx, `id = $1`, id, "id")
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, `lower(email) = lower($1)`, strings.TrimSpace(email), "email")
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (model.User, error) {
	return r.findOne(ctx, `lower(username) = lower($1)`, strings.TrimSpace(username), "username")
}

func (r *UserRepository) Create(ctx context.Context, u model.User) error {
	var status *string
	if u.SellerStatus != nil {
		s := string(*u.SellerStatus)
		status = &s
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, seller_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), status, u.CreatedAt, u.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// ReviewSeller moves a pending seller to the decided status. The WHERE clause is
// the state machine: rows that are not pending sellers are left untouched.
func (r *UserRepository) ReviewSeller(ctx context.Context, username string, decision model.SellerStatus) (model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET seller_status = $2, updated_at = $3
		 WHERE lower(username) = lower($1)
		   AND role = 'seller'
		   AND coalesce(seller_status, 'pending') = 'pending'
		 RETURNING `+userColumns,
		strings.TrimSpace(username), string(decision), time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, findErr := r.FindByUsername(ctx, username); findErr != nil {
			return model.User{}, findErr
		}
		return model.User{}, model.ErrSellerNotPending
	}
	if err != nil {
		return model.User{}, fmt.Errorf("review seller: %w", err)
	}
	return u, nil
}

// UpdateRole changes a user's role. Becoming a seller starts at pending review;
// leaving the seller role clears the status.
func (r *UserRepository) UpdateRole(ctx context.Context, username string, role model.Role) (model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET
		     role = $2,
		     seller_status = CASE
		         WHEN $2 = 'seller' THEN coalesce(seller_status, 'pending')
		         ELSE NULL
		     END,
		     updated_at = $3
		 WHERE lower(username) = lower($1)
		 RETURNING `+userColumns,
		strings.TrimSpace(username), string(role), time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("update role: %w", err)
	}
	return u, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID string, passwordHash string, changedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, password_changed_at = $3, updated_at = $3 WHERE id = $1`,
		userID, passwordHash, changedAt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY lower(username)`)
}

func (r *UserRepository) ListPendingSellers(ctx context.Context) ([]model.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users
		 WHERE role = 'seller' AND coalesce(seller_status, 'pending') = 'pending'
		 ORDER BY created_at`)
}

func (r *UserRepository) list(ctx context.Context, query string) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
