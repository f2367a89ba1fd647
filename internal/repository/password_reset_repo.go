package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-marketplace/internal/model"
)

type PasswordResetRepository struct {
	pool *pgxpool.Pool
}

func NewPasswordResetRepository(pool *pgxpool.Pool) *PasswordResetRepository {
	return &PasswordResetRepository{pool: pool}
}

func (r *PasswordResetRepository) Store(ctx context.Context, reset model.PasswordReset) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO password_resets (token_hash, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		reset.TokenHash, reset.UserID, reset.ExpiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store password reset: %w", err)
	}
	return nil
}

// Consume marks an unexpired, unused reset as used and returns its owner.
// A token can be consumed at most once.
func (r *PasswordResetRepository) Consume(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := r.pool.QueryRow(ctx,
		`UPDATE password_resets SET used_at = now()
		 WHERE token_hash = $1 AND used_at IS NULL AND expires_at > now()
		 RETURNING user_id`, tokenHash).Scan(&userID)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrResetTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume password reset: %w", err)
	}
	return userID, nil
}

func (r *PasswordResetRepository) CleanExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM password_resets WHERE expires_at <= now() OR used_at IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("clean expired password resets: %w", err)
	}
	return tag.RowsAffected(), nil
}
