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

// SigningKeyRepository keeps per-user HMAC secrets in Postgres.
type SigningKeyRepository struct {
	pool *pgxpool.Pool
}

func NewSigningKeyRepository(pool *pgxpool.Pool) *SigningKeyRepository {
	return &SigningKeyRepository{pool: pool}
}

func (r *SigningKeyRepository) Get(ctx context.Context, ownerID string) (model.SigningKey, error) {
	var key model.SigningKey
	err := r.pool.QueryRow(ctx,
		`SELECT owner_id, secret, created_at FROM signing_keys WHERE owner_id = $1`, ownerID).
		Scan(&key.OwnerID, &key.Secret, &key.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SigningKey{}, model.ErrSigningKeyNotFound
	}
	if err != nil {
		return model.SigningKey{}, fmt.Errorf("get signing key: %w", err)
	}
	return key, nil
}

// GetOrCreate stores secret only when the owner has no key yet and returns
// whichever key won. Concurrent callers all observe the same secret.
func (r *SigningKeyRepository) GetOrCreate(ctx context.Context, ownerID string, secret string) (model.SigningKey, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO signing_keys (owner_id, secret, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (owner_id) DO NOTHING`,
		ownerID, secret, time.Now().UTC())
	if err != nil {
		return model.SigningKey{}, fmt.Errorf("insert signing key: %w", err)
	}
	return r.Get(ctx, ownerID)
}
