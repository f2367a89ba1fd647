package service

import (
	"context"
	"errors"

	"go-marketplace/internal/model"
)

const signingKeyBytes = 32

// SigningKeyService hands out per-identity HMAC secrets. Keys are created on
// first request and never rotated automatically.
type SigningKeyService struct {
	keys SigningKeyStore
}

func NewSigningKeyService(keys SigningKeyStore) *SigningKeyService {
	return &SigningKeyService{keys: keys}
}

// GetOrCreateSigningKey returns the identity's secret, creating it on first
// use. Concurrent first calls converge on one stored secret.
func (s *SigningKeyService) GetOrCreateSigningKey(ctx context.Context, identityID string) (string, error) {
	key, err := s.keys.Get(ctx, identityID)
	if err == nil {
		return key.Secret, nil
	}
	if !errors.Is(err, model.ErrSigningKeyNotFound) {
		return "", err
	}

	secret, err := randomHex(signingKeyBytes)
	if err != nil {
		return "", err
	}
	key, err = s.keys.GetOrCreate(ctx, identityID, secret)
	if err != nil {
		return "", err
	}
	return key.Secret, nil
}

// GetSigningKey never creates a key; it reports model.ErrSigningKeyNotFound.
func (s *SigningKeyService) GetSigningKey(ctx context.Context, identityID string) (string, error) {
	key, err := s.keys.Get(ctx, identityID)
	if err != nil {
		return "", err
	}
	return key.Secret, nil
}
