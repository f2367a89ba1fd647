package repository

import (
	"context"
	"fmt"
	"time"

	"go-marketplace/internal/docstore"
	"go-marketplace/internal/model"
)

// BoltSigningKeyRepository keeps signing keys in the embedded document store.
type BoltSigningKeyRepository struct {
	store *docstore.Store
}

func NewBoltSigningKeyRepository(store *docstore.Store) *BoltSigningKeyRepository {
	return &BoltSigningKeyRepository{store: store}
}

func (r *BoltSigningKeyRepository) Get(_ context.Context, ownerID string) (model.SigningKey, error) {
	var key model.SigningKey
	var found bool
	err := r.store.View(func(tx *docstore.Tx) error {
		var err error
		found, err = tx.Get(docstore.CollectionSigningKeys, ownerID, &key)
		return err
	})
	if err != nil {
		return model.SigningKey{}, fmt.Errorf("get signing key: %w", err)
	}
	if !found {
		return model.SigningKey{}, model.ErrSigningKeyNotFound
	}
	return key, nil
}

// GetOrCreate runs in a single write transaction; bolt serialises writers.
func (r *BoltSigningKeyRepository) GetOrCreate(_ context.Context, ownerID string, secret string) (model.SigningKey, error) {
	var key model.SigningKey
	err := r.store.Update(func(tx *docstore.Tx) error {
		found, err := tx.Get(docstore.CollectionSigningKeys, ownerID, &key)
		if err != nil || found {
			return err
		}
		key = model.SigningKey{OwnerID: ownerID, Secret: secret, CreatedAt: time.Now().UTC()}
		return tx.Put(docstore.CollectionSigningKeys, ownerID, key)
	})
	if err != nil {
		return model.SigningKey{}, fmt.Errorf("get or create signing key: %w", err)
	}
	return key, nil
}
