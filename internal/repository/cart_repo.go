package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go-marketplace/internal/docstore"
	"go-marketplace/internal/model"
)

type CartRepository struct {
	store *docstore.Store
}

func NewCartRepository(store *docstore.Store) *CartRepository {
	return &CartRepository{store: store}
}

func cartKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Get returns the stored cart, or an empty one when the user has none.
func (r *CartRepository) Get(_ context.Context, username string) (model.Cart, error) {
	cart := model.Cart{Username: username, Items: []model.CartItem{}}
	err := r.store.View(func(tx *docstore.Tx) error {
		_, err := tx.Get(docstore.CollectionCarts, cartKey(username), &cart)
		return err
	})
	if err != nil {
		return model.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

func (r *CartRepository) Put(_ context.Context, cart model.Cart) (model.Cart, error) {
	cart.UpdatedAt = time.Now().UTC()
	if cart.Items == nil {
		cart.Items = []model.CartItem{}
	}
	err := r.store.Update(func(tx *docstore.Tx) error {
		return tx.Put(docstore.CollectionCarts, cartKey(cart.Username), cart)
	})
	if err != nil {
		return model.Cart{}, fmt.Errorf("put cart: %w", err)
	}
	return cart, nil
}

func (r *CartRepository) Clear(_ context.Context, username string) error {
	err := r.store.Update(func(tx *docstore.Tx) error {
		_, err := tx.Delete(docstore.CollectionCarts, cartKey(username))
		return err
	})
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
