package service

import (
	"context"
	"errors"
	"fmt"

	"go-marketplace/internal/model"
	"go-marketplace/pkg/apierror"
)

type CartService struct {
	carts    CartStore
	products ProductStore
}

func NewCartService(carts CartStore, products ProductStore) *CartService {
	return &CartService{carts: carts, products: products}
}

func (s *CartService) Get(ctx context.Context, username string) (model.Cart, error) {
	return s.carts.Get(ctx, username)
}

// Replace stores items as the user's whole cart. Duplicate products are merged
// and every product must exist.
func (s *CartService) Replace(ctx context.Context, username string, items []model.CartItem) (model.Cart, error) {
	merged := make([]model.CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			return model.Cart{}, apierror.Validation("product_id is required", "items")
		}
		if item.Quantity <= 0 {
			return model.Cart{}, apierror.Validation("quantity must be positive", "items")
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}

	for _, item := range merged {
		if _, err := s.products.FindByID(ctx, item.ProductID); err != nil {
			if errors.Is(err, model.ErrProductNotFound) {
				return model.Cart{}, apierror.Validation(fmt.Sprintf("unknown product %s", item.ProductID), "items")
			}
			return model.Cart{}, err
		}
	}

	return s.carts.Put(ctx, model.Cart{Username: username, Items: merged})
}

func (s *CartService) Clear(ctx context.Context, username string) error {
	return s.carts.Clear(ctx, username)
}
