package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go-marketplace/internal/docstore"
	"go-marketplace/internal/model"
)

// ProductRepository keeps the catalog in the embedded document store.
type ProductRepository struct {
	store *docstore.Store
}

func NewProductRepository(store *docstore.Store) *ProductRepository {
	return &ProductRepository{store: store}
}

func (r *ProductRepository) Create(_ context.Context, p model.Product) error {
	return r.store.Update(func(tx *docstore.Tx) error {
		return tx.Put(docstore.CollectionProducts, p.ID, p)
	})
}

func (r *ProductRepository) FindByID(_ context.Context, id string) (model.Product, error) {
	var p model.Product
	var found bool
	err := r.store.View(func(tx *docstore.Tx) error {
		var err error
		found, err = tx.Get(docstore.CollectionProducts, id, &p)
		return err
	})
	if err != nil {
		return model.Product{}, fmt.Errorf("find product: %w", err)
	}
	if !found {
		return model.Product{}, model.ErrProductNotFound
	}
	return p, nil
}

// Update applies mutate to the stored product inside one write transaction.
// An error from mutate aborts the write and is returned as is.
func (r *ProductRepository) Update(_ context.Context, id string, mutate func(*model.Product) error) (model.Product, error) {
	var p model.Product
	err := r.store.Update(func(tx *docstore.Tx) error {
		found, err := tx.Get(docstore.CollectionProducts, id, &p)
		if err != nil {
			return err
		}
		if !found {
			return model.ErrProductNotFound
		}
		if err := mutate(&p); err != nil {
			return err
		}
		p.UpdatedAt = time.Now().UTC()
		return tx.Put(docstore.CollectionProducts, id, p)
	})
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// Delete removes the product when check accepts it.
func (r *ProductRepository) Delete(_ context.Context, id string, check func(model.Product) error) error {
	return r.store.Update(func(tx *docstore.Tx) error {
		var p model.Product
		found, err := tx.Get(docstore.CollectionProducts, id, &p)
		if err != nil {
			return err
		}
		if !found {
			return model.ErrProductNotFound
		}
		if check != nil {
			if err := check(p); err != nil {
				return err
			}
		}
		_, err = tx.Delete(docstore.CollectionProducts, id)
		return err
	})
}

func (r *ProductRepository) List(_ context.Context, query model.ProductQuery) ([]model.Product, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 20
	}
	if query.Limit > 100 {
		query.Limit = 100
	}

	category := strings.TrimSpace(query.Category)
	seller := strings.TrimSpace(query.Seller)
	search := strings.ToLower(strings.TrimSpace(query.Search))

	products, err := docstore.List(r.store, docstore.CollectionProducts, func(p model.Product) bool {
		if category != "" && !strings.EqualFold(p.Category, category) {
			return false
		}
		if seller != "" && !strings.EqualFold(p.SellerUsername, seller) {
			return false
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			return false
		}
		return true
	})
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("list products: %w", err)
	}

	sort.Slice(products, func(i, j int) bool {
		if products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].ID < products[j].ID
		}
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})

	total := len(products)
	totalPages := 0
	if total > 0 {
		totalPages = (total + query.Limit - 1) / query.Limit
	}
	meta := model.Meta{Page: query.Page, Limit: query.Limit, Total: total, TotalPages: totalPages}

	start := (query.Page - 1) * query.Limit
	if start >= total {
		return []model.Product{}, meta, nil
	}
	end := min(start+query.Limit, total)
	return products[start:end], meta, nil
}

// Reserve checks and decrements stock for every item in one transaction and
// returns the priced order lines. Nothing is written when any item fails.
func (r *ProductRepository) Reserve(_ context.Context, items []model.CartItem) ([]model.OrderItem, error) {
	lines := make([]model.OrderItem, 0, len(items))
	err := r.store.Update(func(tx *docstore.Tx) error {
		for _, item := range items {
			var p model.Product
			found, err := tx.Get(docstore.CollectionProducts, item.ProductID, &p)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %s", model.ErrProductNotFound, item.ProductID)
			}
			if item.Quantity <= 0 || p.Stock < item.Quantity {
				return fmt.Errorf("%w: %s", model.ErrInsufficientStock, item.ProductID)
			}
			p.Stock -= item.Quantity
			p.UpdatedAt = time.Now().UTC()
			if err := tx.Put(docstore.CollectionProducts, p.ID, p); err != nil {
				return err
			}
			lines = append(lines, model.OrderItem{
				ProductID:      p.ID,
				SellerUsername: p.SellerUsername,
				Name:           p.Name,
				UnitPriceCents: p.PriceCents,
				Quantity:       item.Quantity,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// Restock returns reserved quantities, skipping products deleted meanwhile.
func (r *ProductRepository) Restock(_ context.Context, lines []model.OrderItem) error {
	return r.store.Update(func(tx *docstore.Tx) error {
		for _, line := range lines {
			var p model.Product
			found, err := tx.Get(docstore.CollectionProducts, line.ProductID, &p)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			p.Stock += line.Quantity
			if err := tx.Put(docstore.CollectionProducts, p.ID, p); err != nil {
				return err
			}
		}
		return nil
	})
}
