package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-marketplace/internal/event"
	"go-marketplace/internal/model"
	"go-marketplace/internal/util"
	"go-marketplace/pkg/apierror"
)

type CatalogService struct {
	products ProductStore
	bus      event.Bus
}

func NewCatalogService(products ProductStore, bus event.Bus) *CatalogService {
	return &CatalogService{products: products, bus: bus}
}

func (s *CatalogService) List(ctx context.Context, query model.ProductQuery) ([]model.Product, model.Meta, error) {
	return s.products.List(ctx, query)
}

func (s *CatalogService) Get(ctx context.Context, id string) (model.Product, error) {
	return s.products.FindByID(ctx, strings.TrimSpace(id))
}

const (
	maxProductName        = 120
	maxProductDescription = 4000
	maxProductCategory    = 48
)

// normalizeProduct sanitizes the text fields of req and checks its numbers.
func normalizeProduct(req model.ProductRequest) (model.ProductRequest, error) {
	var err error
	if req.Name, err = util.SanitizeText(req.Name, "name", maxProductName, false); err != nil {
		return req, err
	}
	if req.Description, err = util.SanitizeText(req.Description, "description", maxProductDescription, true); err != nil {
		return req, err
	}
	if req.Category, err = util.SanitizeText(req.Category, "category", maxProductCategory, false); err != nil {
		return req, err
	}
	req.Category = strings.ToLower(req.Category)

	if req.Name == "" {
		return req, apierror.Validation("name is required", "name")
	}
	if req.PriceCents < 0 {
		return req, apierror.Validation("price_cents cannot be negative", "price_cents")
	}
	if req.Stock < 0 {
		return req, apierror.Validation("stock cannot be negative", "stock")
	}
	return req, nil
}

func (s *CatalogService) Create(ctx context.Context, actor model.AuditActor, seller string, req model.ProductRequest) (model.Product, error) {
	req, err := normalizeProduct(req)
	if err != nil {
		return model.Product{}, err
	}

	now := time.Now().UTC()
	product := model.Product{
		ID:             uuid.NewString(),
		SellerUsername: seller,
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		PriceCents:     req.PriceCents,
		Stock:          req.Stock,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return model.Product{}, fmt.Errorf("create product: %w", err)
	}

	e := event.New(event.TypeProductCreated, actor, "products/"+product.ID)
	e.After = product
	publish(s.bus, e)

	return product, nil
}

func ownedBy(seller string) func(model.Product) error {
	return func(p model.Product) error {
		if !strings.EqualFold(p.SellerUsername, seller) {
			return model.ErrForbidden
		}
		return nil
	}
}

func (s *CatalogService) Update(ctx context.Context, actor model.AuditActor, seller string, id string, req model.ProductRequest) (model.Product, error) {
	req, err := normalizeProduct(req)
	if err != nil {
		return model.Product{}, err
	}

	var before model.Product
	check := ownedBy(seller)
	product, err := s.products.Update(ctx, strings.TrimSpace(id), func(p *model.Product) error {
		if err := check(*p); err != nil {
			return err
		}
		before = *p
		p.Name = req.Name
		p.Description = req.Description
		p.Category = req.Category
		p.PriceCents = req.PriceCents
		p.Stock = req.Stock
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}

	e := event.New(event.TypeProductUpdated, actor, "products/"+product.ID)
	e.Before = before
	e.After = product
	publish(s.bus, e)

	return product, nil
}

func (s *CatalogService) Delete(ctx context.Context, actor model.AuditActor, seller string, id string) error {
	id = strings.TrimSpace(id)
	if err := s.products.Delete(ctx, id, ownedBy(seller)); err != nil {
		return err
	}

	publish(s.bus, event.New(event.TypeProductDeleted, actor, "products/"+id))
	return nil
}
