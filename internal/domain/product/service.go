// internal/domain/product/service.go
package product

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
)

// Repository is the slice of the backing store the product service needs
type Repository interface {
	GetProduct(ctx context.Context, id uint) (*Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, id uint) error
}

// Service handles product business logic
type Service struct {
	repo Repository
	log  logrus.FieldLogger
}

// NewService creates a new product service
func NewService(repo Repository, log logrus.FieldLogger) *Service {
	return &Service{
		repo: repo,
		log:  log.WithField("component", "product"),
	}
}

// ProductCreateRequest represents product creation data
type ProductCreateRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Price       int64    `json:"price" binding:"min=0"`
	Images      []string `json:"images"`
	Sizes       []string `json:"sizes"`
}

// ProductUpdateRequest represents product update data
type ProductUpdateRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *int64   `json:"price"`
	Images      []string `json:"images"`
	Sizes       []string `json:"sizes"`
}

// GetProduct retrieves a single product by ID
func (s *Service) GetProduct(ctx context.Context, id uint) (*Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, apperr.Storage("failed to retrieve product", err)
	}
	return p, nil
}

// CreateProduct creates a new product. The insert reaches open catalogs through the change feed.
func (s *Service) CreateProduct(ctx context.Context, req *ProductCreateRequest) (*Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("product name is required")
	}
	if req.Price < 0 {
		return nil, apperr.Validation("product price cannot be negative")
	}

	p := &Product{
		Name:        name,
		Description: req.Description,
		Price:       req.Price,
		Images:      cleanList(req.Images),
		Sizes:       cleanList(req.Sizes),
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, apperr.Storage("failed to create product", err)
	}

	s.log.WithField("product_id", p.ID).Info("product created")
	return p, nil
}

// UpdateProduct applies the non-nil fields of req
func (s *Service) UpdateProduct(ctx context.Context, id uint, req *ProductUpdateRequest) (*Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, apperr.Storage("failed to retrieve product", err)
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Validation("product name is required")
		}
		p.Name = name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, apperr.Validation("product price cannot be negative")
		}
		p.Price = *req.Price
	}
	if req.Images != nil {
		p.Images = cleanList(req.Images)
	}
	if req.Sizes != nil {
		p.Sizes = cleanList(req.Sizes)
	}

	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, apperr.Storage("failed to update product", err)
	}

	s.log.WithField("product_id", p.ID).Info("product updated")
	return p, nil
}

// DeleteProduct deletes a product
func (s *Service) DeleteProduct(ctx context.Context, id uint) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return apperr.Storage("failed to delete product", err)
	}
	s.log.WithField("product_id", id).Info("product deleted")
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
