package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/compopedia/compopedia/internal/apperror"
	"github.com/compopedia/compopedia/internal/model"
	"github.com/compopedia/compopedia/internal/repository"
)

// ComponentPage is one page of catalog results.
type ComponentPage struct {
	Items     []model.Component `json:"items"`
	Total     int               `json:"total"`
	PageCount int               `json:"pageCount"`
	Page      int               `json:"page"`
	Limit     int               `json:"limit"`
}

// CatalogService answers read-only catalog queries.
type CatalogService struct {
	components repository.ComponentRepository
	categories repository.CategoryRepository
	logger     *slog.Logger
}

func NewCatalogService(components repository.ComponentRepository, categories repository.CategoryRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{components: components, categories: categories, logger: logger}
}

// List returns one page. Page and Limit are trusted as given; the HTTP layer
// applies defaults and bounds.
func (s *CatalogService) List(ctx context.Context, q repository.ListQuery) (*ComponentPage, error) {
	items, total, err := s.components.ListComponents(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: listing components: %w", err)
	}

	return &ComponentPage{
		Items:     items,
		Total:     total,
		PageCount: pageCount(total, q.Limit),
		Page:      q.Page,
		Limit:     q.Limit,
	}, nil
}

// Get returns a component with owner, category, text blocks and images.
func (s *CatalogService) Get(ctx context.Context, id string) (*model.Component, error) {
	c, err := s.components.GetComponent(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/catalog: getting component %s: %w", id, err)
	}
	return c, nil
}

// Categories lists every category by name.
func (s *CatalogService) Categories(ctx context.Context) ([]model.Category, error) {
	cats, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: listing categories: %w", err)
	}
	return cats, nil
}

// pageCount is ceil(total/limit); zero when there is nothing to page.
func pageCount(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
