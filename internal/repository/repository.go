// Package repository declares the storage contracts the services depend on.
//
// Services only see these interfaces; internal/repository/sqlite provides
// the implementation and tests substitute in-memory SQLite or fakes.
package repository

import (
	"context"
	"time"

	"github.com/compopedia/compopedia/internal/model"
)

// Sort fields accepted by ListComponents.
const (
	SortByCreatedAt = "createdAt"
	SortByTitle     = "title"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListQuery selects one page of the catalog. Empty filter fields mean "no
// filter". Page and Limit are used as given; callers clamp them.
type ListQuery struct {
	CategoryID string
	Search     string
	OwnerID    string
	SortBy     string
	SortOrder  string
	Page       int
	Limit      int
}

// Offset is the number of rows skipped before the page starts.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
}

type CategoryRepository interface {
	GetCategoryByID(ctx context.Context, id string) (*model.Category, error)
	// FindOrCreateCategory returns the category with this exact name,
	// creating it when missing.
	FindOrCreateCategory(ctx context.Context, name string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
}

type ComponentRepository interface {
	CreateComponent(ctx context.Context, c *model.Component) error
	UpdateComponent(ctx context.Context, c *model.Component) error
	DeleteComponent(ctx context.Context, id string) error

	// GetComponent returns the component joined with owner, category, text
	// blocks and images (metadata only, URLs resolved).
	GetComponent(ctx context.Context, id string) (*model.Component, error)
	// GetOwnedComponent is GetComponent scoped to userID. A missing and a
	// foreign component produce the same NotFound error.
	GetOwnedComponent(ctx context.Context, id, userID string) (*model.Component, error)

	// ListComponents returns one page plus the total number of matching rows.
	// Each item carries owner, category and at most one preview image.
	ListComponents(ctx context.Context, q ListQuery) ([]model.Component, int, error)

	// ReplaceTextBlocks deletes every block of the component and inserts
	// blocks in order.
	ReplaceTextBlocks(ctx context.Context, componentID string, blocks []model.TextBlock) error
}

type ImageRepository interface {
	CreateImage(ctx context.Context, img *model.Image) error
	// GetImage loads an image including its payload.
	GetImage(ctx context.Context, id string) (*model.Image, error)
	// GetImageMeta loads an image without its payload.
	GetImageMeta(ctx context.Context, id string) (*model.Image, error)
	FindImageByLegacyURL(ctx context.Context, url string) (*model.Image, error)

	// SetComponentImages makes ids exactly the set of images associated with
	// componentID. Images previously associated but not in ids are detached.
	SetComponentImages(ctx context.Context, componentID string, ids []string) error
	DeleteImages(ctx context.Context, ids []string) error
	// DeleteOrphanImages removes unattached images created before cutoff.
	DeleteOrphanImages(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is the full storage surface. WithTx runs fn against a Store bound to
// a single transaction: committed when fn returns nil, rolled back when it
// returns an error or panics.
type Store interface {
	UserRepository
	CategoryRepository
	ComponentRepository
	ImageRepository

	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
