package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/compopedia/compopedia/internal/apperror"
	"github.com/compopedia/compopedia/internal/model"
)

func (db *DB) GetCategoryByID(ctx context.Context, id string) (*model.Category, error) {
	var c model.Category
	err := sqlx.GetContext(ctx, db.q, &c,
		`SELECT id, name, created_at, updated_at FROM categories WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("category", id)
		}
		return nil, fmt.Errorf("sqlite: getting category %s: %w", id, err)
	}
	return &c, nil
}

// FindOrCreateCategory inserts the category when no row has this name and
// then reads the row back, so two writers racing on a new name both end up
// with the same category.
func (db *DB) FindOrCreateCategory(ctx context.Context, name string) (*model.Category, error) {
	now := time.Now().UTC()
	_, err := db.q.ExecContext(ctx,
		`INSERT INTO categories (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		xid.New().String(), name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating category %q: %w", name, err)
	}

	var c model.Category
	err = sqlx.GetContext(ctx, db.q, &c,
		`SELECT id, name, created_at, updated_at FROM categories WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading category %q: %w", name, err)
	}
	return &c, nil
}

// ListCategories returns every category ordered by name.
func (db *DB) ListCategories(ctx context.Context) ([]model.Category, error) {
	categories := []model.Category{}
	err := sqlx.SelectContext(ctx, db.q, &categories,
		`SELECT id, name, created_at, updated_at FROM categories ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing categories: %w", err)
	}
	return categories, nil
}
