package sqlite

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/compopedia/compopedia/internal/apperror"
	"github.com/compopedia/compopedia/internal/model"
)

// componentRow is a component joined with its owner's and category's names.
type componentRow struct {
	ID           string    `db:"id"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	CategoryID   string    `db:"category_id"`
	UserID       string    `db:"user_id"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	OwnerName    string    `db:"owner_name"`
	CategoryName string    `db:"category_name"`
}

func (r componentRow) toModel() model.Component {
	return model.Component{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		CategoryID:  r.CategoryID,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Owner:       &model.Owner{ID: r.UserID, Name: r.OwnerName},
		Category:    &model.Category{ID: r.CategoryID, Name: r.CategoryName},
		TextBlocks:  []model.TextBlock{},
		Images:      []model.Image{},
	}
}

func selectComponents() sq.SelectBuilder {
	return sq.Select(
		"c.id", "c.title", "c.description", "c.category_id", "c.user_id",
		"c.created_at", "c.updated_at",
		"u.name AS owner_name", "cat.name AS category_name",
	).
		From("components c").
		Join("users u ON u.id = c.user_id").
		Join("categories cat ON cat.id = c.category_id")
}

// CreateComponent inserts the component row only; text blocks and images are
// written separately inside the same transaction.
func (db *DB) CreateComponent(ctx context.Context, c *model.Component) error {
	now := time.Now().UTC()
	c.ID = xid.New().String()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := db.q.ExecContext(ctx,
		`INSERT INTO components (id, title, description, category_id, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Description, c.CategoryID, c.UserID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting component: %w", err)
	}
	return nil
}

// UpdateComponent writes title, description and category.
func (db *DB) UpdateComponent(ctx context.Context, c *model.Component) error {
	c.UpdatedAt = time.Now().UTC()

	res, err := db.q.ExecContext(ctx,
		`UPDATE components SET title = ?, description = ?, category_id = ?, updated_at = ?
		 WHERE id = ?`,
		c.Title, c.Description, c.CategoryID, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating component %s: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("component", c.ID)
	}
	return nil
}

// DeleteComponent removes the component and its text blocks. Images must be
// detached beforehand; the foreign key would otherwise null them anyway.
func (db *DB) DeleteComponent(ctx context.Context, id string) error {
	if _, err := db.q.ExecContext(ctx, `DELETE FROM text_blocks WHERE component_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting text blocks of %s: %w", id, err)
	}

	res, err := db.q.ExecContext(ctx, `DELETE FROM components WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting component %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("component", id)
	}
	return nil
}

func (db *DB) GetComponent(ctx context.Context, id string) (*model.Component, error) {
	return db.getComponent(ctx, id, sq.Eq{"c.id": id})
}

func (db *DB) GetOwnedComponent(ctx context.Context, id, userID string) (*model.Component, error) {
	return db.getComponent(ctx, id, sq.Eq{"c.id": id, "c.user_id": userID})
}

func (db *DB) getComponent(ctx context.Context, id string, where sq.Eq) (*model.Component, error) {
	query, args, err := selectComponents().Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building component query: %w", err)
	}

	var rows []componentRow
	if err := sqlx.SelectContext(ctx, db.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: getting component %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound("component", id)
	}

	c := rows[0].toModel()

	blocks, err := db.textBlocks(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.TextBlocks = blocks

	images, err := db.imagesForComponents(ctx, []string{c.ID})
	if err != nil {
		return nil, err
	}
	for _, row := range images {
		c.Images = append(c.Images, row.toModel())
	}

	return &c, nil
}

func (db *DB) textBlocks(ctx context.Context, componentID string) ([]model.TextBlock, error) {
	blocks := []model.TextBlock{}
	err := sqlx.SelectContext(ctx, db.q, &blocks,
		`SELECT id, component_id, content, headline, block_type, language, created_at
		 FROM text_blocks WHERE component_id = ? ORDER BY position ASC`, componentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading text blocks of %s: %w", componentID, err)
	}
	return blocks, nil
}

// ReplaceTextBlocks assigns IDs and timestamps to blocks and stores them in
// slice order.
func (db *DB) ReplaceTextBlocks(ctx context.Context, componentID string, blocks []model.TextBlock) error {
	if _, err := db.q.ExecContext(ctx, `DELETE FROM text_blocks WHERE component_id = ?`, componentID); err != nil {
		return fmt.Errorf("sqlite: clearing text blocks of %s: %w", componentID, err)
	}

	now := time.Now().UTC()
	for i := range blocks {
		b := &blocks[i]
		b.ID = xid.New().String()
		b.ComponentID = componentID
		b.CreatedAt = now

		_, err := db.q.ExecContext(ctx,
			`INSERT INTO text_blocks (id, component_id, position, content, headline, block_type, language, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.ComponentID, i, b.Content, b.Headline, b.BlockType, b.Language, b.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting text block %d of %s: %w", i, componentID, err)
		}
	}
	return nil
}
