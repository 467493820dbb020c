package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/compopedia/compopedia/internal/apperror"
	"github.com/compopedia/compopedia/internal/model"
)

const imageMetaColumns = `id, component_id, uploader_id, mime_type, width, height, size, original_name, url, created_at`

// servableImage matches rows that can be rendered: a legacy url or a payload.
const servableImage = `((url IS NOT NULL AND TRIM(url) <> '') OR LENGTH(data) > 0)`

type imageRow struct {
	ID           string         `db:"id"`
	ComponentID  sql.NullString `db:"component_id"`
	UploaderID   sql.NullString `db:"uploader_id"`
	Data         []byte         `db:"data"`
	MIMEType     string         `db:"mime_type"`
	Width        int            `db:"width"`
	Height       int            `db:"height"`
	Size         int64          `db:"size"`
	OriginalName string         `db:"original_name"`
	URL          sql.NullString `db:"url"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r imageRow) toModel() model.Image {
	img := model.Image{
		ID:           r.ID,
		Data:         r.Data,
		MIMEType:     r.MIMEType,
		Width:        r.Width,
		Height:       r.Height,
		Size:         r.Size,
		OriginalName: r.OriginalName,
		LegacyURL:    r.URL.String,
		CreatedAt:    r.CreatedAt,
	}
	if r.ComponentID.Valid {
		img.ComponentID = &r.ComponentID.String
	}
	if r.UploaderID.Valid {
		img.UploaderID = &r.UploaderID.String
	}
	img.ResolveURL()
	return img
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// CreateImage inserts img, assigning its ID and creation time.
func (db *DB) CreateImage(ctx context.Context, img *model.Image) error {
	img.ID = xid.New().String()
	img.CreatedAt = time.Now().UTC()

	var legacy sql.NullString
	if img.LegacyURL != "" {
		legacy = sql.NullString{String: img.LegacyURL, Valid: true}
	}

	_, err := db.q.ExecContext(ctx,
		`INSERT INTO images (id, component_id, uploader_id, data, mime_type, width, height, size, original_name, url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID, nullString(img.ComponentID), nullString(img.UploaderID), img.Data,
		img.MIMEType, img.Width, img.Height, img.Size, img.OriginalName, legacy, img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting image: %w", err)
	}
	img.ResolveURL()
	return nil
}

func (db *DB) GetImage(ctx context.Context, id string) (*model.Image, error) {
	return db.getImage(ctx, `SELECT `+imageMetaColumns+`, data FROM images WHERE id = ?`, id, id)
}

func (db *DB) GetImageMeta(ctx context.Context, id string) (*model.Image, error) {
	return db.getImage(ctx, `SELECT `+imageMetaColumns+` FROM images WHERE id = ?`, id, id)
}

// FindImageByLegacyURL returns the oldest row carrying url.
func (db *DB) FindImageByLegacyURL(ctx context.Context, url string) (*model.Image, error) {
	return db.getImage(ctx,
		`SELECT `+imageMetaColumns+` FROM images WHERE url = ? ORDER BY rowid ASC LIMIT 1`, url, url)
}

func (db *DB) getImage(ctx context.Context, query string, arg any, label string) (*model.Image, error) {
	var row imageRow
	if err := sqlx.GetContext(ctx, db.q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("image", label)
		}
		return nil, fmt.Errorf("sqlite: getting image %s: %w", label, err)
	}
	img := row.toModel()
	return &img, nil
}

// imagesForComponents loads the servable images of the given components in
// storage order, without payloads.
func (db *DB) imagesForComponents(ctx context.Context, componentIDs []string) ([]imageRow, error) {
	if len(componentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sq.Select(imageMetaColumns).
		From("images").
		Where(sq.Eq{"component_id": componentIDs}).
		Where(servableImage).
		OrderBy("rowid ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building image query: %w", err)
	}

	var rows []imageRow
	if err := sqlx.SelectContext(ctx, db.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: loading component images: %w", err)
	}
	return rows, nil
}

// SetComponentImages detaches every image of componentID that is not in ids,
// then attaches ids.
func (db *DB) SetComponentImages(ctx context.Context, componentID string, ids []string) error {
	detach := sq.Update("images").
		Set("component_id", nil).
		Where(sq.Eq{"component_id": componentID}).
		Where(sq.NotEq{"id": ids})
	if err := db.exec(ctx, detach); err != nil {
		return fmt.Errorf("sqlite: detaching images from %s: %w", componentID, err)
	}

	if len(ids) == 0 {
		return nil
	}
	attach := sq.Update("images").
		Set("component_id", componentID).
		Where(sq.Eq{"id": ids})
	if err := db.exec(ctx, attach); err != nil {
		return fmt.Errorf("sqlite: attaching images to %s: %w", componentID, err)
	}
	return nil
}

func (db *DB) DeleteImages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := db.exec(ctx, sq.Delete("images").Where(sq.Eq{"id": ids})); err != nil {
		return fmt.Errorf("sqlite: deleting images: %w", err)
	}
	return nil
}

func (db *DB) DeleteOrphanImages(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.q.ExecContext(ctx,
		`DELETE FROM images WHERE component_id IS NULL AND created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: pruning orphan images: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting pruned images: %w", err)
	}
	return n, nil
}

// exec renders a squirrel statement and runs it on the current handle.
func (db *DB) exec(ctx context.Context, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = db.q.ExecContext(ctx, query, args...)
	return err
}
