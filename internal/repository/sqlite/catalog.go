package sqlite

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/compopedia/compopedia/internal/model"
	"github.com/compopedia/compopedia/internal/repository"
)

// likeEscaper escapes LIKE wildcards so a search for "50%" matches the
// literal text.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func catalogFilter(q repository.ListQuery) sq.And {
	where := sq.And{}
	if q.CategoryID != "" {
		where = append(where, sq.Eq{"c.category_id": q.CategoryID})
	}
	if q.OwnerID != "" {
		where = append(where, sq.Eq{"c.user_id": q.OwnerID})
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
		where = append(where, sq.Expr(foldFunc+`(c.title) LIKE ? ESCAPE '\'`, pattern))
	}
	return where
}

// catalogOrder always ends with c.id so rows with equal sort keys keep a
// stable order across pages.
func catalogOrder(q repository.ListQuery) []string {
	dir := "DESC"
	if q.SortOrder == repository.SortAsc {
		dir = "ASC"
	}
	column := "c.created_at"
	if q.SortBy == repository.SortByTitle {
		column = "c.title COLLATE NOCASE"
	}
	return []string{column + " " + dir, "c.id ASC"}
}

// ListComponents runs a count query and a page query with the same filter,
// then attaches one preview image per item.
func (db *DB) ListComponents(ctx context.Context, q repository.ListQuery) ([]model.Component, int, error) {
	where := catalogFilter(q)

	countSQL, countArgs, err := sq.Select("COUNT(*)").From("components c").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: building count query: %w", err)
	}
	var total int
	if err := sqlx.GetContext(ctx, db.q, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting components: %w", err)
	}

	page := selectComponents().Where(where).OrderBy(catalogOrder(q)...)
	if q.Limit > 0 {
		page = page.Limit(uint64(q.Limit))
		if off := q.Offset(); off > 0 {
			page = page.Offset(uint64(off))
		}
	}
	pageSQL, pageArgs, err := page.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: building list query: %w", err)
	}

	var rows []componentRow
	if err := sqlx.SelectContext(ctx, db.q, &rows, pageSQL, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing components: %w", err)
	}

	items := make([]model.Component, len(rows))
	ids := make([]string, len(rows))
	index := make(map[string]int, len(rows))
	for i, r := range rows {
		items[i] = r.toModel()
		ids[i] = r.ID
		index[r.ID] = i
	}

	images, err := db.imagesForComponents(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, img := range images {
		i := index[img.ComponentID.String]
		if len(items[i].Images) == 0 {
			items[i].Images = append(items[i].Images, img.toModel())
		}
	}

	return items, total, nil
}
