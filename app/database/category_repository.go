package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const categoryColumns = `id, site_id, name, slug, article_count, created_at`

type CategoryRepo struct {
	db *DB
}

var _ CategoryRepository = (*CategoryRepo)(nil)

func NewCategoryRepository(db *DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

// FindCategoryByName returns nil when the site has no category with
// exactly this name.
func (r *CategoryRepo) FindCategoryByName(ctx context.Context, siteID, name string) (*Category, error) {
	var category Category
	err := r.db.GetContext(ctx, &category,
		`SELECT `+categoryColumns+` FROM categories WHERE site_id = $1 AND name = $2`, siteID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find category: %w", err)
	}
	return &category, nil
}

// CreateCategory inserts a category with a zero count. A concurrent
// insert of the same name resolves to the existing row.
func (r *CategoryRepo) CreateCategory(ctx context.Context, siteID, name, slug string) (*Category, error) {
	var category Category
	err := r.db.GetContext(ctx, &category, `
		INSERT INTO categories (site_id, name, slug, article_count)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (site_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING `+categoryColumns,
		siteID, name, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return &category, nil
}
