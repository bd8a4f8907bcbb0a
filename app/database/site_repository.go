package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const siteColumns = `id, name, base_url, tone_of_voice, brand_context, language, active, created_at, updated_at`

type SiteRepo struct {
	db *DB
}

var _ SiteRepository = (*SiteRepo)(nil)

func NewSiteRepository(db *DB) *SiteRepo {
	return &SiteRepo{db: db}
}

func (r *SiteRepo) GetSite(ctx context.Context, siteID string) (*Site, error) {
	var site Site
	err := r.db.GetContext(ctx, &site, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, siteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return &site, nil
}

func (r *SiteRepo) ListActiveSites(ctx context.Context) ([]Site, error) {
	var sites []Site
	err := r.db.SelectContext(ctx, &sites,
		`SELECT `+siteColumns+` FROM sites WHERE active = TRUE ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sites: %w", err)
	}
	return sites, nil
}
