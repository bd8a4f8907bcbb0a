package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type BacklinkRepo struct {
	db *DB
}

var _ BacklinkRepository = (*BacklinkRepo)(nil)

func NewBacklinkRepository(db *DB) *BacklinkRepo {
	return &BacklinkRepo{db: db}
}

// GetBacklinkSettings returns nil when the site never configured backlinks.
func (r *BacklinkRepo) GetBacklinkSettings(ctx context.Context, siteID string) (*BacklinkSettings, error) {
	var settings BacklinkSettings
	err := r.db.GetContext(ctx, &settings, `
		SELECT site_id, enabled, target_url, placement, banner_text,
		       banner_image_url, link_text, frequency
		FROM backlink_settings
		WHERE site_id = $1
	`, siteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backlink settings: %w", err)
	}
	return &settings, nil
}
