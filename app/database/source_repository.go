package database

import (
	"context"
	"fmt"
	"time"
)

const sourceColumns = `id, site_id, url, kind, active, validated, last_fetched_at, last_error, item_count, created_at`

// SourceRepo handles database operations for content sources
type SourceRepo struct {
	db *DB
}

var _ SourceRepository = (*SourceRepo)(nil)

func NewSourceRepository(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

func (r *SourceRepo) ListActiveSources(ctx context.Context, siteID string) ([]Source, error) {
	var sources []Source
	err := r.db.SelectContext(ctx, &sources, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE site_id = $1 AND active = TRUE AND deleted_at IS NULL
		ORDER BY created_at
	`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}
	return sources, nil
}

func (r *SourceRepo) ListSources(ctx context.Context, siteID string) ([]Source, error) {
	var sources []Source
	err := r.db.SelectContext(ctx, &sources, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE site_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

// RecordFetch stamps the outcome of a fetch attempt. A successful fetch
// clears last_error and marks the source validated.
func (r *SourceRepo) RecordFetch(ctx context.Context, sourceID string, fetchedAt time.Time, fetchErr string, newItems int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET last_fetched_at = $2,
		    last_error = $3,
		    item_count = item_count + $4,
		    validated = validated OR $3 = ''
		WHERE id = $1
	`, sourceID, fetchedAt, fetchErr, newItems)
	if err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
