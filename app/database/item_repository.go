package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const itemColumns = `id, site_id, source_id,
		original_title, original_url, original_content, original_author,
		original_published_at, original_image_url, content_hash, fingerprint,
		title, slug, content, excerpt, meta_description, tags, category_id,
		social_copy, social_hashtags, backlink_applied, image_url,
		status, published_at, created_at, updated_at`

// ItemRepo handles database operations for content items
type ItemRepo struct {
	db *DB
}

var _ ItemRepository = (*ItemRepo)(nil)

func NewItemRepository(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

// InsertCandidate relies on the (site_id, original_url) unique key: the
// first sighting wins and later ones are reported as already present.
func (r *ItemRepo) InsertCandidate(ctx context.Context, item *ContentItem) (bool, error) {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO articles (
			site_id, source_id, original_title, original_url, original_content,
			original_author, original_published_at, original_image_url, content_hash, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'raw')
		ON CONFLICT (site_id, original_url) DO NOTHING
		RETURNING id, created_at, updated_at
	`, item.SiteID, item.SourceID, item.OriginalTitle, item.OriginalURL, item.OriginalContent,
		item.OriginalAuthor, item.OriginalPublishedAt, item.OriginalImageURL, item.ContentHash,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert candidate: %w", err)
	}

	item.Status = StatusRaw
	return true, nil
}

func (r *ItemRepo) ListPending(ctx context.Context, siteID string, limit int) ([]ContentItem, error) {
	var items []ContentItem
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+`
		FROM articles
		WHERE site_id = $1 AND status = ANY($2)
		ORDER BY created_at ASC
		LIMIT $3
	`, siteID, pq.Array(statusStrings(RewritableStatuses)), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	return items, nil
}

func (r *ItemRepo) ListPublished(ctx context.Context, siteID string, limit int) ([]ContentItem, error) {
	var items []ContentItem
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+`
		FROM articles
		WHERE site_id = $1 AND status = 'published'
		ORDER BY published_at DESC
		LIMIT $2
	`, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list published items: %w", err)
	}
	return items, nil
}

// ListFingerprints returns the fingerprints new content is compared
// against: everything that is or was live on the site.
func (r *ItemRepo) ListFingerprints(ctx context.Context, siteID string) ([]string, error) {
	var fingerprints []string
	err := r.db.SelectContext(ctx, &fingerprints, `
		SELECT fingerprint
		FROM articles
		WHERE site_id = $1
		  AND status IN ('published', 'unpublished')
		  AND fingerprint <> ''
	`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	return fingerprints, nil
}

// UpdateOriginalContent persists what the extractor found. Items that
// already left the rewritable statuses are not touched.
func (r *ItemRepo) UpdateOriginalContent(ctx context.Context, item *ContentItem) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE articles
		SET original_title = $2,
		    original_content = $3,
		    original_author = $4,
		    original_published_at = $5,
		    original_image_url = $6,
		    content_hash = $7,
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($8)
	`, item.ID, item.OriginalTitle, item.OriginalContent, item.OriginalAuthor,
		item.OriginalPublishedAt, item.OriginalImageURL, item.ContentHash,
		pq.Array(statusStrings(RewritableStatuses)))
	if err != nil {
		return fmt.Errorf("failed to update original content: %w", err)
	}
	return expectOneRow(result)
}

func (r *ItemRepo) UpdateStatus(ctx context.Context, itemID string, to ItemStatus, from []ItemStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE articles
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, itemID, string(to), pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	return expectOneRow(result)
}

func (r *ItemRepo) SlugExists(ctx context.Context, siteID, slug string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM articles WHERE site_id = $1 AND slug = $2)`, siteID, slug)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

// Publish writes the rewritten fields and flips the item to published in
// one transaction, bumping the category counter alongside.
func (r *ItemRepo) Publish(ctx context.Context, item *ContentItem, from []ItemStatus) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	publishedAt := time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		UPDATE articles
		SET title = $2,
		    slug = $3,
		    content = $4,
		    excerpt = $5,
		    meta_description = $6,
		    tags = $7,
		    category_id = $8,
		    social_copy = $9,
		    social_hashtags = $10,
		    backlink_applied = $11,
		    image_url = $12,
		    fingerprint = $13,
		    status = 'published',
		    published_at = $14,
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($15)
	`, item.ID, item.Title, item.Slug, item.Content, item.Excerpt, item.MetaDescription,
		pq.Array([]string(item.Tags)), item.CategoryID, item.SocialCopy, pq.Array([]string(item.SocialHashtags)),
		item.BacklinkApplied, item.ImageURL, item.Fingerprint, publishedAt,
		pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("failed to publish item: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	if item.CategoryID != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE categories SET article_count = article_count + 1 WHERE id = $1`, *item.CategoryID); err != nil {
			return fmt.Errorf("failed to increment category count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit publish: %w", err)
	}

	item.Status = StatusPublished
	item.PublishedAt = &publishedAt
	return nil
}

func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}
	return nil
}

func statusStrings(statuses []ItemStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
