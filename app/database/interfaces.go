package database

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict means a conditional status update matched no row:
	// the item moved on (or never was) in one of the expected statuses.
	ErrStatusConflict = errors.New("item status changed concurrently")
)

type SiteRepository interface {
	GetSite(ctx context.Context, siteID string) (*Site, error)
	ListActiveSites(ctx context.Context) ([]Site, error)
}

type SourceRepository interface {
	ListActiveSources(ctx context.Context, siteID string) ([]Source, error)
	ListSources(ctx context.Context, siteID string) ([]Source, error)
	RecordFetch(ctx context.Context, sourceID string, fetchedAt time.Time, fetchErr string, newItems int) error
}

type ItemRepository interface {
	// InsertCandidate stores a raw item and reports false when the site
	// already has an item for the same original URL.
	InsertCandidate(ctx context.Context, item *ContentItem) (bool, error)
	ListPending(ctx context.Context, siteID string, limit int) ([]ContentItem, error)
	ListPublished(ctx context.Context, siteID string, limit int) ([]ContentItem, error)
	ListFingerprints(ctx context.Context, siteID string) ([]string, error)
	UpdateOriginalContent(ctx context.Context, item *ContentItem) error
	UpdateStatus(ctx context.Context, itemID string, to ItemStatus, from []ItemStatus) error
	SlugExists(ctx context.Context, siteID, slug string) (bool, error)
	Publish(ctx context.Context, item *ContentItem, from []ItemStatus) error
}

type CategoryRepository interface {
	FindCategoryByName(ctx context.Context, siteID, name string) (*Category, error)
	CreateCategory(ctx context.Context, siteID, name, slug string) (*Category, error)
}

type BacklinkRepository interface {
	GetBacklinkSettings(ctx context.Context, siteID string) (*BacklinkSettings, error)
}

type JobRepository interface {
	InsertJobLog(ctx context.Context, job *JobLog) error
	ListJobLogs(ctx context.Context, siteID string, limit int) ([]JobLog, error)
}
