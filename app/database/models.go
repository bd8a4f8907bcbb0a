package database

import (
	"time"

	"github.com/lib/pq"
)

type ItemStatus string

const (
	StatusRaw         ItemStatus = "raw"
	StatusFiltered    ItemStatus = "filtered"
	StatusDuplicate   ItemStatus = "duplicate"
	StatusFailed      ItemStatus = "failed"
	StatusPublished   ItemStatus = "published"
	StatusUnpublished ItemStatus = "unpublished"
	StatusDeleted     ItemStatus = "deleted"
)

// RewritableStatuses are the statuses a rewrite pass may pick up.
var RewritableStatuses = []ItemStatus{StatusRaw, StatusFailed, StatusFiltered}

func (s ItemStatus) Rewritable() bool {
	for _, r := range RewritableStatuses {
		if s == r {
			return true
		}
	}
	return false
}

type SourceKind string

const (
	SourceKindFeed    SourceKind = "feed"
	SourceKindSitemap SourceKind = "sitemap"
)

type BacklinkPlacement string

const (
	PlacementInline BacklinkPlacement = "inline"
	PlacementBanner BacklinkPlacement = "banner"
	PlacementBoth   BacklinkPlacement = "both"
)

type JobType string

const (
	JobTypeFetch   JobType = "fetch_sources"
	JobTypeRewrite JobType = "rewrite_pending"
	JobTypeAll     JobType = "run_all"
)

type JobStatus string

const (
	JobStatusSuccess JobStatus = "success"
	JobStatusPartial JobStatus = "partial"
	JobStatusFailed  JobStatus = "failed"
	JobStatusSkipped JobStatus = "skipped"
)

type Site struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	BaseURL      string    `db:"base_url"`
	ToneOfVoice  string    `db:"tone_of_voice"`
	BrandContext string    `db:"brand_context"`
	Language     string    `db:"language"`
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type Source struct {
	ID            string     `db:"id"`
	SiteID        string     `db:"site_id"`
	URL           string     `db:"url"`
	Kind          SourceKind `db:"kind"`
	Active        bool       `db:"active"`
	Validated     bool       `db:"validated"`
	LastFetchedAt *time.Time `db:"last_fetched_at"`
	LastError     string     `db:"last_error"`
	ItemCount     int        `db:"item_count"`
	CreatedAt     time.Time  `db:"created_at"`
}

// ContentItem is an article moving through the pipeline. The Original*
// fields describe what was harvested; the rest is produced by the rewrite.
type ContentItem struct {
	ID       string `db:"id"`
	SiteID   string `db:"site_id"`
	SourceID string `db:"source_id"`

	OriginalTitle       string     `db:"original_title"`
	OriginalURL         string     `db:"original_url"`
	OriginalContent     string     `db:"original_content"`
	OriginalAuthor      string     `db:"original_author"`
	OriginalPublishedAt *time.Time `db:"original_published_at"`
	OriginalImageURL    string     `db:"original_image_url"`
	ContentHash         string     `db:"content_hash"`
	Fingerprint         string     `db:"fingerprint"`

	Title           string         `db:"title"`
	Slug            string         `db:"slug"`
	Content         string         `db:"content"`
	Excerpt         string         `db:"excerpt"`
	MetaDescription string         `db:"meta_description"`
	Tags            pq.StringArray `db:"tags"`
	CategoryID      *string        `db:"category_id"`
	SocialCopy      string         `db:"social_copy"`
	SocialHashtags  pq.StringArray `db:"social_hashtags"`
	BacklinkApplied bool           `db:"backlink_applied"`
	ImageURL        string         `db:"image_url"`

	Status      ItemStatus `db:"status"`
	PublishedAt *time.Time `db:"published_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

type Category struct {
	ID           string    `db:"id"`
	SiteID       string    `db:"site_id"`
	Name         string    `db:"name"`
	Slug         string    `db:"slug"`
	ArticleCount int       `db:"article_count"`
	CreatedAt    time.Time `db:"created_at"`
}

type BacklinkSettings struct {
	SiteID         string            `db:"site_id"`
	Enabled        bool              `db:"enabled"`
	TargetURL      string            `db:"target_url"`
	Placement      BacklinkPlacement `db:"placement"`
	BannerText     string            `db:"banner_text"`
	BannerImageURL string            `db:"banner_image_url"`
	LinkText       string            `db:"link_text"`
	Frequency      int               `db:"frequency"`
}

// JobLog is append-only.
type JobLog struct {
	ID                string     `db:"id"`
	JobType           JobType    `db:"job_type"`
	SiteID            *string    `db:"site_id"`
	Status            JobStatus  `db:"status"`
	ArticlesFetched   int        `db:"articles_fetched"`
	ArticlesRewritten int        `db:"articles_rewritten"`
	ArticlesPublished int        `db:"articles_published"`
	Error             string     `db:"error"`
	StartedAt         time.Time  `db:"started_at"`
	FinishedAt        *time.Time `db:"finished_at"`
	DurationMs        int64      `db:"duration_ms"`
}
