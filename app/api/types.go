package api

import (
	"github.com/lysyi3m/content-forge/app/database"
	"github.com/lysyi3m/content-forge/app/tasks"
)

type GeneratorInterface interface {
	Run(site database.Site, items []database.ContentItem) (string, error)
}

var _ GeneratorInterface = (*Generator)(nil)

type Handler struct {
	siteRepo     database.SiteRepository
	sourceRepo   database.SourceRepository
	itemRepo     database.ItemRepository
	jobRepo      database.JobRepository
	runner       tasks.JobRunner
	generator    GeneratorInterface
	feedSize     int
	rewriteLimit int
	version      string
}

type sourceResponse struct {
	ID            string  `json:"id"`
	URL           string  `json:"url"`
	Kind          string  `json:"kind"`
	Active        bool    `json:"active"`
	Validated     bool    `json:"validated"`
	LastFetchedAt *string `json:"last_fetched_at"`
	LastError     string  `json:"last_error,omitempty"`
	ItemCount     int     `json:"item_count"`
}

type jobResponse struct {
	ID                string  `json:"id"`
	Type              string  `json:"type"`
	SiteID            *string `json:"site_id"`
	Status            string  `json:"status"`
	ArticlesFetched   int     `json:"articles_fetched"`
	ArticlesRewritten int     `json:"articles_rewritten"`
	ArticlesPublished int     `json:"articles_published"`
	Error             string  `json:"error,omitempty"`
	StartedAt         string  `json:"started_at"`
	DurationMs        int64   `json:"duration_ms"`
}
