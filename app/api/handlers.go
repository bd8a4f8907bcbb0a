package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/content-forge/app/cache"
	"github.com/lysyi3m/content-forge/app/database"
	"github.com/lysyi3m/content-forge/app/tasks"
)

const (
	defaultFeedSize = 50
	defaultJobLimit = 20
	maxListLimit    = 200
)

func NewHandler(siteRepo database.SiteRepository, sourceRepo database.SourceRepository,
	itemRepo database.ItemRepository, jobRepo database.JobRepository,
	runner tasks.JobRunner, generator GeneratorInterface, rewriteLimit int, version string) *Handler {
	return &Handler{
		siteRepo:     siteRepo,
		sourceRepo:   sourceRepo,
		itemRepo:     itemRepo,
		jobRepo:      jobRepo,
		runner:       runner,
		generator:    generator,
		feedSize:     defaultFeedSize,
		rewriteLimit: rewriteLimit,
		version:      version,
	}
}

func (h *Handler) GetSiteFeed(c *gin.Context) {
	site, ok := h.loadSite(c, false)
	if !ok {
		return
	}

	items, err := h.itemRepo.ListPublished(c.Request.Context(), site.ID, h.feedSize)
	if err != nil {
		slog.Error("Database error", "operation", "list_published", "site", site.ID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(*site, items)
	if err != nil {
		slog.Error("RSS generation error", "site", site.ID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Site-ID", site.ID)

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if sites, err := h.siteRepo.ListActiveSites(c.Request.Context()); err == nil {
		health["active_sites"] = len(sites)
		health["status"] = "ok"
	} else {
		slog.Error("Health check failed", "error", err)
		health["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIFetchSources(c *gin.Context) {
	site, ok := h.loadSite(c, true)
	if !ok {
		return
	}

	job, err := h.runner.RunFetch(c.Request.Context(), site.ID)
	h.respondJob(c, site.ID, job, err)
}

func (h *Handler) APIRewritePending(c *gin.Context) {
	limit, ok := queryLimit(c, h.rewriteLimit)
	if !ok {
		return
	}

	site, ok := h.loadSite(c, true)
	if !ok {
		return
	}

	job, err := h.runner.RunRewrite(c.Request.Context(), site.ID, limit)
	h.respondJob(c, site.ID, job, err)
}

func (h *Handler) APIListJobs(c *gin.Context) {
	limit, ok := queryLimit(c, defaultJobLimit)
	if !ok {
		return
	}

	site, ok := h.loadSite(c, true)
	if !ok {
		return
	}

	jobs, err := h.jobRepo.ListJobLogs(c.Request.Context(), site.ID, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_jobs", "site", site.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		response = append(response, toJobResponse(&jobs[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  response,
		"total": len(response),
	})
}

func (h *Handler) APIListSources(c *gin.Context) {
	site, ok := h.loadSite(c, true)
	if !ok {
		return
	}

	sources, err := h.sourceRepo.ListSources(c.Request.Context(), site.ID)
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "site", site.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := make([]sourceResponse, 0, len(sources))
	for _, source := range sources {
		item := sourceResponse{
			ID:        source.ID,
			URL:       source.URL,
			Kind:      string(source.Kind),
			Active:    source.Active,
			Validated: source.Validated,
			LastError: source.LastError,
			ItemCount: source.ItemCount,
		}
		if source.LastFetchedAt != nil {
			fetched := source.LastFetchedAt.Format(time.RFC3339)
			item.LastFetchedAt = &fetched
		}
		response = append(response, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"site":    site.ID,
		"sources": response,
		"total":   len(response),
	})
}

// loadSite resolves the :id parameter and writes the error response
// itself. jsonErrors selects between JSON bodies and bare status codes.
func (h *Handler) loadSite(c *gin.Context, jsonErrors bool) (*database.Site, bool) {
	fail := func(status int, message string) {
		if jsonErrors {
			c.JSON(status, gin.H{"error": message})
			return
		}
		c.Status(status)
	}

	id := c.Param("id")
	if id == "" {
		fail(http.StatusBadRequest, "Missing site id parameter")
		return nil, false
	}

	site, err := h.siteRepo.GetSite(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		fail(http.StatusNotFound, "Site not found")
		return nil, false
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_site", "site", id, "error", err)
		fail(http.StatusInternalServerError, "Database error")
		return nil, false
	}

	return site, true
}

func (h *Handler) respondJob(c *gin.Context, siteID string, job *database.JobLog, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, toJobResponse(job))
	case errors.Is(err, cache.ErrLockNotAcquired):
		body := gin.H{"error": "Site is being processed by another run"}
		if job != nil {
			body["job"] = toJobResponse(job)
		}
		c.JSON(http.StatusConflict, body)
	default:
		slog.Error("Pipeline run failed", "site", siteID, "error", err)
		body := gin.H{"error": "Pipeline run failed", "details": err.Error()}
		if job != nil {
			body["job"] = toJobResponse(job)
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}

func queryLimit(c *gin.Context, fallback int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return fallback, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxListLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 200"})
		return 0, false
	}
	return limit, true
}

func toJobResponse(job *database.JobLog) jobResponse {
	return jobResponse{
		ID:                job.ID,
		Type:              string(job.JobType),
		SiteID:            job.SiteID,
		Status:            string(job.Status),
		ArticlesFetched:   job.ArticlesFetched,
		ArticlesRewritten: job.ArticlesRewritten,
		ArticlesPublished: job.ArticlesPublished,
		Error:             job.Error,
		StartedAt:         job.StartedAt.Format(time.RFC3339),
		DurationMs:        job.DurationMs,
	}
}
