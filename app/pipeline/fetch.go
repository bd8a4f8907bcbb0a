package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/content-forge/app/database"
	"github.com/lysyi3m/content-forge/app/feed"
)

// FetchSources harvests every active source of the site and stores new
// candidates as raw items. A failing source is recorded on the source and
// does not stop the others.
func (p *Pipeline) FetchSources(ctx context.Context, site *database.Site) (FetchStats, error) {
	var stats FetchStats

	sources, err := p.Sources.ListActiveSources(ctx, site.ID)
	if err != nil {
		return stats, fmt.Errorf("failed to list sources: %w", err)
	}

	for _, source := range sources {
		stats.Sourced++
		p.fetchSource(ctx, site, source, &stats)
	}

	slog.Info("Sources fetched",
		"site", site.ID,
		"sourced", stats.Sourced,
		"new", stats.NewArticles,
		"duplicates", stats.Duplicates,
		"errors", stats.Errors)

	return stats, nil
}

func (p *Pipeline) fetchSource(ctx context.Context, site *database.Site, source database.Source, stats *FetchStats) {
	candidates, err := p.Reader.Read(ctx, source.URL, source.Kind)
	if err != nil {
		stats.Errors++
		p.Metrics.sourceFetched(false)
		slog.Warn("Source fetch failed", "site", site.ID, "source", source.ID, "url", source.URL, "error", err)
		if recErr := p.Sources.RecordFetch(ctx, source.ID, time.Now().UTC(), err.Error(), 0); recErr != nil {
			slog.Error("Failed to record source fetch", "source", source.ID, "error", recErr)
		}
		return
	}
	p.Metrics.sourceFetched(true)

	newItems := 0
	for _, candidate := range candidates {
		item := newItem(site.ID, source.ID, candidate)

		inserted, err := p.Items.InsertCandidate(ctx, item)
		switch {
		case err != nil:
			stats.Errors++
			p.Metrics.candidate("error")
			slog.Warn("Failed to store candidate", "site", site.ID, "url", candidate.URL, "error", err)
		case !inserted:
			stats.Duplicates++
			p.Metrics.candidate("duplicate")
		default:
			stats.NewArticles++
			newItems++
			p.Metrics.candidate("new")
		}
	}

	if err := p.Sources.RecordFetch(ctx, source.ID, time.Now().UTC(), "", newItems); err != nil {
		slog.Error("Failed to record source fetch", "source", source.ID, "error", err)
	}

	slog.Debug("Source fetched", "site", site.ID, "source", source.ID, "candidates", len(candidates), "new", newItems)
}

func newItem(siteID, sourceID string, c feed.Candidate) *database.ContentItem {
	return &database.ContentItem{
		SiteID:              siteID,
		SourceID:            sourceID,
		OriginalTitle:       c.Title,
		OriginalURL:         c.URL,
		OriginalContent:     c.Content,
		OriginalAuthor:      c.Author,
		OriginalPublishedAt: c.PublishedAt,
		OriginalImageURL:    c.ImageURL,
		ContentHash:         contentHash(c),
		Status:              database.StatusRaw,
	}
}

// contentHash digests whatever text the candidate carries; sitemap
// entries only have their URL.
func contentHash(c feed.Candidate) string {
	if c.ContentEmpty || c.Content == "" {
		return hashText(c.Title, c.URL)
	}
	return hashText(c.Title, c.Content)
}

func hashText(title, body string) string {
	sum := sha256.Sum256([]byte(title + "\n" + body))
	return hex.EncodeToString(sum[:])
}
