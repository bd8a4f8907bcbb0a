package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/content-forge/app/database"
	"github.com/lysyi3m/content-forge/app/enrich"
	"github.com/lysyi3m/content-forge/app/feed"
	"github.com/lysyi3m/content-forge/app/fingerprint"
	"github.com/lysyi3m/content-forge/app/rewrite"
)

// batch is the state shared by the items of one rewrite pass.
type batch struct {
	site      *database.Site
	known     []string
	backlinks *database.BacklinkSettings
}

// RewritePending takes up to limit rewritable items of the site through
// filter, dedup, rewrite and enrichment, one at a time. Every item ends
// with an ItemResult; no item can abort the batch.
func (p *Pipeline) RewritePending(ctx context.Context, site *database.Site, limit int) (RewriteStats, error) {
	var stats RewriteStats

	items, err := p.Items.ListPending(ctx, site.ID, limit)
	if err != nil {
		return stats, fmt.Errorf("failed to list pending items: %w", err)
	}
	if len(items) == 0 {
		return stats, nil
	}

	known, err := p.Items.ListFingerprints(ctx, site.ID)
	if err != nil {
		return stats, fmt.Errorf("failed to load fingerprints: %w", err)
	}

	b := &batch{site: site, known: known}
	if b.backlinks, err = p.Backlinks.GetBacklinkSettings(ctx, site.ID); err != nil {
		slog.Warn("Backlink settings unavailable, skipping backlinks", "site", site.ID, "error", err)
	}

	for i := range items {
		result := p.processItemSafe(ctx, b, &items[i], i)
		stats.add(result)
		p.Metrics.itemProcessed(result.Outcome)
	}

	slog.Info("Pending items rewritten",
		"site", site.ID,
		"processed", stats.Processed,
		"published", stats.Published,
		"filtered", stats.Filtered,
		"duplicates", stats.Duplicates,
		"errors", stats.Errors)

	return stats, nil
}

func (p *Pipeline) processItemSafe(ctx context.Context, b *batch, item *database.ContentItem, index int) (result ItemResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			result = p.fail(ctx, item, StagePanic, err)
		}
	}()
	return p.processItem(ctx, b, item, index)
}

func (p *Pipeline) processItem(ctx context.Context, b *batch, item *database.ContentItem, index int) ItemResult {
	if item.OriginalContent == "" {
		if err := p.extract(ctx, item); err != nil {
			return p.fail(ctx, item, StageExtract, err)
		}
	}

	if verdict := p.Filter.Check(ctx, item.OriginalTitle, item.OriginalContent); verdict.Promotional {
		if err := p.Items.UpdateStatus(ctx, item.ID, database.StatusFiltered, database.RewritableStatuses); err != nil {
			return p.fail(ctx, item, StageFilter, err)
		}
		slog.Info("Item filtered", "site", b.site.ID, "item_id", item.ID, "verdict", verdict.String())
		return ItemResult{ItemID: item.ID, Outcome: OutcomeFiltered, Stage: StageFilter}
	}

	item.Fingerprint = fingerprint.Compute(feed.PlainText(item.OriginalContent))
	if match, ok := p.Fingerprint.FindMatch(item.Fingerprint, b.known); ok {
		if err := p.Items.UpdateStatus(ctx, item.ID, database.StatusDuplicate, database.RewritableStatuses); err != nil {
			return p.fail(ctx, item, StageFingerprint, err)
		}
		slog.Info("Item is a near-duplicate", "site", b.site.ID, "item_id", item.ID,
			"distance", fingerprint.Distance(item.Fingerprint, match))
		return ItemResult{ItemID: item.ID, Outcome: OutcomeDuplicate, Stage: StageFingerprint}
	}

	rewritten, err := p.Rewriter.Rewrite(ctx, rewrite.Request{
		Title:        item.OriginalTitle,
		Content:      feed.PlainText(item.OriginalContent),
		ToneOfVoice:  b.site.ToneOfVoice,
		BrandContext: b.site.BrandContext,
		Language:     b.site.Language,
	})
	p.Metrics.generativeCall(generativeResult(err))
	if err != nil {
		return p.fail(ctx, item, StageRewrite, err)
	}

	category := p.Categories.Resolve(ctx, b.site.ID, rewritten.Category)

	imageURL := ""
	if p.Images != nil {
		imageURL = p.Images.Store(ctx, item.OriginalImageURL, b.site.ID, item.ID)
	}

	content, applied := enrich.InsertBacklink(rewritten.Content, b.backlinks, index)

	slug, err := enrich.UniqueSlug(ctx, p.Items, b.site.ID, rewritten.Title, item.ID)
	if err != nil {
		return p.fail(ctx, item, StagePublish, err)
	}

	item.Title = rewritten.Title
	item.Slug = slug
	item.Content = content
	item.Excerpt = rewritten.Excerpt
	item.MetaDescription = rewritten.MetaDescription
	item.Tags = rewritten.Tags
	item.CategoryID = category.ID
	item.SocialCopy = rewritten.SocialCopy
	item.SocialHashtags = rewritten.SocialHashtags
	item.BacklinkApplied = applied
	item.ImageURL = imageURL

	if err := p.Items.Publish(ctx, item, database.RewritableStatuses); err != nil {
		return p.fail(ctx, item, StagePublish, err)
	}

	b.known = append(b.known, item.Fingerprint)

	slog.Info("Item published",
		"site", b.site.ID,
		"item_id", item.ID,
		"slug", item.Slug,
		"category", category.Name,
		"image", imageURL != "",
		"backlink", applied)

	return ItemResult{ItemID: item.ID, Outcome: OutcomePublished, Stage: StagePublish}
}

// extract fills in the original fields of a content-empty item and saves
// them so that a later retry does not fetch the page again.
func (p *Pipeline) extract(ctx context.Context, item *database.ContentItem) error {
	article, err := p.Extractor.Extract(ctx, item.OriginalURL)
	if err != nil {
		return err
	}
	if article.Content == "" {
		return fmt.Errorf("no content extracted from %s", item.OriginalURL)
	}

	item.OriginalContent = article.Content
	item.OriginalTitle = cmp.Or(item.OriginalTitle, article.Title)
	item.OriginalAuthor = cmp.Or(item.OriginalAuthor, article.Author)
	item.OriginalImageURL = cmp.Or(item.OriginalImageURL, article.ImageURL)
	if item.OriginalPublishedAt == nil {
		item.OriginalPublishedAt = article.PublishedAt
	}
	item.ContentHash = hashText(item.OriginalTitle, item.OriginalContent)

	if err := p.Items.UpdateOriginalContent(ctx, item); err != nil {
		return fmt.Errorf("failed to save extracted content: %w", err)
	}
	return nil
}

// fail marks the item failed. A conflict means the item left the
// rewritable statuses meanwhile, so it is left alone.
func (p *Pipeline) fail(ctx context.Context, item *database.ContentItem, stage Stage, cause error) ItemResult {
	slog.Warn("Item failed",
		"site", item.SiteID,
		"item_id", item.ID,
		"url", item.OriginalURL,
		"stage", stage,
		"error", cause)

	if err := p.Items.UpdateStatus(ctx, item.ID, database.StatusFailed, database.RewritableStatuses); err != nil {
		slog.Error("Failed to mark item failed", "item_id", item.ID, "error", err)
	}

	return ItemResult{ItemID: item.ID, Outcome: OutcomeFailed, Stage: stage, Err: cause}
}

func generativeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, rewrite.ErrRetriesExhausted):
		return "rate_limited"
	case errors.Is(err, rewrite.ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}
