package tasks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/content-forge/app/cache"
)

type FetchSourcesTask struct {
	Task
	runner JobRunner
	next   TaskInterface
}

// NewFetchSourcesTask harvests the site's sources. next, if set, is queued
// after the fetch finishes, whatever its result.
func NewFetchSourcesTask(siteID string, runner JobRunner, next TaskInterface) *FetchSourcesTask {
	return &FetchSourcesTask{
		Task:   NewTask(TaskTypeFetchSources, siteID),
		runner: runner,
		next:   next,
	}
}

func (t *FetchSourcesTask) Execute(ctx context.Context) error {
	job, err := t.runner.RunFetch(ctx, t.SiteID)
	if errors.Is(err, cache.ErrLockNotAcquired) {
		slog.Debug("Site busy, fetch skipped", "site", t.SiteID)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"site", t.SiteID,
		"status", job.Status,
		"fetched", job.ArticlesFetched,
		"duration", t.GetDuration())
	return nil
}

func (t *FetchSourcesTask) Next() TaskInterface {
	return t.next
}

type RewritePendingTask struct {
	Task
	runner JobRunner
	limit  int
}

func NewRewritePendingTask(siteID string, runner JobRunner, limit int) *RewritePendingTask {
	return &RewritePendingTask{
		Task:   NewTask(TaskTypeRewritePending, siteID),
		runner: runner,
		limit:  limit,
	}
}

func (t *RewritePendingTask) Execute(ctx context.Context) error {
	job, err := t.runner.RunRewrite(ctx, t.SiteID, t.limit)
	if errors.Is(err, cache.ErrLockNotAcquired) {
		slog.Debug("Site busy, rewrite skipped", "site", t.SiteID)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"site", t.SiteID,
		"status", job.Status,
		"rewritten", job.ArticlesRewritten,
		"published", job.ArticlesPublished,
		"duration", t.GetDuration())
	return nil
}
