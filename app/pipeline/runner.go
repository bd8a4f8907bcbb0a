package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/content-forge/app/cache"
	"github.com/lysyi3m/content-forge/app/database"
)

const DefaultLockTTL = 15 * time.Minute

// Runner wraps the two entry points with the per-site lock and the job
// audit log.
type Runner struct {
	pipeline *Pipeline
	sites    database.SiteRepository
	jobs     database.JobRepository
	locker   cache.Locker
	lockTTL  time.Duration
	metrics  *Metrics
	now      func() time.Time
}

func NewRunner(p *Pipeline, sites database.SiteRepository, jobs database.JobRepository, locker cache.Locker, lockTTL time.Duration) *Runner {
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Runner{
		pipeline: p,
		sites:    sites,
		jobs:     jobs,
		locker:   locker,
		lockTTL:  lockTTL,
		metrics:  p.Metrics,
		now:      time.Now,
	}
}

func (r *Runner) RunFetch(ctx context.Context, siteID string) (*database.JobLog, error) {
	return r.runSite(ctx, database.JobTypeFetch, siteID, func(site *database.Site, job *database.JobLog) error {
		stats, err := r.pipeline.FetchSources(ctx, site)
		if err != nil {
			return err
		}
		job.ArticlesFetched = stats.NewArticles
		job.Status = fetchStatus(stats)
		if stats.Errors > 0 {
			job.Error = fmt.Sprintf("%d of %d sources or candidates failed", stats.Errors, stats.Sourced)
		}
		return nil
	})
}

func (r *Runner) RunRewrite(ctx context.Context, siteID string, limit int) (*database.JobLog, error) {
	return r.runSite(ctx, database.JobTypeRewrite, siteID, func(site *database.Site, job *database.JobLog) error {
		stats, err := r.pipeline.RewritePending(ctx, site, limit)
		if err != nil {
			return err
		}
		job.ArticlesRewritten = stats.Processed
		job.ArticlesPublished = stats.Published
		job.Status = rewriteStatus(stats)
		if stats.Errors > 0 {
			job.Error = fmt.Sprintf("%d of %d items failed", stats.Errors, stats.Processed)
		}
		return nil
	})
}

// RunAll fetches and rewrites every active site in turn and records a
// platform-wide job with the totals.
func (r *Runner) RunAll(ctx context.Context, limit int) (*database.JobLog, error) {
	job := r.startJob(database.JobTypeAll, nil)

	sites, err := r.sites.ListActiveSites(ctx)
	if err != nil {
		job.Status = database.JobStatusFailed
		job.Error = err.Error()
		r.finishJob(ctx, job)
		return job, fmt.Errorf("failed to list active sites: %w", err)
	}

	job.Status = database.JobStatusSuccess
	failedSites := 0
	for _, site := range sites {
		fetchJob, fetchErr := r.RunFetch(ctx, site.ID)
		rewriteJob, rewriteErr := r.RunRewrite(ctx, site.ID, limit)

		job.ArticlesFetched += fetchJob.ArticlesFetched
		job.ArticlesRewritten += rewriteJob.ArticlesRewritten
		job.ArticlesPublished += rewriteJob.ArticlesPublished

		if fetchErr != nil || rewriteErr != nil || degraded(fetchJob) || degraded(rewriteJob) {
			failedSites++
		}
	}

	if failedSites > 0 {
		job.Status = database.JobStatusPartial
		job.Error = fmt.Sprintf("%d of %d sites had failures", failedSites, len(sites))
	}

	r.finishJob(ctx, job)
	return job, nil
}

func (r *Runner) runSite(ctx context.Context, jobType database.JobType, siteID string, run func(*database.Site, *database.JobLog) error) (*database.JobLog, error) {
	job := r.startJob(jobType, &siteID)

	release, err := r.locker.TryAcquire(ctx, cache.SiteKey(siteID), r.lockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			job.Status = database.JobStatusSkipped
			job.Error = "site is being processed by another run"
		} else {
			job.Status = database.JobStatusFailed
			job.Error = err.Error()
		}
		r.finishJob(ctx, job)
		return job, fmt.Errorf("failed to lock site %s: %w", siteID, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to release site lock", "site", siteID, "error", err)
		}
	}()

	site, err := r.sites.GetSite(ctx, siteID)
	if err != nil {
		job.Status = database.JobStatusFailed
		job.Error = err.Error()
		r.finishJob(ctx, job)
		return job, fmt.Errorf("failed to load site %s: %w", siteID, err)
	}

	if err := run(site, job); err != nil {
		job.Status = database.JobStatusFailed
		job.Error = err.Error()
		r.finishJob(ctx, job)
		return job, err
	}

	r.finishJob(ctx, job)
	return job, nil
}

func (r *Runner) startJob(jobType database.JobType, siteID *string) *database.JobLog {
	return &database.JobLog{
		JobType:   jobType,
		SiteID:    siteID,
		StartedAt: r.now().UTC(),
	}
}

// finishJob stamps and stores the job. A storage failure is logged only;
// the job result itself stands.
func (r *Runner) finishJob(ctx context.Context, job *database.JobLog) {
	finished := r.now().UTC()
	job.FinishedAt = &finished
	job.DurationMs = finished.Sub(job.StartedAt).Milliseconds()

	r.metrics.jobFinished(string(job.JobType), string(job.Status), finished.Sub(job.StartedAt))

	if err := r.jobs.InsertJobLog(context.WithoutCancel(ctx), job); err != nil {
		slog.Error("Failed to write job log", "type", job.JobType, "error", err)
	}

	slog.Info("Job completed",
		"type", job.JobType,
		"site", siteLabel(job.SiteID),
		"status", job.Status,
		"fetched", job.ArticlesFetched,
		"rewritten", job.ArticlesRewritten,
		"published", job.ArticlesPublished,
		"duration", time.Duration(job.DurationMs)*time.Millisecond)
}

func fetchStatus(stats FetchStats) database.JobStatus {
	switch {
	case stats.Errors == 0:
		return database.JobStatusSuccess
	case stats.NewArticles == 0 && stats.Duplicates == 0:
		return database.JobStatusFailed
	default:
		return database.JobStatusPartial
	}
}

func rewriteStatus(stats RewriteStats) database.JobStatus {
	switch {
	case stats.Errors == 0:
		return database.JobStatusSuccess
	case stats.Errors == stats.Processed:
		return database.JobStatusFailed
	default:
		return database.JobStatusPartial
	}
}

func degraded(job *database.JobLog) bool {
	return job.Status == database.JobStatusFailed || job.Status == database.JobStatusPartial
}

func siteLabel(siteID *string) string {
	if siteID == nil {
		return "all"
	}
	return *siteID
}
