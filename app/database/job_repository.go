package database

import (
	"context"
	"fmt"
)

type JobRepo struct {
	db *DB
}

var _ JobRepository = (*JobRepo)(nil)

func NewJobRepository(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) InsertJobLog(ctx context.Context, job *JobLog) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO job_log (
			job_type, site_id, status, articles_fetched, articles_rewritten,
			articles_published, error, started_at, finished_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, string(job.JobType), job.SiteID, string(job.Status), job.ArticlesFetched, job.ArticlesRewritten,
		job.ArticlesPublished, job.Error, job.StartedAt, job.FinishedAt, job.DurationMs,
	).Scan(&job.ID)
	if err != nil {
		return fmt.Errorf("failed to insert job log: %w", err)
	}
	return nil
}

func (r *JobRepo) ListJobLogs(ctx context.Context, siteID string, limit int) ([]JobLog, error) {
	var jobs []JobLog
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT id, job_type, site_id, status, articles_fetched, articles_rewritten,
		       articles_published, error, started_at, finished_at, duration_ms
		FROM job_log
		WHERE site_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list job logs: %w", err)
	}
	return jobs, nil
}
