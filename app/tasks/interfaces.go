package tasks

import (
	"context"

	"github.com/lysyi3m/content-forge/app/database"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to run the pipeline in the background.
// Example usage:
//
//	scheduler := NewScheduler(siteRepo, runner, interval, workers, batchSize)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewFetchSourcesTask(siteID, runner, nil))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// JobRunner runs the pipeline entry points for one site.
type JobRunner interface {
	RunFetch(ctx context.Context, siteID string) (*database.JobLog, error)
	RunRewrite(ctx context.Context, siteID string, limit int) (*database.JobLog, error)
}
