package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/content-forge/app/database"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	defaultTaskTimeout = 5 * time.Minute
	maxRetryDelay      = 30 * time.Second
)

type Scheduler struct {
	siteRepo       database.SiteRepository
	runner         JobRunner
	interval       time.Duration
	workerCount    int
	batchSize      int
	taskTimeout    time.Duration
	retryBaseDelay time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	taskQueue      chan TaskInterface
}

func NewScheduler(siteRepo database.SiteRepository, runner JobRunner, interval time.Duration, workerCount, batchSize int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		siteRepo:       siteRepo,
		runner:         runner,
		interval:       interval,
		workerCount:    max(workerCount, 1),
		batchSize:      batchSize,
		taskTimeout:    defaultTaskTimeout,
		retryBaseDelay: time.Second,
		ctx:            ctx,
		cancel:         cancel,
		taskQueue:      make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueueTasks queues a fetch for every active site; the rewrite of a
// site follows its fetch so the two never compete for the site lock.
func (s *Scheduler) enqueueTasks() {
	sites, err := s.siteRepo.ListActiveSites(s.ctx)
	if err != nil {
		slog.Error("Failed to list active sites", "error", err)
		return
	}
	if len(sites) == 0 {
		slog.Debug("No active sites found")
		return
	}

	slog.Debug("Scheduling pipeline runs", "sites", len(sites))

	for _, site := range sites {
		rewriteTask := NewRewritePendingTask(site.ID, s.runner, s.batchSize)
		fetchTask := NewFetchSourcesTask(site.ID, s.runner, rewriteTask)
		if err := s.EnqueueTask(fetchTask); err != nil {
			slog.Warn("Failed to enqueue FetchSourcesTask", "site", site.ID, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		s.enqueueNext(task)
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "site", task.GetSiteID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		s.enqueueNext(task)
		return
	}

	task.IncrementRetryCount()
	retryDelay := min(s.retryBaseDelay*time.Duration(1<<uint(task.GetRetryCount()-1)), maxRetryDelay)

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "site", task.GetSiteID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}

func (s *Scheduler) enqueueNext(task TaskInterface) {
	chained, ok := task.(Chained)
	if !ok || chained.Next() == nil {
		return
	}
	next := chained.Next()
	if err := s.EnqueueTask(next); err != nil {
		slog.Warn("Failed to enqueue follow-up task", "type", string(next.GetType()), "site", next.GetSiteID(), "error", err)
	}
}
