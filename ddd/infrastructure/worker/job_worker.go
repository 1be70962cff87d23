package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"medkit-service/ddd/domain/port"
	"medkit-service/ddd/domain/repo"
	"medkit-service/ddd/domain/vo"
	"medkit-service/ddd/infrastructure/queue"
	"medkit-service/pkg/logger"
)

// WorkerStats 工作器统计信息
type WorkerStats struct {
	ProcessedJobs    uint64
	SuccessfulJobs   uint64
	FailedJobs       uint64
	CurrentlyRunning int
	QueueSize        int
	StartTime        time.Time
	LastJobTime      time.Time
}

// Options 工作池参数
type Options struct {
	ID          string
	Concurrency int
	// StallAfter is how long a processing record may go without updates before the
	// recovery loop resubmits it. Zero disables recovery.
	StallAfter    time.Duration
	RecoveryEvery time.Duration
}

// JobWorker is the in-process worker pool. It is also the local execution path:
// Submit enqueues without blocking and fails when the pool is saturated.
type JobWorker struct {
	opts   Options
	queue  queue.JobQueue
	runner port.JobRunner
	repo   repo.JobRepository

	running bool
	cancel  context.CancelFunc
	stats   WorkerStats
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewJobWorker 创建作业工作池
func NewJobWorker(opts Options, q queue.JobQueue, runner port.JobRunner, jobRepo repo.JobRepository) *JobWorker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.ID == "" {
		opts.ID = "local"
	}
	if opts.RecoveryEvery <= 0 {
		opts.RecoveryEvery = 30 * time.Second
	}
	return &JobWorker{
		opts:   opts,
		queue:  q,
		runner: runner,
		repo:   jobRepo,
		stats:  WorkerStats{StartTime: time.Now()},
	}
}

// Name identifies the execution path.
func (w *JobWorker) Name() string { return "local" }

// Submit hands a job id to the pool.
func (w *JobWorker) Submit(ctx context.Context, jobID string) error {
	if !w.IsRunning() {
		return fmt.Errorf("%w: worker pool %s not running", port.ErrRunnerUnavailable, w.opts.ID)
	}
	if err := w.queue.Enqueue(ctx, jobID); err != nil {
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueClosed) {
			return fmt.Errorf("%w: %v", port.ErrRunnerUnavailable, err)
		}
		return err
	}
	return nil
}

// Start 启动工作池
func (w *JobWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("worker %s is already running", w.opts.ID)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.stats.StartTime = time.Now()

	logger.Infof("Starting job worker %s with %d goroutines", w.opts.ID, w.opts.Concurrency)

	for i := 0; i < w.opts.Concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(workerCtx, i)
	}

	if w.opts.StallAfter > 0 && w.repo != nil {
		w.wg.Add(1)
		go w.recoveryLoop(workerCtx)
	}
	return nil
}

// Stop 停止工作池, in-flight jobs see a cancelled context and stay in processing.
func (w *JobWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	logger.Infof("Stopping job worker %s", w.opts.ID)
	w.running = false
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	w.wg.Wait()
	logger.Infof("Job worker %s stopped", w.opts.ID)
	return nil
}

// IsRunning 检查工作池是否运行中
func (w *JobWorker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// GetStats 获取统计信息
func (w *JobWorker) GetStats() WorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	stats := w.stats
	stats.QueueSize = w.queue.Size()
	return stats
}

func (w *JobWorker) workerLoop(ctx context.Context, slot int) {
	defer w.wg.Done()

	logger.Debugf("Worker %s-%d started", w.opts.ID, slot)
	defer logger.Debugf("Worker %s-%d stopped", w.opts.ID, slot)

	for {
		jobID, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			logger.Warnf("Worker %s-%d failed to dequeue job: %v", w.opts.ID, slot, err)
			continue
		}
		w.process(ctx, jobID, slot)
	}
}

func (w *JobWorker) process(ctx context.Context, jobID string, slot int) {
	w.updateStats(func(stats *WorkerStats) {
		stats.CurrentlyRunning++
		stats.LastJobTime = time.Now()
	})
	defer w.updateStats(func(stats *WorkerStats) {
		stats.CurrentlyRunning--
		stats.ProcessedJobs++
	})

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Worker %s-%d panic on job %s: %v", w.opts.ID, slot, jobID, r)
			w.updateStats(func(stats *WorkerStats) { stats.FailedJobs++ })
		}
	}()

	if err := w.runner.Run(ctx, jobID); err != nil {
		logger.Warnf("Worker %s-%d failed to process job %s: %v", w.opts.ID, slot, jobID, err)
		w.updateStats(func(stats *WorkerStats) { stats.FailedJobs++ })
		return
	}
	w.updateStats(func(stats *WorkerStats) { stats.SuccessfulJobs++ })
}

// recoveryLoop 恢复长时间无进展的作业
func (w *JobWorker) recoveryLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.RecoveryEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.recoverStalled(ctx)
		}
	}
}

func (w *JobWorker) recoverStalled(ctx context.Context) {
	jobs, err := w.repo.QueryJobsByStatus(ctx, vo.JobStatusProcessing, 100)
	if err != nil {
		logger.Warnf("Worker %s failed to query processing jobs: %v", w.opts.ID, err)
		return
	}
	threshold := time.Now().Add(-w.opts.StallAfter)
	for _, job := range jobs {
		if job.UpdatedAt().After(threshold) {
			continue
		}
		if err := w.Submit(ctx, job.JobID()); err != nil {
			logger.Warnf("Worker %s failed to resubmit stalled job %s: %v", w.opts.ID, job.JobID(), err)
			continue
		}
		logger.Infof("Worker %s resubmitted stalled job %s", w.opts.ID, job.JobID())
	}
}

func (w *JobWorker) updateStats(fn func(*WorkerStats)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.stats)
}
