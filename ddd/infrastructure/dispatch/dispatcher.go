package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medkit-service/ddd/domain/port"
	"medkit-service/pkg/logger"
)

const dispatchKeyPrefix = "dispatch:"

// Unscheduler marks a job failed when no execution path accepted it.
type Unscheduler interface {
	FailUnscheduled(ctx context.Context, jobID string, cause error) error
}

// Dispatcher 作业分发器: the queued path first, the local pool as fallback.
// A job id is dispatched at most once.
type Dispatcher struct {
	primary     port.TaskRunner
	fallback    port.TaskRunner
	store       port.KVStore
	unscheduler Unscheduler
	markerTTL   time.Duration
}

// NewDispatcher 创建分发器. primary may be nil when the queue is disabled.
func NewDispatcher(primary, fallback port.TaskRunner, store port.KVStore, unscheduler Unscheduler, markerTTL time.Duration) *Dispatcher {
	return &Dispatcher{
		primary:     primary,
		fallback:    fallback,
		store:       store,
		unscheduler: unscheduler,
		markerTTL:   markerTTL,
	}
}

// Dispatch hands the job to an execution path and returns the path's name.
// Dispatching an id twice is a no-op that returns an empty name.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string) (string, error) {
	key := dispatchKeyPrefix + jobID
	first, err := d.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), d.markerTTL)
	if err != nil {
		return "", fmt.Errorf("mark dispatched: %w", err)
	}
	if !first {
		logger.Infof("job already dispatched job_id=%s", jobID)
		return "", nil
	}

	var errs []error
	for _, runner := range []port.TaskRunner{d.primary, d.fallback} {
		if runner == nil {
			continue
		}
		if err := runner.Submit(ctx, jobID); err != nil {
			logger.Warnf("execution path rejected job job_id=%s path=%s error=%v", jobID, runner.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", runner.Name(), err))
			continue
		}
		logger.Infof("job dispatched job_id=%s path=%s", jobID, runner.Name())
		return runner.Name(), nil
	}

	cause := errors.Join(errs...)
	if cause == nil {
		cause = port.ErrRunnerUnavailable
	}
	if err := d.store.Delete(ctx, key); err != nil {
		logger.Warnf("release dispatch marker failed job_id=%s error=%v", jobID, err)
	}
	if d.unscheduler != nil {
		if err := d.unscheduler.FailUnscheduled(ctx, jobID, cause); err != nil {
			logger.Errorf("mark unscheduled job failed job_id=%s error=%v", jobID, err)
		}
	}
	return "", fmt.Errorf("%w: %v", port.ErrRunnerUnavailable, cause)
}
