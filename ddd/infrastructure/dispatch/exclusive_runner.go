package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"medkit-service/ddd/domain/port"
	"medkit-service/pkg/logger"
)

const activeKeyPrefix = "active:"

// ExclusiveRunner guards the job runner with an expiring marker so that one job
// id executes on at most one worker at a time. The marker is refreshed while the
// job runs, so its ttl only bounds how long a crashed holder blocks the job.
type ExclusiveRunner struct {
	next  port.JobRunner
	store port.KVStore
	owner string
	ttl   time.Duration
}

// NewExclusiveRunner wraps next. owner is written into the marker for diagnostics.
func NewExclusiveRunner(next port.JobRunner, store port.KVStore, owner string, ttl time.Duration) *ExclusiveRunner {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &ExclusiveRunner{next: next, store: store, owner: owner, ttl: ttl}
}

func (r *ExclusiveRunner) Run(ctx context.Context, jobID string) error {
	key := activeKeyPrefix + jobID
	token := r.owner + "/" + uuid.NewString()
	acquired, err := r.store.SetNX(ctx, key, token, r.ttl)
	if err != nil {
		return err
	}
	if !acquired {
		holder, _, _ := r.store.Get(ctx, key)
		logger.Infof("job already running elsewhere job_id=%s holder=%s", jobID, holder)
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.keepAlive(key, token, jobID, stop)
	}()
	defer func() {
		close(stop)
		<-done
		// the caller's ctx may already be cancelled on shutdown
		r.release(context.Background(), key, token, jobID)
	}()
	return r.next.Run(ctx, jobID)
}

// keepAlive 定期续期 active 标记, until stop is closed.
func (r *ExclusiveRunner) keepAlive(key, token, jobID string, stop <-chan struct{}) {
	interval := r.ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx := context.Background()
			holder, ok, err := r.store.Get(ctx, key)
			if err != nil {
				logger.Warnf("read active marker failed job_id=%s error=%v", jobID, err)
				continue
			}
			if ok && holder != token {
				logger.Warnf("active marker taken over job_id=%s holder=%s", jobID, holder)
				continue
			}
			if err := r.store.Set(ctx, key, token, r.ttl); err != nil {
				logger.Warnf("refresh active marker failed job_id=%s error=%v", jobID, err)
			}
		}
	}
}

func (r *ExclusiveRunner) release(ctx context.Context, key, token, jobID string) {
	holder, ok, err := r.store.Get(ctx, key)
	if err == nil && ok && holder != token {
		return
	}
	if err := r.store.Delete(ctx, key); err != nil {
		logger.Warnf("release active marker failed job_id=%s error=%v", jobID, err)
	}
}
