package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"medkit-service/ddd/domain/port"
	"medkit-service/ddd/domain/vo"
	"medkit-service/pkg/logger"
)

var errNoAttempts = errors.New("no attempts configured")

// ExhaustedError is returned when every attempt failed. Only the last cause is kept.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d strategies failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// AttemptFunc performs one attempt.
type AttemptFunc func(ctx context.Context, attempt vo.Attempt) error

// EscalationEngine 按顺序尝试多种策略，两次尝试之间带抖动的递增等待
type EscalationEngine struct {
	base   time.Duration
	max    time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(limit time.Duration) time.Duration
}

// EscalationOption customises the engine.
type EscalationOption func(*EscalationEngine)

// WithSleep replaces the wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) EscalationOption {
	return func(e *EscalationEngine) { e.sleep = fn }
}

// WithJitter replaces the random component of the wait.
func WithJitter(fn func(limit time.Duration) time.Duration) EscalationOption {
	return func(e *EscalationEngine) { e.jitter = fn }
}

// NewEscalationEngine 创建策略升级引擎
func NewEscalationEngine(base, max time.Duration, opts ...EscalationOption) *EscalationEngine {
	e := &EscalationEngine{
		base:   base,
		max:    max,
		sleep:  sleepContext,
		jitter: randomJitter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Delay is the wait before attempt index i; the first attempt never waits.
func (e *EscalationEngine) Delay(i int, attempt vo.Attempt) time.Duration {
	if i <= 0 {
		return 0
	}
	base := attempt.BackoffHint()
	if base <= 0 {
		base = e.base
	}
	d := base*time.Duration(i) + e.jitter(base/2)
	if e.max > 0 && d > e.max {
		d = e.max
	}
	return d
}

// Run tries attempts in order and returns the one that succeeded.
// A format-unavailable failure on a combined selector is retried once in the same
// attempt with the generic selector before moving on.
func (e *EscalationEngine) Run(ctx context.Context, jobID string, attempts []vo.Attempt, sink port.ProgressSink, op AttemptFunc) (vo.Attempt, error) {
	if len(attempts) == 0 {
		return vo.Attempt{}, &ExhaustedError{Last: errNoAttempts}
	}

	var last error
	for i, attempt := range attempts {
		if d := e.Delay(i, attempt); d > 0 {
			logger.Debugf("escalation backoff job_id=%s next=%s delay=%s", jobID, attempt.Name(), d)
			if err := e.sleep(ctx, d); err != nil {
				return attempt, err
			}
		}
		if cancelled(ctx, sink) {
			return attempt, port.ErrCancelled
		}

		used, err := e.try(ctx, jobID, attempt, sink, op)
		if err == nil {
			if i > 0 {
				logger.Infof("escalation succeeded job_id=%s attempt=%s index=%d", jobID, used.Name(), i)
			}
			return used, nil
		}
		if errors.Is(err, port.ErrCancelled) {
			return used, port.ErrCancelled
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return used, ctxErr
		}
		logger.Warnf("escalation attempt failed job_id=%s attempt=%s selector=%s error=%v", jobID, used.Name(), used.Selector(), err)
		last = err
	}
	return vo.Attempt{}, &ExhaustedError{Attempts: len(attempts), Last: last}
}

func (e *EscalationEngine) try(ctx context.Context, jobID string, attempt vo.Attempt, sink port.ProgressSink, op AttemptFunc) (vo.Attempt, error) {
	err := op(ctx, attempt)
	if err == nil || !errors.Is(err, port.ErrFormatUnavailable) || !vo.IsCombinedSelector(attempt.Selector()) {
		return attempt, err
	}
	substitute := attempt.WithSelector(vo.GenericSelector)
	logger.Infof("combined format unavailable, substituting job_id=%s attempt=%s from=%s to=%s",
		jobID, attempt.Name(), attempt.Selector(), substitute.Selector())
	if cancelled(ctx, sink) {
		return substitute, port.ErrCancelled
	}
	return substitute, op(ctx, substitute)
}

func cancelled(ctx context.Context, sink port.ProgressSink) bool {
	return sink != nil && sink.Cancelled(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}
