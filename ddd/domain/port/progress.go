package port

import (
	"context"

	"medkit-service/ddd/domain/vo"
)

// ProgressSink receives progress ticks from an executing job.
// Report returns ErrCancelled once cancellation has been requested.
type ProgressSink interface {
	Report(ctx context.Context, percentage int, message string) error
	Cancelled(ctx context.Context) bool
}

// ProgressChannel is the keyed, expiring progress and cancellation store.
type ProgressChannel interface {
	Set(ctx context.Context, jobID string, percentage int, message string, status vo.JobStatus) error
	Get(ctx context.Context, jobID string) (vo.ProgressEntry, bool, error)
	Cancel(ctx context.Context, jobID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}
