package port

import (
	"context"

	"medkit-service/ddd/domain/vo"
)

// JobRunner is the single entry point every execution path invokes.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// TaskRunner schedules a job id for execution on some path.
type TaskRunner interface {
	Name() string
	Submit(ctx context.Context, jobID string) error
}

// QuotaGuard consumes one unit of an owner's daily allowance.
type QuotaGuard interface {
	Consume(ctx context.Context, ownerID string) error
}

// AttemptPlanner builds the ordered attempt lists for each pipeline stage.
type AttemptPlanner interface {
	ExtractionAttempts() []vo.Attempt
	DownloadAttempts(selector string) []vo.Attempt
	ConversionAttempts() []vo.Attempt
}
