package repo

import (
	"context"
	"errors"
	"time"

	"medkit-service/ddd/domain/entity"
	"medkit-service/ddd/domain/vo"
)

// ErrJobNotFound is returned when no record matches the id.
var ErrJobNotFound = errors.New("job not found")

// JobRepository 作业仓储接口
type JobRepository interface {
	CreateJob(ctx context.Context, job *entity.JobEntity) error
	GetJob(ctx context.Context, jobID string) (*entity.JobEntity, error)
	// SaveJobIfStatus writes the job only while the stored status still equals expected.
	SaveJobIfStatus(ctx context.Context, job *entity.JobEntity, expected vo.JobStatus) (bool, error)
	// UpdateJobProgress raises the stored progress of a processing job, never lowers it.
	UpdateJobProgress(ctx context.Context, jobID string, progress int) error
	QueryJobsByStatus(ctx context.Context, status vo.JobStatus, limit int) ([]*entity.JobEntity, error)
	ListExpiredJobs(ctx context.Context, before time.Time, limit int) ([]*entity.JobEntity, error)
	DeleteJob(ctx context.Context, jobID string) error
}
