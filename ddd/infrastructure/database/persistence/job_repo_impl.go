package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"medkit-service/ddd/domain/entity"
	"medkit-service/ddd/domain/repo"
	"medkit-service/ddd/domain/vo"
	"medkit-service/ddd/infrastructure/database/convertor"
	"medkit-service/ddd/infrastructure/database/dao"
	"medkit-service/ddd/infrastructure/database/po"
)

var terminalStatuses = []string{
	vo.JobStatusCompleted.String(),
	vo.JobStatusFailed.String(),
	vo.JobStatusCancelled.String(),
}

type jobRepositoryImpl struct {
	dao *dao.MediaJobDAO
	cvt *convertor.MediaJobConvertor
}

// NewJobRepository 基于 gorm 的作业仓储
func NewJobRepository(db *gorm.DB) repo.JobRepository {
	return &jobRepositoryImpl{dao: dao.NewMediaJobDAO(db), cvt: convertor.NewMediaJobConvertor()}
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&po.MediaJob{})
}

func (r *jobRepositoryImpl) CreateJob(ctx context.Context, job *entity.JobEntity) error {
	return r.dao.Create(ctx, r.cvt.ToPO(job))
}

func (r *jobRepositoryImpl) GetJob(ctx context.Context, jobID string) (*entity.JobEntity, error) {
	p, err := r.dao.FindByJobUUID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrJobNotFound
		}
		return nil, err
	}
	return r.cvt.ToEntity(p), nil
}

func (r *jobRepositoryImpl) SaveJobIfStatus(ctx context.Context, job *entity.JobEntity, expected vo.JobStatus) (bool, error) {
	return r.dao.UpdateIfStatus(ctx, r.cvt.ToPO(job), expected.String())
}

func (r *jobRepositoryImpl) UpdateJobProgress(ctx context.Context, jobID string, progress int) error {
	return r.dao.RaiseProgress(ctx, jobID, vo.JobStatusProcessing.String(), progress)
}

func (r *jobRepositoryImpl) QueryJobsByStatus(ctx context.Context, status vo.JobStatus, limit int) ([]*entity.JobEntity, error) {
	list, err := r.dao.QueryByStatus(ctx, status.String(), limit)
	if err != nil {
		return nil, err
	}
	return r.cvt.ToEntities(list), nil
}

func (r *jobRepositoryImpl) ListExpiredJobs(ctx context.Context, before time.Time, limit int) ([]*entity.JobEntity, error) {
	list, err := r.dao.ListExpired(ctx, before, terminalStatuses, limit)
	if err != nil {
		return nil, err
	}
	return r.cvt.ToEntities(list), nil
}

func (r *jobRepositoryImpl) DeleteJob(ctx context.Context, jobID string) error {
	return r.dao.Delete(ctx, jobID)
}
