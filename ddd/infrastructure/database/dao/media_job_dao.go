package dao

import (
	"context"
	"time"

	"gorm.io/gorm"

	"medkit-service/ddd/infrastructure/database/po"
	"medkit-service/pkg/logger"
)

// MediaJobDAO 媒体作业数据访问对象
type MediaJobDAO struct {
	db *gorm.DB
}

// NewMediaJobDAO 创建媒体作业DAO实例
func NewMediaJobDAO(db *gorm.DB) *MediaJobDAO {
	return &MediaJobDAO{db: db}
}

// Create 创建作业
func (d *MediaJobDAO) Create(ctx context.Context, job *po.MediaJob) error {
	if err := d.db.WithContext(ctx).Create(job).Error; err != nil {
		logger.Errorf("Error creating media job %v", err)
		return err
	}
	return nil
}

// FindByJobUUID 根据作业UUID查询, 不存在时返回 gorm.ErrRecordNotFound
func (d *MediaJobDAO) FindByJobUUID(ctx context.Context, jobUUID string) (*po.MediaJob, error) {
	var job po.MediaJob
	if err := d.db.WithContext(ctx).Where("job_uuid = ?", jobUUID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateIfStatus 仅当库中状态仍为 expected 时整行更新, 返回是否命中
func (d *MediaJobDAO) UpdateIfStatus(ctx context.Context, job *po.MediaJob, expected string) (bool, error) {
	update := map[string]interface{}{
		"status":        job.Status,
		"progress":      job.Progress,
		"error_message": job.ErrorMessage,
		"title":         job.Title,
		"output_key":    job.OutputKey,
		"output_size":   job.OutputSize,
		"output_ext":    job.OutputExt,
		"duration":      job.Duration,
		"selector":      job.Selector,
		"strategy":      job.Strategy,
		"updated_at":    job.UpdatedAt,
		"started_at":    job.StartedAt,
		"completed_at":  job.CompletedAt,
		"expires_at":    job.ExpiresAt,
	}
	res := d.db.WithContext(ctx).
		Model(&po.MediaJob{}).
		Where("job_uuid = ? AND status = ?", job.JobUUID, expected).
		Updates(update)
	if res.Error != nil {
		logger.Errorf("Error updating media job %s: %v", job.JobUUID, res.Error)
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RaiseProgress 只提升处理中作业的进度
func (d *MediaJobDAO) RaiseProgress(ctx context.Context, jobUUID, processing string, progress int) error {
	err := d.db.WithContext(ctx).
		Model(&po.MediaJob{}).
		Where("job_uuid = ? AND status = ? AND progress < ?", jobUUID, processing, progress).
		Updates(map[string]interface{}{"progress": progress, "updated_at": time.Now()}).Error
	if err != nil {
		logger.Errorf("Error updating media job progress %v", err)
	}
	return err
}

// QueryByStatus 根据状态查询作业, 最久未更新的在前
func (d *MediaJobDAO) QueryByStatus(ctx context.Context, status string, limit int) ([]*po.MediaJob, error) {
	var jobs []*po.MediaJob
	query := d.db.WithContext(ctx).Where("status = ?", status).Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&jobs).Error; err != nil {
		logger.Errorf("Error query media jobs by status %v", err)
		return nil, err
	}
	return jobs, nil
}

// ListExpired 查询过期且已结束的作业
func (d *MediaJobDAO) ListExpired(ctx context.Context, before time.Time, terminal []string, limit int) ([]*po.MediaJob, error) {
	var jobs []*po.MediaJob
	query := d.db.WithContext(ctx).
		Where("expires_at < ? AND status IN ?", before, terminal).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&jobs).Error; err != nil {
		logger.Errorf("Error query expired media jobs %v", err)
		return nil, err
	}
	return jobs, nil
}

// Delete 删除作业记录
func (d *MediaJobDAO) Delete(ctx context.Context, jobUUID string) error {
	return d.db.WithContext(ctx).Where("job_uuid = ?", jobUUID).Delete(&po.MediaJob{}).Error
}
