package convertor

import (
	"medkit-service/ddd/domain/entity"
	"medkit-service/ddd/domain/vo"
	"medkit-service/ddd/infrastructure/database/po"
)

// MediaJobConvertor 作业实体与持久化对象互转
type MediaJobConvertor struct{}

func NewMediaJobConvertor() *MediaJobConvertor {
	return &MediaJobConvertor{}
}

// ToEntity 将PO转换为Entity
func (c *MediaJobConvertor) ToEntity(p *po.MediaJob) *entity.JobEntity {
	return entity.RestoreJobEntity(entity.JobSnapshot{
		JobID:        p.JobUUID,
		OwnerID:      p.OwnerID,
		Kind:         vo.JobKind(p.Kind),
		Source:       p.Source,
		Quality:      vo.Quality(p.Quality),
		OutputFormat: p.OutputFormat,
		Preset:       vo.EncodePreset(p.Preset),
		Status:       vo.JobStatus(p.Status),
		Progress:     p.Progress,
		ErrorMessage: p.ErrorMessage,
		Title:        p.Title,
		OutputKey:    p.OutputKey,
		OutputSize:   p.OutputSize,
		OutputExt:    p.OutputExt,
		Duration:     p.Duration,
		Selector:     p.Selector,
		Strategy:     p.Strategy,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		StartedAt:    p.StartedAt,
		CompletedAt:  p.CompletedAt,
		ExpiresAt:    p.ExpiresAt,
	})
}

// ToPO 将Entity转换为PO
func (c *MediaJobConvertor) ToPO(job *entity.JobEntity) *po.MediaJob {
	s := job.Snapshot()
	return &po.MediaJob{
		JobUUID:      s.JobID,
		OwnerID:      s.OwnerID,
		Kind:         string(s.Kind),
		Source:       s.Source,
		Quality:      string(s.Quality),
		OutputFormat: s.OutputFormat,
		Preset:       string(s.Preset),
		Status:       string(s.Status),
		Progress:     s.Progress,
		ErrorMessage: s.ErrorMessage,
		Title:        s.Title,
		OutputKey:    s.OutputKey,
		OutputSize:   s.OutputSize,
		OutputExt:    s.OutputExt,
		Duration:     s.Duration,
		Selector:     s.Selector,
		Strategy:     s.Strategy,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		StartedAt:    s.StartedAt,
		CompletedAt:  s.CompletedAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

func (c *MediaJobConvertor) ToEntities(list []*po.MediaJob) []*entity.JobEntity {
	out := make([]*entity.JobEntity, 0, len(list))
	for _, p := range list {
		out = append(out, c.ToEntity(p))
	}
	return out
}
