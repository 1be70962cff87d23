package dto

import (
	"io"
	"time"

	"medkit-service/ddd/domain/entity"
	"medkit-service/ddd/domain/vo"
)

// JobDTO 作业详情
type JobDTO struct {
	JobID        string     `json:"job_id"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	ErrorMessage string     `json:"error,omitempty"`
	Quality      string     `json:"quality"`
	Format       string     `json:"format"`
	Title        string     `json:"title,omitempty"`
	Duration     float64    `json:"duration,omitempty"`
	OutputSize   int64      `json:"output_size,omitempty"`
	Strategy     string     `json:"strategy,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

func NewJobDTO(job *entity.JobEntity) *JobDTO {
	d := &JobDTO{
		JobID:        job.JobID(),
		Kind:         job.Kind().String(),
		Status:       job.Status().String(),
		ErrorMessage: job.ErrorMessage(),
		Quality:      job.Quality().String(),
		Format:       job.OutputFormat(),
		Title:        job.Title(),
		Duration:     job.Duration(),
		OutputSize:   job.OutputSize(),
		Strategy:     job.Strategy(),
		CreatedAt:    job.CreatedAt(),
		StartedAt:    job.StartedAt(),
		CompletedAt:  job.CompletedAt(),
		ExpiresAt:    job.ExpiresAt(),
	}
	// progress is only meaningful once the job has started
	if job.Status() != vo.JobStatusPending {
		d.Progress = job.Progress()
	}
	return d
}

// ProgressDTO 实时进度
type ProgressDTO struct {
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Status   string `json:"status"`
}

func NewProgressDTO(e vo.ProgressEntry) *ProgressDTO {
	return &ProgressDTO{Progress: e.Percentage, Message: e.Message, Status: e.Status.String()}
}

// OutputDTO 产物流, the caller closes Body.
type OutputDTO struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}
