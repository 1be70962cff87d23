package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medkit-service/ddd/domain/vo"
)

var (
	// ErrAlreadyTerminal is returned for any transition out of completed, failed or cancelled.
	ErrAlreadyTerminal = errors.New("job already in terminal state")
	// ErrInvalidTransition is returned for edges the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// DefaultRetention is how long a finished job and its output are kept.
const DefaultRetention = 7 * 24 * time.Hour

// JobEntity 媒体作业实体
type JobEntity struct {
	jobID        string
	ownerID      string
	kind         vo.JobKind
	source       string
	quality      vo.Quality
	outputFormat string
	preset       vo.EncodePreset
	status       vo.JobStatus
	progress     int
	errorMessage string
	title        string
	outputKey    string
	outputSize   int64
	outputExt    string
	duration     float64
	selector     string
	strategy     string
	createdAt    time.Time
	updatedAt    time.Time
	startedAt    *time.Time
	completedAt  *time.Time
	expiresAt    time.Time
}

// NewJobEntity 创建新的作业实体
func NewJobEntity(kind vo.JobKind, ownerID, source string, quality vo.Quality, outputFormat string, preset vo.EncodePreset, retention time.Duration) *JobEntity {
	if retention <= 0 {
		retention = DefaultRetention
	}
	now := time.Now()
	return &JobEntity{
		jobID:        uuid.New().String(),
		ownerID:      ownerID,
		kind:         kind,
		source:       source,
		quality:      quality,
		outputFormat: outputFormat,
		preset:       preset,
		status:       vo.JobStatusPending,
		createdAt:    now,
		updatedAt:    now,
		expiresAt:    now.Add(retention),
	}
}

// JobSnapshot is the flat form used by repositories to persist and restore a job.
type JobSnapshot struct {
	JobID        string
	OwnerID      string
	Kind         vo.JobKind
	Source       string
	Quality      vo.Quality
	OutputFormat string
	Preset       vo.EncodePreset
	Status       vo.JobStatus
	Progress     int
	ErrorMessage string
	Title        string
	OutputKey    string
	OutputSize   int64
	OutputExt    string
	Duration     float64
	Selector     string
	Strategy     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ExpiresAt    time.Time
}

// RestoreJobEntity rebuilds an entity from stored state.
func RestoreJobEntity(s JobSnapshot) *JobEntity {
	return &JobEntity{
		jobID:        s.JobID,
		ownerID:      s.OwnerID,
		kind:         s.Kind,
		source:       s.Source,
		quality:      s.Quality,
		outputFormat: s.OutputFormat,
		preset:       s.Preset,
		status:       s.Status,
		progress:     s.Progress,
		errorMessage: s.ErrorMessage,
		title:        s.Title,
		outputKey:    s.OutputKey,
		outputSize:   s.OutputSize,
		outputExt:    s.OutputExt,
		duration:     s.Duration,
		selector:     s.Selector,
		strategy:     s.Strategy,
		createdAt:    s.CreatedAt,
		updatedAt:    s.UpdatedAt,
		startedAt:    copyTime(s.StartedAt),
		completedAt:  copyTime(s.CompletedAt),
		expiresAt:    s.ExpiresAt,
	}
}

// Snapshot 导出实体状态
func (j *JobEntity) Snapshot() JobSnapshot {
	return JobSnapshot{
		JobID:        j.jobID,
		OwnerID:      j.ownerID,
		Kind:         j.kind,
		Source:       j.source,
		Quality:      j.quality,
		OutputFormat: j.outputFormat,
		Preset:       j.preset,
		Status:       j.status,
		Progress:     j.progress,
		ErrorMessage: j.errorMessage,
		Title:        j.title,
		OutputKey:    j.outputKey,
		OutputSize:   j.outputSize,
		OutputExt:    j.outputExt,
		Duration:     j.duration,
		Selector:     j.selector,
		Strategy:     j.strategy,
		CreatedAt:    j.createdAt,
		UpdatedAt:    j.updatedAt,
		StartedAt:    copyTime(j.startedAt),
		CompletedAt:  copyTime(j.completedAt),
		ExpiresAt:    j.expiresAt,
	}
}

// Getters
func (j *JobEntity) JobID() string                { return j.jobID }
func (j *JobEntity) OwnerID() string              { return j.ownerID }
func (j *JobEntity) Kind() vo.JobKind             { return j.kind }
func (j *JobEntity) Source() string               { return j.source }
func (j *JobEntity) Quality() vo.Quality          { return j.quality }
func (j *JobEntity) OutputFormat() string         { return j.outputFormat }
func (j *JobEntity) Preset() vo.EncodePreset      { return j.preset }
func (j *JobEntity) Status() vo.JobStatus         { return j.status }
func (j *JobEntity) Progress() int                { return j.progress }
func (j *JobEntity) ErrorMessage() string         { return j.errorMessage }
func (j *JobEntity) Title() string                { return j.title }
func (j *JobEntity) OutputKey() string            { return j.outputKey }
func (j *JobEntity) OutputSize() int64            { return j.outputSize }
func (j *JobEntity) OutputExt() string            { return j.outputExt }
func (j *JobEntity) Duration() float64            { return j.duration }
func (j *JobEntity) Selector() string             { return j.selector }
func (j *JobEntity) Strategy() string             { return j.strategy }
func (j *JobEntity) CreatedAt() time.Time         { return j.createdAt }
func (j *JobEntity) UpdatedAt() time.Time         { return j.updatedAt }
func (j *JobEntity) StartedAt() *time.Time        { return copyTime(j.startedAt) }
func (j *JobEntity) CompletedAt() *time.Time      { return copyTime(j.completedAt) }
func (j *JobEntity) ExpiresAt() time.Time         { return j.expiresAt }
func (j *JobEntity) IsTerminal() bool             { return j.status.IsTerminal() }
func (j *JobEntity) IsExpired(now time.Time) bool { return now.After(j.expiresAt) }
func (j *JobEntity) HasOutput() bool              { return j.outputKey != "" }

// transition 校验状态迁移
func (j *JobEntity) transition(target vo.JobStatus) error {
	if j.status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrAlreadyTerminal, j.status)
	}
	if !j.status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.status, target)
	}
	j.status = target
	j.updatedAt = time.Now()
	return nil
}

// StartProcessing 开始处理, started is stamped only on the first entry.
func (j *JobEntity) StartProcessing() error {
	if err := j.transition(vo.JobStatusProcessing); err != nil {
		return err
	}
	if j.startedAt == nil {
		now := j.updatedAt
		j.startedAt = &now
	}
	return nil
}

// UpdateProgress 更新进度. Lower values are ignored, returns whether the value moved.
func (j *JobEntity) UpdateProgress(progress int) bool {
	if j.status != vo.JobStatusProcessing {
		return false
	}
	progress = vo.ClampPercentage(progress)
	if progress <= j.progress {
		return false
	}
	j.progress = progress
	j.updatedAt = time.Now()
	return true
}

// Describe records source metadata learned during processing.
func (j *JobEntity) Describe(title string, duration float64, selector, strategy string) {
	if title != "" {
		j.title = title
	}
	if duration > 0 {
		j.duration = duration
	}
	if selector != "" {
		j.selector = selector
	}
	if strategy != "" {
		j.strategy = strategy
	}
}

// Complete 完成作业
func (j *JobEntity) Complete(outputKey, outputExt string, outputSize int64) error {
	if err := j.transition(vo.JobStatusCompleted); err != nil {
		return err
	}
	j.progress = 100
	j.outputKey = outputKey
	j.outputExt = outputExt
	j.outputSize = outputSize
	j.errorMessage = ""
	j.stampCompleted()
	return nil
}

// Fail 作业失败, progress keeps its last value.
func (j *JobEntity) Fail(message string) error {
	if err := j.transition(vo.JobStatusFailed); err != nil {
		return err
	}
	j.errorMessage = message
	j.stampCompleted()
	return nil
}

// Cancel 取消作业
func (j *JobEntity) Cancel() error {
	if err := j.transition(vo.JobStatusCancelled); err != nil {
		return err
	}
	j.errorMessage = ""
	return nil
}

func (j *JobEntity) stampCompleted() {
	if j.completedAt == nil {
		now := j.updatedAt
		j.completedAt = &now
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
