package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"medkit-service/ddd/application/cqe"
	"medkit-service/ddd/application/dto"
	"medkit-service/ddd/domain/entity"
	"medkit-service/ddd/domain/gateway"
	"medkit-service/ddd/domain/port"
	"medkit-service/ddd/domain/repo"
	"medkit-service/ddd/domain/service"
	"medkit-service/ddd/domain/vo"
	"medkit-service/ddd/infrastructure/storage"
	"medkit-service/pkg/errno"
	"medkit-service/pkg/logger"
)

// JobApp 作业应用服务
type JobApp interface {
	// CreateJob 创建作业并交给调度器. When no execution path accepts the job the
	// saved record is returned together with the error.
	CreateJob(ctx context.Context, req *cqe.CreateJobReq) (*dto.JobDTO, error)
	// GetStatus 查询作业记录
	GetStatus(ctx context.Context, jobID string) (*dto.JobDTO, error)
	// Cancel 取消作业
	Cancel(ctx context.Context, jobID string) error
	// GetProgress 查询实时进度
	GetProgress(ctx context.Context, jobID string) (*dto.ProgressDTO, error)
	// GetOutput 打开已完成作业的产物
	GetOutput(ctx context.Context, jobID string) (*dto.OutputDTO, error)
}

// Dispatcher hands a persisted job to an execution path.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) (string, error)
}

// Canceller applies a cancel request to a job record.
type Canceller interface {
	Cancel(ctx context.Context, jobID string) error
}

// JobAppDeps 应用服务依赖
type JobAppDeps struct {
	Repo       repo.JobRepository
	Progress   port.ProgressChannel
	Quota      port.QuotaGuard
	Dispatcher Dispatcher
	Canceller  Canceller
	Storage    gateway.StorageGateway
	Retention  time.Duration
}

type jobAppImpl struct {
	deps JobAppDeps
}

func NewJobApp(deps JobAppDeps) JobApp {
	if deps.Retention <= 0 {
		deps.Retention = entity.DefaultRetention
	}
	return &jobAppImpl{deps: deps}
}

func (a *jobAppImpl) CreateJob(ctx context.Context, req *cqe.CreateJobReq) (*dto.JobDTO, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if a.deps.Quota != nil {
		if err := a.deps.Quota.Consume(ctx, req.OwnerID); err != nil {
			if errors.Is(err, port.ErrQuotaExceeded) {
				return nil, errno.ErrDailyLimitExceeded
			}
			return nil, errno.NewBizError(errno.ErrInternalServer, err)
		}
	}

	kind := vo.JobKind(req.Kind)
	source := req.Source
	if kind == vo.JobKindConversion {
		key, err := a.storeUpload(ctx, req)
		if err != nil {
			return nil, errno.NewBizError(errno.ErrInternalServer, err)
		}
		source = key
	}

	job := entity.NewJobEntity(kind, req.OwnerID, source, vo.Quality(req.Quality), req.Format, vo.EncodePreset(req.Preset), a.deps.Retention)
	if err := a.deps.Repo.CreateJob(ctx, job); err != nil {
		if kind == vo.JobKindConversion {
			_ = a.deps.Storage.RemoveOutput(ctx, source)
		}
		return nil, errno.NewBizError(errno.ErrDatabase, err)
	}
	if err := a.deps.Progress.Set(ctx, job.JobID(), 0, "Queued", vo.JobStatusPending); err != nil {
		logger.Warnf("seed progress failed job_id=%s error=%v", job.JobID(), err)
	}

	path, err := a.deps.Dispatcher.Dispatch(ctx, job.JobID())
	if err != nil {
		logger.Errorf("dispatch job failed job_id=%s error=%v", job.JobID(), err)
		// 记录已保存并被标记失败, 仍返回作业信息以便调用方查询
		if failed, loadErr := a.deps.Repo.GetJob(ctx, job.JobID()); loadErr == nil {
			job = failed
		}
		return dto.NewJobDTO(job), errno.NewBizError(errno.ErrProcessingUnavailable, err)
	}
	logger.Infof("job created job_id=%s kind=%s owner=%s path=%s", job.JobID(), kind, req.OwnerID, path)
	return dto.NewJobDTO(job), nil
}

// storeUpload 将上传文件存入对象存储, 返回输入 key
func (a *jobAppImpl) storeUpload(ctx context.Context, req *cqe.CreateJobReq) (string, error) {
	ext := strings.ToLower(filepath.Ext(req.UploadName))
	base := strings.TrimSuffix(filepath.Base(req.UploadName), filepath.Ext(req.UploadName))
	key := fmt.Sprintf("inputs/%s/%s%s", uuid.New().String(), service.SafeFileName(base), ext)
	size := req.UploadSize
	if size <= 0 {
		size = -1
	}
	if err := a.deps.Storage.PutInput(ctx, req.Upload, size, key, storage.ContentTypeFor(key)); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return key, nil
}

func (a *jobAppImpl) GetStatus(ctx context.Context, jobID string) (*dto.JobDTO, error) {
	job, err := a.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return dto.NewJobDTO(job), nil
}

func (a *jobAppImpl) Cancel(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errno.ErrMissingParam
	}
	if err := a.deps.Canceller.Cancel(ctx, jobID); err != nil {
		return mapError(err)
	}
	return nil
}

func (a *jobAppImpl) GetProgress(ctx context.Context, jobID string) (*dto.ProgressDTO, error) {
	if jobID == "" {
		return nil, errno.ErrMissingParam
	}
	entry, ok, err := a.deps.Progress.Get(ctx, jobID)
	if err != nil {
		return nil, errno.NewBizError(errno.ErrInternalServer, err)
	}
	if !ok {
		return nil, errno.ErrNoProgressData
	}
	return dto.NewProgressDTO(entry), nil
}

func (a *jobAppImpl) GetOutput(ctx context.Context, jobID string) (*dto.OutputDTO, error) {
	job, err := a.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status() != vo.JobStatusCompleted || !job.HasOutput() {
		return nil, errno.NewBizError(errno.ErrOutputNotReady, fmt.Errorf("job is %s", job.Status()))
	}
	body, info, err := a.deps.Storage.OpenOutput(ctx, job.OutputKey())
	if err != nil {
		if errors.Is(err, gateway.ErrObjectNotFound) {
			return nil, errno.NewBizError(errno.ErrNotFound, err)
		}
		return nil, errno.NewBizError(errno.ErrInternalServer, err)
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeFor(job.OutputKey())
	}
	return &dto.OutputDTO{
		FileName:    filepath.Base(job.OutputKey()),
		ContentType: contentType,
		Size:        info.Size,
		Body:        body,
	}, nil
}

func (a *jobAppImpl) load(ctx context.Context, jobID string) (*entity.JobEntity, error) {
	if jobID == "" {
		return nil, errno.ErrMissingParam
	}
	job, err := a.deps.Repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, mapError(err)
	}
	return job, nil
}

// mapError 将领域错误映射为错误码
func mapError(err error) error {
	switch {
	case errors.Is(err, repo.ErrJobNotFound):
		return errno.ErrJobNotFound
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, entity.ErrAlreadyTerminal),
		errors.Is(err, entity.ErrInvalidTransition):
		return errno.NewBizError(errno.ErrInvalidJobStatus, err)
	default:
		return errno.NewBizError(errno.ErrDatabase, err)
	}
}
