package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"medkit-service/ddd/domain/entity"
	"medkit-service/ddd/domain/gateway"
	"medkit-service/ddd/domain/port"
	"medkit-service/ddd/domain/repo"
	"medkit-service/ddd/domain/vo"
	"medkit-service/pkg/logger"
)

// ErrInvalidState is returned when an operation does not apply to the job's current status.
var ErrInvalidState = errors.New("invalid job state")

// OrchestratorDeps 编排器依赖
type OrchestratorDeps struct {
	Repo      repo.JobRepository
	Progress  port.ProgressChannel
	Engine    *EscalationEngine
	Planner   port.AttemptPlanner
	Extractor port.Extractor
	Prober    port.Prober
	Fetcher   port.Executor
	Converter port.Executor
	Storage   gateway.StorageGateway

	WorkDir         string
	PersistInterval time.Duration
	AttemptTimeout  time.Duration
}

// Orchestrator drives a job from pending to a terminal state. It is the only writer
// of status and progress on the job record.
type Orchestrator struct {
	deps OrchestratorDeps
}

// NewOrchestrator 创建作业编排器
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.WorkDir == "" {
		deps.WorkDir = os.TempDir()
	}
	if deps.PersistInterval <= 0 {
		deps.PersistInterval = 2 * time.Second
	}
	return &Orchestrator{deps: deps}
}

// Run executes one job. Terminal jobs are a no-op so redelivered work is harmless.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.deps.Repo.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.IsTerminal() {
		logger.Infof("skip terminal job job_id=%s status=%s", jobID, job.Status())
		return nil
	}

	if flagged, _ := o.deps.Progress.IsCancelled(ctx, jobID); flagged && job.Status() == vo.JobStatusPending {
		return o.cancelPending(ctx, job)
	}

	if job.Status() == vo.JobStatusPending {
		if err := job.StartProcessing(); err != nil {
			return err
		}
		ok, err := o.deps.Repo.SaveJobIfStatus(ctx, job, vo.JobStatusPending)
		if err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
		if !ok {
			logger.Infof("job changed before start, skipping job_id=%s", jobID)
			return nil
		}
	} else {
		logger.Warnf("resuming job left in processing job_id=%s", jobID)
	}

	o.publish(ctx, job, job.Progress(), "Starting...")
	logger.Infof("start job job_id=%s kind=%s quality=%s format=%s", jobID, job.Kind(), job.Quality(), job.OutputFormat())

	workDir := filepath.Join(o.deps.WorkDir, jobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return o.finishFailed(ctx, job, fmt.Errorf("create work dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warnf("failed to clean work dir path=%s error=%v", workDir, err)
		}
	}()

	sink := newJobSink(o, job)
	result, err := o.execute(ctx, job, workDir, sink)
	switch {
	case err == nil:
		return o.finishCompleted(ctx, job, result)
	case errors.Is(err, port.ErrCancelled):
		return o.finishCancelled(ctx, job)
	case ctx.Err() != nil:
		// shutdown: leave the record in processing so a redelivery resumes it
		logger.Warnf("job interrupted job_id=%s error=%v", jobID, ctx.Err())
		return ctx.Err()
	default:
		return o.finishFailed(ctx, job, err)
	}
}

// Cancel requests cancellation. Pending jobs are cancelled immediately, processing
// jobs observe the flag at their next progress tick.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.deps.Repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status())
	}
	if err := o.deps.Progress.Cancel(ctx, jobID); err != nil {
		return fmt.Errorf("set cancel flag: %w", err)
	}
	if job.Status() == vo.JobStatusPending {
		return o.cancelPending(ctx, job)
	}
	logger.Infof("cancel requested job_id=%s", jobID)
	return nil
}

// FailUnscheduled marks a pending job failed when no execution path accepted it.
func (o *Orchestrator) FailUnscheduled(ctx context.Context, jobID string, cause error) error {
	job, err := o.deps.Repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status() != vo.JobStatusPending {
		return nil
	}
	msg := "processing unavailable"
	if cause != nil {
		msg = fmt.Sprintf("processing unavailable: %v", cause)
	}
	if err := job.Fail(msg); err != nil {
		return err
	}
	if _, err := o.deps.Repo.SaveJobIfStatus(ctx, job, vo.JobStatusPending); err != nil {
		return err
	}
	o.publish(ctx, job, job.Progress(), msg)
	logger.Errorf("job could not be scheduled job_id=%s error=%s", jobID, msg)
	return nil
}

// PurgeExpired removes outputs and records past their expiry.
func (o *Orchestrator) PurgeExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	jobs, err := o.deps.Repo.ListExpiredJobs(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, job := range jobs {
		if !job.IsTerminal() {
			continue
		}
		if job.HasOutput() && o.deps.Storage != nil {
			if err := o.deps.Storage.RemoveOutput(ctx, job.OutputKey()); err != nil {
				logger.Warnf("remove expired output failed job_id=%s key=%s error=%v", job.JobID(), job.OutputKey(), err)
				continue
			}
		}
		if err := o.deps.Repo.DeleteJob(ctx, job.JobID()); err != nil {
			logger.Warnf("delete expired job failed job_id=%s error=%v", job.JobID(), err)
			continue
		}
		purged++
	}
	return purged, nil
}

func (o *Orchestrator) execute(ctx context.Context, job *entity.JobEntity, workDir string, sink *jobSink) (*port.ExecResult, error) {
	if job.Kind() == vo.JobKindConversion {
		return o.executeConversion(ctx, job, workDir, sink)
	}
	return o.executeDownload(ctx, job, workDir, sink)
}

func (o *Orchestrator) executeDownload(ctx context.Context, job *entity.JobEntity, workDir string, sink *jobSink) (*port.ExecResult, error) {
	if err := sink.Report(ctx, 0, "Extracting video information..."); err != nil {
		return nil, err
	}

	var info *vo.MediaInfo
	_, err := o.deps.Engine.Run(ctx, job.JobID(), o.deps.Planner.ExtractionAttempts(), sink, func(ctx context.Context, a vo.Attempt) error {
		got, err := o.deps.Extractor.Extract(ctx, job.Source(), a)
		if err != nil {
			return err
		}
		info = got
		return nil
	})
	if err != nil {
		return nil, err
	}

	quality := job.Quality()
	if vo.IsAudioFormat(job.OutputFormat()) {
		quality = vo.QualityAudio
	}
	plan, err := ResolveFormat(info.Variants, quality)
	if err != nil {
		return nil, err
	}
	if plan.Partial {
		logger.Warnf("format plan is partial job_id=%s selector=%s", job.JobID(), plan.Selector())
	}
	job.Describe(info.Title, info.Duration, plan.Selector(), "")
	o.saveProcessing(ctx, job)

	req := port.ExecRequest{
		JobID:        job.JobID(),
		Kind:         job.Kind(),
		Source:       job.Source(),
		Title:        info.Title,
		Plan:         plan,
		OutputFormat: job.OutputFormat(),
		Preset:       job.Preset(),
		WorkDir:      workDir,
	}
	return o.runExecutor(ctx, job, o.deps.Fetcher, req, o.deps.Planner.DownloadAttempts(plan.Selector()), sink)
}

func (o *Orchestrator) executeConversion(ctx context.Context, job *entity.JobEntity, workDir string, sink *jobSink) (*port.ExecResult, error) {
	if err := sink.Report(ctx, 0, "Preparing input..."); err != nil {
		return nil, err
	}

	input, err := o.localInput(ctx, job, workDir)
	if err != nil {
		return nil, err
	}
	info, err := o.deps.Prober.Probe(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("probe input: %w", err)
	}

	plan := vo.FormatPlan{Quality: job.Quality(), Ext: job.OutputFormat()}
	if !vo.IsAudioFormat(job.OutputFormat()) && len(info.Variants) > 0 {
		resolved, err := ResolveFormat(info.Variants, job.Quality())
		if err != nil {
			return nil, err
		}
		plan = resolved
		plan.Ext = job.OutputFormat()
		if h := job.Quality().Height(); h > 0 && h < plan.Height {
			plan.TargetHeight = h
		}
	}
	title := info.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(job.Source()), filepath.Ext(job.Source()))
	}
	job.Describe(title, info.Duration, "", "")
	o.saveProcessing(ctx, job)

	req := port.ExecRequest{
		JobID:        job.JobID(),
		Kind:         job.Kind(),
		Source:       input,
		Title:        title,
		Plan:         plan,
		OutputFormat: job.OutputFormat(),
		Preset:       job.Preset(),
		WorkDir:      workDir,
	}
	return o.runExecutor(ctx, job, o.deps.Converter, req, o.deps.Planner.ConversionAttempts(), sink)
}

func (o *Orchestrator) runExecutor(ctx context.Context, job *entity.JobEntity, exec port.Executor, req port.ExecRequest, attempts []vo.Attempt, sink *jobSink) (*port.ExecResult, error) {
	var result *port.ExecResult
	used, err := o.deps.Engine.Run(ctx, job.JobID(), attempts, sink, func(ctx context.Context, a vo.Attempt) error {
		attemptCtx := ctx
		if o.deps.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, o.deps.AttemptTimeout)
			defer cancel()
		}
		got, err := exec.Execute(attemptCtx, req, a, sink)
		if err != nil {
			return err
		}
		result = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	job.Describe("", result.Duration, used.Selector(), used.Name())
	return result, nil
}

// localInput resolves the conversion source to a local path, pulling it from storage when needed.
func (o *Orchestrator) localInput(ctx context.Context, job *entity.JobEntity, workDir string) (string, error) {
	if _, err := os.Stat(job.Source()); err == nil {
		return job.Source(), nil
	}
	if o.deps.Storage == nil {
		return "", fmt.Errorf("input %s not found", job.Source())
	}
	local := filepath.Join(workDir, "input"+filepath.Ext(job.Source()))
	if err := o.deps.Storage.DownloadInput(ctx, job.Source(), local); err != nil {
		return "", fmt.Errorf("download input: %w", err)
	}
	return local, nil
}

func (o *Orchestrator) finishCompleted(ctx context.Context, job *entity.JobEntity, result *port.ExecResult) error {
	_ = o.deps.Progress.Set(ctx, job.JobID(), 99, "Saving output...", vo.JobStatusProcessing)

	key := OutputKey(job.JobID(), job.Title(), result.Ext)
	uploaded, err := o.deps.Storage.UploadOutput(ctx, result.Path, key, "")
	if err != nil {
		return o.finishFailed(ctx, job, fmt.Errorf("store output: %w", err))
	}
	if err := job.Complete(uploaded, result.Ext, result.Size); err != nil {
		return err
	}
	if _, err := o.deps.Repo.SaveJobIfStatus(ctx, job, vo.JobStatusProcessing); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	o.publish(ctx, job, 100, "Completed")
	logger.Infof("job finished job_id=%s output=%s size=%d strategy=%s", job.JobID(), uploaded, result.Size, job.Strategy())
	return nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, job *entity.JobEntity, cause error) error {
	msg := cause.Error()
	if err := job.Fail(msg); err != nil {
		return err
	}
	if _, err := o.deps.Repo.SaveJobIfStatus(ctx, job, vo.JobStatusProcessing); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	o.publish(ctx, job, job.Progress(), msg)
	logger.Errorf("job failed job_id=%s error=%s", job.JobID(), msg)
	return nil
}

func (o *Orchestrator) finishCancelled(ctx context.Context, job *entity.JobEntity) error {
	if err := job.Cancel(); err != nil {
		return err
	}
	if _, err := o.deps.Repo.SaveJobIfStatus(ctx, job, vo.JobStatusProcessing); err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	o.publish(ctx, job, job.Progress(), "Cancelled")
	logger.Infof("job cancelled job_id=%s progress=%d", job.JobID(), job.Progress())
	return nil
}

func (o *Orchestrator) cancelPending(ctx context.Context, job *entity.JobEntity) error {
	if err := job.Cancel(); err != nil {
		return err
	}
	ok, err := o.deps.Repo.SaveJobIfStatus(ctx, job, vo.JobStatusPending)
	if err != nil {
		return err
	}
	if ok {
		o.publish(ctx, job, job.Progress(), "Cancelled")
		logger.Infof("pending job cancelled job_id=%s", job.JobID())
	}
	return nil
}

func (o *Orchestrator) saveProcessing(ctx context.Context, job *entity.JobEntity) {
	if _, err := o.deps.Repo.SaveJobIfStatus(ctx, job, vo.JobStatusProcessing); err != nil {
		logger.Warnf("persist job metadata failed job_id=%s error=%v", job.JobID(), err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, job *entity.JobEntity, pct int, msg string) {
	if err := o.deps.Progress.Set(ctx, job.JobID(), pct, msg, job.Status()); err != nil {
		logger.Debugf("progress publish failed job_id=%s error=%v", job.JobID(), err)
	}
}

// jobSink forwards ticks to the progress channel on every call and to the record
// at most once per persist interval.
type jobSink struct {
	o       *Orchestrator
	job     *entity.JobEntity
	persist *rate.Sometimes
	mu      sync.Mutex
	last    int
}

func newJobSink(o *Orchestrator, job *entity.JobEntity) *jobSink {
	return &jobSink{
		o:       o,
		job:     job,
		persist: &rate.Sometimes{First: 1, Interval: o.deps.PersistInterval},
		last:    job.Progress(),
	}
}

func (s *jobSink) Report(ctx context.Context, percentage int, message string) error {
	if s.Cancelled(ctx) {
		return port.ErrCancelled
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	percentage = vo.ClampPercentage(percentage)
	if percentage < s.last {
		percentage = s.last
	}
	s.last = percentage
	if err := s.o.deps.Progress.Set(ctx, s.job.JobID(), percentage, message, vo.JobStatusProcessing); err != nil {
		logger.Debugf("progress set failed job_id=%s error=%v", s.job.JobID(), err)
	}
	if s.job.UpdateProgress(percentage) {
		s.persist.Do(func() {
			if err := s.o.deps.Repo.UpdateJobProgress(ctx, s.job.JobID(), percentage); err != nil {
				logger.Warnf("persist progress failed job_id=%s error=%v", s.job.JobID(), err)
			}
		})
	}
	return nil
}

func (s *jobSink) Cancelled(ctx context.Context) bool {
	flagged, err := s.o.deps.Progress.IsCancelled(ctx, s.job.JobID())
	if err != nil {
		logger.Debugf("cancel flag read failed job_id=%s error=%v", s.job.JobID(), err)
		return false
	}
	return flagged
}

var unsafeName = regexp.MustCompile(`[^\w\-. ]+`)

// SafeFileName strips characters that are unsafe in object keys and download names.
func SafeFileName(title string) string {
	name := strings.TrimSpace(unsafeName.ReplaceAllString(title, ""))
	name = strings.Join(strings.Fields(name), "_")
	if len(name) > 100 {
		name = name[:100]
	}
	if name == "" {
		return "output"
	}
	return name
}

// OutputKey builds the storage key for a job output.
func OutputKey(jobID, title, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("outputs/%s/%s.%s", jobID, SafeFileName(title), ext)
}
