package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"medkit-service/ddd/application/cqe"
	"medkit-service/ddd/domain/port"
	"medkit-service/ddd/domain/service"
	"medkit-service/ddd/domain/vo"
	"medkit-service/ddd/infrastructure/database/persistence"
	"medkit-service/ddd/infrastructure/kvstore"
	"medkit-service/ddd/infrastructure/progress"
	"medkit-service/ddd/infrastructure/quota"
	"medkit-service/ddd/infrastructure/storage"
	"medkit-service/pkg/errno"
)

// stubDispatcher marks rejected jobs failed the way the real dispatcher does.
type stubDispatcher struct {
	ids    []string
	err    error
	failer *service.Orchestrator
}

func (d *stubDispatcher) Dispatch(ctx context.Context, jobID string) (string, error) {
	if d.err != nil {
		if d.failer != nil {
			_ = d.failer.FailUnscheduled(ctx, jobID, d.err)
		}
		return "", d.err
	}
	d.ids = append(d.ids, jobID)
	return "local", nil
}

type fixture struct {
	app        JobApp
	repo       *persistence.MemoryJobRepository
	progress   *progress.Channel
	dispatcher *stubDispatcher
	storage    *storage.LocalStorage
}

func newFixture(t *testing.T, dailyLimit int) *fixture {
	t.Helper()
	store := kvstore.NewMemoryStore(0)
	repository := persistence.NewMemoryJobRepository()
	channel := progress.NewChannel(store, time.Minute)
	local, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	d := &stubDispatcher{}
	orch := service.NewOrchestrator(service.OrchestratorDeps{Repo: repository, Progress: channel, Storage: local})
	d.failer = orch
	return &fixture{
		app: NewJobApp(JobAppDeps{
			Repo:       repository,
			Progress:   channel,
			Quota:      quota.NewDailyGuard(store, dailyLimit),
			Dispatcher: d,
			Canceller:  orch,
			Storage:    local,
		}),
		repo:       repository,
		progress:   channel,
		dispatcher: d,
		storage:    local,
	}
}

func downloadReq(owner string) *cqe.CreateJobReq {
	return &cqe.CreateJobReq{OwnerID: owner, Source: "https://example.com/watch?v=abc", Format: "mp4", Quality: "720p"}
}

func TestCreateJobPersistsAndDispatches(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	got, err := f.app.CreateJob(ctx, downloadReq("u1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Status != "pending" || got.Progress != 0 || got.Kind != "download" {
		t.Fatalf("dto = %+v", got)
	}
	if len(f.dispatcher.ids) != 1 || f.dispatcher.ids[0] != got.JobID {
		t.Fatalf("dispatched = %v", f.dispatcher.ids)
	}
	if !got.ExpiresAt.After(got.CreatedAt.Add(6 * 24 * time.Hour)) {
		t.Fatalf("expires = %v created = %v", got.ExpiresAt, got.CreatedAt)
	}

	again, err := f.app.CreateJob(ctx, downloadReq("u1"))
	if err != nil || again.JobID == got.JobID {
		t.Fatalf("second create id=%s err=%v", again.JobID, err)
	}
}

func TestCreateJobQuotaExceeded(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	if _, err := f.app.CreateJob(ctx, downloadReq("u1")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.app.CreateJob(ctx, downloadReq("u1")); errno.Decode(err) != errno.ErrDailyLimitExceeded {
		t.Fatalf("err = %v", err)
	}
	if len(f.dispatcher.ids) != 1 {
		t.Fatalf("dispatched = %v", f.dispatcher.ids)
	}
}

func TestCreateJobDispatchUnavailable(t *testing.T) {
	f := newFixture(t, 0)
	f.dispatcher.err = port.ErrRunnerUnavailable
	ctx := context.Background()
	got, err := f.app.CreateJob(ctx, downloadReq(""))
	if errno.Decode(err) != errno.ErrProcessingUnavailable || !errors.Is(err, port.ErrRunnerUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if got == nil || got.JobID == "" {
		t.Fatalf("created job should be returned, got %+v", got)
	}
	if got.Status != "failed" || got.ErrorMessage == "" {
		t.Fatalf("dto = %+v", got)
	}
	status, err := f.app.GetStatus(ctx, got.JobID)
	if err != nil || status.Status != "failed" {
		t.Fatalf("status=%+v err=%v", status, err)
	}
}

func TestCreateConversionStoresUpload(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	req := &cqe.CreateJobReq{Kind: "conversion", Format: "mp3", Upload: strings.NewReader("video-bytes"), UploadName: "My Clip.mp4", UploadSize: 11}
	got, err := f.app.CreateJob(ctx, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	job, err := f.repo.GetJob(ctx, got.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(job.Source(), "inputs/") || !strings.HasSuffix(job.Source(), "/My_Clip.mp4") {
		t.Fatalf("source = %s", job.Source())
	}
	dst := filepath.Join(t.TempDir(), "in.mp4")
	if err := f.storage.DownloadInput(ctx, job.Source(), dst); err != nil {
		t.Fatal(err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "video-bytes" {
		t.Fatalf("stored %q", b)
	}
}

func TestGetStatusUnknown(t *testing.T) {
	f := newFixture(t, 0)
	if _, err := f.app.GetStatus(context.Background(), "nope"); errno.Decode(err) != errno.ErrJobNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestCancelPendingThenAgain(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	got, _ := f.app.CreateJob(ctx, downloadReq(""))

	if err := f.app.Cancel(ctx, got.JobID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	st, _ := f.app.GetStatus(ctx, got.JobID)
	if st.Status != "cancelled" || st.ErrorMessage != "" {
		t.Fatalf("status = %+v", st)
	}
	if err := f.app.Cancel(ctx, got.JobID); errno.Decode(err) != errno.ErrInvalidJobStatus {
		t.Fatalf("second cancel err = %v", err)
	}
	if err := f.app.Cancel(ctx, "missing"); errno.Decode(err) != errno.ErrJobNotFound {
		t.Fatalf("unknown cancel err = %v", err)
	}
}

func TestGetProgress(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	if _, err := f.app.GetProgress(ctx, "unknown"); errno.Decode(err) != errno.ErrNoProgressData {
		t.Fatalf("err = %v", err)
	}
	got, _ := f.app.CreateJob(ctx, downloadReq(""))
	_ = f.progress.Set(ctx, got.JobID, 42, "Downloading... 1.0 MB/s", vo.JobStatusProcessing)
	p, err := f.app.GetProgress(ctx, got.JobID)
	if err != nil || p.Progress != 42 || p.Status != "processing" {
		t.Fatalf("progress = %+v err=%v", p, err)
	}
}

func TestGetOutput(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	got, _ := f.app.CreateJob(ctx, downloadReq(""))
	if _, err := f.app.GetOutput(ctx, got.JobID); errno.Decode(err) != errno.ErrOutputNotReady {
		t.Fatalf("pending output err = %v", err)
	}

	job, _ := f.repo.GetJob(ctx, got.JobID)
	_ = job.StartProcessing()
	_, _ = f.repo.SaveJobIfStatus(ctx, job, vo.JobStatusPending)
	src := filepath.Join(t.TempDir(), "out.mp4")
	_ = os.WriteFile(src, []byte("movie"), 0o644)
	key := service.OutputKey(job.JobID(), "Clip", "mp4")
	if _, err := f.storage.UploadOutput(ctx, src, key, ""); err != nil {
		t.Fatal(err)
	}
	_ = job.Complete(key, "mp4", 5)
	_, _ = f.repo.SaveJobIfStatus(ctx, job, vo.JobStatusProcessing)

	out, err := f.app.GetOutput(ctx, got.JobID)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	defer out.Body.Close()
	body, _ := io.ReadAll(out.Body)
	if string(body) != "movie" || out.FileName != "Clip.mp4" || out.ContentType != "video/mp4" {
		t.Fatalf("output = %+v body=%q", out, body)
	}
}
