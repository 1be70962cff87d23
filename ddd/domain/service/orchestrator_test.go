package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"medkit-service/ddd/domain/entity"
	"medkit-service/ddd/domain/gateway"
	"medkit-service/ddd/domain/port"
	"medkit-service/ddd/domain/repo"
	"medkit-service/ddd/domain/vo"
)

type memRepo struct {
	mu   sync.Mutex
	jobs map[string]entity.JobSnapshot
}

func newMemRepo() *memRepo { return &memRepo{jobs: map[string]entity.JobSnapshot{}} }

func (r *memRepo) CreateJob(_ context.Context, job *entity.JobEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID()] = job.Snapshot()
	return nil
}

func (r *memRepo) GetJob(_ context.Context, id string) (*entity.JobEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.jobs[id]
	if !ok {
		return nil, repo.ErrJobNotFound
	}
	return entity.RestoreJobEntity(s), nil
}

func (r *memRepo) SaveJobIfStatus(_ context.Context, job *entity.JobEntity, expected vo.JobStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.jobs[job.JobID()]
	if !ok || cur.Status != expected {
		return false, nil
	}
	r.jobs[job.JobID()] = job.Snapshot()
	return true, nil
}

func (r *memRepo) UpdateJobProgress(_ context.Context, id string, p int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.jobs[id]
	if s.Status == vo.JobStatusProcessing && p > s.Progress {
		s.Progress = p
		r.jobs[id] = s
	}
	return nil
}

func (r *memRepo) QueryJobsByStatus(context.Context, vo.JobStatus, int) ([]*entity.JobEntity, error) {
	return nil, nil
}

func (r *memRepo) ListExpiredJobs(_ context.Context, before time.Time, _ int) ([]*entity.JobEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.JobEntity
	for _, s := range r.jobs {
		if s.ExpiresAt.Before(before) {
			out = append(out, entity.RestoreJobEntity(s))
		}
	}
	return out, nil
}

func (r *memRepo) DeleteJob(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	return nil
}

func (r *memRepo) put(s entity.JobSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[s.JobID] = s
}

type memProgress struct {
	mu        sync.Mutex
	entries   map[string]vo.ProgressEntry
	cancelled map[string]bool
}

func newMemProgress() *memProgress {
	return &memProgress{entries: map[string]vo.ProgressEntry{}, cancelled: map[string]bool{}}
}

func (p *memProgress) Set(_ context.Context, id string, pct int, msg string, st vo.JobStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.entries[id]; ok && pct < cur.Percentage && !st.IsTerminal() {
		return nil
	}
	p.entries[id] = vo.ProgressEntry{Percentage: pct, Message: msg, Status: st}
	return nil
}

func (p *memProgress) Get(_ context.Context, id string) (vo.ProgressEntry, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	return e, ok, nil
}

func (p *memProgress) Cancel(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled[id] = true
	return nil
}

func (p *memProgress) IsCancelled(_ context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled[id], nil
}

type fixedPlanner struct{}

func (fixedPlanner) ExtractionAttempts() []vo.Attempt {
	return []vo.Attempt{vo.NewAttempt("ios", vo.Persona{Client: "ios"}, "", 0)}
}

func (fixedPlanner) DownloadAttempts(selector string) []vo.Attempt {
	return []vo.Attempt{
		vo.NewAttempt("android", vo.Persona{Client: "android"}, selector, 0),
		vo.NewAttempt("web", vo.Persona{Client: "web"}, selector, 0),
		vo.NewAttempt("minimal", vo.Persona{}, selector, 0),
	}
}

func (fixedPlanner) ConversionAttempts() []vo.Attempt {
	return []vo.Attempt{vo.NewAttempt("software", vo.Persona{}, "", 0)}
}

type fakeExtractor struct {
	info *vo.MediaInfo
	err  error
}

func (f *fakeExtractor) Extract(context.Context, string, vo.Attempt) (*vo.MediaInfo, error) {
	return f.info, f.err
}

type fakeProber struct{ info *vo.MediaInfo }

func (f *fakeProber) Probe(context.Context, string) (*vo.MediaInfo, error) { return f.info, nil }

type scriptedExecutor struct {
	mu    sync.Mutex
	calls []string
	run   func(ctx context.Context, req port.ExecRequest, a vo.Attempt, sink port.ProgressSink) (*port.ExecResult, error)
}

func (e *scriptedExecutor) Execute(ctx context.Context, req port.ExecRequest, a vo.Attempt, sink port.ProgressSink) (*port.ExecResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, a.Name()+":"+a.Selector())
	e.mu.Unlock()
	return e.run(ctx, req, a, sink)
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage { return &memStorage{objects: map[string][]byte{}} }

func (s *memStorage) UploadOutput(_ context.Context, localPath, key, _ string) (string, error) {
	b, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	return key, nil
}

func (s *memStorage) PutInput(_ context.Context, r io.Reader, _ int64, key, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	return nil
}

func (s *memStorage) DownloadInput(_ context.Context, key, localPath string) error {
	s.mu.Lock()
	b, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return errors.New("no such object")
	}
	return os.WriteFile(localPath, b, 0o644)
}

func (s *memStorage) OpenOutput(_ context.Context, key string) (io.ReadCloser, gateway.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, gateway.ObjectInfo{}, errors.New("no such object")
	}
	return io.NopCloser(strings.NewReader(string(b))), gateway.ObjectInfo{Key: key, Size: int64(len(b))}, nil
}

func (s *memStorage) RemoveOutput(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

type harness struct {
	repo     *memRepo
	progress *memProgress
	storage  *memStorage
	fetcher  *scriptedExecutor
	conv     *scriptedExecutor
	orch     *Orchestrator
}

func writeOutput(req port.ExecRequest, body string) (*port.ExecResult, error) {
	path := filepath.Join(req.WorkDir, "out."+req.OutputFormat)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return nil, err
	}
	return &port.ExecResult{Path: path, Ext: req.OutputFormat, Size: int64(len(body)), Duration: 12}, nil
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:     newMemRepo(),
		progress: newMemProgress(),
		storage:  newMemStorage(),
		fetcher: &scriptedExecutor{run: func(ctx context.Context, req port.ExecRequest, _ vo.Attempt, sink port.ProgressSink) (*port.ExecResult, error) {
			for _, p := range []int{10, 50, 90} {
				if err := sink.Report(ctx, p, "Downloading..."); err != nil {
					return nil, err
				}
			}
			return writeOutput(req, "media-bytes")
		}},
	}
	h.conv = &scriptedExecutor{run: func(_ context.Context, req port.ExecRequest, _ vo.Attempt, _ port.ProgressSink) (*port.ExecResult, error) {
		return writeOutput(req, "converted")
	}}
	catalog := []vo.Variant{
		{ID: "18", Ext: "mp4", Height: 360, VCodec: "avc1", ACodec: "mp4a", TBR: 600},
		{ID: "137", Ext: "mp4", Height: 1080, VCodec: "avc1", ACodec: "none", VBR: 4000},
		{ID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a", ABR: 128},
	}
	engine := NewEscalationEngine(time.Millisecond, time.Millisecond,
		WithSleep(func(context.Context, time.Duration) error { return nil }),
		WithJitter(func(time.Duration) time.Duration { return 0 }))
	h.orch = NewOrchestrator(OrchestratorDeps{
		Repo:      h.repo,
		Progress:  h.progress,
		Engine:    engine,
		Planner:   fixedPlanner{},
		Extractor: &fakeExtractor{info: &vo.MediaInfo{Title: "My Clip: Part 1", Duration: 12, Variants: catalog}},
		Prober:    &fakeProber{info: &vo.MediaInfo{Duration: 30, Height: 1080, Variants: []vo.Variant{{ID: "0", Height: 1080, VCodec: "h264", ACodec: "aac"}}}},
		Fetcher:   h.fetcher,
		Converter: h.conv,
		Storage:   h.storage,
		WorkDir:   t.TempDir(),
	})
	return h
}

func (h *harness) create(t *testing.T, kind vo.JobKind, source, format string) *entity.JobEntity {
	t.Helper()
	job := entity.NewJobEntity(kind, "owner", source, "1080p", format, vo.PresetMedium, 0)
	if err := h.repo.CreateJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	return job
}

func (h *harness) load(t *testing.T, id string) *entity.JobEntity {
	t.Helper()
	job, err := h.repo.GetJob(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func TestRunDownloadCompletes(t *testing.T) {
	h := newHarness(t)
	job := h.create(t, vo.JobKindDownload, "https://example.com/watch?v=1", "mp4")

	if err := h.orch.Run(context.Background(), job.JobID()); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := h.load(t, job.JobID())
	if got.Status() != vo.JobStatusCompleted || got.Progress() != 100 {
		t.Fatalf("status=%s progress=%d", got.Status(), got.Progress())
	}
	if got.StartedAt() == nil || got.CompletedAt() == nil || got.CompletedAt().Before(*got.StartedAt()) {
		t.Fatalf("timestamps started=%v completed=%v", got.StartedAt(), got.CompletedAt())
	}
	if got.OutputKey() != fmt.Sprintf("outputs/%s/My_Clip_Part_1.mp4", job.JobID()) {
		t.Fatalf("output key = %s", got.OutputKey())
	}
	if got.Selector() != "137+140" || got.Strategy() != "android" || got.Title() != "My Clip: Part 1" {
		t.Fatalf("selector=%s strategy=%s title=%s", got.Selector(), got.Strategy(), got.Title())
	}
	entry, ok, _ := h.progress.Get(context.Background(), job.JobID())
	if !ok || entry.Status != vo.JobStatusCompleted || entry.Percentage != 100 {
		t.Fatalf("progress entry = %+v", entry)
	}
}

func TestRunTerminalJobIsNoop(t *testing.T) {
	h := newHarness(t)
	job := h.create(t, vo.JobKindDownload, "https://example.com/v", "mp4")
	_ = h.orch.Run(context.Background(), job.JobID())
	calls := len(h.fetcher.calls)
	if err := h.orch.Run(context.Background(), job.JobID()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(h.fetcher.calls) != calls {
		t.Fatalf("terminal job executed again")
	}
}

func TestRunExhaustedMarksFailedWithLastCause(t *testing.T) {
	h := newHarness(t)
	h.fetcher.run = func(ctx context.Context, _ port.ExecRequest, a vo.Attempt, sink port.ProgressSink) (*port.ExecResult, error) {
		_ = sink.Report(ctx, 30, "Downloading...")
		return nil, fmt.Errorf("HTTP 403 via %s", a.Name())
	}
	job := h.create(t, vo.JobKindDownload, "https://example.com/v", "mp4")
	if err := h.orch.Run(context.Background(), job.JobID()); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := h.load(t, job.JobID())
	if got.Status() != vo.JobStatusFailed {
		t.Fatalf("status = %s", got.Status())
	}
	if !strings.Contains(got.ErrorMessage(), "HTTP 403 via minimal") {
		t.Fatalf("message = %q", got.ErrorMessage())
	}
	if got.Progress() != 30 {
		t.Fatalf("failed job should keep progress, got %d", got.Progress())
	}
	if len(h.fetcher.calls) != 3 {
		t.Fatalf("calls = %v", h.fetcher.calls)
	}
}

func TestRunCancelledMidTransfer(t *testing.T) {
	h := newHarness(t)
	job := h.create(t, vo.JobKindDownload, "https://example.com/v", "mp4")
	h.fetcher.run = func(ctx context.Context, _ port.ExecRequest, _ vo.Attempt, sink port.ProgressSink) (*port.ExecResult, error) {
		if err := sink.Report(ctx, 40, "Downloading..."); err != nil {
			return nil, err
		}
		if err := h.orch.Cancel(ctx, job.JobID()); err != nil {
			return nil, err
		}
		if err := sink.Report(ctx, 45, "Downloading..."); err != nil {
			return nil, fmt.Errorf("download aborted: %w", err)
		}
		return nil, errors.New("should not reach")
	}

	if err := h.orch.Run(context.Background(), job.JobID()); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := h.load(t, job.JobID())
	if got.Status() != vo.JobStatusCancelled || got.ErrorMessage() != "" || got.HasOutput() {
		t.Fatalf("status=%s msg=%q output=%s", got.Status(), got.ErrorMessage(), got.OutputKey())
	}
	if got.Progress() != 40 {
		t.Fatalf("progress = %d", got.Progress())
	}
	if len(h.fetcher.calls) != 1 {
		t.Fatalf("no further attempts expected, calls=%v", h.fetcher.calls)
	}
	if len(h.storage.objects) != 0 {
		t.Fatalf("no output should be stored")
	}
}

func TestCancelPendingAndTerminal(t *testing.T) {
	h := newHarness(t)
	job := h.create(t, vo.JobKindDownload, "https://example.com/v", "mp4")
	if err := h.orch.Cancel(context.Background(), job.JobID()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.load(t, job.JobID()); got.Status() != vo.JobStatusCancelled {
		t.Fatalf("status = %s", got.Status())
	}
	if err := h.orch.Run(context.Background(), job.JobID()); err != nil || len(h.fetcher.calls) != 0 {
		t.Fatalf("run after cancel err=%v calls=%v", err, h.fetcher.calls)
	}
	if err := h.orch.Cancel(context.Background(), job.JobID()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel terminal err = %v", err)
	}
}

func TestFailUnscheduledLeavesStartedEmpty(t *testing.T) {
	h := newHarness(t)
	job := h.create(t, vo.JobKindDownload, "https://example.com/v", "mp4")
	if err := h.orch.FailUnscheduled(context.Background(), job.JobID(), errors.New("queue down; pool full")); err != nil {
		t.Fatal(err)
	}
	got := h.load(t, job.JobID())
	if got.Status() != vo.JobStatusFailed || got.StartedAt() != nil {
		t.Fatalf("status=%s started=%v", got.Status(), got.StartedAt())
	}
	if !strings.HasPrefix(got.ErrorMessage(), "processing unavailable") {
		t.Fatalf("message = %q", got.ErrorMessage())
	}
}

func TestRunConversionScalesDown(t *testing.T) {
	h := newHarness(t)
	input := filepath.Join(t.TempDir(), "holiday.mov")
	if err := os.WriteFile(input, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	job := entity.NewJobEntity(vo.JobKindConversion, "owner", input, "720p", "mp4", vo.PresetLow, 0)
	_ = h.repo.CreateJob(context.Background(), job)

	var seen port.ExecRequest
	h.conv.run = func(_ context.Context, req port.ExecRequest, _ vo.Attempt, _ port.ProgressSink) (*port.ExecResult, error) {
		seen = req
		return writeOutput(req, "converted")
	}
	if err := h.orch.Run(context.Background(), job.JobID()); err != nil {
		t.Fatal(err)
	}
	got := h.load(t, job.JobID())
	if got.Status() != vo.JobStatusCompleted {
		t.Fatalf("status=%s msg=%s", got.Status(), got.ErrorMessage())
	}
	if seen.Plan.TargetHeight != 720 || seen.Source != input || seen.Preset != vo.PresetLow {
		t.Fatalf("request = %+v", seen)
	}
	if got.Title() != "holiday" {
		t.Fatalf("title = %s", got.Title())
	}
}

func TestPurgeExpired(t *testing.T) {
	h := newHarness(t)
	job := h.create(t, vo.JobKindDownload, "https://example.com/v", "mp4")
	_ = h.orch.Run(context.Background(), job.JobID())
	s := h.load(t, job.JobID()).Snapshot()
	s.ExpiresAt = time.Now().Add(-time.Minute)
	h.repo.put(s)

	n, err := h.orch.PurgeExpired(context.Background(), time.Now(), 10)
	if err != nil || n != 1 {
		t.Fatalf("purged=%d err=%v", n, err)
	}
	if _, err := h.repo.GetJob(context.Background(), job.JobID()); !errors.Is(err, repo.ErrJobNotFound) {
		t.Fatalf("job still present: %v", err)
	}
	if len(h.storage.objects) != 0 {
		t.Fatalf("output not removed")
	}
}

func TestSafeFileName(t *testing.T) {
	cases := map[string]string{
		"My Clip: Part 1":  "My_Clip_Part_1",
		"../../etc/passwd": "....etcpasswd",
		"   ":              "output",
	}
	for in, want := range cases {
		if got := SafeFileName(in); got != want {
			t.Errorf("SafeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRunResumedWithCancelFlagStopsBeforeExtract(t *testing.T) {
	h := newHarness(t)
	job := h.create(t, vo.JobKindDownload, "https://example.com/v", "mp4")
	if err := job.StartProcessing(); err != nil {
		t.Fatal(err)
	}
	h.repo.put(job.Snapshot())
	_ = h.progress.Cancel(context.Background(), job.JobID())

	if err := h.orch.Run(context.Background(), job.JobID()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := h.load(t, job.JobID()); got.Status() != vo.JobStatusCancelled {
		t.Fatalf("status = %s", got.Status())
	}
	if len(h.fetcher.calls) != 0 {
		t.Fatalf("calls = %v", h.fetcher.calls)
	}
}
