package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medkit-service/ddd/domain/port"
	"medkit-service/ddd/infrastructure/kvstore"
)

type stubRunner struct {
	name string
	err  error
	ids  []string
}

func (s *stubRunner) Name() string { return s.name }

func (s *stubRunner) Submit(_ context.Context, jobID string) error {
	s.ids = append(s.ids, jobID)
	return s.err
}

type stubUnscheduler struct {
	ids   []string
	cause error
}

func (s *stubUnscheduler) FailUnscheduled(_ context.Context, jobID string, cause error) error {
	s.ids = append(s.ids, jobID)
	s.cause = cause
	return nil
}

type capturingProducer struct {
	topic string
	key   []byte
	value []byte
	err   error
}

func (p *capturingProducer) Produce(_ context.Context, topic string, key, value []byte) error {
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

func TestDispatchUsesPrimary(t *testing.T) {
	primary := &stubRunner{name: "kafka"}
	fallback := &stubRunner{name: "local"}
	d := NewDispatcher(primary, fallback, kvstore.NewMemoryStore(0), &stubUnscheduler{}, 0)

	path, err := d.Dispatch(context.Background(), "job-1")
	if err != nil || path != "kafka" {
		t.Fatalf("path=%s err=%v", path, err)
	}
	if len(fallback.ids) != 0 {
		t.Fatalf("fallback used: %v", fallback.ids)
	}
}

func TestDispatchFallsBackToLocal(t *testing.T) {
	primary := &stubRunner{name: "kafka", err: port.ErrRunnerUnavailable}
	fallback := &stubRunner{name: "local"}
	d := NewDispatcher(primary, fallback, kvstore.NewMemoryStore(0), &stubUnscheduler{}, 0)

	path, err := d.Dispatch(context.Background(), "job-1")
	if err != nil || path != "local" {
		t.Fatalf("path=%s err=%v", path, err)
	}
}

func TestDispatchIsIdempotent(t *testing.T) {
	primary := &stubRunner{name: "kafka"}
	d := NewDispatcher(primary, nil, kvstore.NewMemoryStore(0), &stubUnscheduler{}, 0)
	_, _ = d.Dispatch(context.Background(), "job-1")
	path, err := d.Dispatch(context.Background(), "job-1")
	if err != nil || path != "" || len(primary.ids) != 1 {
		t.Fatalf("path=%q err=%v submits=%v", path, err, primary.ids)
	}
}

func TestDispatchBothPathsFailMarksUnscheduled(t *testing.T) {
	primary := &stubRunner{name: "kafka", err: errors.New("broker down")}
	fallback := &stubRunner{name: "local", err: port.ErrRunnerUnavailable}
	uns := &stubUnscheduler{}
	store := kvstore.NewMemoryStore(0)
	d := NewDispatcher(primary, fallback, store, uns, 0)

	_, err := d.Dispatch(context.Background(), "job-1")
	if !errors.Is(err, port.ErrRunnerUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if len(uns.ids) != 1 || uns.ids[0] != "job-1" || uns.cause == nil {
		t.Fatalf("unscheduled = %+v", uns)
	}
	if _, ok, _ := store.Get(context.Background(), dispatchKeyPrefix+"job-1"); ok {
		t.Fatalf("dispatch marker should be released")
	}
}

func TestKafkaRunnerPublishesJobID(t *testing.T) {
	p := &capturingProducer{}
	r := NewKafkaRunner(p, "medkit.jobs")
	if err := r.Submit(context.Background(), "job-9"); err != nil {
		t.Fatal(err)
	}
	msg, err := DecodeJobMessage(p.value)
	if err != nil || msg.JobID != "job-9" || p.topic != "medkit.jobs" || string(p.key) != "job-9" {
		t.Fatalf("topic=%s key=%s msg=%+v err=%v", p.topic, p.key, msg, err)
	}
}

func TestKafkaRunnerUnavailable(t *testing.T) {
	if err := NewKafkaRunner(nil, "t").Submit(context.Background(), "j"); !errors.Is(err, port.ErrRunnerUnavailable) {
		t.Fatalf("disabled err = %v", err)
	}
	r := NewKafkaRunner(&capturingProducer{err: errors.New("timeout")}, "t")
	if err := r.Submit(context.Background(), "j"); !errors.Is(err, port.ErrRunnerUnavailable) {
		t.Fatalf("publish err = %v", err)
	}
}

func TestDecodeJobMessageRequiresID(t *testing.T) {
	if _, err := DecodeJobMessage([]byte(`{"submitted_at":"2024-01-01T00:00:00Z"}`)); err == nil {
		t.Fatal("expected error")
	}
	if _, err := DecodeJobMessage([]byte(`not json`)); err == nil {
		t.Fatal("expected error")
	}
}

type blockingRunner struct {
	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
	runs    int
}

func (b *blockingRunner) Run(ctx context.Context, _ string) error {
	b.mu.Lock()
	b.runs++
	b.mu.Unlock()
	close(b.entered)
	<-b.release
	return nil
}

func TestExclusiveRunnerSkipsConcurrentRun(t *testing.T) {
	store := kvstore.NewMemoryStore(0)
	inner := &blockingRunner{entered: make(chan struct{}), release: make(chan struct{})}
	r := NewExclusiveRunner(inner, store, "worker-a", 0)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), "job-1") }()
	<-inner.entered

	if err := r.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	close(inner.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if inner.runs != 1 {
		t.Fatalf("runs = %d", inner.runs)
	}
	if _, ok, _ := store.Get(context.Background(), activeKeyPrefix+"job-1"); ok {
		t.Fatalf("active marker should be released")
	}
}

type slowRunner struct {
	active atomic.Int32
	peak   atomic.Int32
	runs   atomic.Int32
	hold   time.Duration
}

func (s *slowRunner) Run(context.Context, string) error {
	s.runs.Add(1)
	n := s.active.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(s.hold)
	s.active.Add(-1)
	return nil
}

func TestExclusiveRunnerRefreshesMarkerDuringLongRun(t *testing.T) {
	store := kvstore.NewMemoryStore(0)
	inner := &slowRunner{hold: 150 * time.Millisecond}
	r := NewExclusiveRunner(inner, store, "w", 50*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), "job-1") }()

	time.Sleep(80 * time.Millisecond)
	if err := r.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if inner.peak.Load() != 1 || inner.runs.Load() != 1 {
		t.Fatalf("peak=%d runs=%d", inner.peak.Load(), inner.runs.Load())
	}
	if _, ok, _ := store.Get(context.Background(), activeKeyPrefix+"job-1"); ok {
		t.Fatalf("active marker should be released")
	}
}

func TestExclusiveRunnerKeepsMarkerOwnedByOthers(t *testing.T) {
	store := kvstore.NewMemoryStore(0)
	ctx := context.Background()
	r := NewExclusiveRunner(&stubJobRunner{run: func() {
		// another holder took the marker over while this run was finishing
		_ = store.Set(ctx, activeKeyPrefix+"job-2", "other", time.Minute)
	}}, store, "w", time.Minute)

	if err := r.Run(ctx, "job-2"); err != nil {
		t.Fatal(err)
	}
	if holder, ok, _ := store.Get(ctx, activeKeyPrefix+"job-2"); !ok || holder != "other" {
		t.Fatalf("holder=%q ok=%v", holder, ok)
	}
}

type stubJobRunner struct{ run func() }

func (s *stubJobRunner) Run(context.Context, string) error {
	s.run()
	return nil
}
