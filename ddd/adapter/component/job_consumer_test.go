package component

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"medkit-service/ddd/infrastructure/dispatch"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader(values ...[]byte) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(values))}
	for i, v := range values {
		r.msgs <- kafka.Message{Offset: int64(i), Value: v}
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type recordingRunner struct {
	mu   sync.Mutex
	ran  []string
	fail map[string]bool
}

func (r *recordingRunner) Run(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, jobID)
	if r.fail[jobID] {
		return errors.New("load failed")
	}
	return nil
}

func encode(t *testing.T, id string) []byte {
	t.Helper()
	b, err := dispatch.EncodeJobMessage(id, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJobConsumerRunsAndCommits(t *testing.T) {
	reader := newFakeReader(encode(t, "a"), []byte("not json"), encode(t, "b"))
	runner := &recordingRunner{fail: map[string]bool{"b": true}}
	c := NewJobConsumer(runner, 1, ConsumerOptions{CommitOnDecodeError: true}, func() messageReader { return reader })

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.ran) == 2
	})
	waitFor(t, func() bool { return len(reader.commits()) == 2 })
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	got := reader.commits()
	// offset 2 failed and CommitOnProcessError is off
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("commits = %v", got)
	}
	if !reader.closed {
		t.Fatalf("reader not closed")
	}
}

type blockingRunner struct {
	started chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, _ string) error {
	close(r.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestJobConsumerShutdownLeavesMessageUncommitted(t *testing.T) {
	reader := newFakeReader(encode(t, "long"))
	runner := &blockingRunner{started: make(chan struct{})}
	c := NewJobConsumer(runner, 1, ConsumerOptions{CommitOnProcessError: true}, func() messageReader { return reader })
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	<-runner.started
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := reader.commits(); len(got) != 0 {
		t.Fatalf("commits = %v", got)
	}
}
