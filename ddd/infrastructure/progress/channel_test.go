package progress

import (
	"context"
	"testing"

	"medkit-service/ddd/domain/vo"
	"medkit-service/ddd/infrastructure/kvstore"
)

func newTestChannel() *Channel {
	return NewChannel(kvstore.NewMemoryStore(0), 0)
}

func TestChannelAbsentIsNotZero(t *testing.T) {
	c := newTestChannel()
	if _, ok, err := c.Get(context.Background(), "job"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	_ = c.Set(context.Background(), "job", 0, "Starting...", vo.JobStatusProcessing)
	e, ok, _ := c.Get(context.Background(), "job")
	if !ok || e.Percentage != 0 || e.Message != "Starting..." {
		t.Fatalf("entry = %+v ok=%v", e, ok)
	}
}

func TestChannelIgnoresRegression(t *testing.T) {
	ctx := context.Background()
	c := newTestChannel()
	_ = c.Set(ctx, "job", 60, "Downloading... 2.1 MB/s", vo.JobStatusProcessing)
	_ = c.Set(ctx, "job", 20, "Downloading...", vo.JobStatusProcessing)
	if e, _, _ := c.Get(ctx, "job"); e.Percentage != 60 {
		t.Fatalf("entry = %+v", e)
	}
	_ = c.Set(ctx, "job", 40, "failed", vo.JobStatusFailed)
	if e, _, _ := c.Get(ctx, "job"); e.Percentage != 40 || e.Status != vo.JobStatusFailed {
		t.Fatalf("terminal write should win, entry = %+v", e)
	}
}

func TestChannelClampsPercentage(t *testing.T) {
	c := newTestChannel()
	_ = c.Set(context.Background(), "job", 140, "", vo.JobStatusProcessing)
	if e, _, _ := c.Get(context.Background(), "job"); e.Percentage != 100 {
		t.Fatalf("entry = %+v", e)
	}
}

func TestChannelCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newTestChannel()
	if ok, _ := c.IsCancelled(ctx, "job"); ok {
		t.Fatalf("fresh job flagged")
	}
	for i := 0; i < 2; i++ {
		if err := c.Cancel(ctx, "job"); err != nil {
			t.Fatal(err)
		}
	}
	if ok, _ := c.IsCancelled(ctx, "job"); !ok {
		t.Fatalf("cancel flag missing")
	}
}
