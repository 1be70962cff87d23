package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type orderTask struct {
	name string
	log  *[]string
}

func (t *orderTask) Name() string { return t.name }

func (t *orderTask) Start(context.Context) error {
	*t.log = append(*t.log, "start:"+t.name)
	return nil
}

func (t *orderTask) Stop() error {
	*t.log = append(*t.log, "stop:"+t.name)
	return nil
}

func TestManagerStartsInOrderStopsInReverse(t *testing.T) {
	var log []string
	m := &manager{}
	m.register(&orderTask{name: "a", log: &log})
	m.register(nil)
	m.register(&orderTask{name: "b", log: &log})

	if err := m.startAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.startAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.stopAll()

	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v", log)
		}
	}
}

func TestPeriodicRunsUntilStopped(t *testing.T) {
	var runs int32
	p := NewPeriodic("tick", 5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&runs) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("periodic task did not run")
		}
		time.Sleep(time.Millisecond)
	}
	_ = p.Stop()
	after := atomic.LoadInt32(&runs)
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&runs) != after {
		t.Fatalf("ran after stop")
	}
}
