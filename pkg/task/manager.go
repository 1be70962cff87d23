package task

import (
	"context"
	"sync"

	"medkit-service/pkg/logger"
)

// BackgroundTask represents a long-running background process (consumer, worker pool, cron).
type BackgroundTask interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

type manager struct {
	tasks  []BackgroundTask
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

var (
	defaultManager = &manager{tasks: make([]BackgroundTask, 0)}
)

// Register adds a background task; should be called during init/assembly before StartAll.
func Register(task BackgroundTask) {
	defaultManager.register(task)
}

// StartAll starts all registered tasks once.
func StartAll(ctx context.Context) error {
	return defaultManager.startAll(ctx)
}

// StopAll stops all running tasks in reverse order.
func StopAll() {
	defaultManager.stopAll()
}

func (m *manager) register(task BackgroundTask) {
	if task == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
}

func (m *manager) startAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	for _, t := range m.tasks {
		if err := t.Start(m.ctx); err != nil {
			return err
		}
		logger.Infof("background task started name=%s", t.Name())
	}
	return nil
}

func (m *manager) stopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	for i := len(m.tasks) - 1; i >= 0; i-- {
		if err := m.tasks[i].Stop(); err != nil {
			logger.Warnf("background task stop failed name=%s error=%v", m.tasks[i].Name(), err)
		}
	}
	m.cancel = nil
}
