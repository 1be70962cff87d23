package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrQueueFull is returned when the bounded queue has no free slot.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("queue is closed")
)

// JobQueue 作业队列接口, carries job ids to the local worker pool
type JobQueue interface {
	// Enqueue 入队, never blocks
	Enqueue(ctx context.Context, jobID string) error
	// Dequeue 出队（阻塞）
	Dequeue(ctx context.Context) (string, error)
	Size() int
	Capacity() int
	Close() error
	IsClosed() bool
}

// MemoryJobQueue 基于内存的作业队列实现
type MemoryJobQueue struct {
	queue  chan string
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once

	enqueued atomic.Uint64
	dequeued atomic.Uint64
}

// QueueMetrics 队列指标
type QueueMetrics struct {
	EnqueueCount uint64
	DequeueCount uint64
	MaxSize      int
	CurrentSize  int
}

// NewMemoryJobQueue 创建内存作业队列
func NewMemoryJobQueue(capacity int) *MemoryJobQueue {
	if capacity <= 0 {
		capacity = 100 // 默认容量
	}
	return &MemoryJobQueue{
		queue: make(chan string, capacity),
		done:  make(chan struct{}),
	}
}

func (q *MemoryJobQueue) Enqueue(ctx context.Context, jobID string) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if jobID == "" {
		return errors.New("job id cannot be empty")
	}
	select {
	case q.queue <- jobID:
		q.enqueued.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryJobQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-q.queue:
		q.dequeued.Add(1)
		return id, nil
	case <-q.done:
		return "", ErrQueueClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *MemoryJobQueue) Size() int     { return len(q.queue) }
func (q *MemoryJobQueue) Capacity() int { return cap(q.queue) }

// Close 关闭队列. Queued ids are dropped, their records stay pending.
func (q *MemoryJobQueue) Close() error {
	q.once.Do(func() {
		q.closed.Store(true)
		close(q.done)
	})
	return nil
}

func (q *MemoryJobQueue) IsClosed() bool { return q.closed.Load() }

// GetMetrics 获取队列指标
func (q *MemoryJobQueue) GetMetrics() QueueMetrics {
	return QueueMetrics{
		EnqueueCount: q.enqueued.Load(),
		DequeueCount: q.dequeued.Load(),
		MaxSize:      cap(q.queue),
		CurrentSize:  len(q.queue),
	}
}
