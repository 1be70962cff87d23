package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medkit-service/ddd/domain/port"
	"medkit-service/ddd/domain/vo"
)

const (
	progressKeyPrefix = "progress:"
	cancelKeyPrefix   = "cancel:"

	// DefaultTTL 进度条目过期时间
	DefaultTTL = 5 * time.Minute
)

// Channel stores the latest progress entry and the cancel flag per job.
// Each job has a single writer, so the read-compare-write in Set does not race.
type Channel struct {
	store port.KVStore
	ttl   time.Duration
}

// NewChannel 创建进度通道
func NewChannel(store port.KVStore, ttl time.Duration) *Channel {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Channel{store: store, ttl: ttl}
}

// Set writes an entry. A lower percentage is ignored unless the status is terminal.
func (c *Channel) Set(ctx context.Context, jobID string, percentage int, message string, status vo.JobStatus) error {
	entry := vo.ProgressEntry{
		Percentage: vo.ClampPercentage(percentage),
		Message:    message,
		Status:     status,
	}
	if !status.IsTerminal() {
		cur, ok, err := c.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if ok && entry.Percentage < cur.Percentage {
			return nil
		}
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	return c.store.Set(ctx, progressKeyPrefix+jobID, string(raw), c.ttl)
}

// Get returns the entry and false when none exists or it expired.
func (c *Channel) Get(ctx context.Context, jobID string) (vo.ProgressEntry, bool, error) {
	raw, ok, err := c.store.Get(ctx, progressKeyPrefix+jobID)
	if err != nil || !ok {
		return vo.ProgressEntry{}, false, err
	}
	var entry vo.ProgressEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return vo.ProgressEntry{}, false, fmt.Errorf("decode progress: %w", err)
	}
	return entry, true, nil
}

// Cancel raises the cancel flag; repeating it is harmless.
func (c *Channel) Cancel(ctx context.Context, jobID string) error {
	return c.store.Set(ctx, cancelKeyPrefix+jobID, "1", c.ttl)
}

func (c *Channel) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	_, ok, err := c.store.Get(ctx, cancelKeyPrefix+jobID)
	return ok, err
}
