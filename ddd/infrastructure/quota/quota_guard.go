package quota

import (
	"context"
	"fmt"
	"time"

	"medkit-service/ddd/domain/port"
)

// DailyGuard counts requests per owner per UTC day in the key-value store.
// Owners without an id are not limited.
type DailyGuard struct {
	store port.KVStore
	limit int
	now   func() time.Time
}

// NewDailyGuard 创建每日配额守卫, a non-positive limit disables the check.
func NewDailyGuard(store port.KVStore, limit int) *DailyGuard {
	return &DailyGuard{store: store, limit: limit, now: time.Now}
}

func (g *DailyGuard) Consume(ctx context.Context, ownerID string) error {
	if g.limit <= 0 || ownerID == "" {
		return nil
	}
	key := fmt.Sprintf("quota:%s:%s", ownerID, g.now().UTC().Format("20060102"))
	n, err := g.store.Incr(ctx, key, 25*time.Hour)
	if err != nil {
		return fmt.Errorf("quota counter: %w", err)
	}
	if n > int64(g.limit) {
		return port.ErrQuotaExceeded
	}
	return nil
}
