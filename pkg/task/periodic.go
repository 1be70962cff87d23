package task

import (
	"context"
	"sync"
	"time"

	"medkit-service/pkg/logger"
)

// Periodic runs fn every interval until stopped. The first run happens after one interval.
type Periodic struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPeriodic(name string, interval time.Duration, fn func(ctx context.Context) error) *Periodic {
	return &Periodic{name: name, interval: interval, fn: fn}
}

func (p *Periodic) Name() string { return p.name }

func (p *Periodic) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.fn(ctx); err != nil && ctx.Err() == nil {
					logger.Warnf("periodic task failed name=%s error=%v", p.name, err)
				}
			}
		}
	}()
	return nil
}

func (p *Periodic) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}
