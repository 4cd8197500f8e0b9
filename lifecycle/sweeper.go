package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const sweepBatch = 100

// SweepOnce expires every overdue post the store reports, one batch at a
// time. It returns how many posts changed state.
func (e *Engine) SweepOnce(ctx context.Context) (int, error) {
	expired := 0
	for {
		due, err := e.store.ListExpirable(ctx, e.now(), sweepBatch)
		if err != nil {
			return expired, transient(err)
		}

		changed := 0
		for i := range due {
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}
			_, ok, err := e.Expire(ctx, due[i].ID)
			if err != nil {
				e.logger.Warn("expire failed", zap.String("foodId", due[i].ID.Hex()), zap.Error(err))
				continue
			}
			if ok {
				changed++
			}
		}
		expired += changed

		// A short batch, or one where nothing moved, means the backlog is drained.
		if len(due) < sweepBatch || changed == 0 {
			return expired, nil
		}
	}
}

// RunSweeper calls SweepOnce every interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("expiry sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			n, err := e.SweepOnce(ctx)
			if err != nil && ctx.Err() == nil {
				e.logger.Error("expiry sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				e.logger.Info("expired food posts", zap.Int("count", n))
			}
		}
	}
}
