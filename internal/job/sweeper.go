package job

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type sweepTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) sweepTicker

// StartSweeper launches the retention worker: every interval it evicts jobs
// whose terminal timestamp (or start time, if still non-terminal) is older
// than the retention window. The returned func stops the worker and waits for
// it to exit. The sweeper is the only component that deletes job records.
func StartSweeper(ctx context.Context, logger *slog.Logger, store *Store, interval, retention time.Duration, onSwept func(int)) func() {
	return startSweeperWithTicker(ctx, logger, store, interval, retention, onSwept, func(d time.Duration) sweepTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startSweeperWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	store *Store,
	interval, retention time.Duration,
	onSwept func(int),
	newTicker tickerFactory,
) func() {
	if store == nil || interval <= 0 || retention <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case now := <-ticker.C():
				evicted := store.SweepOlderThan(now.Add(-retention))
				if len(evicted) == 0 {
					continue
				}
				if onSwept != nil {
					onSwept(len(evicted))
				}
				if logger != nil {
					logger.Info("swept aged jobs", "count", len(evicted), "retention", retention.String())
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
