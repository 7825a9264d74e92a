package app

import (
	"context"
	"sync"
	"time"

	"polytracker/clients/notifier"
	"polytracker/clients/watchlist"
	"polytracker/config"
	"polytracker/internal/wallet"

	"go.uber.org/zap"
)

// SnapshotAggregator is the part of TraderAggregator the refresh loop and
// API server depend on.
type SnapshotAggregator interface {
	Aggregate(ctx context.Context, address string, mode AggregateMode) (*TraderSnapshot, error)
}

// RefreshLoop periodically warms the snapshot cache for every watched
// address. Addresses are processed one at a time.
type RefreshLoop struct {
	logger     *zap.Logger
	aggregator SnapshotAggregator
	store      watchlist.Store
	notifier   notifier.Notifier
	metrics    *Metrics

	initialDelay time.Duration
	interval     time.Duration
	addressDelay time.Duration

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu         sync.Mutex
	lastReport *notifier.RefreshReport
	runs       int
}

func NewRefreshLoop(
	logger *zap.Logger,
	aggregator SnapshotAggregator,
	store watchlist.Store,
	n notifier.Notifier,
	metrics *Metrics,
	cfg *config.Config,
) *RefreshLoop {
	if logger == nil {
		logger = zap.NewNop()
	}

	interval := cfg.Refresh.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &RefreshLoop{
		logger:       logger,
		aggregator:   aggregator,
		store:        store,
		notifier:     n,
		metrics:      metrics,
		initialDelay: cfg.Refresh.InitialDelay,
		interval:     interval,
		addressDelay: cfg.Refresh.AddressDelay,
		sleep:        sleepCtx,
		now:          time.Now,
	}
}

// Run performs one refresh after the initial delay and then one per
// interval until ctx is cancelled.
func (l *RefreshLoop) Run(ctx context.Context) {
	l.logger.Info("refresh loop started",
		zap.Duration("initial_delay", l.initialDelay),
		zap.Duration("interval", l.interval),
	)

	if err := l.sleep(ctx, l.initialDelay); err != nil {
		return
	}
	l.RunOnce(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("refresh loop stopped")
			return
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce refreshes every watched address serially. A failing address is
// logged and recorded in the report; it does not stop the run.
func (l *RefreshLoop) RunOnce(ctx context.Context) notifier.RefreshReport {
	started := l.now()
	report := notifier.RefreshReport{Started: started}

	addresses, err := l.store.Addresses(ctx)
	if err != nil {
		l.logger.Error("failed to load watchlist", zap.Error(err))
		report.WatchlistError = err.Error()
		l.finish(ctx, &report, started)
		return report
	}
	report.Addresses = len(addresses)

	for i, addr := range addresses {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			if err := l.sleep(ctx, l.addressDelay); err != nil {
				break
			}
		}

		_, err := l.aggregator.Aggregate(ctx, addr, ModeBackground)
		if err != nil && ctx.Err() != nil {
			break
		}
		l.metrics.RecordRefreshAddress(err)
		if err != nil {
			l.logger.Warn("background refresh failed for address",
				zap.String("wallet", wallet.Short(addr)),
				zap.Error(err),
			)
			report.Failed++
			report.FailedAddresses = append(report.FailedAddresses, notifier.FailedAddress{
				Address: addr,
				Error:   err.Error(),
			})
			continue
		}
		report.Refreshed++
	}

	l.finish(ctx, &report, started)
	return report
}

func (l *RefreshLoop) finish(ctx context.Context, report *notifier.RefreshReport, started time.Time) {
	finished := l.now()
	report.Duration = finished.Sub(started)

	l.metrics.RecordRefreshRun(report.HasFailures(), finished, report.Duration)

	l.mu.Lock()
	r := *report
	l.lastReport = &r
	l.runs++
	l.mu.Unlock()

	l.logger.Info("background refresh complete",
		zap.Int("addresses", report.Addresses),
		zap.Int("refreshed", report.Refreshed),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)

	// Interrupted runs are not reported.
	if report.HasFailures() && l.notifier != nil && ctx.Err() == nil {
		l.notifier.SendRefreshReport(*report)
	}
}

// LastReport returns the most recent run's report and the number of runs
// completed so far.
func (l *RefreshLoop) LastReport() (*notifier.RefreshReport, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastReport == nil {
		return nil, l.runs
	}
	r := *l.lastReport
	return &r, l.runs
}
