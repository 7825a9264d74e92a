package app

import (
	"context"
	"fmt"
	"time"

	"polytracker/clients/polymarketapi"
	"polytracker/config"
	"polytracker/internal/wallet"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// AggregateMode selects the cache lifetime of a freshly built snapshot.
type AggregateMode int

const (
	// ModeInteractive is used for API requests.
	ModeInteractive AggregateMode = iota
	// ModeBackground is used by the refresh loop.
	ModeBackground
)

func (m AggregateMode) String() string {
	switch m {
	case ModeInteractive:
		return "interactive"
	case ModeBackground:
		return "background"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// TraderDataSource serves the three per-wallet feeds that must all succeed
// for an aggregation to succeed.
type TraderDataSource interface {
	GetPositions(ctx context.Context, wallet string, limit int) ([]polymarketapi.Position, error)
	GetUserTrades(ctx context.Context, wallet string, limit int) ([]polymarketapi.Trade, error)
	GetValue(ctx context.Context, wallet string) (float64, error)
}

// UpstreamError is returned when a required upstream call fails. No
// snapshot is produced or cached in that case.
type UpstreamError struct {
	Endpoint string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("failed to fetch from polymarket api: %s: %v", e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// TraderAggregator builds and caches TraderSnapshots.
type TraderAggregator struct {
	logger  *zap.Logger
	source  TraderDataSource
	closed  *ClosedPositionsFetcher
	cache   *TraderCache
	metrics *Metrics

	positionsLimit int
	tradesLimit    int
	interactiveTTL time.Duration
	backgroundTTL  time.Duration

	coalesce bool
	inflight singleflight.Group

	now func() time.Time
}

func NewTraderAggregator(
	logger *zap.Logger,
	source TraderDataSource,
	closed *ClosedPositionsFetcher,
	cache *TraderCache,
	metrics *Metrics,
	cfg *config.Config,
) *TraderAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	positionsLimit := cfg.Aggregator.PositionsLimit
	if positionsLimit <= 0 {
		positionsLimit = 1000
	}
	tradesLimit := cfg.Aggregator.TradesLimit
	if tradesLimit <= 0 {
		tradesLimit = 2000
	}
	interactiveTTL := cfg.Cache.TraderTTL
	if interactiveTTL <= 0 {
		interactiveTTL = 60 * time.Second
	}
	backgroundTTL := cfg.Cache.BackgroundTTL
	if backgroundTTL <= 0 {
		backgroundTTL = 5 * time.Minute
	}

	return &TraderAggregator{
		logger:         logger,
		source:         source,
		closed:         closed,
		cache:          cache,
		metrics:        metrics,
		positionsLimit: positionsLimit,
		tradesLimit:    tradesLimit,
		interactiveTTL: interactiveTTL,
		backgroundTTL:  backgroundTTL,
		coalesce:       cfg.Aggregator.CoalesceRequests,
		now:            time.Now,
	}
}

func (a *TraderAggregator) ttlFor(mode AggregateMode) time.Duration {
	if mode == ModeBackground {
		return a.backgroundTTL
	}
	return a.interactiveTTL
}

// Aggregate returns the snapshot for a normalized address, from cache when
// warm. With coalescing enabled, concurrent misses for the same address
// share one upstream fetch and the first caller's context.
func (a *TraderAggregator) Aggregate(ctx context.Context, address string, mode AggregateMode) (*TraderSnapshot, error) {
	if snap, ok := a.cache.GetSnapshot(address); ok {
		a.metrics.RecordCacheLookup("trader", true)
		return snap, nil
	}
	a.metrics.RecordCacheLookup("trader", false)

	if !a.coalesce {
		return a.aggregate(ctx, address, mode)
	}

	v, err, shared := a.inflight.Do(traderKeyPrefix+address, func() (any, error) {
		return a.aggregate(ctx, address, mode)
	})
	if shared {
		a.logger.Debug("joined in-flight aggregation", zap.String("wallet", wallet.Short(address)))
	}
	if err != nil {
		return nil, err
	}
	return v.(*TraderSnapshot), nil
}

func (a *TraderAggregator) aggregate(ctx context.Context, address string, mode AggregateMode) (*TraderSnapshot, error) {
	start := time.Now()

	snap, err := a.fetchAndBuild(ctx, address)
	elapsed := time.Since(start)
	a.metrics.RecordAggregation(mode, err, elapsed)

	if err != nil {
		a.logger.Warn("trader aggregation failed",
			zap.String("wallet", wallet.Short(address)),
			zap.String("mode", mode.String()),
			zap.Error(err),
		)
		return nil, err
	}

	a.cache.SetSnapshot(address, snap, a.ttlFor(mode))

	a.logger.Info("trader aggregated",
		zap.String("wallet", wallet.Short(address)),
		zap.String("mode", mode.String()),
		zap.Int("open", snap.OpenPositionCount),
		zap.Int("closed", snap.ClosedPositionCount),
		zap.Int("trades", snap.TotalTrades),
		zap.Duration("elapsed", elapsed),
	)
	return snap, nil
}

func (a *TraderAggregator) fetchAndBuild(ctx context.Context, address string) (*TraderSnapshot, error) {
	var (
		positions []polymarketapi.Position
		trades    []polymarketapi.Trade
		value     float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := a.source.GetPositions(gctx, address, a.positionsLimit)
		if err != nil {
			return &UpstreamError{Endpoint: polymarketapi.EndpointPositions, Err: err}
		}
		positions = p
		return nil
	})
	g.Go(func() error {
		t, err := a.source.GetUserTrades(gctx, address, a.tradesLimit)
		if err != nil {
			return &UpstreamError{Endpoint: polymarketapi.EndpointTrades, Err: err}
		}
		trades = t
		return nil
	})
	g.Go(func() error {
		v, err := a.source.GetValue(gctx, address)
		if err != nil {
			return &UpstreamError{Endpoint: polymarketapi.EndpointValue, Err: err}
		}
		value = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	closed, err := a.closed.FetchAll(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("fetch closed positions: %w", err)
	}

	return buildSnapshot(snapshotInput{
		Positions: positions,
		Trades:    trades,
		Value:     value,
		Closed:    closed,
	}, a.now()), nil
}
