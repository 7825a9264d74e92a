package app

import (
	"context"
	"math"
	"time"

	"polytracker/clients/polymarketapi"
	"polytracker/config"
	"polytracker/internal/wallet"

	"go.uber.org/zap"
)

// ClosedPositionsSource serves single pages of the closed-positions feed.
type ClosedPositionsSource interface {
	GetClosedPositions(ctx context.Context, wallet string, limit, offset int) ([]polymarketapi.ClosedPosition, error)
}

// RetryPolicy controls how a rate-limited page request is retried.
// MaxRetries 0 retries forever. Multiplier 1 keeps the delay fixed.
type RetryPolicy struct {
	Delay      time.Duration
	MaxRetries int
	Multiplier float64
	MaxDelay   time.Duration
}

// delayFor returns the wait before retry number attempt (1-based). The
// growth is capped in float64 so large attempts cannot overflow Duration.
func (p RetryPolicy) delayFor(attempt int) time.Duration {
	if p.Multiplier <= 1 || attempt <= 1 {
		if p.MaxDelay > 0 && p.Delay > p.MaxDelay {
			return p.MaxDelay
		}
		return p.Delay
	}

	f := float64(p.Delay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && f > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if f >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f)
}

// exhausted reports whether attempt exceeds the retry budget.
func (p RetryPolicy) exhausted(attempt int) bool {
	return p.MaxRetries > 0 && attempt > p.MaxRetries
}

// ClosedPositionsFetcher pages through a wallet's closed positions and
// caches the merged result.
type ClosedPositionsFetcher struct {
	logger  *zap.Logger
	source  ClosedPositionsSource
	cache   *TraderCache
	metrics *Metrics

	pageSize  int
	pageDelay time.Duration
	retry     RetryPolicy
	ttl       time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

func NewClosedPositionsFetcher(
	logger *zap.Logger,
	source ClosedPositionsSource,
	cache *TraderCache,
	metrics *Metrics,
	cfg *config.Config,
) *ClosedPositionsFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	pageSize := cfg.ClosedPositions.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	ttl := cfg.Cache.ClosedPositionsTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &ClosedPositionsFetcher{
		logger:    logger,
		source:    source,
		cache:     cache,
		metrics:   metrics,
		pageSize:  pageSize,
		pageDelay: cfg.ClosedPositions.PageDelay,
		retry: RetryPolicy{
			Delay:      cfg.ClosedPositions.RateLimitDelay,
			MaxRetries: cfg.ClosedPositions.RateLimitMaxRetries,
			Multiplier: cfg.ClosedPositions.RateLimitMultiplier,
			MaxDelay:   cfg.ClosedPositions.RateLimitMaxDelay,
		},
		ttl:   ttl,
		sleep: sleepCtx,
	}
}

// FetchAll returns every closed position for address, from cache when
// possible. Upstream failures other than rate limiting end pagination and
// the rows gathered so far are cached and returned without error. If ctx is
// cancelled the partial rows are returned with ctx's error and nothing is
// cached.
func (f *ClosedPositionsFetcher) FetchAll(ctx context.Context, address string) ([]polymarketapi.ClosedPosition, error) {
	if rows, ok := f.cache.GetClosed(address); ok {
		f.metrics.RecordCacheLookup("closed", true)
		f.logger.Debug("closed positions cache hit",
			zap.String("wallet", wallet.Short(address)),
			zap.Int("rows", len(rows)),
		)
		return rows, nil
	}
	f.metrics.RecordCacheLookup("closed", false)

	all := make([]polymarketapi.ClosedPosition, 0, f.pageSize)
	offset := 0
	attempt := 0
	partial := false

	for {
		page, err := f.source.GetClosedPositions(ctx, address, f.pageSize, offset)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}

			if polymarketapi.IsRateLimited(err) {
				attempt++
				if f.retry.exhausted(attempt) {
					f.logger.Warn("rate limit retries exhausted, keeping partial closed positions",
						zap.String("wallet", wallet.Short(address)),
						zap.Int("offset", offset),
						zap.Int("rows", len(all)),
					)
					partial = true
					break
				}

				delay := f.retry.delayFor(attempt)
				f.metrics.RecordRateLimitRetry()
				f.logger.Warn("rate limited fetching closed positions, waiting",
					zap.String("wallet", wallet.Short(address)),
					zap.Int("offset", offset),
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
				)
				if err := f.sleep(ctx, delay); err != nil {
					return all, err
				}
				continue
			}

			f.logger.Warn("closed positions fetch stopped early, keeping partial result",
				zap.String("wallet", wallet.Short(address)),
				zap.Int("offset", offset),
				zap.Int("rows", len(all)),
				zap.Error(err),
			)
			partial = true
			break
		}
		attempt = 0

		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		offset += len(page)

		f.logger.Debug("fetched closed positions page",
			zap.String("wallet", wallet.Short(address)),
			zap.Int("page", len(page)),
			zap.Int("total", len(all)),
		)

		if len(page) < f.pageSize {
			break
		}

		if err := f.sleep(ctx, f.pageDelay); err != nil {
			return all, err
		}
	}

	f.metrics.RecordClosedFetch(len(all), partial)
	f.cache.SetClosed(address, all, f.ttl)

	return all, nil
}
