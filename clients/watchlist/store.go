// Package watchlist provides the set of wallet addresses tracked by users.
package watchlist

import (
	"context"
	"fmt"
	"sort"

	"polytracker/config"
	"polytracker/internal/wallet"

	"go.uber.org/zap"
)

// Store returns the distinct addresses currently on any user's watchlist.
type Store interface {
	Addresses(ctx context.Context) ([]string, error)
	Close() error
}

// Open builds the store selected by cfg.Watchlist.Backend.
func Open(ctx context.Context, logger *zap.Logger, cfg *config.Config) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Watchlist.Backend {
	case config.WatchlistBackendStatic, "":
		return NewStaticStore(logger, cfg.Watchlist.Addresses), nil
	case config.WatchlistBackendPostgres:
		return NewPostgresStore(ctx, logger, cfg.Watchlist.DatabaseURL)
	case config.WatchlistBackendSQLite:
		return OpenSQLiteStore(logger, cfg.Watchlist.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown watchlist backend %q", cfg.Watchlist.Backend)
	}
}

// StaticStore serves a fixed address list from configuration.
type StaticStore struct {
	addresses []string
}

func NewStaticStore(logger *zap.Logger, addresses []string) *StaticStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaticStore{addresses: normalizeAll(logger, addresses)}
}

func (s *StaticStore) Addresses(ctx context.Context) ([]string, error) {
	out := make([]string, len(s.addresses))
	copy(out, s.addresses)
	return out, nil
}

func (s *StaticStore) Close() error {
	return nil
}

// normalizeAll validates, lowercases, de-duplicates and sorts addresses.
// Invalid entries are logged and skipped.
func normalizeAll(logger *zap.Logger, raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		addr, err := wallet.Normalize(r)
		if err != nil {
			logger.Warn("skipping invalid watchlist address", zap.String("address", r))
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
