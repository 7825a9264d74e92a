package config

import (
	"fmt"
	"time"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validate checks the config for invalid values.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	errors = append(errors, validateServer(&c.Server)...)
	errors = append(errors, validatePolymarket(&c.Polymarket)...)
	errors = append(errors, validateCache(&c.Cache)...)
	errors = append(errors, validateClosedPositions(&c.ClosedPositions)...)
	errors = append(errors, validateAggregator(&c.Aggregator)...)
	errors = append(errors, validateRefresh(&c.Refresh)...)
	errors = append(errors, validateWatchlist(&c.Watchlist)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validateServer(s *ServerConfig) []ValidationError {
	var errors []ValidationError

	if s.Port < 1 || s.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("must be between 1 and 65535, got %d", s.Port),
		})
	}

	if s.StreamInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "server.stream_interval",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validatePolymarket(p *PolymarketConfig) []ValidationError {
	var errors []ValidationError

	if p.DataAPIURL == "" {
		errors = append(errors, ValidationError{
			Field:   "polymarket.data_api_url",
			Message: "must not be empty",
		})
	}

	if p.RequestTimeout < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "polymarket.request_timeout",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validateCache(c *CacheConfig) []ValidationError {
	var errors []ValidationError

	if c.TraderTTL < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "cache.trader_ttl",
			Message: "must be at least 1 second",
		})
	}

	if c.BackgroundTTL < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "cache.background_ttl",
			Message: "must be at least 1 second",
		})
	}

	if c.ClosedPositionsTTL < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "cache.closed_positions_ttl",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validateClosedPositions(cp *ClosedPositionsConfig) []ValidationError {
	var errors []ValidationError

	if cp.PageSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "closed_positions.page_size",
			Message: "must be at least 1",
		})
	}

	if cp.PageDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "closed_positions.page_delay",
			Message: "must be non-negative",
		})
	}

	if cp.RateLimitDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "closed_positions.rate_limit_delay",
			Message: "must be non-negative",
		})
	}

	if cp.RateLimitMaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "closed_positions.rate_limit_max_retries",
			Message: "must be non-negative (0 retries forever)",
		})
	}

	if cp.RateLimitMultiplier < 1 {
		errors = append(errors, ValidationError{
			Field:   "closed_positions.rate_limit_multiplier",
			Message: "must be at least 1",
		})
	}

	if cp.RateLimitMaxDelay < cp.RateLimitDelay {
		errors = append(errors, ValidationError{
			Field:   "closed_positions.rate_limit_max_delay",
			Message: "must be at least rate_limit_delay",
		})
	}

	return errors
}

func validateAggregator(a *AggregatorConfig) []ValidationError {
	var errors []ValidationError

	if a.PositionsLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "aggregator.positions_limit",
			Message: "must be at least 1",
		})
	}

	if a.TradesLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "aggregator.trades_limit",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateRefresh(r *RefreshConfig) []ValidationError {
	var errors []ValidationError

	if !r.Enabled {
		return nil
	}

	if r.InitialDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "refresh.initial_delay",
			Message: "must be non-negative",
		})
	}

	if r.Interval < 10*time.Second {
		errors = append(errors, ValidationError{
			Field:   "refresh.interval",
			Message: "must be at least 10 seconds",
		})
	}

	if r.AddressDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "refresh.address_delay",
			Message: "must be non-negative",
		})
	}

	return errors
}

func validateWatchlist(w *WatchlistConfig) []ValidationError {
	var errors []ValidationError

	switch w.Backend {
	case WatchlistBackendStatic:
	case WatchlistBackendPostgres:
		if w.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "watchlist.database_url",
				Message: "required for postgres backend",
			})
		}
	case WatchlistBackendSQLite:
		if w.SQLitePath == "" {
			errors = append(errors, ValidationError{
				Field:   "watchlist.sqlite_path",
				Message: "required for sqlite backend",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "watchlist.backend",
			Message: fmt.Sprintf("must be one of static, postgres, sqlite, got %q", w.Backend),
		})
	}

	return errors
}
