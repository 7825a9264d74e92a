package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Watchlist backends.
const (
	WatchlistBackendStatic   = "static"
	WatchlistBackendPostgres = "postgres"
	WatchlistBackendSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod"`

	// HTTP API server
	Server ServerConfig `json:"server"`

	// Polymarket data API
	Polymarket PolymarketConfig `json:"polymarket"`

	// Snapshot and closed-position cache lifetimes
	Cache CacheConfig `json:"cache"`

	// Closed-position pagination and rate-limit handling
	ClosedPositions ClosedPositionsConfig `json:"closed_positions"`

	// Trader aggregation
	Aggregator AggregatorConfig `json:"aggregator"`

	// Background cache warming
	Refresh RefreshConfig `json:"refresh"`

	// Source of watched addresses
	Watchlist WatchlistConfig `json:"watchlist"`

	// Discord - refresh reports
	Discord DiscordConfig `json:"discord"`

	// Telegram - refresh reports
	Telegram TelegramConfig `json:"telegram"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               int           `json:"port"`
	StreamInterval     time.Duration `json:"stream_interval"` // Push interval for websocket snapshot streams
	CORSAllowedOrigins []string      `json:"cors_allowed_origins"`
}

// PolymarketConfig holds Polymarket API configuration.
type PolymarketConfig struct {
	DataAPIURL     string        `json:"data_api_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// CacheConfig holds TTLs for the in-memory cache.
type CacheConfig struct {
	TraderTTL          time.Duration `json:"trader_ttl"`           // Snapshots built for API requests
	BackgroundTTL      time.Duration `json:"background_ttl"`       // Snapshots built by the refresh loop
	ClosedPositionsTTL time.Duration `json:"closed_positions_ttl"` // Merged closed-position pages
}

// ClosedPositionsConfig holds closed-position pagination configuration.
type ClosedPositionsConfig struct {
	PageSize  int           `json:"page_size"`
	PageDelay time.Duration `json:"page_delay"` // Politeness delay between pages

	// Rate limit (HTTP 429) retry policy. MaxRetries 0 retries forever.
	RateLimitDelay      time.Duration `json:"rate_limit_delay"`
	RateLimitMaxRetries int           `json:"rate_limit_max_retries"`
	RateLimitMultiplier float64       `json:"rate_limit_multiplier"` // 1.0 = fixed delay
	RateLimitMaxDelay   time.Duration `json:"rate_limit_max_delay"`
}

// AggregatorConfig holds trader aggregation configuration.
type AggregatorConfig struct {
	PositionsLimit   int  `json:"positions_limit"`
	TradesLimit      int  `json:"trades_limit"`
	CoalesceRequests bool `json:"coalesce_requests"` // Share in-flight aggregations per address
}

// RefreshConfig holds background refresh loop configuration.
type RefreshConfig struct {
	Enabled      bool          `json:"enabled"`
	InitialDelay time.Duration `json:"initial_delay"`
	Interval     time.Duration `json:"interval"`
	AddressDelay time.Duration `json:"address_delay"` // Pause between addresses within a run
}

// WatchlistConfig selects and configures the watchlist store.
type WatchlistConfig struct {
	Backend     string   `json:"backend"`
	Addresses   []string `json:"addresses"` // Static backend only
	DatabaseURL string   `json:"-"`         // Excluded - env var only
	SQLitePath  string   `json:"sqlite_path"`
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	BotToken      string `json:"-"` // Excluded - env var only
	ProdChannelID string `json:"prod_channel_id"`
	BetaChannelID string `json:"beta_channel_id"`
}

// TelegramConfig holds Telegram-related configuration.
type TelegramConfig struct {
	BotToken   string `json:"-"` // Excluded - env var only
	ProdChatID string `json:"prod_chat_id"`
	BetaChatID string `json:"beta_chat_id"`
}

// DiscordChannelID returns the report channel for the current stage.
func (c *Config) DiscordChannelID() string {
	if c.IsProd {
		return c.Discord.ProdChannelID
	}
	return c.Discord.BetaChannelID
}

// TelegramChatID returns the report chat for the current stage.
func (c *Config) TelegramChatID() string {
	if c.IsProd {
		return c.Telegram.ProdChatID
	}
	return c.Telegram.BetaChatID
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd: false,
		Server: ServerConfig{
			Port:               8080,
			StreamInterval:     30 * time.Second,
			CORSAllowedOrigins: []string{"*"},
		},
		Polymarket: PolymarketConfig{
			DataAPIURL:     "https://data-api.polymarket.com",
			RequestTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			TraderTTL:          60 * time.Second,
			BackgroundTTL:      5 * time.Minute,
			ClosedPositionsTTL: 5 * time.Minute,
		},
		ClosedPositions: ClosedPositionsConfig{
			PageSize:            50,
			PageDelay:           150 * time.Millisecond,
			RateLimitDelay:      2 * time.Second,
			RateLimitMaxRetries: 0,
			RateLimitMultiplier: 1.0,
			RateLimitMaxDelay:   30 * time.Second,
		},
		Aggregator: AggregatorConfig{
			PositionsLimit:   1000,
			TradesLimit:      2000,
			CoalesceRequests: false,
		},
		Refresh: RefreshConfig{
			Enabled:      true,
			InitialDelay: 5 * time.Second,
			Interval:     5 * time.Minute,
			AddressDelay: 500 * time.Millisecond,
		},
		Watchlist: WatchlistConfig{
			Backend:    WatchlistBackendStatic,
			SQLitePath: "./watchlist.db",
		},
	}
}

// Load loads configuration from environment variables with defaults.
// A .env file in the working directory is applied first if present.
func Load() *Config {
	_ = godotenv.Load()

	d := Defaults()
	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		Server: ServerConfig{
			Port:               envInt("SERVER_PORT", d.Server.Port),
			StreamInterval:     envDuration("SERVER_STREAM_INTERVAL", d.Server.StreamInterval),
			CORSAllowedOrigins: envStringSliceDefault("CORS_ALLOWED_ORIGINS", d.Server.CORSAllowedOrigins),
		},

		Polymarket: PolymarketConfig{
			DataAPIURL:     envString("POLYMARKET_DATA_API_URL", d.Polymarket.DataAPIURL),
			RequestTimeout: envDuration("POLYMARKET_REQUEST_TIMEOUT", d.Polymarket.RequestTimeout),
		},

		Cache: CacheConfig{
			TraderTTL:          envDuration("TRADER_CACHE_TTL", d.Cache.TraderTTL),
			BackgroundTTL:      envDuration("BACKGROUND_CACHE_TTL", d.Cache.BackgroundTTL),
			ClosedPositionsTTL: envDuration("CLOSED_POSITIONS_CACHE_TTL", d.Cache.ClosedPositionsTTL),
		},

		ClosedPositions: ClosedPositionsConfig{
			PageSize:            envInt("CLOSED_POSITIONS_PAGE_SIZE", d.ClosedPositions.PageSize),
			PageDelay:           envDuration("CLOSED_POSITIONS_PAGE_DELAY", d.ClosedPositions.PageDelay),
			RateLimitDelay:      envDuration("RATE_LIMIT_DELAY", d.ClosedPositions.RateLimitDelay),
			RateLimitMaxRetries: envInt("RATE_LIMIT_MAX_RETRIES", d.ClosedPositions.RateLimitMaxRetries),
			RateLimitMultiplier: envFloat("RATE_LIMIT_BACKOFF_MULTIPLIER", d.ClosedPositions.RateLimitMultiplier),
			RateLimitMaxDelay:   envDuration("RATE_LIMIT_MAX_DELAY", d.ClosedPositions.RateLimitMaxDelay),
		},

		Aggregator: AggregatorConfig{
			PositionsLimit:   envInt("POSITIONS_LIMIT", d.Aggregator.PositionsLimit),
			TradesLimit:      envInt("TRADES_LIMIT", d.Aggregator.TradesLimit),
			CoalesceRequests: envBoolDefault("COALESCE_REQUESTS", d.Aggregator.CoalesceRequests),
		},

		Refresh: RefreshConfig{
			Enabled:      envBoolDefault("REFRESH_ENABLED", d.Refresh.Enabled),
			InitialDelay: envDuration("REFRESH_INITIAL_DELAY", d.Refresh.InitialDelay),
			Interval:     envDuration("REFRESH_INTERVAL", d.Refresh.Interval),
			AddressDelay: envDuration("REFRESH_ADDRESS_DELAY", d.Refresh.AddressDelay),
		},

		Watchlist: WatchlistConfig{
			Backend:     strings.ToLower(envString("WATCHLIST_BACKEND", d.Watchlist.Backend)),
			Addresses:   normalizeWallets(envStringSlice("WATCHLIST_ADDRESSES")),
			DatabaseURL: envString("DATABASE_URL", ""),
			SQLitePath:  envString("WATCHLIST_SQLITE_PATH", d.Watchlist.SQLitePath),
		},

		Discord: DiscordConfig{
			BotToken:      envString("DISCORD_BOT_TOKEN", ""),
			ProdChannelID: envString("DISCORD_PROD_CHANNEL_ID", ""),
			BetaChannelID: envString("DISCORD_BETA_CHANNEL_ID", ""),
		},

		Telegram: TelegramConfig{
			BotToken:   envString("TELEGRAM_BOT_KEY", ""),
			ProdChatID: envString("TELEGRAM_PROD_CHAT_ID", ""),
			BetaChatID: envString("TELEGRAM_BETA_CHAT_ID", ""),
		},
	}
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}

func envStringSlice(key string) []string {
	return envStringSliceDefault(key, nil)
}

func envStringSliceDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func normalizeWallets(wallets []string) []string {
	if wallets == nil {
		return nil
	}
	result := make([]string, len(wallets))
	for i, w := range wallets {
		result[i] = strings.ToLower(w)
	}
	return result
}
