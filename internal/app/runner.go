package app

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	clts "polytracker/clients"
	"polytracker/clients/notifier"
	"polytracker/config"

	"go.uber.org/zap"
)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

type Runner struct {
	clients *clts.Clients
	cfg     *config.Config
	metrics *Metrics

	cache      *TraderCache
	closed     *ClosedPositionsFetcher
	aggregator *TraderAggregator
	refresh    *RefreshLoop
	api        *APIServer

	startTime time.Time
}

// ServiceStats holds comprehensive service statistics.
type ServiceStats struct {
	// Build info
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	// Service info
	Stage     string `json:"stage"`
	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	// Cache stats
	Cache struct {
		Snapshots       int    `json:"snapshots"`
		ClosedPositions int    `json:"closed_positions"`
		Total           int    `json:"total"`
		TraderTTL       string `json:"trader_ttl"`
		BackgroundTTL   string `json:"background_ttl"`
	} `json:"cache"`

	// Refresh loop stats
	Refresh struct {
		Enabled          bool                    `json:"enabled"`
		Interval         string                  `json:"interval"`
		WatchlistBackend string                  `json:"watchlist_backend"`
		Runs             int                     `json:"runs"`
		LastRunAgo       string                  `json:"last_run_ago,omitempty"`
		LastReport       *notifier.RefreshReport `json:"last_report,omitempty"`
	} `json:"refresh"`

	// Notification settings
	Notifications struct {
		DiscordEnabled   bool   `json:"discord_enabled"`
		DiscordChannelID string `json:"discord_channel_id,omitempty"`
		TelegramEnabled  bool   `json:"telegram_enabled"`
		TelegramChatID   string `json:"telegram_chat_id,omitempty"`
	} `json:"notifications"`

	// Runtime stats
	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"`  // bytes currently allocated on heap
		HeapSys    uint64 `json:"heap_sys"`    // bytes obtained from system for heap
		HeapInuse  uint64 `json:"heap_inuse"`  // bytes in in-use spans
		StackInuse uint64 `json:"stack_inuse"` // bytes in stack spans
		NumGC      uint32 `json:"num_gc"`      // number of completed GC cycles
		LastGC     string `json:"last_gc"`     // time of last GC
		GoVersion  string `json:"go_version"`  // Go version
		NumCPU     int    `json:"num_cpu"`     // number of CPUs
		GOOS       string `json:"goos"`        // operating system
		GOARCH     string `json:"goarch"`      // architecture
	} `json:"runtime"`
}

// NewRunner wires the cache, fetcher, aggregator, refresh loop and API
// server around the given clients. A nil metrics gets a fresh registry.
func NewRunner(clients *clts.Clients, cfg *config.Config, metrics *Metrics) *Runner {
	if metrics == nil {
		metrics = NewMetrics()
	}
	logger := clients.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		clients:   clients,
		cfg:       cfg,
		metrics:   metrics,
		cache:     NewTraderCache(time.Now),
		startTime: time.Now(),
	}

	clients.Polymarket.SetObserver(metrics.ObserveUpstream)
	metrics.RegisterCacheSize(r.cache)

	r.closed = NewClosedPositionsFetcher(logger, clients.Polymarket, r.cache, metrics, cfg)
	r.aggregator = NewTraderAggregator(logger, clients.Polymarket, r.closed, r.cache, metrics, cfg)
	r.refresh = NewRefreshLoop(logger, r.aggregator, clients.Watchlist, clients.Notifier, metrics, cfg)
	r.api = NewAPIServer(logger, r.aggregator, r.cache, metrics, r.GetStats, cfg)

	return r
}

// Run starts the API server and the refresh loop and blocks until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) error {
	logger := r.clients.Logger

	logger.Info("starting trader stats service",
		zap.String("build", BuildCommit),
		zap.Int("port", r.cfg.Server.Port),
		zap.Bool("refresh", r.cfg.Refresh.Enabled),
		zap.String("watchlist", r.cfg.Watchlist.Backend),
		zap.Bool("coalesce", r.cfg.Aggregator.CoalesceRequests),
	)

	r.api.Start(r.cfg.Server.Port)

	if r.cfg.Refresh.Enabled {
		go r.refresh.Run(ctx)
	} else {
		logger.Info("background refresh disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := r.api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", zap.Error(err))
	}

	return nil
}

// GetStats returns a point-in-time view of the service.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats

	// Build info
	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	// Service info
	stats.Stage = "beta"
	if r.cfg.IsProd {
		stats.Stage = "prod"
	}
	stats.StartTime = r.startTime.UTC().Format(time.RFC3339)
	uptime := time.Since(r.startTime)
	stats.Uptime = uptime.Round(time.Second).String()
	stats.UptimeSec = int64(uptime.Seconds())

	// Cache stats
	snapshots, closed := r.cache.Sizes()
	stats.Cache.Snapshots = snapshots
	stats.Cache.ClosedPositions = closed
	stats.Cache.Total = snapshots + closed
	stats.Cache.TraderTTL = r.aggregator.interactiveTTL.String()
	stats.Cache.BackgroundTTL = r.aggregator.backgroundTTL.String()

	// Refresh stats
	stats.Refresh.Enabled = r.cfg.Refresh.Enabled
	stats.Refresh.Interval = r.refresh.interval.String()
	stats.Refresh.WatchlistBackend = nz(r.cfg.Watchlist.Backend, config.WatchlistBackendStatic)
	last, runs := r.refresh.LastReport()
	stats.Refresh.Runs = runs
	if last != nil {
		stats.Refresh.LastReport = last
		stats.Refresh.LastRunAgo = time.Since(last.Started.Add(last.Duration)).Round(time.Second).String()
	}

	// Notification settings
	stats.Notifications.DiscordEnabled = r.clients.Discord != nil && r.clients.Discord.Enabled()
	if stats.Notifications.DiscordEnabled {
		stats.Notifications.DiscordChannelID = r.cfg.DiscordChannelID()
	}
	stats.Notifications.TelegramEnabled = r.clients.Telegram != nil && r.clients.Telegram.Enabled()
	if stats.Notifications.TelegramEnabled {
		stats.Notifications.TelegramChatID = r.cfg.TelegramChatID()
	}

	// Runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = memStats.HeapAlloc
	stats.Runtime.HeapSys = memStats.HeapSys
	stats.Runtime.HeapInuse = memStats.HeapInuse
	stats.Runtime.StackInuse = memStats.StackInuse
	stats.Runtime.NumGC = memStats.NumGC
	if memStats.LastGC > 0 {
		stats.Runtime.LastGC = time.Unix(0, int64(memStats.LastGC)).UTC().Format(time.RFC3339)
	}
	stats.Runtime.GoVersion = runtime.Version()
	stats.Runtime.NumCPU = runtime.NumCPU()
	stats.Runtime.GOOS = runtime.GOOS
	stats.Runtime.GOARCH = runtime.GOARCH

	return stats
}
