package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"polytracker/clients"
	"polytracker/clients/notifier"
	"polytracker/clients/polymarketapi"
	"polytracker/clients/watchlist"
	"polytracker/config"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

// newDataAPI fakes the four data API endpoints for a single wallet.
func newDataAPI(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/positions":
			json.NewEncoder(w).Encode([]polymarketapi.Position{
				{ConditionID: "m1", Title: "Will it rain?", Size: 10, TotalBought: 100, CashPnl: 5, Pseudonym: "Brave-Owl"},
			})
		case "/trades":
			json.NewEncoder(w).Encode([]polymarketapi.Trade{
				{ConditionID: "m1", Size: 2, Price: 10, Timestamp: 1700000000},
			})
		case "/value":
			w.Write([]byte(`[{"user":"` + testWallet + `","value":12.5}]`))
		case "/closed-positions":
			json.NewEncoder(w).Encode([]polymarketapi.ClosedPosition{
				{ConditionID: "c1", TotalBought: 50, RealizedPnl: 20, CurPrice: 1},
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestRunner(t *testing.T, dataURL string) (*Runner, *config.Config) {
	t.Helper()
	cfg := testConfig()
	cfg.Polymarket.DataAPIURL = dataURL
	cfg.Server.Port = 0

	clts := &clients.Clients{
		Logger:     zap.NewNop(),
		Notifier:   notifier.NewMultiNotifier(),
		Polymarket: polymarketapi.NewPolymarketApiClient(nil, cfg),
		Watchlist:  watchlist.NewStaticStore(nil, []string{testWallet}),
	}
	return NewRunner(clts, cfg, nil), cfg
}

func TestNewRunner(t *testing.T) {
	runner, cfg := newTestRunner(t, "http://example.com")

	if runner.cfg != cfg {
		t.Error("unexpected config")
	}
	if runner.metrics == nil {
		t.Error("expected default metrics")
	}
	if runner.cache == nil || runner.closed == nil || runner.aggregator == nil || runner.refresh == nil || runner.api == nil {
		t.Error("expected all components to be wired")
	}
	if runner.aggregator.cache != runner.cache || runner.closed.cache != runner.cache {
		t.Error("components should share one cache")
	}
}

func TestRunner_EndToEnd(t *testing.T) {
	var requests atomic.Int32
	data := newDataAPI(t, &requests)
	defer data.Close()

	runner, _ := newTestRunner(t, data.URL)
	server := httptest.NewServer(runner.api.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/trader/" + testWallet)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var snap TraderSnapshot
	decodeBody(t, resp, &snap)

	if snap.CurrentValue != 12.5 {
		t.Errorf("currentValue = %v, want 12.5", snap.CurrentValue)
	}
	if !approx(snap.TotalVolume, 170) {
		t.Errorf("totalVolume = %v, want 170", snap.TotalVolume)
	}
	if !approx(snap.TotalPnl, 25) {
		t.Errorf("totalPnl = %v, want 25", snap.TotalPnl)
	}
	if snap.WinRate != 100 {
		t.Errorf("winRate = %v, want 100", snap.WinRate)
	}
	if snap.Pseudonym == nil || *snap.Pseudonym != "Brave-Owl" {
		t.Error("expected pseudonym")
	}
	if got := requests.Load(); got != 4 {
		t.Errorf("expected 4 upstream requests, got %d", got)
	}

	// Warm cache: no further upstream traffic.
	resp, err = http.Get(server.URL + "/api/trader/" + testWallet)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if got := requests.Load(); got != 4 {
		t.Errorf("expected warm cache to skip upstream, got %d requests", got)
	}

	if got := testutil.ToFloat64(runner.metrics.UpstreamRequests.WithLabelValues("positions", "200")); got != 1 {
		t.Errorf("observer should record upstream requests, got %v", got)
	}

	resp, err = http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var health healthResponse
	decodeBody(t, resp, &health)
	if health.Cached != 2 {
		t.Errorf("cached = %d, want 2", health.Cached)
	}
}

func TestRunner_RefreshWarmsCache(t *testing.T) {
	var requests atomic.Int32
	data := newDataAPI(t, &requests)
	defer data.Close()

	runner, _ := newTestRunner(t, data.URL)
	runner.refresh.sleep = (&sleepRecorder{}).sleep

	report := runner.refresh.RunOnce(context.Background())
	if report.Refreshed != 1 {
		t.Fatalf("refreshed = %d, want 1", report.Refreshed)
	}
	if _, ok := runner.cache.GetSnapshot(testWallet); !ok {
		t.Error("expected background refresh to populate the cache")
	}

	stats := runner.GetStats()
	if stats.Refresh.Runs != 1 || stats.Refresh.LastReport == nil {
		t.Errorf("unexpected refresh stats: %+v", stats.Refresh)
	}
	if stats.Cache.Snapshots != 1 || stats.Cache.ClosedPositions != 1 {
		t.Errorf("unexpected cache stats: %+v", stats.Cache)
	}
}

func TestRunner_GetStats(t *testing.T) {
	runner, _ := newTestRunner(t, "http://example.com")

	stats := runner.GetStats()

	if stats.Build.Commit == "" || stats.Build.GoVersion == "" {
		t.Error("expected build info")
	}
	if stats.Stage != "beta" {
		t.Errorf("stage = %q, want beta", stats.Stage)
	}
	if stats.Cache.TraderTTL != "1m0s" || stats.Cache.BackgroundTTL != "5m0s" {
		t.Errorf("unexpected TTLs: %s / %s", stats.Cache.TraderTTL, stats.Cache.BackgroundTTL)
	}
	if stats.Refresh.WatchlistBackend != "static" {
		t.Errorf("watchlist backend = %q", stats.Refresh.WatchlistBackend)
	}
	if stats.Notifications.DiscordEnabled {
		t.Error("discord should be disabled without a client")
	}
	if stats.Notifications.TelegramEnabled {
		t.Error("telegram should be disabled without a client")
	}
	if stats.Runtime.Goroutines == 0 || stats.Runtime.NumCPU == 0 {
		t.Error("expected runtime stats")
	}
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	runner, _ := newTestRunner(t, "http://example.com")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not stop")
	}
}
