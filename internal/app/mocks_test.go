package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"polytracker/clients/notifier"
	"polytracker/clients/polymarketapi"
	"polytracker/config"
)

const (
	testWallet  = "0x1111111111111111111111111111111111111111"
	testWallet2 = "0x2222222222222222222222222222222222222222"
)

var errNetwork = errors.New("connection reset by peer")

// closedPage is one scripted response of the closed-positions feed.
type closedPage struct {
	rows int
	err  error
}

// MockClosedSource serves scripted closed-positions pages in order and
// records the offsets it was asked for.
type MockClosedSource struct {
	mu      sync.Mutex
	pages   []closedPage
	offsets []int
	block   chan struct{}
}

func NewMockClosedSource(pages ...closedPage) *MockClosedSource {
	return &MockClosedSource{pages: pages}
}

func (m *MockClosedSource) GetClosedPositions(ctx context.Context, wallet string, limit, offset int) ([]polymarketapi.ClosedPosition, error) {
	m.mu.Lock()
	m.offsets = append(m.offsets, offset)
	var page closedPage
	if len(m.pages) > 0 {
		page = m.pages[0]
		m.pages = m.pages[1:]
	}
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if page.err != nil {
		return nil, page.err
	}
	rows := make([]polymarketapi.ClosedPosition, page.rows)
	for i := range rows {
		rows[i] = polymarketapi.ClosedPosition{
			ConditionID: conditionID(offset + i),
			TotalBought: 10,
			RealizedPnl: 1,
			CurPrice:    1,
		}
	}
	return rows, nil
}

func (m *MockClosedSource) Offsets() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.offsets))
	copy(out, m.offsets)
	return out
}

func conditionID(i int) string {
	return fmt.Sprintf("cond-%d", i)
}

// rateLimited is a 429 as returned by the polymarket client.
func rateLimited() error {
	return &polymarketapi.StatusError{StatusCode: 429, Body: "Too Many Requests"}
}

// MockDataSource serves fixed positions, trades and value and counts calls.
type MockDataSource struct {
	Positions []polymarketapi.Position
	Trades    []polymarketapi.Trade
	Value     float64

	PositionsErr error
	TradesErr    error
	ValueErr     error

	// Delay holds each call open, to exercise concurrent callers.
	Delay time.Duration

	positionCalls atomic.Int32
	tradeCalls    atomic.Int32
	valueCalls    atomic.Int32
}

func (m *MockDataSource) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		return nil
	}
	return sleepCtx(ctx, m.Delay)
}

func (m *MockDataSource) GetPositions(ctx context.Context, wallet string, limit int) ([]polymarketapi.Position, error) {
	m.positionCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.Positions, m.PositionsErr
}

func (m *MockDataSource) GetUserTrades(ctx context.Context, wallet string, limit int) ([]polymarketapi.Trade, error) {
	m.tradeCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.Trades, m.TradesErr
}

func (m *MockDataSource) GetValue(ctx context.Context, wallet string) (float64, error) {
	m.valueCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return 0, err
	}
	return m.Value, m.ValueErr
}

func (m *MockDataSource) Calls() int {
	return int(m.positionCalls.Load() + m.tradeCalls.Load() + m.valueCalls.Load())
}

// MockStore is a watchlist.Store with a fixed address list.
type MockStore struct {
	addresses []string
	err       error
}

func (m *MockStore) Addresses(ctx context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.addresses, nil
}

func (m *MockStore) Close() error { return nil }

// MockNotifier records refresh reports.
type MockNotifier struct {
	mu      sync.Mutex
	reports []notifier.RefreshReport
}

func (m *MockNotifier) SendRefreshReport(report notifier.RefreshReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
}

func (m *MockNotifier) Close() error { return nil }

func (m *MockNotifier) Reports() []notifier.RefreshReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notifier.RefreshReport, len(m.reports))
	copy(out, m.reports)
	return out
}

// MockAggregator returns a canned result per address and records calls.
type MockAggregator struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []string
	modes []AggregateMode
}

func (m *MockAggregator) Aggregate(ctx context.Context, address string, mode AggregateMode) (*TraderSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, address)
	m.modes = append(m.modes, mode)
	if err := m.errs[address]; err != nil {
		return nil, err
	}
	return &TraderSnapshot{Found: true, NotableBets: []string{}}, nil
}

func (m *MockAggregator) Modes() []AggregateMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AggregateMode, len(m.modes))
	copy(out, m.modes)
	return out
}

func (m *MockAggregator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// sleepRecorder replaces sleepCtx and records requested delays without
// waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.delays))
	copy(out, s.delays)
	return out
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Polymarket.DataAPIURL = "http://127.0.0.1:0"
	cfg.Refresh.Enabled = false
	return cfg
}
