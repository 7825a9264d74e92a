package polymarketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"polytracker/config"

	"go.uber.org/zap"
)

// Endpoint names, used for error messages and request instrumentation.
const (
	EndpointPositions       = "positions"
	EndpointTrades          = "trades"
	EndpointValue           = "value"
	EndpointClosedPositions = "closed-positions"
)

// Observer is notified after every upstream request. status is 0 when the
// request failed before a response was received.
type Observer func(endpoint string, status int, elapsed time.Duration)

type PolymarketApiClient struct {
	logger      *zap.Logger
	httpClient  *http.Client
	dataBaseURL string
	observer    Observer
}

func NewPolymarketApiClient(logger *zap.Logger, cfg *config.Config) *PolymarketApiClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Polymarket.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &PolymarketApiClient{
		logger: logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		dataBaseURL: cfg.Polymarket.DataAPIURL,
	}
}

// SetObserver installs a request observer. It must be called before the
// client is shared between goroutines.
func (c *PolymarketApiClient) SetObserver(o Observer) {
	c.observer = o
}

// StatusError is returned for any non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status=%d body=%s", e.StatusCode, e.Body)
}

// IsRateLimited reports whether err carries an HTTP 429 from upstream.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}

// ---- Data API types ----

// Trade represents a trade from the data API.
type Trade struct {
	ID              string  `json:"id,omitempty"`
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"` // BUY or SELL
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"`
	ConditionID     string  `json:"conditionId"`
	Asset           string  `json:"asset"`
	TransactionHash string  `json:"transactionHash"`

	// Market metadata
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	Icon         string `json:"icon"`
	EventSlug    string `json:"eventSlug,omitempty"`
	Outcome      string `json:"outcome"`
	OutcomeIndex int    `json:"outcomeIndex"`

	// User profile
	Name         string `json:"name"`
	Pseudonym    string `json:"pseudonym"`
	ProfileImage string `json:"profileImage"`
}

// ClosedPosition represents one row of the closed-positions feed.
// CurPrice is 1 for a winning outcome and 0 for a losing one.
type ClosedPosition struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	AvgPrice        float64 `json:"avgPrice"`
	TotalBought     float64 `json:"totalBought"`
	RealizedPnl     float64 `json:"realizedPnl"`
	CurPrice        float64 `json:"curPrice"`
	Timestamp       int64   `json:"timestamp"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	Icon            string  `json:"icon"`
	EventSlug       string  `json:"eventSlug"`
	Outcome         string  `json:"outcome"`
	OutcomeIndex    int     `json:"outcomeIndex"`
	OppositeOutcome string  `json:"oppositeOutcome"`
	OppositeAsset   string  `json:"oppositeAsset"`
	EndDate         string  `json:"endDate"`
}

// Position represents an open position from the data API.
type Position struct {
	ProxyWallet        string  `json:"proxyWallet"`
	Asset              string  `json:"asset"`
	ConditionID        string  `json:"conditionId"`
	Size               float64 `json:"size"`
	AvgPrice           float64 `json:"avgPrice"`
	InitialValue       float64 `json:"initialValue"`
	CurrentValue       float64 `json:"currentValue"`
	CashPnl            float64 `json:"cashPnl"`
	PercentPnl         float64 `json:"percentPnl"`
	TotalBought        float64 `json:"totalBought"`
	RealizedPnl        float64 `json:"realizedPnl"`
	PercentRealizedPnl float64 `json:"percentRealizedPnl"`
	CurPrice           float64 `json:"curPrice"`
	Redeemable         bool    `json:"redeemable"`
	Mergeable          bool    `json:"mergeable"`
	Title              string  `json:"title"`
	Slug               string  `json:"slug"`
	Icon               string  `json:"icon"`
	EventSlug          string  `json:"eventSlug"`
	Outcome            string  `json:"outcome"`
	OutcomeIndex       int     `json:"outcomeIndex"`
	OppositeOutcome    string  `json:"oppositeOutcome"`
	OppositeAsset      string  `json:"oppositeAsset"`
	EndDate            string  `json:"endDate"`
	NegativeRisk       bool    `json:"negativeRisk"`
	Timestamp          int64   `json:"timestamp,omitempty"`
	Pseudonym          string  `json:"pseudonym,omitempty"`
}

// PortfolioValue is the /value response. Upstream returns either a bare
// object or a single-element list; both decode to the same value.
type PortfolioValue struct {
	User  string  `json:"user"`
	Value float64 `json:"value"`
}

func (v *PortfolioValue) UnmarshalJSON(data []byte) error {
	type plain PortfolioValue

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = PortfolioValue{}
		return nil
	}

	if data[0] == '[' {
		var list []plain
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decode value list: %w", err)
		}
		if len(list) == 0 {
			*v = PortfolioValue{}
			return nil
		}
		*v = PortfolioValue(list[0])
		return nil
	}

	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode value object: %w", err)
	}
	*v = PortfolioValue(p)
	return nil
}

// GetPositions fetches open positions for a wallet. sizeThreshold=-1 asks
// upstream for positions of any size; dust filtering is done by the caller.
func (c *PolymarketApiClient) GetPositions(
	ctx context.Context,
	wallet string,
	limit int,
) ([]Position, error) {
	u, err := c.userURL("/positions", wallet)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	q.Set("sizeThreshold", "-1")
	u.RawQuery = q.Encode()

	var positions []Position
	if err := c.doGet(ctx, EndpointPositions, u.String(), &positions); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	return positions, nil
}

// GetUserTrades fetches the most recent trades for a wallet.
func (c *PolymarketApiClient) GetUserTrades(
	ctx context.Context,
	wallet string,
	limit int,
) ([]Trade, error) {
	u, err := c.userURL("/trades", wallet)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	u.RawQuery = q.Encode()

	var trades []Trade
	if err := c.doGet(ctx, EndpointTrades, u.String(), &trades); err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}

	return trades, nil
}

// GetValue fetches the current portfolio value for a wallet.
func (c *PolymarketApiClient) GetValue(ctx context.Context, wallet string) (float64, error) {
	u, err := c.userURL("/value", wallet)
	if err != nil {
		return 0, err
	}

	var value PortfolioValue
	if err := c.doGet(ctx, EndpointValue, u.String(), &value); err != nil {
		return 0, fmt.Errorf("get value: %w", err)
	}

	return value.Value, nil
}

// GetClosedPositions fetches one page of closed positions for a wallet.
func (c *PolymarketApiClient) GetClosedPositions(
	ctx context.Context,
	wallet string,
	limit int,
	offset int,
) ([]ClosedPosition, error) {
	u, err := c.userURL("/closed-positions", wallet)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	q.Set("offset", fmt.Sprintf("%d", offset))
	u.RawQuery = q.Encode()

	var positions []ClosedPosition
	if err := c.doGet(ctx, EndpointClosedPositions, u.String(), &positions); err != nil {
		return nil, fmt.Errorf("get closed positions: %w", err)
	}

	return positions, nil
}

func (c *PolymarketApiClient) userURL(path, wallet string) (*url.URL, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("wallet is empty")
	}

	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = path

	q := u.Query()
	q.Set("user", wallet)
	u.RawQuery = q.Encode()

	return u, nil
}

// doGet is a helper that performs a GET request and decodes JSON response.
func (c *PolymarketApiClient) doGet(ctx context.Context, endpoint, url string, dest any) error {
	start := time.Now()
	status := 0
	defer func() {
		if c.observer != nil {
			c.observer(endpoint, status, time.Since(start))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	return nil
}
