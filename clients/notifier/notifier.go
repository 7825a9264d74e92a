package notifier

import (
	"time"
)

// RefreshReport summarizes one background refresh run over the watchlist.
type RefreshReport struct {
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Addresses int           `json:"addresses"`
	Refreshed int           `json:"refreshed"`
	Failed    int           `json:"failed"`

	// Addresses that failed, with the error that was logged for each.
	FailedAddresses []FailedAddress `json:"failed_addresses,omitempty"`

	// Set when the watchlist itself could not be read.
	WatchlistError string `json:"watchlist_error,omitempty"`
}

// FailedAddress pairs a wallet with the aggregation error it hit.
type FailedAddress struct {
	Address string `json:"address"`
	Error   string `json:"error"`
}

// HasFailures reports whether anything in the run went wrong.
func (r RefreshReport) HasFailures() bool {
	return r.Failed > 0 || r.WatchlistError != ""
}

// Notifier is the interface for sending refresh reports to operator channels.
type Notifier interface {
	// SendRefreshReport sends a summary of a refresh run.
	SendRefreshReport(report RefreshReport)

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier broadcasts reports to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a new MultiNotifier with the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	// Filter out nil notifiers
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

// SendRefreshReport sends the report to all registered notifiers.
func (m *MultiNotifier) SendRefreshReport(report RefreshReport) {
	for _, n := range m.notifiers {
		n.SendRefreshReport(report)
	}
}

// Close closes all registered notifiers.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}
