package notifier

import (
	"errors"
	"testing"
	"time"
)

// mockNotifier is a test helper that implements Notifier interface
type mockNotifier struct {
	reports     []RefreshReport
	closeErr    error
	closeCalled bool
}

func (m *mockNotifier) SendRefreshReport(report RefreshReport) {
	m.reports = append(m.reports, report)
}

func (m *mockNotifier) Close() error {
	m.closeCalled = true
	return m.closeErr
}

func TestNewMultiNotifier_FiltersNil(t *testing.T) {
	mock1 := &mockNotifier{}
	mock2 := &mockNotifier{}

	mn := NewMultiNotifier(mock1, nil, mock2, nil)

	if mn.Count() != 2 {
		t.Errorf("expected 2 notifiers, got %d", mn.Count())
	}
}

func TestNewMultiNotifier_Empty(t *testing.T) {
	mn := NewMultiNotifier()

	if mn.Count() != 0 {
		t.Errorf("expected 0 notifiers, got %d", mn.Count())
	}
}

func TestMultiNotifier_SendRefreshReport(t *testing.T) {
	mock1 := &mockNotifier{}
	mock2 := &mockNotifier{}

	mn := NewMultiNotifier(mock1, mock2)

	report := RefreshReport{
		Started:   time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		Duration:  3 * time.Second,
		Addresses: 4,
		Refreshed: 3,
		Failed:    1,
		FailedAddresses: []FailedAddress{
			{Address: "0xabc", Error: "status=500"},
		},
	}

	mn.SendRefreshReport(report)

	if len(mock1.reports) != 1 {
		t.Errorf("expected 1 report for mock1, got %d", len(mock1.reports))
	}
	if len(mock2.reports) != 1 {
		t.Errorf("expected 1 report for mock2, got %d", len(mock2.reports))
	}
	if mock1.reports[0].Failed != 1 {
		t.Errorf("expected Failed 1, got %d", mock1.reports[0].Failed)
	}
}

func TestMultiNotifier_SendRefreshReport_NoNotifiers(t *testing.T) {
	mn := NewMultiNotifier()

	// Should not panic
	mn.SendRefreshReport(RefreshReport{})
}

func TestMultiNotifier_Close_WithError(t *testing.T) {
	expectedErr := errors.New("close error")
	mock1 := &mockNotifier{closeErr: expectedErr}
	mock2 := &mockNotifier{}

	mn := NewMultiNotifier(mock1, mock2)

	err := mn.Close()

	if err != expectedErr {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	// Both should still be called
	if !mock1.closeCalled {
		t.Error("expected mock1.Close() to be called")
	}
	if !mock2.closeCalled {
		t.Error("expected mock2.Close() to be called")
	}
}

func TestMultiNotifier_Close_MultipleErrors(t *testing.T) {
	err1 := errors.New("error 1")
	err2 := errors.New("error 2")

	mn := NewMultiNotifier(&mockNotifier{closeErr: err1}, &mockNotifier{closeErr: err2})

	// Should return the last error
	if err := mn.Close(); err != err2 {
		t.Errorf("expected last error %v, got %v", err2, err)
	}
}

func TestRefreshReport_HasFailures(t *testing.T) {
	tests := []struct {
		name     string
		report   RefreshReport
		expected bool
	}{
		{"clean run", RefreshReport{Addresses: 3, Refreshed: 3}, false},
		{"empty watchlist", RefreshReport{}, false},
		{"address failed", RefreshReport{Addresses: 3, Refreshed: 2, Failed: 1}, true},
		{"watchlist unreadable", RefreshReport{WatchlistError: "connection refused"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.HasFailures(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
