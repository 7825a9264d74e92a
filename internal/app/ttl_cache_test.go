package app

import (
	"testing"
	"time"

	"polytracker/clients/polymarketapi"
)

func TestTTLCache_GetSet(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLCache[string](clock.Now)

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}

	c.Set("k", "v", time.Minute)
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Errorf("Get = %q, %v; want v, true", got, ok)
	}
}

func TestTTLCache_ExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLCache[int](clock.Now)

	c.Set("k", 1, time.Minute)

	clock.Advance(time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry should still be valid exactly at its expiry instant")
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}

	clock.Advance(time.Second)
	if c.Len() != 1 {
		t.Error("expired entry should stay until it is read")
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be removed on Get, got %d entries", c.Len())
	}
}

func TestTTLCache_OverwriteResetsExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLCache[int](clock.Now)

	c.Set("k", 1, time.Minute)
	clock.Advance(50 * time.Second)
	c.Set("k", 2, time.Minute)
	clock.Advance(50 * time.Second)

	got, ok := c.Get("k")
	if !ok || got != 2 {
		t.Errorf("Get = %d, %v; want 2, true", got, ok)
	}
}

func TestTraderCache_Namespaces(t *testing.T) {
	clock := newFakeClock()
	c := NewTraderCache(clock.Now)

	snap := &TraderSnapshot{Found: true}
	c.SetSnapshot(testWallet, snap, time.Minute)
	c.SetClosed(testWallet, []polymarketapi.ClosedPosition{}, 5*time.Minute)

	if got, ok := c.GetSnapshot(testWallet); !ok || got != snap {
		t.Error("expected cached snapshot pointer back")
	}
	rows, ok := c.GetClosed(testWallet)
	if !ok {
		t.Error("a cached empty closed-positions list should be a hit")
	}
	if len(rows) != 0 {
		t.Errorf("expected 0 rows, got %d", len(rows))
	}

	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}
	snapshots, closed := c.Sizes()
	if snapshots != 1 || closed != 1 {
		t.Errorf("Sizes = %d, %d; want 1, 1", snapshots, closed)
	}

	clock.Advance(2 * time.Minute)
	if _, ok := c.GetSnapshot(testWallet); ok {
		t.Error("snapshot should expire after its own TTL")
	}
	if _, ok := c.GetClosed(testWallet); !ok {
		t.Error("closed positions should outlive the snapshot")
	}
}
