package shard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRefresher_Refresh(t *testing.T) {
	c := NewCoordinator(1, 0, nil)
	defer c.Close()

	disc := newDiscoverer("wss://gateway.example.com", 4, 16)
	disc.bot.SessionStartLimit.Remaining = 500

	r := NewRefresher(RefresherConfig{Interval: time.Hour}, disc, c, nil)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	stats := c.Stats()
	if stats.MaxConcurrency != 16 {
		t.Errorf("MaxConcurrency = %d, want 16", stats.MaxConcurrency)
	}
	if stats.Remaining != 500 {
		t.Errorf("Remaining = %d, want 500", stats.Remaining)
	}

	at, bot := r.LastRefresh()
	if at.IsZero() || bot == nil || bot.Shards != 4 {
		t.Errorf("LastRefresh = %v, %+v", at, bot)
	}
}

func TestRefresher_FixedConcurrency(t *testing.T) {
	c := NewCoordinator(1, 0, nil)
	defer c.Close()

	r := NewRefresher(RefresherConfig{MaxConcurrency: 2}, newDiscoverer("wss://gateway.example.com", 1, 16), c, nil)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := c.Stats().MaxConcurrency; got != 2 {
		t.Errorf("MaxConcurrency = %d, want fixed 2", got)
	}
}

func TestRefresher_ErrorKeepsLimits(t *testing.T) {
	c := NewCoordinator(3, 0, nil)
	defer c.Close()

	discoveryErr := errors.New("unavailable")
	r := NewRefresher(RefresherConfig{}, &fakeDiscoverer{err: discoveryErr}, c, nil)
	if err := r.Refresh(context.Background()); !errors.Is(err, discoveryErr) {
		t.Errorf("Refresh = %v, want discovery error", err)
	}
	if got := c.Stats().MaxConcurrency; got != 3 {
		t.Errorf("MaxConcurrency = %d, want unchanged 3", got)
	}
	if at, _ := r.LastRefresh(); !at.IsZero() {
		t.Errorf("LastRefresh = %v, want zero after failure", at)
	}
}

func TestRefresher_StartAndStop(t *testing.T) {
	c := NewCoordinator(1, 0, nil)
	defer c.Close()

	disc := newDiscoverer("wss://gateway.example.com", 1, 4)
	r := NewRefresher(RefresherConfig{Interval: 10 * time.Millisecond}, disc, c, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return disc.calls.Load() >= 2 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := c.Stats().MaxConcurrency; got != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", got)
	}
}

func TestRefresher_StopWithoutStart(t *testing.T) {
	r := NewRefresher(DefaultRefresherConfig(), &fakeDiscoverer{}, NewCoordinator(1, 0, nil), nil)
	if err := r.Stop(context.Background()); err != nil {
		t.Errorf("Stop = %v, want nil", err)
	}
}
