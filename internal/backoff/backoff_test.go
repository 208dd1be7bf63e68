package backoff

import (
	"testing"
	"time"
)

func TestBackoff_Ceiling(t *testing.T) {
	b := New(time.Second, 60*time.Second, time.Minute)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},
		{100, 60 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Ceiling(tt.attempt); got != tt.want {
			t.Errorf("Ceiling(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_NextWithinCeiling(t *testing.T) {
	b := New(100*time.Millisecond, time.Second, time.Minute)

	for i := 0; i < 20; i++ {
		ceiling := b.Ceiling(b.Attempts())
		d := b.Next()
		if d < 0 || d > ceiling {
			t.Fatalf("Next() = %v, outside [0, %v]", d, ceiling)
		}
	}
	if b.Attempts() != 20 {
		t.Errorf("Attempts() = %d, want 20", b.Attempts())
	}
}

func TestBackoff_FullJitterUsesCeiling(t *testing.T) {
	b := New(time.Second, 10*time.Second, time.Minute)
	var gotN int64
	b.random = func(n int64) int64 {
		gotN = n
		return n - 1
	}

	b.Next()
	b.Next()

	if want := int64(2*time.Second) + 1; gotN != want {
		t.Errorf("random bound = %d, want %d", gotN, want)
	}
}

func TestBackoff_ObserveResets(t *testing.T) {
	b := New(time.Second, time.Minute, time.Minute)
	b.Next()
	b.Next()
	b.Next()

	b.Observe(10 * time.Second)
	if b.Attempts() != 3 {
		t.Errorf("short uptime should keep attempts, got %d", b.Attempts())
	}

	b.Observe(2 * time.Minute)
	if b.Attempts() != 0 {
		t.Errorf("long uptime should reset attempts, got %d", b.Attempts())
	}
}

func TestNew_Defaults(t *testing.T) {
	b := New(0, 0, 0)
	if b.Base != time.Second {
		t.Errorf("Base = %v, want 1s", b.Base)
	}
	if b.Max != b.Base {
		t.Errorf("Max = %v, want %v", b.Max, b.Base)
	}
}
