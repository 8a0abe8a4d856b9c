package origin

import (
	"testing"
	"time"
)

func TestResolveWithoutExpectation(t *testing.T) {
	l := NewLedger(0, 0)

	if got := l.Resolve(21.5); got != Human {
		t.Errorf("Resolve() = %q, want %q", got, Human)
	}
}

func TestExpectThenResolve(t *testing.T) {
	l := NewLedger(0, 0)

	l.Expect(21.5)

	if got := l.Resolve(21.5); got != System {
		t.Errorf("Resolve() = %q, want %q", got, System)
	}
	// Expectation is consumed: the same value again is human.
	if got := l.Resolve(21.5); got != Human {
		t.Errorf("second Resolve() = %q, want %q", got, Human)
	}
}

func TestResolveTolerance(t *testing.T) {
	tests := []struct {
		name     string
		expected float64
		observed float64
		want     Origin
	}{
		{"exact match", 21.5, 21.5, System},
		{"within tolerance", 21.5, 21.53, System},
		{"quantised by device", 21.48, 21.5, System},
		{"outside tolerance", 21.5, 21.6, Human},
		{"different value", 21.5, 19.0, Human},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(0, 0)
			l.Expect(tt.expected)

			if got := l.Resolve(tt.observed); got != tt.want {
				t.Errorf("Resolve(%v) after Expect(%v) = %q, want %q",
					tt.observed, tt.expected, got, tt.want)
			}
		})
	}
}

func TestExpectationExpiry(t *testing.T) {
	now := time.Now()
	l := NewLedger(0, 30*time.Second)
	l.now = func() time.Time { return now }

	l.Expect(22.0)

	// Advance past the TTL: the echo never arrived.
	now = now.Add(31 * time.Second)

	if got := l.Resolve(22.0); got != Human {
		t.Errorf("Resolve() after expiry = %q, want %q", got, Human)
	}
	if got := l.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}
}

func TestMultiplePendingExpectations(t *testing.T) {
	l := NewLedger(0, 0)

	// Two commands in flight, e.g. a quick correction after the first.
	l.Expect(20.0)
	l.Expect(21.0)

	if got := l.Resolve(21.0); got != System {
		t.Errorf("Resolve(21.0) = %q, want %q", got, System)
	}
	if got := l.Resolve(20.0); got != System {
		t.Errorf("Resolve(20.0) = %q, want %q", got, System)
	}
	if got := l.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}
}

func TestPendingCount(t *testing.T) {
	l := NewLedger(0, 0)

	if got := l.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}

	l.Expect(19.5)
	l.Expect(20.5)

	if got := l.PendingCount(); got != 2 {
		t.Errorf("PendingCount() = %d, want 2", got)
	}
}
