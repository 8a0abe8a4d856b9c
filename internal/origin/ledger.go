// Package origin tracks the provenance of setpoint writes.
//
// When the controller issues an actuation command, the new setpoint is
// echoed back as a state-change event on the same topic a human
// adjustment would arrive on. The ledger lets the snapshot assembler
// tell the two apart without trusting any "who changed this" signal
// from the wire: the controller records the expected value
// synchronously at command-issue time, and the assembler checks
// incoming setpoint events against those records.
//
// This makes the anti-feedback invariant explicit and race-free: the
// expectation exists before the echoed event can possibly be observed.
package origin

import (
	"math"
	"sync"
	"time"
)

// Origin labels the provenance of a setpoint change.
type Origin string

const (
	// Human marks a change initiated outside this system.
	Human Origin = "human"

	// System marks a change echoed back from the controller's own command.
	System Origin = "system"
)

// Default matching parameters.
const (
	// DefaultTolerance is the maximum absolute difference between an
	// expected and observed setpoint for them to be considered the same
	// write. Devices may quantise setpoints (e.g. to 0.5 degree steps),
	// so exact equality is too strict.
	DefaultTolerance = 0.051

	// DefaultTTL is how long an expectation stays live. An echo that
	// has not arrived within this window is assumed lost; a later event
	// with the same value is then treated as human.
	DefaultTTL = 90 * time.Second
)

// expectation is one recorded command awaiting its echo.
type expectation struct {
	value    float64
	issuedAt time.Time
}

// Ledger records setpoint commands issued by the controller so the
// echoed state events can be recognised as system-originated.
//
// Thread Safety: all methods are safe for concurrent use.
type Ledger struct {
	mu        sync.Mutex
	pending   []expectation
	tolerance float64
	ttl       time.Duration
	now       func() time.Time // injectable for tests
}

// NewLedger creates a ledger with the given matching tolerance and
// expectation lifetime. Zero values select the defaults.
func NewLedger(tolerance float64, ttl time.Duration) *Ledger {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{
		tolerance: tolerance,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Expect records that the controller is about to write the given
// setpoint. MUST be called before the actuation command is published,
// so the echoed event can never race ahead of the record.
func (l *Ledger) Expect(value float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune()
	l.pending = append(l.pending, expectation{value: value, issuedAt: l.now()})
}

// Resolve classifies an observed setpoint event. If the value matches a
// live expectation, that expectation is consumed and System is
// returned; otherwise the event is attributed to a Human.
//
// Each expectation matches at most one event, so a human adjustment to
// the same value shortly after a system write is still seen as human.
func (l *Ledger) Resolve(value float64) Origin {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune()
	for i, exp := range l.pending {
		if math.Abs(exp.value-value) <= l.tolerance {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return System
		}
	}
	return Human
}

// PendingCount returns the number of live expectations. Used for
// status reporting and tests.
func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune()
	return len(l.pending)
}

// prune drops expired expectations. Caller must hold mu.
func (l *Ledger) prune() {
	cutoff := l.now().Add(-l.ttl)
	kept := l.pending[:0]
	for _, exp := range l.pending {
		if exp.issuedAt.After(cutoff) {
			kept = append(kept, exp)
		}
	}
	l.pending = kept
}
