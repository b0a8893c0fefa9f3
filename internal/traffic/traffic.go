package traffic

import (
	"sync"
	"time"
)

// Outcome classifies a finished sync flow or a rejected command.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeNoData
	OutcomeError
	OutcomeDenied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNoData:
		return "no_data"
	case OutcomeError:
		return "error"
	case OutcomeDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Retention bounds how far back any window query can see.
const Retention = 5 * time.Minute

var defaultTracker Tracker

// Record records an outcome at the current time on the process-wide tracker.
func Record(o Outcome) {
	defaultTracker.Record(o)
}

// Count returns the number of the given outcomes within the window on the process-wide tracker.
func Count(window time.Duration, outcomes ...Outcome) int {
	return defaultTracker.Count(window, outcomes...)
}

// ErrorRate returns (errors, total) within the window on the process-wide tracker.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears the process-wide tracker. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker keeps sliding windows of outcome timestamps.
// The zero value is ready to use.
type Tracker struct {
	mu    sync.Mutex
	times map[Outcome][]time.Time
}

// Record appends the current time to the outcome's window and prunes old entries.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.times == nil {
		t.times = make(map[Outcome][]time.Time)
	}
	now := time.Now()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// Count returns how many of the given outcomes fall within the window ending now.
// With no outcomes given, every outcome is counted.
func (t *Tracker) Count(window time.Duration, outcomes ...Outcome) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	if len(outcomes) == 0 {
		n := 0
		for _, ts := range t.times {
			n += countSince(ts, cutoff)
		}
		return n
	}
	n := 0
	for _, o := range outcomes {
		n += countSince(t.times[o], cutoff)
	}
	return n
}

// ErrorRate returns (errors, total) within the window. Denials are excluded from total.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	errors = t.Count(window, OutcomeError)
	total = errors + t.Count(window, OutcomeSuccess, OutcomeNoData)
	return errors, total
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.times = nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than Retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-Retention)
	for o, times := range t.times {
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
