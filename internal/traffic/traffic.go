package traffic

import (
	"sync"
	"time"
)

// maxAge bounds how long outcomes are retained regardless of the queried window.
const maxAge = 5 * time.Minute

// Tracker keeps sliding windows of lookup outcomes for the health endpoint.
// A city that does not exist is a user error, so it counts toward neither side
// of the failure rate.
type Tracker struct {
	mu        sync.Mutex
	now       func() time.Time
	successes []time.Time
	failures  []time.Time
	denials   []time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// RecordSuccess records a lookup that returned a reading.
func (t *Tracker) RecordSuccess() {
	t.record(&t.successes)
}

// RecordFailure records a lookup that failed for a reason other than an unknown city.
func (t *Tracker) RecordFailure() {
	t.record(&t.failures)
}

// RecordDenied records a lookup rejected by the rate limiter.
func (t *Tracker) RecordDenied() {
	t.record(&t.denials)
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// FailureRate returns failures and the total of successes plus failures within window.
func (t *Tracker) FailureRate(window time.Duration) (failures, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	failures = countSince(t.failures, cutoff)
	return failures, failures + countSince(t.successes, cutoff)
}

// DenialCount returns rate-limit denials within window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.denials, t.now().Add(-window))
}

// Degraded reports whether the failure percentage within window is at least pct.
// An idle window is never degraded.
func (t *Tracker) Degraded(window time.Duration, pct int) bool {
	failures, total := t.FailureRate(window)
	if total == 0 || pct <= 0 {
		return false
	}
	return failures*100 >= pct*total
}

// Reset clears all outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successes, t.failures, t.denials = nil, nil, nil
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

// pruneLocked drops outcomes older than maxAge. Timestamps are appended in order,
// so the stale ones form a prefix.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	for _, slice := range []*[]time.Time{&t.successes, &t.failures, &t.denials} {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
}
