package queue

import "time"

// Backoff computes retry delays: min(base * 2^attempts, max). It is a pure
// policy with no clock, so it tests without sleeping; the queue's
// locked_until column is what actually gates eligibility.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns how long a job must wait before its next attempt.
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	// Past 62 doublings any positive base has overflowed int64.
	if attempts >= 63 {
		return b.Max
	}
	d := b.Base << uint(attempts)
	if d <= 0 || d > b.Max {
		return b.Max
	}
	return d
}
