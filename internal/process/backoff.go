// SPDX-License-Identifier: AGPL-3.0-or-later

package process

import (
	"math"
	"math/rand"
	"time"
)

// backoff computes spec.md §4.4's restart delay: delay_k = min(cap, base *
// 2^k) * uniform(0.5, 1.5), resetting k to 0 once the child has stayed up
// longer than resetWindow. It is a small pure calculator rather than a
// pulled-in dependency: the formula is fully specified and self-contained,
// and nothing in the example pack wraps jittered exponential backoff as a
// reusable library the way it wraps, say, HTTP retries.
type backoff struct {
	base        time.Duration
	capDuration time.Duration
	resetWindow time.Duration
	attempt     int
}

func newBackoff(base, capDuration, resetWindow time.Duration) *backoff {
	return &backoff{base: base, capDuration: capDuration, resetWindow: resetWindow}
}

// next returns the delay for the current attempt and advances the
// attempt counter.
func (b *backoff) next() time.Duration {
	delay := time.Duration(math.Min(
		float64(b.capDuration),
		float64(b.base)*math.Pow(2, float64(b.attempt)),
	))
	b.attempt++

	jitter := 0.5 + rand.Float64() //nolint:gosec // not security sensitive
	return time.Duration(float64(delay) * jitter)
}

// noteUptime resets the attempt counter once the child has run longer
// than resetWindow, so a long-lived process that eventually crashes
// restarts quickly instead of inheriting a stale backoff ladder.
func (b *backoff) noteUptime(uptime time.Duration) {
	if uptime >= b.resetWindow {
		b.attempt = 0
	}
}
