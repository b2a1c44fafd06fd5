// SPDX-License-Identifier: AGPL-3.0-or-later

package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsExponentiallyUpToCap(t *testing.T) {
	b := newBackoff(1*time.Second, 30*time.Second, 60*time.Second)

	for attempt := 0; attempt < 10; attempt++ {
		d := b.next()
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 45*time.Second) // cap * 1.5 jitter ceiling
	}
}

func TestBackoffFirstDelayNearBase(t *testing.T) {
	b := newBackoff(1*time.Second, 30*time.Second, 60*time.Second)
	d := b.next()
	assert.GreaterOrEqual(t, d, 500*time.Millisecond)
	assert.LessOrEqual(t, d, 1500*time.Millisecond)
}

func TestBackoffResetsAfterLongUptime(t *testing.T) {
	b := newBackoff(1*time.Second, 30*time.Second, 60*time.Second)
	for i := 0; i < 5; i++ {
		b.next()
	}
	assert.Equal(t, 5, b.attempt)

	b.noteUptime(61 * time.Second)
	assert.Equal(t, 0, b.attempt)
}

func TestBackoffDoesNotResetOnShortUptime(t *testing.T) {
	b := newBackoff(1*time.Second, 30*time.Second, 60*time.Second)
	b.next()
	b.noteUptime(10 * time.Second)
	assert.Equal(t, 1, b.attempt)
}
