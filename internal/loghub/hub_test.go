// SPDX-License-Identifier: AGPL-3.0-or-later

package loghub

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToActiveSubscriber(t *testing.T) {
	h := NewHub(16, 16)
	sub := h.Subscribe()
	defer sub.Close()

	h.Publish(ChannelStdout, "hello")

	select {
	case line := <-sub.Lines:
		assert.Equal(t, ChannelStdout, line.Channel)
		assert.Equal(t, "hello", line.Text)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for line")
	}
}

func TestPublishDoesNotReplayTailOnSubscribe(t *testing.T) {
	h := NewHub(16, 16)
	h.Publish(ChannelStdout, "before subscribe")

	sub := h.Subscribe()
	defer sub.Close()

	select {
	case line := <-sub.Lines:
		t.Fatalf("unexpected replayed line: %+v", line)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTailHoldsRecentLines(t *testing.T) {
	h := NewHub(2, 16)
	h.Publish(ChannelStdout, "one")
	h.Publish(ChannelStdout, "two")
	h.Publish(ChannelStdout, "three")

	tail := h.Tail()
	require.Len(t, tail, 2)
	assert.Equal(t, "two", tail[0].Text)
	assert.Equal(t, "three", tail[1].Text)
}

func TestCloseClosesAllSubscriptions(t *testing.T) {
	h := NewHub(16, 16)
	sub := h.Subscribe()

	h.Close()

	_, open := <-sub.Lines
	assert.False(t, open)

	// Publishing after close must not panic and must be a no-op.
	h.Publish(ChannelStdout, "after close")
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	h := NewHub(16, 16)
	h.Close()

	sub := h.Subscribe()
	_, open := <-sub.Lines
	assert.False(t, open)
}

func TestSlowSubscriberNeverStallsPublisher(t *testing.T) {
	h := NewHub(256, 64)

	reader := h.Subscribe()
	defer reader.Close()
	slow := h.Subscribe()
	defer slow.Close()

	const totalLines = 10000

	// The reading subscriber drains concurrently with publishing, so its
	// bounded queue never needs to hold more than a few lines at once.
	readerLines := make([]string, 0, totalLines)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for len(readerLines) < totalLines {
			line := <-reader.Lines
			if strings.HasPrefix(line.Text, "-- gap:") {
				continue
			}
			readerLines = append(readerLines, line.Text)
		}
	}()

	publishDone := make(chan struct{})
	go func() {
		defer close(publishDone)
		for i := 0; i < totalLines; i++ {
			h.Publish(ChannelStdout, fmt.Sprintf("line-%d", i))
		}
	}()

	select {
	case <-publishDone:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher stalled waiting on slow subscriber")
	}

	select {
	case <-readerDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("reader only received %d/%d lines", len(readerLines), totalLines)
	}

	for i, text := range readerLines {
		assert.Equal(t, fmt.Sprintf("line-%d", i), text)
	}
}

func TestLaggingSubscriberGetsGapMarker(t *testing.T) {
	h := NewHub(16, 1)
	slow := h.Subscribe()
	defer slow.Close()

	h.Publish(ChannelStdout, "first")
	h.Publish(ChannelStdout, "second")
	h.Publish(ChannelStdout, "third")

	first := <-slow.Lines
	assert.Equal(t, "first", first.Text)

	h.Publish(ChannelStdout, "fourth")

	gap := <-slow.Lines
	assert.True(t, strings.HasPrefix(gap.Text, "-- gap:"), "expected gap marker, got %q", gap.Text)
}

type countingLagSink struct {
	mu    sync.Mutex
	count int
}

func (c *countingLagSink) SubscriberLagging() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *countingLagSink) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func TestLaggingSubscriberNotifiesLagSink(t *testing.T) {
	h := NewHub(16, 1)
	sink := &countingLagSink{}
	h.SetLagSink(sink)

	slow := h.Subscribe()
	defer slow.Close()

	h.Publish(ChannelStdout, "first")
	h.Publish(ChannelStdout, "second")
	h.Publish(ChannelStdout, "third")

	assert.Equal(t, 1, sink.Count())

	// Draining once frees space for the gap marker but not for a second
	// line, so the next publish relapses into lagging and counts again.
	<-slow.Lines
	h.Publish(ChannelStdout, "fourth")

	assert.Equal(t, 2, sink.Count())
}

func TestNilLagSinkIsSafe(t *testing.T) {
	h := NewHub(16, 1)
	slow := h.Subscribe()
	defer slow.Close()

	assert.NotPanics(t, func() {
		h.Publish(ChannelStdout, "first")
		h.Publish(ChannelStdout, "second")
	})
}
