// SPDX-License-Identifier: AGPL-3.0-or-later

// Package loghub implements C3: a per-process log fan-out that multiplexes
// a child's stdout/stderr to zero-or-more live subscribers without
// blocking the child, isolating a slow subscriber's backpressure to that
// subscriber alone.
package loghub

import (
	"fmt"
	"sync"
)

// Channel identifies which of the child's output streams a Line came from.
type Channel string

const (
	ChannelStdout Channel = "stdout"
	ChannelStderr Channel = "stderr"
)

// Line is one published line of child output.
type Line struct {
	Channel Channel
	Text    string
}

const gapMarkerFmt = "-- gap: %d lines dropped --"

// DefaultTailSize is the ring buffer capacity applied when Hub is built
// with NewHub's zero-value sizes.
const DefaultTailSize = 256

// DefaultQueueSize is each subscriber's outbound queue capacity.
const DefaultQueueSize = 1024

// LagSink receives a notification each time a subscriber falls behind and
// the hub starts dropping lines for it. Kept as its own one-method
// interface, rather than pulling in internal/metrics.Sink directly, so
// this package stays free of any observability-backend dependency.
type LagSink interface {
	SubscriberLagging()
}

// Hub is one process's log fan-out. The zero value is not usable; build
// one with NewHub.
type Hub struct {
	mu          sync.Mutex
	tail        *ringBuffer
	subscribers map[*Subscription]struct{}
	queueSize   int
	closed      bool
	lagSink     LagSink
}

// NewHub builds a Hub with the given tail and subscriber queue sizes,
// falling back to the package defaults when a size is <= 0.
func NewHub(tailSize, queueSize int) *Hub {
	if tailSize <= 0 {
		tailSize = DefaultTailSize
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		tail:        newRingBuffer(tailSize),
		subscribers: make(map[*Subscription]struct{}),
		queueSize:   queueSize,
	}
}

// SetLagSink attaches sink so every future lagging transition is counted.
// Intended to be called once, right after NewHub, before the hub is handed
// to a running supervisor; a nil sink is fine and simply disables counting.
func (h *Hub) SetLagSink(sink LagSink) {
	h.mu.Lock()
	h.lagSink = sink
	h.mu.Unlock()
}

// Subscription is a live subscriber's handle. Lines is read until the hub
// or the subscription is closed, at which point it is closed.
type Subscription struct {
	Lines chan Line

	hub     *Hub
	lagging bool
	dropped int
}

// Close detaches the subscription from its hub. Safe to call more than
// once and safe to call after the hub itself has already closed.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Publish appends line to the tail buffer and attempts a non-blocking
// delivery to every subscriber. The supervisor calls this once per full
// line read from the child's stdout or stderr; it never blocks, so a
// slow or absent subscriber can never stall the child.
func (h *Hub) Publish(channel Channel, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	line := Line{Channel: channel, Text: text}
	h.tail.push(line)

	for sub := range h.subscribers {
		h.deliverLocked(sub, line)
	}
}

// deliverLocked attempts a non-blocking send to sub, marking it lagging
// and dropping the line on overflow. Callers must hold h.mu.
func (h *Hub) deliverLocked(sub *Subscription, line Line) {
	if sub.lagging {
		gapLine := Line{Channel: line.Channel, Text: fmt.Sprintf(gapMarkerFmt, sub.dropped)}
		select {
		case sub.Lines <- gapLine:
			sub.lagging = false
			sub.dropped = 0
		default:
			sub.dropped++
			return
		}
	}

	select {
	case sub.Lines <- line:
	default:
		sub.lagging = true
		sub.dropped = 1
		if h.lagSink != nil {
			h.lagSink.SubscriberLagging()
		}
	}
}

// Subscribe registers a new subscriber with an empty outbound queue. The
// returned Subscription's Lines channel only carries lines published
// after this call returns; it does not replay the tail buffer.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{Lines: make(chan Line, h.queueSize), hub: h}
	if h.closed {
		close(sub.Lines)
		return sub
	}
	h.subscribers[sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.Lines)
}

// Close flushes no further output is possible and closes every
// subscriber's channel. Called by the supervisor when the descriptor is
// being deleted.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		close(sub.Lines)
	}
	h.subscribers = make(map[*Subscription]struct{})
}

// Tail returns a copy of the current ring buffer contents, oldest first.
// Not used for subscriber replay (SUPPLEMENTED FEATURES resolves that
// Open Question against replay-on-attach); exposed for diagnostics and
// tests.
func (h *Hub) Tail() []Line {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tail.snapshot()
}

