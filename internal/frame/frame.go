// Package frame defers work to the next animation frame. Viewport adapters
// use it to release their echo guard only after any callback the native
// widget fires in the same frame has run.
package frame

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval approximates a 60Hz display refresh.
const DefaultInterval = 16 * time.Millisecond

// Scheduler runs callbacks on the next frame, never synchronously.
type Scheduler interface {
	Defer(fn func())
}

// queue is the callback list shared by Ticker and Manual.
type queue struct {
	mu      sync.Mutex
	pending []func()
	frames  uint64
}

func (q *queue) push(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

// drain runs the callbacks queued before the call. Callbacks deferred while
// draining land in the following frame.
func (q *queue) drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.frames++
	q.mu.Unlock()

	for _, fn := range batch {
		run(fn)
	}
	return len(batch)
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("frame callback panicked", "panic", r)
		}
	}()
	fn()
}

// Ticker drains deferred callbacks on a fixed interval from its own goroutine.
type Ticker struct {
	interval time.Duration
	q        queue

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewTicker creates a Ticker. A non-positive interval uses DefaultInterval.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{interval: interval}
}

// Defer queues fn for the next tick.
func (t *Ticker) Defer(fn func()) { t.q.push(fn) }

// Pending returns the number of callbacks waiting for the next tick.
func (t *Ticker) Pending() int { return t.q.len() }

// Start runs the frame loop until ctx is cancelled. Callbacks still queued
// at shutdown are run once so no guard stays held. Start is a no-op if the
// loop is already running.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go func() {
		defer close(done)
		tk := time.NewTicker(t.interval)
		defer tk.Stop()
		slog.Debug("frame ticker started", "interval", t.interval)
		for {
			select {
			case <-ctx.Done():
				t.q.drain()
				t.mu.Lock()
				t.running = false
				t.mu.Unlock()
				slog.Debug("frame ticker stopped")
				return
			case <-tk.C:
				t.q.drain()
			}
		}
	}()
}

// Done is closed when a started loop has exited.
func (t *Ticker) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.done
}

// Manual advances frames only when Flush is called. It backs tests and
// step-driven hosts.
type Manual struct {
	q queue
}

// Defer queues fn for the next Flush.
func (m *Manual) Defer(fn func()) { m.q.push(fn) }

// Flush runs one frame and returns how many callbacks it ran.
func (m *Manual) Flush() int { return m.q.drain() }

// Pending returns the number of callbacks waiting for the next Flush.
func (m *Manual) Pending() int { return m.q.len() }

// Frames returns how many frames have been flushed.
func (m *Manual) Frames() uint64 {
	m.q.mu.Lock()
	defer m.q.mu.Unlock()
	return m.q.frames
}
