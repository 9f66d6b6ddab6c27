// Package wakeup stands in for the APIC interface original_source/rlib's
// task dispatcher drives directly (SendIpi, SetupTimer/StartTimer/
// StopTimer, hlt). In userspace there is no interrupt controller, so an
// IPI becomes a buffered channel send and "hlt" becomes a channel
// receive guarded by a re-arming ticker, but the wakeup semantics —
// a coalescing, non-blocking signal that a sleeping target should look
// at its queues again — are unchanged.
package wakeup

import (
	"sync"
	"time"
)

// Source is one worker's wakeup line: a single-slot mailbox plus an
// optional periodic re-arm, mirroring one CPU's local APIC timer.
type Source struct {
	wake   chan struct{}
	mu     sync.Mutex
	ticker *time.Ticker
}

// NewSource returns an unarmed, unsignaled Source.
func NewSource() *Source {
	return &Source{wake: make(chan struct{}, 1)}
}

// Send posts a wakeup, coalescing with any pending, undelivered signal —
// matching ForceWakeup's "one outstanding IPI is enough" semantics.
// Never blocks.
func (s *Source) Send() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Arm starts (or restarts) a periodic re-arm tick at period, the
// userspace analogue of SetupTimer/StartTimer. Sleep will also return
// on each tick so the dispatcher can re-check callouts even with no
// pending IPI.
func (s *Source) Arm(period time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.ticker = time.NewTicker(period)
}

// Disarm stops the periodic re-arm, the analogue of StopTimer: called
// once the dispatcher has no callouts left to wait on.
func (s *Source) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

// Sleep blocks until Send is called, the armed ticker fires, or stop is
// closed, the userspace analogue of `asm volatile("hlt")`. It returns
// true if woken by Send or the ticker, false if stop was closed first.
func (s *Source) Sleep(stop <-chan struct{}) bool {
	s.mu.Lock()
	var tickC <-chan time.Time
	if s.ticker != nil {
		tickC = s.ticker.C
	}
	s.mu.Unlock()

	select {
	case <-s.wake:
		return true
	case <-tickC:
		return true
	case <-stop:
		return false
	}
}

// Controller owns one Source per worker, the per-worker-indexed
// counterpart of a single system-wide ApicCtrl.
type Controller struct {
	mu      sync.Mutex
	sources map[int]*Source
}

// NewController returns an empty Controller; sources are created lazily
// on first use so callers need not know the worker count in advance.
func NewController() *Controller {
	return &Controller{sources: make(map[int]*Source)}
}

// For returns the Source for worker id, creating it on first access.
func (c *Controller) For(id int) *Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sources[id]
	if !ok {
		s = NewSource()
		c.sources[id] = s
	}
	return s
}
