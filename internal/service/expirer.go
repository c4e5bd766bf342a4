package service

import (
	"sync"
	"time"

	"task-planner/internal/logging"
	"task-planner/internal/metrics"
)

type expiry struct {
	timer Timer
	gen   uint64
}

// Expirer runs delayed, cancellable cleanups for transient UI artifacts
// such as command responses and edit sessions. Nothing is persisted.
type Expirer struct {
	clock   Clock
	metrics *metrics.Metrics
	logger  logging.Logger

	mu      sync.Mutex
	pending map[string]*expiry
	gen     uint64
	stopped bool
}

func NewExpirer(clock Clock, m *metrics.Metrics, logger logging.Logger) *Expirer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Expirer{
		clock:   clock,
		metrics: m,
		logger:  logging.OrNop(logger),
		pending: make(map[string]*expiry),
	}
}

// Schedule runs fn after ttl. Scheduling a key again cancels the older
// cleanup for that key.
func (e *Expirer) Schedule(key string, ttl time.Duration, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	if old, ok := e.pending[key]; ok {
		old.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.pending[key] = &expiry{
		gen:   gen,
		timer: e.clock.AfterFunc(ttl, func() { e.expire(key, gen, fn) }),
	}
}

// Cancel drops a pending cleanup and reports whether one existed.
func (e *Expirer) Cancel(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	old, ok := e.pending[key]
	if !ok {
		return false
	}
	old.timer.Stop()
	delete(e.pending, key)
	return true
}

func (e *Expirer) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Stop cancels every pending cleanup.
func (e *Expirer) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, x := range e.pending {
		x.timer.Stop()
		delete(e.pending, key)
	}
	e.stopped = true
}

func (e *Expirer) expire(key string, gen uint64, fn func()) {
	e.mu.Lock()
	x, ok := e.pending[key]
	if !ok || x.gen != gen {
		e.mu.Unlock()
		return
	}
	delete(e.pending, key)
	e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("expirer: cleanup %s panicked: %v", key, r)
		}
	}()
	fn()
	e.metrics.EphemeralExpired()
}
