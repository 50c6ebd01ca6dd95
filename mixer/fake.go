package mixer

import (
	"sync"
	"time"
)

// FakeEngine is a deterministic engine for tests and offline runs: the mix
// loop advances only when Step is called, never on the wall clock.
type FakeEngine struct {
	rate  int
	ticks chan time.Time

	mu     sync.Mutex
	closed bool
}

func NewFakeEngine(rate int) *FakeEngine {
	return &FakeEngine{rate: rate, ticks: make(chan time.Time)}
}

func (e *FakeEngine) SampleRate() int { return e.rate }

func (e *FakeEngine) Ticks(_ time.Duration) (<-chan time.Time, func()) {
	return e.ticks, func() {}
}

// Step renders one block. Blocks until the mix loop accepts the tick.
func (e *FakeEngine) Step() {
	e.ticks <- time.Time{}
}

func (e *FakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *FakeEngine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// FakeSource replays a prepared sample buffer, pushing it to the mixer in
// caller-controlled chunks.
type FakeSource struct {
	mu      sync.Mutex
	samples []float32
	pos     int
	deliver func([]float32)
	started bool
	stopped bool
}

func NewFakeSource(samples []float32) *FakeSource {
	return &FakeSource{samples: samples}
}

func (f *FakeSource) Start(deliver func(samples []float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliver = deliver
	f.started = true
	return nil
}

func (f *FakeSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	f.deliver = nil
}

// Push delivers up to n queued samples. Returns false once the buffer is
// exhausted or the source is stopped.
func (f *FakeSource) Push(n int) bool {
	f.mu.Lock()
	deliver := f.deliver
	if deliver == nil || f.pos >= len(f.samples) {
		f.mu.Unlock()
		return false
	}
	end := f.pos + n
	if end > len(f.samples) {
		end = len(f.samples)
	}
	chunk := f.samples[f.pos:end]
	f.pos = end
	f.mu.Unlock()

	deliver(chunk)
	return true
}

func (f *FakeSource) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}
