// Package mixer merges the two live audio sources of a call into one stereo
// recording stream: channel 0 carries the local party, channel 1 the remote
// party. Sample rate and bit depth are left alone; the pcm package handles
// conversion downstream.
package mixer

import (
	"errors"
	"sync"
	"time"

	"callpipe/pcm"
)

// ErrEngineUnavailable is returned when no audio-processing context can be
// opened for the session.
var ErrEngineUnavailable = errors.New("mixer: audio engine unavailable")

// Source supplies one party's audio as pushed blocks of mono float32 samples
// at the engine's native rate. The mixer only reads; the call layer owns the
// source.
type Source interface {
	Start(deliver func(samples []float32)) error
	Stop()
}

// Tap receives each interleaved stereo block the mixer produces. Taps run on
// the mix goroutine and must return quickly.
type Tap interface {
	OnBlock(interleaved []float32)
}

// TapFunc adapts a function to the Tap interface.
type TapFunc func(interleaved []float32)

func (f TapFunc) OnBlock(interleaved []float32) { f(interleaved) }

// Engine is the audio-processing context owned by one call session. It fixes
// the native sample rate and drives the mix cadence.
type Engine interface {
	SampleRate() int
	// Ticks returns the render cadence for the given block duration and a
	// stop function releasing it.
	Ticks(block time.Duration) (<-chan time.Time, func())
	Close() error
}

type clockEngine struct {
	rate int
}

// NewClockEngine opens a wall-clock mix engine at the given native rate.
func NewClockEngine(rate int) (Engine, error) {
	if rate <= 0 {
		return nil, ErrEngineUnavailable
	}
	return &clockEngine{rate: rate}, nil
}

func (e *clockEngine) SampleRate() int { return e.rate }

func (e *clockEngine) Ticks(block time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(block)
	return t.C, t.Stop
}

func (e *clockEngine) Close() error { return nil }

// Mixer merges a pair of sources for the lifetime of one call. One Mixer per
// session; the engine context is exclusively owned.
type Mixer struct {
	engine    Engine
	blockSize int

	local  *ring
	remote *ring
	taps   []Tap

	mu      sync.Mutex
	started bool
	srcs    []Source
	stop    chan struct{}
	done    chan struct{}
	blocks  uint64
}

// New creates a mixer on the given engine context.
func New(engine Engine) (*Mixer, error) {
	if engine == nil {
		return nil, ErrEngineUnavailable
	}
	rate := engine.SampleRate()
	if rate <= 0 {
		return nil, ErrEngineUnavailable
	}
	bs := pcm.BlockSizeFor(rate)
	// Rings hold a few seconds so a briefly stalled mix loop loses nothing;
	// beyond that the oldest audio is shed.
	max := rate * 4
	return &Mixer{
		engine:    engine,
		blockSize: bs,
		local:     newRing(max),
		remote:    newRing(max),
	}, nil
}

// AddTap registers a consumer of the mixed stream. Must be called before
// Begin.
func (m *Mixer) AddTap(t Tap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taps = append(m.taps, t)
}

// BlockSize returns frames per channel per mixed block.
func (m *Mixer) BlockSize() int { return m.blockSize }

// SampleRate returns the engine's native rate.
func (m *Mixer) SampleRate() int { return m.engine.SampleRate() }

// Blocks returns the number of stereo blocks mixed so far.
func (m *Mixer) Blocks() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocks
}

// Begin starts mixing local onto channel 0 and remote onto channel 1.
// Either source may be nil: a call with one-sided audio is still recordable,
// the absent channel stays muted.
func (m *Mixer) Begin(local, remote Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("mixer: already started")
	}

	if local != nil {
		if err := local.Start(m.local.write); err != nil {
			return err
		}
		m.srcs = append(m.srcs, local)
	}
	if remote != nil {
		if err := remote.Start(m.remote.write); err != nil {
			for _, s := range m.srcs {
				s.Stop()
			}
			m.srcs = nil
			return err
		}
		m.srcs = append(m.srcs, remote)
	}

	m.started = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run()
	return nil
}

func (m *Mixer) run() {
	defer close(m.done)

	block := time.Duration(m.blockSize) * time.Second / time.Duration(m.engine.SampleRate())
	ticks, stopTicks := m.engine.Ticks(block)
	defer stopTicks()

	lbuf := make([]float32, m.blockSize)
	rbuf := make([]float32, m.blockSize)
	for {
		select {
		case <-m.stop:
			return
		case <-ticks:
		}

		m.local.read(lbuf)
		m.remote.read(rbuf)

		out := make([]float32, m.blockSize*2)
		for i := 0; i < m.blockSize; i++ {
			out[2*i] = lbuf[i]
			out[2*i+1] = rbuf[i]
		}

		m.mu.Lock()
		m.blocks++
		taps := m.taps
		m.mu.Unlock()
		for _, t := range taps {
			t.OnBlock(out)
		}
	}
}

// End stops the sources, drains the mix loop and tears down the engine
// context. Safe to call once mixing has begun; a mixer that never began only
// releases the engine.
func (m *Mixer) End() {
	m.mu.Lock()
	srcs := m.srcs
	m.srcs = nil
	started := m.started
	stop := m.stop
	m.mu.Unlock()

	for _, s := range srcs {
		s.Stop()
	}
	if started {
		select {
		case <-stop:
		default:
			close(stop)
		}
		<-m.done
	}
	m.engine.Close()
}

// ring is a bounded sample buffer between a pushing source and the mix loop.
// Writers shed the oldest audio on overflow; readers zero-fill on underrun.
type ring struct {
	mu  sync.Mutex
	buf []float32
	max int
}

func newRing(max int) *ring {
	return &ring{max: max}
}

func (r *ring) write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, samples...)
	if len(r.buf) > r.max {
		r.buf = r.buf[len(r.buf)-r.max:]
	}
}

// read fills dst from the buffer, zero-padding whatever is missing.
func (r *ring) read(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := copy(dst, r.buf)
	r.buf = r.buf[n:]
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}
