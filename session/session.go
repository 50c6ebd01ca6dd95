// Package session owns the lifetime of one call: the signaling-driven state
// machine, the audio pipeline it starts on pickup, and the finalizer that
// turns the captured audio into a persisted recording when the call ends.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"callpipe/encoder"
	"callpipe/log"
	"callpipe/mixer"
	"callpipe/pcm"
	"callpipe/store"
	"callpipe/transcriber"
)

// State is a call session's lifecycle phase. Transitions only move forward;
// a renegotiated call is a new session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateRinging
	StateConnected
	StateEnded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRinging:
		return "ringing"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	}
	return "unknown"
}

// targetFor maps a signaling event to the state it drives the session toward.
func targetFor(event string) (State, bool) {
	switch event {
	case "trying", "requesting":
		return StateConnecting, true
	case "ringing", "early":
		return StateRinging, true
	case "active":
		return StateConnected, true
	case "hangup", "destroy":
		return StateEnded, true
	}
	return StateIdle, false
}

// TranscriptChannel is the streaming transcription surface the session
// drains mixed audio into.
type TranscriptChannel interface {
	Send(frame []byte)
	Terminate() (string, transcriber.Stats, error)
}

// Config wires one session to its collaborators. Engine, Storage and
// Recordings are required; everything else has a working default.
type Config struct {
	OwnerID string

	// Engine is the audio-processing context for this call. The session
	// takes ownership and closes it on teardown.
	Engine mixer.Engine

	// Local and Remote are the two party audio sources. Either may be nil.
	Local  mixer.Source
	Remote mixer.Source

	// Tokens backs the default transcription channel. Ignored when
	// OpenChannel is set.
	Tokens      transcriber.TokenSource
	Transcriber transcriber.Config

	Storage    store.Storage
	Recordings store.Recordings

	// OpenChannel overrides how the transcription channel is opened.
	OpenChannel func(ctx context.Context) TranscriptChannel

	// NewEncoder overrides the artifact encoder. Defaults to FLAC.
	NewEncoder func(rate, channels, blockSize int) (encoder.Encoder, error)

	// Now and Ticker exist so tests can drive time.
	Now    func() time.Time
	Ticker func() (<-chan time.Time, func())
}

func (c Config) withDefaults() Config {
	if c.OpenChannel == nil {
		tokens := c.Tokens
		tcfg := c.Transcriber
		c.OpenChannel = func(ctx context.Context) TranscriptChannel {
			return transcriber.Open(ctx, tokens, tcfg)
		}
	}
	if c.NewEncoder == nil {
		c.NewEncoder = func(rate, channels, blockSize int) (encoder.Encoder, error) {
			return encoder.NewFlac(rate, channels, blockSize)
		}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Ticker == nil {
		c.Ticker = func() (<-chan time.Time, func()) {
			t := time.NewTicker(time.Second)
			return t.C, t.Stop
		}
	}
	return c
}

// Session is one live call. Create with New, drive with Signal, collect the
// outcome from Finalize.
type Session struct {
	id  string
	cfg Config

	ticks int64 // atomic

	mu          sync.Mutex
	state       State
	startedAt   time.Time
	connectedAt time.Time
	mix         *mixer.Mixer
	enc         encoder.Encoder
	channel     TranscriptChannel
	artifact    []byte
	tickerStop  chan struct{}
	tickerDone  chan struct{}

	fin atomic.Pointer[finalizeOp]
}

func New(cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		state:     StateIdle,
		startedAt: cfg.Now(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Signal applies one signaling event from the call-control layer. Unknown
// events and backward transitions are ignored; ended and error absorb
// everything. Entering connected starts the audio pipeline, entering ended
// stops it and finalizes the recording.
func (s *Session) Signal(ctx context.Context, event string) error {
	target, ok := targetFor(event)
	if !ok {
		log.Warnf("session %s: unknown signaling event %q", s.id, event)
		return nil
	}

	s.mu.Lock()
	cur := s.state
	if cur == StateEnded || cur == StateError || target <= cur {
		s.mu.Unlock()
		return nil
	}
	s.state = target
	s.mu.Unlock()

	log.CallState(s.id, cur.String(), target.String(), event)

	switch target {
	case StateConnected:
		if err := s.connect(ctx); err != nil {
			s.fail(err)
			return err
		}
	case StateEnded:
		return s.end(ctx)
	}
	return nil
}

// connect opens the engine-backed pipeline: mixer with the encoder tap and
// the transcription tap, the streaming channel, and the duration ticker.
// Everything the mix-tap path touches afterwards is precomputed here.
func (s *Session) connect(ctx context.Context) error {
	mix, err := mixer.New(s.cfg.Engine)
	if err != nil {
		return err
	}
	rate := mix.SampleRate()

	enc, err := s.cfg.NewEncoder(rate, 2, mix.BlockSize())
	if err != nil {
		return fmt.Errorf("recording encoder: %w", err)
	}

	pipe, err := pcm.NewPipeline(rate)
	if err != nil {
		return fmt.Errorf("pcm pipeline: %w", err)
	}

	ch := s.cfg.OpenChannel(ctx)

	mix.AddTap(mixer.TapFunc(func(block []float32) {
		if err := enc.EncodeBlock(pcm.QuantizeInt16(block)); err != nil {
			log.Errorf("session %s: encode block: %v", s.id, err)
		}
	}))
	mix.AddTap(mixer.TapFunc(func(block []float32) {
		ch.Send(pipe.Process(block))
	}))

	if err := mix.Begin(s.cfg.Local, s.cfg.Remote); err != nil {
		enc.Close()
		ch.Terminate()
		mix.End()
		return err
	}

	ticks, stopTicks := s.cfg.Ticker()
	tickerStop := make(chan struct{})
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		defer stopTicks()
		for {
			select {
			case <-tickerStop:
				return
			case <-ticks:
				atomic.AddInt64(&s.ticks, 1)
			}
		}
	}()

	s.mu.Lock()
	s.mix = mix
	s.enc = enc
	s.channel = ch
	s.connectedAt = s.cfg.Now()
	s.tickerStop = tickerStop
	s.tickerDone = tickerDone
	s.mu.Unlock()
	return nil
}

// end stops the duration counter and, if the call ever connected, runs the
// finalizer. A call canceled before pickup has nothing to finalize.
func (s *Session) end(ctx context.Context) error {
	s.stopTicker()

	s.mu.Lock()
	connected := s.enc != nil
	s.mu.Unlock()
	if !connected {
		return nil
	}

	_, err := s.Finalize(ctx)
	return err
}

func (s *Session) stopTicker() {
	s.mu.Lock()
	stop, done := s.tickerStop, s.tickerDone
	s.tickerStop = nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// fail moves the session to the terminal error state and releases whatever
// was acquired, best effort.
func (s *Session) fail(err error) {
	log.Errorf("session %s: %v", s.id, err)
	s.stopTicker()

	s.mu.Lock()
	from := s.state
	s.state = StateError
	mix, enc, ch := s.mix, s.enc, s.channel
	s.mix, s.enc, s.channel = nil, nil, nil
	s.mu.Unlock()

	log.CallState(s.id, from.String(), StateError.String(), "failure")

	if mix != nil {
		mix.End()
	}
	if ch != nil {
		ch.Terminate()
	}
	if enc != nil {
		enc.Close()
	}
}
