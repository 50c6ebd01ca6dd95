package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"callpipe/log"
)

var recvDrainTimeout = 2 * time.Second

// Channel is one live streaming session toward the recognition service.
// Frames go out as raw binary PCM; typed JSON results come back. The
// connection is established asynchronously so audio can start flowing into
// the buffer immediately; frames sent before the socket is up are queued up
// to the backpressure budget and shed beyond it.
//
// Callers must stop feeding frames before Terminate; the session state
// machine guarantees that ordering.
type Channel struct {
	cfg Config

	frames  chan []byte
	updates chan string

	buffered int64 // atomic: outbound bytes queued
	dropped  int64 // atomic
	closed   atomic.Bool

	connected  chan struct{}
	sendDone   chan struct{}
	recvDone   chan struct{}
	terminated chan struct{}
	termOnce   sync.Once

	startedAt time.Time

	mu            sync.Mutex
	conn          rawConn
	err           error
	errOnce       sync.Once
	closing       bool
	updatesClosed bool
	segments      []Segment
	partial       *Segment
	stats         Stats
}

// Open fetches credentials and dials the streaming socket in the
// background. The returned channel accepts frames immediately.
func Open(ctx context.Context, ts TokenSource, cfg Config) *Channel {
	return open(ctx, cfg, func(ctx context.Context, c *Channel) (rawConn, error) {
		return c.dial(ctx, ts)
	})
}

func open(ctx context.Context, cfg Config, dial func(context.Context, *Channel) (rawConn, error)) *Channel {
	cfg = cfg.withDefaults()
	c := &Channel{
		cfg:        cfg,
		frames:     make(chan []byte, 128),
		updates:    make(chan string, 16),
		connected:  make(chan struct{}),
		sendDone:   make(chan struct{}),
		recvDone:   make(chan struct{}),
		terminated: make(chan struct{}),
		startedAt:  time.Now(),
	}

	go func() {
		connectStart := time.Now()
		conn, err := dial(ctx, c)
		c.mu.Lock()
		c.stats.ConnectDur = time.Since(connectStart)
		c.mu.Unlock()

		if err != nil {
			c.setErr(err)
			close(c.sendDone)
			close(c.recvDone)
			close(c.connected)
			return
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		close(c.connected)
		go c.runSender(conn)
		go c.runReceiver(conn)
	}()

	return c
}

func (c *Channel) dial(ctx context.Context, ts TokenSource) (rawConn, error) {
	creds, err := ts.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := dialStream(ctx, creds, c.cfg)
	if err != nil {
		return nil, wrapUnavailable("stream dial", err)
	}
	return conn, nil
}

// Send queues one PCM frame. It never blocks: when the outbound buffer
// already holds MaxBuffered bytes the frame is dropped, keeping the stream
// real-time at the cost of a small transcript gap.
func (c *Channel) Send(frame []byte) {
	if len(frame) == 0 || c.closed.Load() {
		return
	}
	c.mu.Lock()
	failed := c.err != nil
	c.mu.Unlock()
	if failed {
		return
	}

	n := int64(len(frame))
	if atomic.LoadInt64(&c.buffered)+n > int64(c.cfg.MaxBuffered) {
		atomic.AddInt64(&c.dropped, 1)
		return
	}
	atomic.AddInt64(&c.buffered, n)
	select {
	case c.frames <- frame:
	default:
		atomic.AddInt64(&c.buffered, -n)
		atomic.AddInt64(&c.dropped, 1)
	}
}

// Updates delivers the running transcript, finalized text plus the live
// partial, whenever it changes. Slow consumers miss intermediate updates.
func (c *Channel) Updates() <-chan string {
	return c.updates
}

// Segments returns a copy of the finalized transcript log in arrival order.
func (c *Channel) Segments() []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Segment, len(c.segments))
	copy(out, c.segments)
	return out
}

// FinalText joins the finalized segments with spaces.
func (c *Channel) FinalText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return joinedText(c.segments)
}

// Err reports the sticky session error, if any.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Terminate performs the graceful shutdown handshake: flush the frame queue,
// send the Terminate control message, wait the grace window for trailing
// turns, then close the socket. Returns the final transcript text.
func (c *Channel) Terminate() (string, Stats, error) {
	<-c.connected

	c.closed.Store(true)

	c.mu.Lock()
	connectErr := c.conn == nil
	c.mu.Unlock()
	if connectErr {
		c.drainFrames()
		close(c.frames)
		<-c.sendDone
		<-c.recvDone
		c.closeUpdates()
		return "", c.finishStats(), c.Err()
	}

	close(c.frames)
	<-c.sendDone

	select {
	case <-c.terminated:
	case <-time.After(c.cfg.Grace):
	}

	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.mu.Unlock()
	conn.Close()

	select {
	case <-c.recvDone:
	case <-time.After(recvDrainTimeout):
		log.Warn("transcription receiver drain timeout")
	}
	c.closeUpdates()

	return c.FinalText(), c.finishStats(), c.Err()
}

// closeUpdates ends the updates stream. The updatesClosed flag keeps a
// receiver that outlived the drain window from sending on the closed
// channel.
func (c *Channel) closeUpdates() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.updatesClosed {
		c.updatesClosed = true
		close(c.updates)
	}
}

func (c *Channel) finishStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.DroppedFrames = int(atomic.LoadInt64(&c.dropped))
	c.stats.SessionDur = time.Since(c.startedAt)
	return c.stats
}

// drainFrames unblocks nothing (Send never blocks) but releases queued
// buffers after a failed connect.
func (c *Channel) drainFrames() {
	for {
		select {
		case <-c.frames:
		default:
			return
		}
	}
}

func (c *Channel) runSender(conn rawConn) {
	defer close(c.sendDone)
	for frame := range c.frames {
		err := conn.Send(frame)
		atomic.AddInt64(&c.buffered, -int64(len(frame)))
		if err != nil {
			c.setErr(wrapUnavailable("frame send", err))
			return
		}
		c.mu.Lock()
		c.stats.SentFrames++
		c.stats.SentBytes += uint64(len(frame))
		c.mu.Unlock()
	}
	if err := conn.SendControl(terminateMessage{Type: "Terminate"}); err != nil {
		c.setErr(wrapUnavailable("terminate send", err))
	}
}

func (c *Channel) runReceiver(conn rawConn) {
	defer close(c.recvDone)
	for {
		data, err := conn.Recv()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()
			if !closing {
				c.setErr(wrapUnavailable("stream recv", err))
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *Channel) handleMessage(data []byte) {
	c.mu.Lock()
	c.stats.RecvMessages++
	c.mu.Unlock()

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warnf("unparseable transcription message: %v", err)
		return
	}

	switch env.Type {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			log.Info("transcription session began id=" + msg.ID)
		}
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("turn parse error: %v", err)
			return
		}
		c.handleTurn(msg)
	case "Termination":
		c.termOnce.Do(func() { close(c.terminated) })
		log.Info("transcription session terminated by server")
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("error message parse error: %v", err)
			return
		}
		// Non-fatal: the raw recording continues without live transcript.
		log.Warnf("transcription service error: %s", msg.Error)
	}
}

// handleTurn folds one Turn event into the segment log. A turn updates the
// single live partial until end_of_turn finalizes it; the finalized segment
// is appended and the partial slot cleared, so one utterance yields exactly
// one finalized segment no matter how many partials preceded it.
func (c *Channel) handleTurn(msg turnMessage) {
	text := strings.TrimSpace(msg.Transcript)
	now := time.Since(c.startedAt).Milliseconds()

	c.mu.Lock()
	c.stats.RecvTurns++
	if msg.EndOfTurn {
		c.stats.FinalTurns++
		c.partial = nil
		if text != "" {
			c.segments = append(c.segments, Segment{
				Text:        text,
				Speaker:     SpeakerRemote,
				TimestampMs: now,
				IsFinal:     true,
			})
		}
	} else if text != "" {
		if c.partial == nil {
			c.partial = &Segment{Speaker: SpeakerRemote, TimestampMs: now}
		}
		c.partial.Text = text
	}

	live := joinedText(c.segments)
	if c.partial != nil {
		if live != "" {
			live += " "
		}
		live += c.partial.Text
	}
	// Trailing turns can arrive after Terminate gave up on the receiver;
	// they still land in the segment log but updates is gone by then.
	if !c.updatesClosed {
		select {
		case c.updates <- live:
		default:
		}
	}
	c.mu.Unlock()
}

func (c *Channel) setErr(err error) {
	if err == nil {
		return
	}
	c.errOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
}

func joinedText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

func wrapUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
