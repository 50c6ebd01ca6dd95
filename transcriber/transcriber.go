// Package transcriber streams call audio to the external speech-recognition
// service over a persistent websocket and collects incremental transcript
// results. Transcription is best-effort: any failure here degrades the live
// transcript but never the recording itself.
package transcriber

import (
	"errors"
	"time"
)

// ErrUnavailable covers credential fetch and socket failures. Callers log it
// and keep recording without a live transcript.
var ErrUnavailable = errors.New("transcriber: service unavailable")

// Speaker tags who produced a segment. The upstream service does not
// diarize, so every segment is tagged remote.
type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerRemote Speaker = "remote"
)

// Segment is one unit of transcript. Non-final segments are mutable
// placeholders; a finalized segment is immutable and lives in the session's
// ordered log.
type Segment struct {
	Text        string
	Speaker     Speaker
	TimestampMs int64
	IsFinal     bool
}

// Config tunes one streaming session. Zero values fall back to the service
// defaults.
type Config struct {
	SampleRate int

	// Turn detection knobs, passed through on the connection query string.
	EndOfTurnConfidence float64
	MinEndOfTurnSilence time.Duration
	MaxTurnSilence      time.Duration

	// Grace is how long Terminate waits for trailing turns after the
	// terminate handshake. Closing immediately risks losing the final
	// transcript of the last spoken sentence.
	Grace time.Duration

	// MaxBuffered caps outbound bytes queued toward the socket. Frames
	// arriving above the cap are dropped, not queued: stale transcription
	// is worse than a small gap.
	MaxBuffered int
}

const (
	defaultSampleRate  = 16000
	defaultGrace       = 300 * time.Millisecond
	defaultMaxBuffered = 2 << 20
)

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.Grace <= 0 {
		c.Grace = defaultGrace
	}
	if c.MaxBuffered <= 0 {
		c.MaxBuffered = defaultMaxBuffered
	}
	return c
}

// Stats summarizes one streaming session for diagnostics.
type Stats struct {
	ConnectDur    time.Duration
	SentFrames    int
	SentBytes     uint64
	DroppedFrames int
	RecvMessages  int
	RecvTurns     int
	FinalTurns    int
	SessionDur    time.Duration
}
