package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"callpipe/log"
	"callpipe/store"
)

var (
	// ErrNoAudioCaptured means the call ended with an empty artifact;
	// nothing is persisted.
	ErrNoAudioCaptured = errors.New("session: no audio captured")

	// ErrUploadFailed and ErrPersistFailed surface save failures to the
	// caller. The encoded artifact stays in memory so a retry does not
	// need a re-recording.
	ErrUploadFailed  = errors.New("session: artifact upload failed")
	ErrPersistFailed = errors.New("session: recording persist failed")
)

// Result is the outcome of a finalized recording.
type Result struct {
	RecordingID string
	StoragePath string
	FileName    string
	DurationSec int
	ByteSize    int
	Transcript  string
}

type finalizeOp struct {
	done chan struct{}
	res  *Result
	err  error
}

// Finalize tears the pipeline down and persists the recording. It is
// single-flight: concurrent and repeated calls collapse into one execution
// and every caller observes the same outcome.
func (s *Session) Finalize(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	connected := s.enc != nil
	s.mu.Unlock()
	if !connected {
		return nil, nil
	}

	op := &finalizeOp{done: make(chan struct{})}
	if !s.fin.CompareAndSwap(nil, op) {
		op = s.fin.Load()
		<-op.done
		return op.res, op.err
	}

	op.res, op.err = s.runFinalize(ctx)
	close(op.done)
	return op.res, op.err
}

// Artifact returns the encoded recording after finalize, successful or not.
// It is what a caller re-uploads after ErrUploadFailed.
func (s *Session) Artifact() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

func (s *Session) runFinalize(ctx context.Context) (*Result, error) {
	s.stopTicker()

	s.mu.Lock()
	mix, enc, ch := s.mix, s.enc, s.channel
	connectedAt := s.connectedAt
	s.mu.Unlock()

	// Stop producing before consuming: after End no tap fires, so closing
	// the encoder and terminating the channel race nothing.
	mix.End()

	transcript := ""
	if ch != nil {
		text, stats, err := ch.Terminate()
		if err != nil {
			log.Warnf("session %s: transcription unavailable: %v", s.id, err)
		} else {
			transcript = text
		}
		log.StreamMetrics(s.id, log.StreamMetricsData{
			ConnectMs:     float64(stats.ConnectDur.Microseconds()) / 1000,
			SentFrames:    stats.SentFrames,
			SentKB:        float64(stats.SentBytes) / 1024,
			DroppedFrames: stats.DroppedFrames,
			RecvMessages:  stats.RecvMessages,
			RecvTurns:     stats.RecvTurns,
			FinalTurns:    stats.FinalTurns,
			TotalMs:       float64(stats.SessionDur.Microseconds()) / 1000,
		})
	}

	if err := enc.Close(); err != nil {
		log.Errorf("session %s: encoder close: %v", s.id, err)
	}
	artifact := enc.Bytes()

	s.mu.Lock()
	s.artifact = artifact
	s.mu.Unlock()

	if enc.TotalFrames() == 0 {
		return nil, fmt.Errorf("finalize: %w", ErrNoAudioCaptured)
	}

	fileName := s.artifactFileName(enc.ContentType())
	path := s.cfg.OwnerID + "/" + fileName

	uploadStart := time.Now()
	if err := s.cfg.Storage.Upload(ctx, path, artifact, enc.ContentType()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	uploadDur := time.Since(uploadStart)

	durationSec := int(atomic.LoadInt64(&s.ticks))
	if !connectedAt.IsZero() {
		durationSec = int(s.cfg.Now().Sub(connectedAt).Round(time.Second) / time.Second)
	}

	rec := store.Recording{
		OwnerID:               s.cfg.OwnerID,
		FileName:              fileName,
		StoragePath:           path,
		DurationSec:           durationSec,
		ByteSize:              len(artifact),
		Status:                "pending",
		LiveTranscriptionText: transcript,
	}
	persistStart := time.Now()
	id, err := s.cfg.Recordings.Insert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	persistDur := time.Since(persistStart)

	log.FinalizeMetrics(s.id, log.FinalizeMetricsData{
		DurationSec: durationSec,
		ByteSize:    len(artifact),
		UploadMs:    float64(uploadDur.Microseconds()) / 1000,
		PersistMs:   float64(persistDur.Microseconds()) / 1000,
		RecordingID: id,
	})
	if transcript != "" {
		log.TranscriptText(s.id, transcript)
	}

	return &Result{
		RecordingID: id,
		StoragePath: path,
		FileName:    fileName,
		DurationSec: durationSec,
		ByteSize:    len(artifact),
		Transcript:  transcript,
	}, nil
}

// artifactFileName derives a timestamped, collision-free name like
// call-20260901-103000-1a2b3c4d.flac.
func (s *Session) artifactFileName(contentType string) string {
	ext := "bin"
	if i := strings.LastIndex(contentType, "/"); i >= 0 && i+1 < len(contentType) {
		ext = contentType[i+1:]
	}
	short := s.id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("call-%s-%s.%s", s.cfg.Now().UTC().Format("20060102-150405"), short, ext)
}
