// Command callpipe runs one call session end to end: it captures the local
// microphone (or a WAV file), mixes it into the recording stream, streams
// the downsampled audio to the transcription service, and finalizes the
// recording on hangup. It doubles as the integration harness for the
// pipeline packages.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callpipe/audio"
	"callpipe/config"
	"callpipe/log"
	"callpipe/mixer"
	"callpipe/session"
	"callpipe/store"
	"callpipe/transcriber"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "callpipe: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	dir, err := log.ResolveDir(cfg.LogDir)
	if err != nil {
		return err
	}
	log.SetDir(dir)
	if err := log.Init(); err != nil {
		return err
	}
	defer log.Close()
	log.Infof("callpipe %s starting", version)

	actx, err := openAudio(cfg)
	if err != nil {
		return err
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	if cfg.WAVPath == "" {
		device, err = audio.SelectDevice(actx)
		if err != nil {
			return err
		}
	}

	capture, err := actx.NewCapture(device, audio.CaptureConfig{
		SampleRate: uint32(cfg.SampleRate),
		Channels:   1,
	})
	if err != nil {
		return err
	}
	defer capture.Close()

	engine, err := mixer.NewClockEngine(cfg.SampleRate)
	if err != nil {
		return err
	}

	tokens := tokenSource(cfg)
	tcfg := transcriber.Config{
		EndOfTurnConfidence: cfg.EndOfTurnConfidence,
		MinEndOfTurnSilence: cfg.MinEndOfTurnSilence,
		MaxTurnSilence:      cfg.MaxTurnSilence,
		Grace:               cfg.TerminateGrace,
	}
	sess := session.New(session.Config{
		OwnerID: cfg.OwnerID,
		Engine:  engine,
		Local:   audio.NewCaptureSource(capture),
		OpenChannel: func(ctx context.Context) session.TranscriptChannel {
			ch := transcriber.Open(ctx, tokens, tcfg)
			go printTranscript(ch.Updates())
			return ch
		},
		Storage:    storage(cfg),
		Recordings: recordings(cfg),
	})

	ctx := context.Background()
	sess.Signal(ctx, "trying")
	sess.Signal(ctx, "ringing")
	if err := sess.Signal(ctx, "active"); err != nil {
		return err
	}
	fmt.Printf("call connected, session %s\n", sess.ID())

	wait(cfg.CallDuration)

	fmt.Println("hanging up")
	if err := sess.Signal(ctx, "hangup"); err != nil {
		if errors.Is(err, session.ErrNoAudioCaptured) {
			fmt.Println("no audio captured, nothing saved")
			return nil
		}
		return err
	}

	res, err := sess.Finalize(ctx)
	if err != nil || res == nil {
		return err
	}
	fmt.Printf("recording saved: id=%s path=%s duration=%ds size=%d bytes\n",
		res.RecordingID, res.StoragePath, res.DurationSec, res.ByteSize)
	if res.Transcript != "" {
		fmt.Printf("transcript: %s\n", res.Transcript)
	}
	return nil
}

// printTranscript mirrors the live transcript to stdout as it grows. The
// updates stream ends when the channel terminates.
func printTranscript(updates <-chan string) {
	seen := false
	for text := range updates {
		seen = true
		fmt.Printf("\rlive: %s", text)
	}
	if seen {
		fmt.Println()
	}
}

func openAudio(cfg *config.Config) (audio.Context, error) {
	if cfg.WAVPath != "" {
		return audio.NewFakeContext(cfg.WAVPath, true)
	}
	return audio.NewContext()
}

func tokenSource(cfg *config.Config) transcriber.TokenSource {
	if cfg.TokenEndpoint != "" {
		return &transcriber.HTTPTokenSource{Endpoint: cfg.TokenEndpoint, APIKey: cfg.TokenAPIKey}
	}
	return &transcriber.StaticTokenSource{
		Err: fmt.Errorf("%w: no token endpoint configured", transcriber.ErrUnavailable),
	}
}

func storage(cfg *config.Config) store.Storage {
	if cfg.StorageURL != "" {
		return &store.HTTPStorage{BaseURL: cfg.StorageURL, APIKey: cfg.StorageKey}
	}
	log.Warn("no storage URL configured, recordings stay in memory")
	return store.NewMemStorage()
}

func recordings(cfg *config.Config) store.Recordings {
	if cfg.PersistURL != "" {
		return &store.HTTPRecordings{Endpoint: cfg.PersistURL, APIKey: cfg.PersistKey}
	}
	return store.NewMemRecordings()
}

func wait(d time.Duration) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	if d > 0 {
		select {
		case <-sig:
		case <-time.After(d):
		}
		return
	}
	<-sig
}
