// Package log writes diagnostics and transcript text to per-install log
// files. Call audio never touches the log; only lifecycle events, metrics
// and finalized transcript text do.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcriptFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -log-path flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: CALLPIPE_LOG_PATH environment variable
	envPath := os.Getenv("CALLPIPE_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcriptPath := filepath.Join(dir, "transcript_log.txt")
	transcriptFile, err = os.OpenFile(transcriptPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcriptFile != nil {
		transcriptFile.Close()
		transcriptFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// CallState records one lifecycle transition of a call session.
func CallState(sessionID, from, to, event string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", sessionID).
		Str("from", from).
		Str("to", to).
		Str("event", event).
		Msg("call_state")
}

type StreamMetricsData struct {
	ConnectMs     float64
	SentFrames    int
	SentKB        float64
	DroppedFrames int
	RecvMessages  int
	RecvTurns     int
	FinalTurns    int
	TotalMs       float64
}

// StreamMetrics records one transcription channel session summary.
func StreamMetrics(sessionID string, m StreamMetricsData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", sessionID).
		Float64("connect_ms", m.ConnectMs).
		Int("sent_frames", m.SentFrames).
		Float64("sent_kb", m.SentKB).
		Int("dropped_frames", m.DroppedFrames).
		Int("recv_messages", m.RecvMessages).
		Int("recv_turns", m.RecvTurns).
		Int("final_turns", m.FinalTurns).
		Float64("total_ms", m.TotalMs).
		Msg("stream_transcription")
}

type FinalizeMetricsData struct {
	DurationSec int
	ByteSize    int
	UploadMs    float64
	PersistMs   float64
	RecordingID string
}

// FinalizeMetrics records one completed finalization.
func FinalizeMetrics(sessionID string, m FinalizeMetricsData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", sessionID).
		Int("duration_s", m.DurationSec).
		Int("byte_size", m.ByteSize).
		Float64("upload_ms", m.UploadMs).
		Float64("persist_ms", m.PersistMs).
		Str("recording_id", m.RecordingID).
		Msg("finalize")
}

// TranscriptText appends finalized transcript text to the transcript log.
func TranscriptText(sessionID, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, sessionID, text)
	transcriptFile.WriteString(line)
}
