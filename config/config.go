// Package config loads the pipeline's settings from the environment, an
// optional .env file, and command-line flags, in that order of precedence.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the pipeline needs to talk to its collaborators.
type Config struct {
	// Transcription credential exchange
	TokenEndpoint string
	TokenAPIKey   string

	// Object storage for recording artifacts
	StorageURL string
	StorageKey string

	// Recording record persistence API
	PersistURL string
	PersistKey string

	// Identity that owns produced recordings
	OwnerID string

	// Mix engine native sample rate
	SampleRate int

	// Turn detection tuning, passed through to the streaming service
	EndOfTurnConfidence float64
	MinEndOfTurnSilence time.Duration
	MaxTurnSilence      time.Duration

	// Grace window after the terminate handshake
	TerminateGrace time.Duration

	// WAVPath switches the local source to canned audio for offline runs
	WAVPath string

	// CallDuration auto-hangs-up after the given time; zero runs until
	// interrupted
	CallDuration time.Duration

	LogDir string
}

// Load reads configuration from a .env file (if present), then the
// environment, then the given command-line flags.
func Load(args []string) (*Config, error) {
	cfg := &Config{
		SampleRate:     48000,
		TerminateGrace: 300 * time.Millisecond,
	}

	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg.TokenEndpoint = getEnv("CALLPIPE_TOKEN_ENDPOINT", "")
	cfg.TokenAPIKey = getEnv("CALLPIPE_TOKEN_API_KEY", "")
	cfg.StorageURL = getEnv("CALLPIPE_STORAGE_URL", "")
	cfg.StorageKey = getEnv("CALLPIPE_STORAGE_KEY", "")
	cfg.PersistURL = getEnv("CALLPIPE_PERSIST_URL", "")
	cfg.PersistKey = getEnv("CALLPIPE_PERSIST_KEY", "")
	cfg.OwnerID = getEnv("CALLPIPE_OWNER_ID", "")
	cfg.LogDir = getEnv("CALLPIPE_LOG_PATH", "")
	cfg.WAVPath = getEnv("CALLPIPE_WAV", "")

	if s := getEnv("CALLPIPE_SAMPLE_RATE", ""); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.SampleRate = n
		}
	}
	if s := getEnv("CALLPIPE_EOT_CONFIDENCE", ""); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			cfg.EndOfTurnConfidence = f
		}
	}
	if s := getEnv("CALLPIPE_MIN_EOT_SILENCE", ""); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.MinEndOfTurnSilence = d
		}
	}
	if s := getEnv("CALLPIPE_MAX_TURN_SILENCE", ""); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.MaxTurnSilence = d
		}
	}
	if s := getEnv("CALLPIPE_TERMINATE_GRACE", ""); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			cfg.TerminateGrace = d
		}
	}

	fs := flag.NewFlagSet("callpipe", flag.ContinueOnError)
	fs.StringVar(&cfg.TokenEndpoint, "token-endpoint", cfg.TokenEndpoint, "Transcription token exchange URL")
	fs.StringVar(&cfg.StorageURL, "storage-url", cfg.StorageURL, "Object storage base URL")
	fs.StringVar(&cfg.PersistURL, "persist-url", cfg.PersistURL, "Recording persistence API base URL")
	fs.StringVar(&cfg.OwnerID, "owner", cfg.OwnerID, "Identity that owns produced recordings")
	fs.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Mix engine native sample rate")
	fs.StringVar(&cfg.LogDir, "log-path", cfg.LogDir, "Diagnostics log directory")
	fs.StringVar(&cfg.WAVPath, "wav", cfg.WAVPath, "Feed local audio from a WAV file instead of a microphone")
	fs.DurationVar(&cfg.CallDuration, "call-duration", cfg.CallDuration, "Hang up automatically after this long (0 = until interrupted)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.OwnerID == "" {
		return nil, fmt.Errorf("CALLPIPE_OWNER_ID is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
