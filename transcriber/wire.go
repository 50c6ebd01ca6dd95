package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"nhooyr.io/websocket"
)

// Inbound message envelope; the type field selects the concrete shape.
type envelope struct {
	Type string `json:"type"`
}

type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type            string `json:"type"`
	Transcript      string `json:"transcript"`
	EndOfTurn       bool   `json:"end_of_turn"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type terminateMessage struct {
	Type string `json:"type"`
}

// rawConn is the transport under a streaming session. The websocket is
// exclusively owned by the Channel; nothing else writes to it.
type rawConn interface {
	Send(frame []byte) error
	SendControl(v any) error
	Recv() ([]byte, error)
	Close() error
}

type wsConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// streamURL builds the connection URL: raw PCM params plus turn-detection
// tuning on the query string.
func streamURL(creds Credentials, cfg Config) (string, error) {
	endpoint, err := url.Parse(creds.WSURL)
	if err != nil {
		return "", fmt.Errorf("parsing stream url: %w", err)
	}
	q := endpoint.Query()
	q.Set("token", creds.Token)
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("encoding", "pcm_s16le")
	q.Set("format_turns", "true")
	if cfg.EndOfTurnConfidence > 0 {
		q.Set("end_of_turn_confidence_threshold", strconv.FormatFloat(cfg.EndOfTurnConfidence, 'f', -1, 64))
	}
	if cfg.MinEndOfTurnSilence > 0 {
		q.Set("min_end_of_turn_silence_when_confident", strconv.FormatInt(cfg.MinEndOfTurnSilence.Milliseconds(), 10))
	}
	if cfg.MaxTurnSilence > 0 {
		q.Set("max_turn_silence", strconv.FormatInt(cfg.MaxTurnSilence.Milliseconds(), 10))
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func dialStream(ctx context.Context, creds Credentials, cfg Config) (rawConn, error) {
	target, err := streamURL(creds, cfg)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	conn, _, err := websocket.Dial(streamCtx, target, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	return &wsConn{conn: conn, ctx: streamCtx, cancel: cancel}, nil
}

func (w *wsConn) Send(frame []byte) error {
	return w.conn.Write(w.ctx, websocket.MessageBinary, frame)
}

func (w *wsConn) SendControl(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.conn.Write(w.ctx, websocket.MessageText, data)
}

func (w *wsConn) Recv() ([]byte, error) {
	_, data, err := w.conn.Read(w.ctx)
	return data, err
}

func (w *wsConn) Close() error {
	w.cancel()
	return w.conn.Close(websocket.StatusNormalClosure, "")
}
