package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Credentials open one streaming session.
type Credentials struct {
	Token     string
	WSURL     string
	ExpiresAt time.Time
}

// TokenSource exchanges long-lived credentials for a short-lived streaming
// token.
type TokenSource interface {
	Fetch(ctx context.Context) (Credentials, error)
}

// HTTPTokenSource calls the token-issuing endpoint.
type HTTPTokenSource struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

type tokenResponse struct {
	Token     string    `json:"token"`
	WSURL     string    `json:"wsUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *HTTPTokenSource) Fetch(ctx context.Context) (Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, nil)
	if err != nil {
		return Credentials{}, err
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: token fetch: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: token fetch: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("%w: token endpoint returned %d: %s", ErrUnavailable, resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Credentials{}, fmt.Errorf("%w: token response parse: %v", ErrUnavailable, err)
	}
	if tr.Token == "" || tr.WSURL == "" {
		return Credentials{}, fmt.Errorf("%w: token response missing token or wsUrl", ErrUnavailable)
	}
	return Credentials{Token: tr.Token, WSURL: tr.WSURL, ExpiresAt: tr.ExpiresAt}, nil
}

// StaticTokenSource returns fixed credentials, for tests and offline runs.
type StaticTokenSource struct {
	Creds Credentials
	Err   error
}

func (s *StaticTokenSource) Fetch(context.Context) (Credentials, error) {
	return s.Creds, s.Err
}
