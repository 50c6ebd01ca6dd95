package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPStorage uploads to an object-storage HTTP endpoint. Objects land at
// BaseURL/<path>; the x-upsert header stays false so uploads never clobber
// an existing recording.
type HTTPStorage struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func (s *HTTPStorage) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	target := strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := httpClient(s.Client).Do(req)
	if err != nil {
		return fmt.Errorf("storage upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("storage upload returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// HTTPRecordings persists records against an insert-style REST endpoint.
type HTTPRecordings struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

type insertResponse struct {
	ID string `json:"id"`
}

func (r *HTTPRecordings) Insert(ctx context.Context, rec Recording) (string, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := httpClient(r.Client).Do(req)
	if err != nil {
		return "", fmt.Errorf("recording insert: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("recording insert: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("recording insert returned %d: %s", resp.StatusCode, body)
	}

	var ir insertResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		return "", fmt.Errorf("recording insert response parse: %w", err)
	}
	if ir.ID == "" {
		return "", fmt.Errorf("recording insert response missing id")
	}
	return ir.ID, nil
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}
