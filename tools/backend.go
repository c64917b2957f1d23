package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Backend talks to the concierge service that owns the knowledge base and
// the action log.
type Backend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewBackend reads ARIA_BACKEND_URL and ARIA_BACKEND_KEY from the
// environment.
func NewBackend() (*Backend, error) {
	baseURL := os.Getenv("ARIA_BACKEND_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("set ARIA_BACKEND_URL environment variable")
	}
	return &Backend{
		baseURL: baseURL,
		apiKey:  os.Getenv("ARIA_BACKEND_KEY"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type knowledgeRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

// Query performs a knowledge lookup; the response body is passed through
// verbatim as the tool result.
func (b *Backend) Query(ctx context.Context, query, sessionID string) (string, error) {
	body, err := b.post(ctx, "/knowledge/query", knowledgeRequest{Query: query, SessionID: sessionID})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

type actionRequest struct {
	Category  string `json:"category"`
	Action    string `json:"action"`
	Name      string `json:"clientName"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Topic     string `json:"topic"`
	Timestamp string `json:"timestamp"`
}

// Log records an action event. Best-effort: callers treat any error as a
// tool failure, never a session failure.
func (b *Backend) Log(ctx context.Context, ev ActionEvent) error {
	_, err := b.post(ctx, "/actions/log", actionRequest{
		Category:  ev.Category,
		Action:    ev.Action,
		Name:      ev.Name,
		Phone:     ev.Phone,
		Email:     ev.Email,
		Topic:     ev.Topic,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	})
	return err
}

func (b *Backend) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("backend response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
