package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// StatusError reports a non-2xx response from Home Assistant.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("trigger: home assistant returned %d", e.StatusCode)
	}
	return fmt.Sprintf("trigger: home assistant returned %d: %s", e.StatusCode, e.Body)
}

// Option configures a HomeAssistant client.
type Option func(*HomeAssistant)

// WithHTTPClient sets the HTTP client. The default has a 15s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HomeAssistant) { h.client = c }
}

// HomeAssistant calls the Home Assistant REST API with a long-lived
// access token.
type HomeAssistant struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHomeAssistant creates a client for the instance at baseURL
// (e.g. "http://homeassistant.local:8123").
func NewHomeAssistant(baseURL, token string, opts ...Option) *HomeAssistant {
	h := &HomeAssistant{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type triggerRequest struct {
	EntityID  string         `json:"entity_id"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Trigger fires the automation entity. Any non-2xx status is a
// *StatusError.
func (h *HomeAssistant) Trigger(ctx context.Context, automationID string, variables map[string]any) error {
	body, err := json.Marshal(triggerRequest{EntityID: automationID, Variables: variables})
	if err != nil {
		return fmt.Errorf("trigger: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+"/api/services/automation/trigger", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("trigger: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("trigger: call home assistant: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
