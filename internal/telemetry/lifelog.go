package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/device"
)

// lifeLogPayload is the body posted to the LifeLog endpoint.
type lifeLogPayload struct {
	Event   string    `json:"event"`
	Channel int       `json:"channel"`
	Alias   string    `json:"alias,omitempty"`
	Source  string    `json:"source"`
	Date    time.Time `json:"date"`
}

// LifeLogSink posts device events to a LifeLog HTTP endpoint.
type LifeLogSink struct {
	url    string
	client *http.Client
}

// NewLifeLogSink creates a sink posting to url. A nil client uses one with
// the given timeout.
func NewLifeLogSink(url string, client *http.Client, timeout time.Duration) *LifeLogSink {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &LifeLogSink{url: url, client: client}
}

// Notify implements device.TelemetrySink.
func (s *LifeLogSink) Notify(ctx context.Context, ev device.TelemetryEvent) error {
	if ev.Name == "" {
		return ErrInvalidEvent
	}

	body, err := json.Marshal(lifeLogPayload{
		Event:   ev.Name,
		Channel: ev.Channel,
		Alias:   ev.Alias,
		Source:  "kasabridge",
		Date:    ev.Time.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshalling lifelog event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building lifelog request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: lifelog: %w", ErrSinkFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: lifelog returned %d", ErrSinkFailed, resp.StatusCode)
	}
	return nil
}
