package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Source fetches the current flag set published at url.
type Source interface {
	Fetch(ctx context.Context, url string) (map[string]any, error)
}

// maxBodySize caps flag responses at 1MB.
const maxBodySize = 1 << 20

// HTTPSource fetches flags with a plain GET.
type HTTPSource struct {
	Client *http.Client
}

// NewHTTPSource returns a source whose requests time out after timeout.
func NewHTTPSource(timeout time.Duration) *HTTPSource {
	return &HTTPSource{Client: &http.Client{Timeout: timeout}}
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrFetchFailed, err)
	}
	return decodeFlags(body)
}

// decodeFlags accepts {"flags": {...}} or a bare object.
func decodeFlags(body []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	if doc == nil {
		return nil, ErrBadPayload
	}
	if inner, ok := doc["flags"].(map[string]any); ok {
		return inner, nil
	}
	return doc, nil
}
