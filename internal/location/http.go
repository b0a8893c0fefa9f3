package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUserAgent identifies this service to public geocoding endpoints,
// which reject anonymous clients.
const DefaultUserAgent = "weather-sync-service/1.0"

type httpGetter struct {
	userAgent string
	client    *http.Client
}

func newHTTPGetter(userAgent string, timeout time.Duration) httpGetter {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return httpGetter{
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// getJSON issues a GET and decodes a 200 response into out.
func (g httpGetter) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
