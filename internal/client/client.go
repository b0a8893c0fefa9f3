package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/weather-sync-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-sync-service/internal/models"
	"github.com/kjstillabower/weather-sync-service/internal/observability"
)

// DefaultAPIURL is the weatherapi.com current conditions endpoint.
const DefaultAPIURL = "https://api.weatherapi.com/v1/current.json"

// WeatherSource fetches a fresh snapshot for a location. A nil snapshot with a
// nil error means the upstream answered without data.
type WeatherSource interface {
	Fetch(ctx context.Context, location models.LocationData) (*models.WeatherSnapshot, error)
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

// weatherapi.com error codes carried in the error body.
const (
	apiCodeNoLocation    = 1006
	apiCodeQuotaExceeded = 2007
)

// WeatherAPIClient implements WeatherSource against weatherapi.com.
// Each Fetch performs exactly one request; there is no retry.
type WeatherAPIClient struct {
	apiKey  string
	apiURL  string
	timeout time.Duration
	aqi     bool
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// Option configures a WeatherAPIClient.
type Option func(*WeatherAPIClient)

// WithCircuitBreaker routes every request through cb.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *WeatherAPIClient) { c.breaker = cb }
}

// WithAirQuality toggles the aqi parameter. Enabled by default.
func WithAirQuality(enabled bool) Option {
	return func(c *WeatherAPIClient) { c.aqi = enabled }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *WeatherAPIClient) { c.client = hc }
}

func NewWeatherAPIClient(apiKey, apiURL string, timeout time.Duration, opts ...Option) (*WeatherAPIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	c := &WeatherAPIClient{
		apiKey:  apiKey,
		apiURL:  apiURL,
		timeout: timeout,
		aqi:     true,
		client: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch requests current conditions for the location's coordinates.
func (c *WeatherAPIClient) Fetch(ctx context.Context, location models.LocationData) (*models.WeatherSnapshot, error) {
	var snapshot *models.WeatherSnapshot
	call := func() error {
		var err error
		snapshot, err = c.callAPI(ctx, location)
		return err
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Call(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return nil, err
	}
	if snapshot == nil {
		observability.WeatherAPINoDataTotal.Inc()
	}
	return snapshot, nil
}

func (c *WeatherAPIClient) callAPI(ctx context.Context, location models.LocationData) (*models.WeatherSnapshot, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, location.QueryString())
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if err := handleErrorResponse(resp.StatusCode, body); err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	return decodeSnapshot(body)
}

func (c *WeatherAPIClient) buildRequest(ctx context.Context, query string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", query)
	if c.aqi {
		params.Set("aqi", "yes")
	} else {
		params.Set("aqi", "no")
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// handleErrorResponse maps a non-2xx status (and the API's error body, when
// present) to a sentinel error.
func handleErrorResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	var apiErr apiErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	code := int(apiErr.Error.Code)
	msg := strings.TrimSpace(apiErr.Error.Message)

	var sentinel error
	switch {
	case code == apiCodeQuotaExceeded || statusCode == http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		sentinel = ErrInvalidAPIKey
	case code == apiCodeNoLocation || statusCode == http.StatusNotFound:
		sentinel = ErrLocationNotFound
	default:
		sentinel = ErrUpstreamFailure
	}
	if msg != "" {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("%w: HTTP %d", sentinel, statusCode)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues one request at startup so a bad key is reported before
// the first user-visible fetch. Only an auth failure is treated as fatal by callers.
func (c *WeatherAPIClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "51.52,-0.11")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if err := handleErrorResponse(resp.StatusCode, body); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// CountsAsFailure reports whether err indicates upstream ill health. Client-side
// errors (bad key, unknown location) and caller cancellation do not trip the breaker.
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !errors.Is(err, ErrInvalidAPIKey) && !errors.Is(err, ErrLocationNotFound)
}
