package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-sync-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-sync-service/internal/models"
	"github.com/kjstillabower/weather-sync-service/internal/observability"
)

const londonResponse = `{
	"location": {
		"name": "London", "region": "City of London, Greater London", "country": "United Kingdom",
		"lat": 51.52, "lon": -0.11, "tz_id": "Europe/London",
		"localtime_epoch": 1700000000, "localtime": "2023-11-14 22:13"
	},
	"current": {
		"last_updated_epoch": 1699999200, "last_updated": "2023-11-14 22:00",
		"temp_c": 9.0, "temp_f": 48.2, "is_day": 0,
		"condition": {"text": "Partly cloudy", "icon": "//cdn.weatherapi.com/weather/64x64/night/116.png", "code": 1003},
		"wind_mph": 9.4, "wind_kph": 15.1, "wind_degree": 230, "wind_dir": "SW",
		"pressure_mb": 1008.0, "pressure_in": 29.77, "precip_mm": 0.0, "precip_in": 0.0,
		"humidity": 87, "cloud": 50, "feelslike_c": 6.5, "feelslike_f": 43.7,
		"windchill_c": 6.2, "windchill_f": 43.2, "heatindex_c": 8.8, "heatindex_f": 47.8,
		"dewpoint_c": 6.8, "dewpoint_f": 44.2, "vis_km": 10.0, "vis_miles": 6.0,
		"uv": 1.0, "gust_mph": 14.6, "gust_kph": 23.5,
		"air_quality": {"co": 267.0, "no2": 22.5, "o3": 35.4, "so2": 5.4, "pm2_5": 4.2, "pm10": 5.5, "us-epa-index": 1, "gb-defra-index": 1},
		"unknown_field": "ignored"
	}
}`

var london = models.LocationData{Name: "London", Latitude: 51.52, Longitude: -0.11}

func newTestClient(t *testing.T, url string, opts ...Option) *WeatherAPIClient {
	t.Helper()
	c, err := NewWeatherAPIClient("test-api-key-12345", url, 2*time.Second, opts...)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}
	return c
}

func TestNewWeatherAPIClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{name: "empty API key", apiKey: "", wantErr: ErrInvalidAPIKey},
		{name: "too short API key", apiKey: "short", wantErr: ErrInvalidAPIKey},
		{name: "valid API key", apiKey: "valid-api-key-12345", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewWeatherAPIClient(tt.apiKey, "https://api.test.com", 2*time.Second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewWeatherAPIClient() error = %v, want %v", err, tt.wantErr)
				}
				if client != nil {
					t.Errorf("NewWeatherAPIClient() expected nil client on error")
				}
				return
			}
			if err != nil || client == nil {
				t.Fatalf("NewWeatherAPIClient() = (%v, %v), want client", client, err)
			}
		})
	}
}

func TestNewWeatherAPIClient_DefaultURL(t *testing.T) {
	c := newTestClient(t, "")
	if c.apiURL != DefaultAPIURL {
		t.Errorf("apiURL = %q, want %q", c.apiURL, DefaultAPIURL)
	}
}

func TestWeatherAPIClient_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("q") != "51.52,-0.11" {
			t.Errorf("q = %q, want %q", q.Get("q"), "51.52,-0.11")
		}
		if q.Get("key") != "test-api-key-12345" {
			t.Errorf("key = %q, want API key", q.Get("key"))
		}
		if q.Get("aqi") != "yes" {
			t.Errorf("aqi = %q, want yes", q.Get("aqi"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(londonResponse))
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL).Fetch(context.Background(), london)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got == nil {
		t.Fatal("Fetch() = nil, want snapshot")
	}
	if got.Location.Name != "London" || got.Location.Lat != 51.52 || got.Location.Lon != -0.11 {
		t.Errorf("Location = %+v", got.Location)
	}
	if got.Location.LocaltimeEpoch != 1700000000 {
		t.Errorf("LocaltimeEpoch = %d, want 1700000000", got.Location.LocaltimeEpoch)
	}
	if got.Current.TempC != 9.0 || got.Current.Humidity != 87 || got.Current.WindDegree != 230 {
		t.Errorf("Current = %+v", got.Current)
	}
	if got.Current.Condition.Code != 1003 || got.Current.Condition.Text != "Partly cloudy" {
		t.Errorf("Condition = %+v", got.Current.Condition)
	}
	if got.Current.AirQuality.PM25 != 4.2 || got.Current.AirQuality.USEPAIndex != 1 || got.Current.AirQuality.GBDefraIndex != 1 {
		t.Errorf("AirQuality = %+v", got.Current.AirQuality)
	}
	if got.Key() != london.Key() {
		t.Errorf("Key() = %q, want %q", got.Key(), london.Key())
	}
}

func TestWeatherAPIClient_Fetch_AirQualityDisabled(t *testing.T) {
	var aqi string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		aqi = r.URL.Query().Get("aqi")
		_, _ = w.Write([]byte(londonResponse))
	}))
	defer server.Close()

	if _, err := newTestClient(t, server.URL, WithAirQuality(false)).Fetch(context.Background(), london); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if aqi != "no" {
		t.Errorf("aqi = %q, want no", aqi)
	}
}

func TestWeatherAPIClient_Fetch_LenientNumbers(t *testing.T) {
	body := `{"location":{"name":"Quoted","lat":"10.5","lon":"-20.25","localtime_epoch":"1700000000"},
		"current":{"temp_c":"12.5","humidity":"40","is_day":null,"uv":"","air_quality":{"us-epa-index":"2","pm2_5":"3.3"}}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL).Fetch(context.Background(), london)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.Location.Lat != 10.5 || got.Location.Lon != -20.25 || got.Location.LocaltimeEpoch != 1700000000 {
		t.Errorf("Location = %+v", got.Location)
	}
	if got.Current.TempC != 12.5 || got.Current.Humidity != 40 || got.Current.IsDay != 0 || got.Current.UV != 0 {
		t.Errorf("Current = %+v", got.Current)
	}
	if got.Current.AirQuality.USEPAIndex != 2 || got.Current.AirQuality.PM25 != 3.3 {
		t.Errorf("AirQuality = %+v", got.Current.AirQuality)
	}
}

func TestWeatherAPIClient_Fetch_NoData(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "204 no content", status: http.StatusNoContent},
		{name: "empty body", status: http.StatusOK, body: ""},
		{name: "whitespace body", status: http.StatusOK, body: "  \n"},
		{name: "null", status: http.StatusOK, body: "null"},
		{name: "empty object", status: http.StatusOK, body: "{}"},
		{name: "null sections", status: http.StatusOK, body: `{"location":null,"current":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			got, err := newTestClient(t, server.URL).Fetch(context.Background(), london)
			if err != nil {
				t.Fatalf("Fetch() error = %v, want nil", err)
			}
			if got != nil {
				t.Errorf("Fetch() = %+v, want nil", got)
			}
		})
	}
}

func TestWeatherAPIClient_Fetch_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    error
		wantMsg    string
	}{
		{"401 unauthorized", http.StatusUnauthorized, `{"error":{"code":2006,"message":"API key is invalid."}}`, ErrInvalidAPIKey, "API key is invalid."},
		{"403 disabled", http.StatusForbidden, `{"error":{"code":2008,"message":"API key has been disabled."}}`, ErrInvalidAPIKey, ""},
		{"403 quota exceeded", http.StatusForbidden, `{"error":{"code":2007,"message":"API key has exceeded calls per month quota."}}`, ErrRateLimited, ""},
		{"400 no location", http.StatusBadRequest, `{"error":{"code":1006,"message":"No matching location found."}}`, ErrLocationNotFound, "No matching location found."},
		{"429 too many requests", http.StatusTooManyRequests, "", ErrRateLimited, "HTTP 429"},
		{"500 internal", http.StatusInternalServerError, "", ErrUpstreamFailure, "HTTP 500"},
		{"502 bad gateway", http.StatusBadGateway, "<html>bad gateway</html>", ErrUpstreamFailure, ""},
		{"503 unavailable", http.StatusServiceUnavailable, "", ErrUpstreamFailure, ""},
		{"400 other", http.StatusBadRequest, `{"error":{"code":1003,"message":"Parameter q is missing."}}`, ErrUpstreamFailure, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).Fetch(context.Background(), london)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Fetch() error = %q, want to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

// TestWeatherAPIClient_Fetch_SingleAttempt verifies a failing upstream is called exactly once.
func TestWeatherAPIClient_Fetch_SingleAttempt(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Fetch(context.Background(), london)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("Fetch() error = %v, want ErrUpstreamFailure", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestWeatherAPIClient_Fetch_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"location": {"name": `))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Fetch(context.Background(), london)
	if err == nil || !strings.Contains(err.Error(), "parse response") {
		t.Errorf("Fetch() error = %v, want 'parse response'", err)
	}
}

func TestWeatherAPIClient_Fetch_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, server.URL).Fetch(ctx, london)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestWeatherAPIClient_Fetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := NewWeatherAPIClient("test-api-key-12345", server.URL, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}
	if _, err := c.Fetch(context.Background(), london); err == nil {
		t.Fatal("Fetch() expected error, got nil")
	}
}

func TestWeatherAPIClient_Fetch_CorrelationID(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(londonResponse))
	}))
	defer server.Close()

	ctx := observability.WithCorrelationID(context.Background(), "test-correlation-id-123")
	if _, err := newTestClient(t, server.URL).Fetch(ctx, london); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if captured != "test-correlation-id-123" {
		t.Errorf("X-Correlation-ID header = %q, want %q", captured, "test-correlation-id-123")
	}
}

func TestWeatherAPIClient_Fetch_InvalidURL(t *testing.T) {
	_, err := newTestClient(t, "://invalid").Fetch(context.Background(), london)
	if err == nil || !strings.Contains(err.Error(), "build request") {
		t.Errorf("Fetch() error = %v, want 'build request'", err)
	}
}

// TestWeatherAPIClient_Fetch_CircuitBreaker verifies that upstream failures open
// the breaker, client errors do not, and an open breaker skips the request.
func TestWeatherAPIClient_Fetch_CircuitBreaker(t *testing.T) {
	var calls int32
	var status int32 = http.StatusBadRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(int(atomic.LoadInt32(&status)))
		_, _ = w.Write([]byte(`{"error":{"code":1006,"message":"No matching location found."}}`))
	}))
	defer server.Close()

	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		Component:        "weather_api",
		IsFailure:        CountsAsFailure,
	})
	c := newTestClient(t, server.URL, WithCircuitBreaker(cb))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = c.Fetch(ctx, london)
	}
	if cb.State() != circuitbreaker.StateClosed {
		t.Fatalf("State() = %v after client errors, want closed", cb.State())
	}

	atomic.StoreInt32(&status, http.StatusInternalServerError)
	for i := 0; i < 2; i++ {
		_, _ = c.Fetch(ctx, london)
	}
	if cb.State() != circuitbreaker.StateOpen {
		t.Fatalf("State() = %v after upstream failures, want open", cb.State())
	}

	before := atomic.LoadInt32(&calls)
	_, err := c.Fetch(ctx, london)
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("Fetch() error = %v, want ErrOpen", err)
	}
	if atomic.LoadInt32(&calls) != before {
		t.Error("open breaker should not reach upstream")
	}
}

func TestWeatherAPIClient_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{name: "success", statusCode: http.StatusOK},
		{name: "401 invalid key", statusCode: http.StatusUnauthorized, wantErr: ErrInvalidAPIKey},
		{name: "500 server error", statusCode: http.StatusInternalServerError, wantErr: ErrUpstreamFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			err := newTestClient(t, server.URL).ValidateAPIKey(context.Background())
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateAPIKey() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateAPIKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCountsAsFailure(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{ErrInvalidAPIKey, false},
		{ErrLocationNotFound, false},
		{ErrUpstreamFailure, true},
		{ErrRateLimited, true},
		{context.DeadlineExceeded, true},
		{errors.New("connection refused"), true},
	}
	for _, tt := range tests {
		if got := CountsAsFailure(tt.err); got != tt.want {
			t.Errorf("CountsAsFailure(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{200: "success", 204: "success", 429: "rate_limited", 404: "client_error", 503: "server_error", 302: "error"}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
