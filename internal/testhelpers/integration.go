//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-sync-service/internal/cache"
	"github.com/kjstillabower/weather-sync-service/internal/client"
	"github.com/kjstillabower/weather-sync-service/internal/location"
	"github.com/kjstillabower/weather-sync-service/internal/models"
	"github.com/kjstillabower/weather-sync-service/internal/service"
)

// Seattle is a fixed location used by integration tests.
var Seattle = models.LocationData{Name: "Seattle", Latitude: 47.61, Longitude: -122.33}

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultAPIURL
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationCache returns the configured offline cache and a cleanup func.
// Falls back to in-memory when memcached is unreachable.
func SetupIntegrationCache(t *testing.T, cfg IntegrationTestConfig) (cache.OfflineCache, func()) {
	t.Helper()
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
			return mc, func() { _ = mc.Close() }
		}
		t.Logf("Memcached not available, using in-memory cache")
	}
	return cache.NewInMemoryCache(), func() {}
}

// SetupIntegrationClient creates a live weather API client.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.WeatherAPIClient {
	t.Helper()
	c, err := client.NewWeatherAPIClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}
	return c
}

// SetupIntegrationController builds a controller over the live API with a
// static current location. The controller is closed by t.Cleanup.
func SetupIntegrationController(t *testing.T, cfg IntegrationTestConfig, logger *zap.Logger) *service.WeatherSyncController {
	t.Helper()
	offline, cleanup := SetupIntegrationCache(t, cfg)
	locator := location.StaticLocator{Place: location.Place{Latitude: Seattle.Latitude, Longitude: Seattle.Longitude}}
	searcher := location.NewNominatimSearcher("", "", 5, 5*time.Second)
	provider := location.NewService(locator, searcher, true, logger)
	ctrl := service.NewWeatherSyncController(provider, SetupIntegrationClient(t, cfg), offline,
		service.WithLogger(logger),
		service.WithFetchCoalescing(10*time.Second),
	)
	t.Cleanup(func() {
		ctrl.Close()
		cleanup()
	})
	return ctrl
}
