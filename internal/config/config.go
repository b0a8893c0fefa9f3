package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-sync-service/internal/client"
	"github.com/kjstillabower/weather-sync-service/internal/location"
	"github.com/kjstillabower/weather-sync-service/internal/models"
	"github.com/kjstillabower/weather-sync-service/internal/traffic"
)

const (
	LocatorIPAPI  = "ip_api"
	LocatorStatic = "static"

	CacheInMemory  = "in_memory"
	CacheMemcached = "memcached"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	AirQuality        bool

	RequestTimeout time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	WarmLocations         []models.LocationData
	WarmTimeout           time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerMaxRequests      int
	CircuitBreakerFailureThreshold int
	CircuitBreakerInterval         time.Duration
	CircuitBreakerTimeout          time.Duration

	Locator           string // "ip_api" or "static"
	IPAPIURL          string
	SearchURL         string
	SearchLimit       int
	UserAgent         string
	LocationTimeout   time.Duration
	FallbackOnFailure bool
	StaticLocation    models.LocationData // named location.CurrentName

	SearchMinLength int
	SearchMaxLength int

	CoalesceFetches bool
	CoalesceTimeout time.Duration

	RateLimitRPS   int // 0 disables rate limiting
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int
}

type locationEntry struct {
	Name      string   `yaml:"name"`
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
}

type coordinateEntry struct {
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
		AQI     *bool  `yaml:"aqi"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		WarmLocations []locationEntry `yaml:"warm_locations"`
		WarmTimeout   string          `yaml:"warm_timeout"`
	} `yaml:"cache"`

	CircuitBreaker struct {
		Enabled          *bool  `yaml:"enabled"`
		MaxRequests      int    `yaml:"max_requests"`
		FailureThreshold int    `yaml:"failure_threshold"`
		Interval         string `yaml:"interval"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Location struct {
		Locator           string          `yaml:"locator"`
		IPAPIURL          string          `yaml:"ip_api_url"`
		SearchURL         string          `yaml:"search_url"`
		SearchLimit       int             `yaml:"search_limit"`
		UserAgent         string          `yaml:"user_agent"`
		Timeout           string          `yaml:"timeout"`
		FallbackOnFailure *bool           `yaml:"fallback_on_failure"`
		Static            coordinateEntry `yaml:"static"`
	} `yaml:"location"`

	Search struct {
		MinLength int `yaml:"min_length"`
		MaxLength int `yaml:"max_length"`
	} `yaml:"search"`

	Sync struct {
		CoalesceFetches *bool  `yaml:"coalesce_fetches"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
	} `yaml:"sync"`

	Reliability struct {
		RateLimitRPS   *int `yaml:"rate_limit_rps"`
		RateLimitBurst int  `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory, if present, is loaded first without overriding
// variables already set. API key comes from WEATHER_API_KEY env or secrets file. Call from
// project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := loadDotEnv(filepath.Join(cwd, ".env")); err != nil {
		return nil, err
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = strings.TrimSpace(os.Getenv("PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey, err = loadAPIKey(cwd)
	if err != nil {
		return nil, err
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = client.DefaultAPIURL
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.AirQuality = boolOr(fc.WeatherAPI.AQI, true)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = CacheInMemory
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	for i, e := range fc.Cache.WarmLocations {
		loc, err := e.toLocation(fmt.Sprintf("cache.warm_locations[%d]", i))
		if err != nil {
			return nil, err
		}
		cfg.WarmLocations = append(cfg.WarmLocations, loc)
	}
	cfg.WarmTimeout = parseDuration(fc.Cache.WarmTimeout, 30*time.Second)

	cfg.CircuitBreakerEnabled = boolOr(fc.CircuitBreaker.Enabled, true)
	cfg.CircuitBreakerMaxRequests = fc.CircuitBreaker.MaxRequests
	if cfg.CircuitBreakerMaxRequests <= 0 {
		cfg.CircuitBreakerMaxRequests = 1
	}
	cfg.CircuitBreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerInterval = parseDurationOrZero(fc.CircuitBreaker.Interval, 0)
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.Locator = strings.TrimSpace(strings.ToLower(fc.Location.Locator))
	if cfg.Locator == "" {
		cfg.Locator = LocatorIPAPI
	}
	cfg.IPAPIURL = fc.Location.IPAPIURL
	if cfg.IPAPIURL == "" {
		cfg.IPAPIURL = location.DefaultIPAPIURL
	}
	cfg.SearchURL = fc.Location.SearchURL
	if cfg.SearchURL == "" {
		cfg.SearchURL = location.DefaultSearchURL
	}
	cfg.SearchLimit = fc.Location.SearchLimit
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 5
	}
	cfg.UserAgent = fc.Location.UserAgent
	if cfg.UserAgent == "" {
		cfg.UserAgent = location.DefaultUserAgent
	}
	cfg.LocationTimeout = parseDuration(fc.Location.Timeout, 5*time.Second)
	cfg.FallbackOnFailure = boolOr(fc.Location.FallbackOnFailure, true)
	if cfg.Locator == LocatorStatic {
		static := locationEntry{Name: location.CurrentName, Latitude: fc.Location.Static.Latitude, Longitude: fc.Location.Static.Longitude}
		loc, err := static.toLocation("location.static")
		if err != nil {
			return nil, err
		}
		cfg.StaticLocation = loc
	}

	cfg.SearchMinLength = fc.Search.MinLength
	if cfg.SearchMinLength <= 0 {
		cfg.SearchMinLength = 1
	}
	cfg.SearchMaxLength = fc.Search.MaxLength
	if cfg.SearchMaxLength <= 0 {
		cfg.SearchMaxLength = 100
	}

	cfg.CoalesceFetches = boolOr(fc.Sync.CoalesceFetches, true)
	cfg.CoalesceTimeout = parseDuration(fc.Sync.CoalesceTimeout, 15*time.Second)

	cfg.RateLimitRPS = 10
	if fc.Reliability.RateLimitRPS != nil {
		cfg.RateLimitRPS = *fc.Reliability.RateLimitRPS
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads path into the process environment when it exists.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat .env: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func loadAPIKey(cwd string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("WEATHER_API_KEY")); key != "" {
		return key, nil
	}
	secretsData, err := os.ReadFile(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

func (e locationEntry) toLocation(field string) (models.LocationData, error) {
	if e.Latitude == nil || e.Longitude == nil {
		return models.LocationData{}, fmt.Errorf("%s: latitude and longitude are required", field)
	}
	if *e.Latitude < -90 || *e.Latitude > 90 {
		return models.LocationData{}, fmt.Errorf("%s: latitude %v out of range", field, *e.Latitude)
	}
	if *e.Longitude < -180 || *e.Longitude > 180 {
		return models.LocationData{}, fmt.Errorf("%s: longitude %v out of range", field, *e.Longitude)
	}
	return models.LocationData{Name: strings.TrimSpace(e.Name), Latitude: *e.Latitude, Longitude: *e.Longitude}, nil
}

func boolOr(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above
// WeatherAPITimeout so a command can outlast one upstream call.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case CacheInMemory, CacheMemcached:
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.Locator {
	case LocatorIPAPI, LocatorStatic:
	default:
		return fmt.Errorf("location.locator must be ip_api or static, got %q", cfg.Locator)
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("reliability.rate_limit_rps must not be negative, got %d", cfg.RateLimitRPS)
	}
	if cfg.DegradedWindow > traffic.Retention {
		return fmt.Errorf("lifecycle.degraded_window %v exceeds the %v outcome history", cfg.DegradedWindow, traffic.Retention)
	}
	if cfg.SearchMinLength > cfg.SearchMaxLength {
		return fmt.Errorf("search.min_length %d exceeds search.max_length %d", cfg.SearchMinLength, cfg.SearchMaxLength)
	}
	return nil
}
