package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-sync-service/internal/cache"
	"github.com/kjstillabower/weather-sync-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-sync-service/internal/client"
	"github.com/kjstillabower/weather-sync-service/internal/config"
	httphandler "github.com/kjstillabower/weather-sync-service/internal/http"
	"github.com/kjstillabower/weather-sync-service/internal/lifecycle"
	"github.com/kjstillabower/weather-sync-service/internal/location"
	"github.com/kjstillabower/weather-sync-service/internal/observability"
	"github.com/kjstillabower/weather-sync-service/internal/service"
)

const breakerComponent = "weather_api"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = newBreaker(cfg)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	weatherClient, err := newWeatherClient(cfg, breaker)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	offline, err := newOfflineCache(cfg)
	if err != nil {
		logger.Fatal("offline cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend))

	provider := newLocationService(cfg, logger)

	opts := []service.ControllerOption{service.WithLogger(logger)}
	if cfg.CoalesceFetches {
		opts = append(opts, service.WithFetchCoalescing(cfg.CoalesceTimeout))
	}
	ctrl := service.NewWeatherSyncController(provider, weatherClient, offline, opts...)

	if len(cfg.WarmLocations) > 0 {
		warmer := cache.NewCacheWarmer(weatherClient, offline, logger)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.WarmTimeout)
		if err := warmer.Warm(warmCtx, cfg.WarmLocations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
	}

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
	}
	if breaker != nil {
		healthConfig.BreakerState = breaker.State
	}
	if cfg.CacheBackend == config.CacheMemcached {
		healthConfig.CachePing = offline.Ping
	}
	observability.RegisterOutcomeGauges(cfg.DegradedWindow)

	limiter := newLimiter(cfg)
	handler := httphandler.NewHandler(ctrl, healthConfig, logger, httphandler.QueryLimits{
		MinLength: cfg.SearchMinLength,
		MaxLength: cfg.SearchMaxLength,
	})
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}
	srv.RegisterOnShutdown(handler.CloseStreams)

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	go func() {
		state := ctrl.Initialize(observability.WithLogger(context.Background(), logger))
		lifecycle.SetPhase(lifecycle.PhaseReady)
		logger.Info("initial sync finished", zap.String("status", string(state.Status)))
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetPhase(lifecycle.PhaseDraining)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	ctrl.Close()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if err := offline.Close(); err != nil {
		logger.Error("offline cache close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// newLimiter returns nil when rate limiting is disabled.
func newLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
}

func newBreaker(cfg *config.Config) *circuitbreaker.CircuitBreaker {
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		MaxRequests:      cfg.CircuitBreakerMaxRequests,
		Interval:         cfg.CircuitBreakerInterval,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        breakerComponent,
		IsFailure:        client.CountsAsFailure,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String(), int(to))
		},
	})
	observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(0)
	return cb
}

func newWeatherClient(cfg *config.Config, breaker *circuitbreaker.CircuitBreaker) (*client.WeatherAPIClient, error) {
	opts := []client.Option{client.WithAirQuality(cfg.AirQuality)}
	if breaker != nil {
		opts = append(opts, client.WithCircuitBreaker(breaker))
	}
	return client.NewWeatherAPIClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout, opts...)
}

// newOfflineCache builds the configured backend wrapped with metrics.
func newOfflineCache(cfg *config.Config) (*cache.Instrumented, error) {
	switch cfg.CacheBackend {
	case config.CacheMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, err
		}
		return cache.NewInstrumented(mc), nil
	default:
		return cache.NewInstrumented(cache.NewInMemoryCache()), nil
	}
}

func newLocationService(cfg *config.Config, logger *zap.Logger) *location.Service {
	var locator location.Locator
	switch cfg.Locator {
	case config.LocatorStatic:
		locator = location.StaticLocator{Place: location.Place{
			Latitude:  cfg.StaticLocation.Latitude,
			Longitude: cfg.StaticLocation.Longitude,
		}}
	default:
		locator = location.NewIPAPILocator(cfg.IPAPIURL, cfg.UserAgent, cfg.LocationTimeout)
	}
	searcher := location.NewNominatimSearcher(cfg.SearchURL, cfg.UserAgent, cfg.SearchLimit, cfg.LocationTimeout)
	return location.NewService(locator, searcher, cfg.FallbackOnFailure, logger)
}
