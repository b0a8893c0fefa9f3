package cache

import (
	"context"
	"time"

	"github.com/kjstillabower/weather-sync-service/internal/models"
	"github.com/kjstillabower/weather-sync-service/internal/observability"
)

// Instrumented wraps an OfflineCache and records operation counts and latency.
type Instrumented struct {
	next OfflineCache
}

// NewInstrumented returns next wrapped with metrics.
func NewInstrumented(next OfflineCache) *Instrumented {
	return &Instrumented{next: next}
}

func (c *Instrumented) Save(ctx context.Context, snapshot *models.WeatherSnapshot) error {
	start := time.Now()
	err := c.next.Save(ctx, snapshot)
	observability.OfflineCacheOperationDuration.WithLabelValues("save").Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.OfflineCacheOperationsTotal.WithLabelValues("save", result).Inc()
	return err
}

func (c *Instrumented) Get(ctx context.Context, location *models.LocationData) (*models.WeatherSnapshot, error) {
	start := time.Now()
	snapshot, err := c.next.Get(ctx, location)
	observability.OfflineCacheOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	result := "hit"
	switch {
	case err != nil:
		result = "error"
	case snapshot == nil:
		result = "miss"
	}
	observability.OfflineCacheOperationsTotal.WithLabelValues("get", result).Inc()
	return snapshot, err
}

// Ping forwards to the wrapped cache when it supports health checks.
func (c *Instrumented) Ping() error {
	if p, ok := c.next.(interface{ Ping() error }); ok {
		return p.Ping()
	}
	return nil
}

// Close forwards to the wrapped cache when it holds connections.
func (c *Instrumented) Close() error {
	if cl, ok := c.next.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}
