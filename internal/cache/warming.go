package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-sync-service/internal/models"
	"github.com/kjstillabower/weather-sync-service/internal/observability"
)

// WeatherFetcher fetches a fresh snapshot for a location. client.WeatherSource
// satisfies it; the narrow interface keeps cache free of a client import.
type WeatherFetcher interface {
	Fetch(ctx context.Context, location models.LocationData) (*models.WeatherSnapshot, error)
}

// CacheWarmer prefills an OfflineCache so the first selection of a known
// location can show a provisional value before the network answers.
type CacheWarmer struct {
	fetcher WeatherFetcher
	cache   OfflineCache
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that fetches with fetcher and saves into cache.
func NewCacheWarmer(fetcher WeatherFetcher, cache OfflineCache, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{fetcher: fetcher, cache: cache, logger: logger}
}

// Warm fetches each location concurrently and saves every non-nil result.
// Locations the source has no data for are skipped. Failures are aggregated.
func (w *CacheWarmer) Warm(ctx context.Context, locations []models.LocationData) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("locations", len(locations)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		wg.Add(1)
		go func(loc models.LocationData) {
			defer wg.Done()
			snapshot, err := w.fetcher.Fetch(ctx, loc)
			if err != nil {
				errCh <- fmt.Errorf("warm %s (%s): %w", loc.Name, loc.Key(), err)
				return
			}
			if snapshot == nil {
				return
			}
			if err := w.cache.Save(ctx, snapshot); err != nil {
				errCh <- fmt.Errorf("warm %s (%s): %w", loc.Name, loc.Key(), err)
			}
		}(loc)
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("locations", len(locations)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}
