// Package location resolves the device's current location and ranks place
// suggestions for a search query.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-sync-service/internal/models"
	"github.com/kjstillabower/weather-sync-service/internal/observability"
)

// CurrentName is the display name given to the resolved device location,
// including the zero-coordinate fallback.
const CurrentName = "current"

// ErrUnavailable is returned by CurrentLocation when the locator fails and
// fallback is disabled.
var ErrUnavailable = errors.New("current location unavailable")

// Provider supplies the current location and ranked location suggestions.
type Provider interface {
	CurrentLocation(ctx context.Context) (models.LocationData, error)
	Suggestions(ctx context.Context, query string) []models.LocationData
}

// Place is a geocoded candidate. Empty strings mean the field is unknown.
type Place struct {
	Street             string
	AdministrativeArea string
	Country            string
	Latitude           float64
	Longitude          float64
}

// Locator resolves the device position.
type Locator interface {
	Locate(ctx context.Context) (Place, error)
}

// Searcher returns geocoded candidates for a free-text query, best first.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Place, error)
}

// Service implements Provider on a Locator and a Searcher. CurrentLocation and
// Suggestions each serialize their own calls; one never blocks the other.
type Service struct {
	locator           Locator
	searcher          Searcher
	fallbackOnFailure bool
	logger            *zap.Logger

	currentMu sync.Mutex
	suggestMu sync.Mutex
}

// NewService creates a Service. With fallbackOnFailure a locator failure yields
// LocationData{"current", 0, 0}; without it CurrentLocation returns ErrUnavailable.
func NewService(locator Locator, searcher Searcher, fallbackOnFailure bool, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		locator:           locator,
		searcher:          searcher,
		fallbackOnFailure: fallbackOnFailure,
		logger:            logger,
	}
}

// CurrentLocation resolves the device location, named CurrentName.
func (s *Service) CurrentLocation(ctx context.Context) (models.LocationData, error) {
	s.currentMu.Lock()
	defer s.currentMu.Unlock()

	place, err := s.locator.Locate(ctx)
	if err == nil {
		observability.LocationLookupsTotal.WithLabelValues("current", "ok").Inc()
		return models.LocationData{Name: CurrentName, Latitude: place.Latitude, Longitude: place.Longitude}, nil
	}

	log := observability.LoggerFromContext(ctx, s.logger)
	if s.fallbackOnFailure && ctx.Err() == nil {
		observability.LocationLookupsTotal.WithLabelValues("current", "fallback").Inc()
		log.Warn("locator failed, using fallback location", zap.Error(err))
		return models.LocationData{Name: CurrentName}, nil
	}
	observability.LocationLookupsTotal.WithLabelValues("current", "error").Inc()
	log.Warn("locator failed", zap.Error(err))
	return models.LocationData{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Suggestions returns candidates for query. Failures and blank queries yield an
// empty, non-nil list.
func (s *Service) Suggestions(ctx context.Context, query string) []models.LocationData {
	s.suggestMu.Lock()
	defer s.suggestMu.Unlock()

	out := []models.LocationData{}
	if strings.TrimSpace(query) == "" {
		return out
	}
	places, err := s.searcher.Search(ctx, query)
	if err != nil {
		observability.LocationLookupsTotal.WithLabelValues("suggestions", "error").Inc()
		observability.LoggerFromContext(ctx, s.logger).Warn("location search failed", zap.String("query", query), zap.Error(err))
		return out
	}
	for _, p := range places {
		out = append(out, models.LocationData{
			Name:      displayName(p, query),
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		})
	}
	result := "ok"
	if len(out) == 0 {
		result = "empty"
	}
	observability.LocationLookupsTotal.WithLabelValues("suggestions", result).Inc()
	observability.LocationSuggestionsReturned.Observe(float64(len(out)))
	return out
}

// displayName picks street, then administrative area, then country, then the raw query.
func displayName(p Place, query string) string {
	for _, name := range []string{p.Street, p.AdministrativeArea, p.Country} {
		if strings.TrimSpace(name) != "" {
			return name
		}
	}
	return query
}
