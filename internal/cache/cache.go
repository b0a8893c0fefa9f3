package cache

import (
	"context"
	"sync"

	"github.com/kjstillabower/weather-sync-service/internal/models"
)

// OfflineCache holds the last-known snapshot per location key for offline display.
// Save keys by the snapshot's own coordinates; Get keys by the requested location's
// coordinates. A miss is (nil, nil), never an error.
type OfflineCache interface {
	Save(ctx context.Context, snapshot *models.WeatherSnapshot) error
	Get(ctx context.Context, location *models.LocationData) (*models.WeatherSnapshot, error)
}

// InMemoryCache implements OfflineCache with a mutex-guarded map.
// Entries live for the process lifetime and are never evicted.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]models.WeatherSnapshot
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]models.WeatherSnapshot),
	}
}

// Save stores a copy of snapshot under its location key, replacing any previous entry.
// A nil snapshot is ignored.
func (c *InMemoryCache) Save(ctx context.Context, snapshot *models.WeatherSnapshot) error {
	if snapshot == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[snapshot.Key()] = *snapshot
	return nil
}

// Get returns a copy of the snapshot stored for location, or nil if absent or location is nil.
func (c *InMemoryCache) Get(ctx context.Context, location *models.LocationData) (*models.WeatherSnapshot, error) {
	if location == nil {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[location.Key()]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Len returns the number of stored entries.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
