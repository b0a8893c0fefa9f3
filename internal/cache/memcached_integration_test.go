//go:build integration
// +build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/weather-sync-service/internal/models"
)

// TestMemcachedCache_SaveGet_Integration verifies a snapshot round-trips through
// a real memcached server.
func TestMemcachedCache_SaveGet_Integration(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	val := snapshotAt("Seattle", 47.61, -122.33, 12.5)
	if err := c.Save(ctx, &val); err != nil {
		t.Skipf("Save failed (memcached may not be running): %v", err)
	}

	got, err := c.Get(ctx, &models.LocationData{Latitude: 47.61, Longitude: -122.33})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil, want snapshot")
	}
	if got.Location.Name != val.Location.Name || got.Current.TempC != val.Current.TempC {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

// TestMemcachedCache_Get_Miss_Integration verifies a miss returns (nil, nil).
func TestMemcachedCache_Get_Miss_Integration(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	got, err := c.Get(context.Background(), &models.LocationData{Latitude: -89.99, Longitude: 179.99})
	if err != nil {
		t.Skipf("Get failed (memcached may not be running): %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil for miss", got)
	}
}
