package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-sync-service/internal/models"
)

const keyPrefix = "weather-sync:"

// memcacheClient is the subset of *memcache.Client used by MemcachedCache.
type memcacheClient interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Ping() error
	Close() error
}

// MemcachedCache implements OfflineCache on memcached. Entries are stored
// without expiration and are lost whenever memcached evicts or restarts.
type MemcachedCache struct {
	client memcacheClient
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		return nil, fmt.Errorf("memcached: no server addresses in %q", addrs)
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcached keys may not contain spaces or control characters; coordinate keys never do.
func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Save implements OfflineCache.Save. A nil snapshot is ignored.
func (c *MemcachedCache) Save(ctx context.Context, snapshot *models.WeatherSnapshot) error {
	if snapshot == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("cache save: encode: %w", err)
	}
	if err := c.client.Set(&memcache.Item{Key: c.key(snapshot.Key()), Value: raw}); err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	return nil
}

// Get implements OfflineCache.Get. A miss or nil location returns (nil, nil).
func (c *MemcachedCache) Get(ctx context.Context, location *models.LocationData) (*models.WeatherSnapshot, error) {
	if location == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := c.client.Get(c.key(location.Key()))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var snapshot models.WeatherSnapshot
	if err := json.Unmarshal(item.Value, &snapshot); err != nil {
		return nil, fmt.Errorf("cache get: decode: %w", err)
	}
	return &snapshot, nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
