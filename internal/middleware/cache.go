package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/internal/plugin"
)

// CacheConfig sizes the response cache.
type CacheConfig struct {
	// MaxCostBytes bounds the summed body size of cached responses.
	MaxCostBytes int64
	// TTL bounds the age of a cached response. Zero keeps entries until evicted.
	TTL time.Duration
}

// DefaultCacheConfig returns a 32MiB cache with a one minute TTL.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{MaxCostBytes: 32 << 20, TTL: time.Minute}
}

// Cache serves and stores successful GET responses keyed by method and URL.
// Any successful write invalidates everything stored.
type Cache struct {
	store *ristretto.Cache[string, *httputil.Response]
	ttl   time.Duration
}

var (
	_ plugin.Plugin    = (*Cache)(nil)
	_ plugin.Responder = (*Cache)(nil)
)

func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.MaxCostBytes <= 0 {
		cfg.MaxCostBytes = DefaultCacheConfig().MaxCostBytes
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, *httputil.Response]{
		// ristretto recommends ~10x the expected number of entries; assume 1KiB bodies.
		NumCounters: max(cfg.MaxCostBytes/1024*10, 1000),
		MaxCost:     cfg.MaxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return &Cache{store: store, ttl: cfg.TTL}, nil
}

func (c *Cache) ID() string { return IDCache }

// Prepare marks GET requests using the protocol-default policy as
// return-cache-else-load. Explicit policies are left alone.
func (c *Cache) Prepare(_ context.Context, call *plugin.Call) error {
	if call.Request.Method == http.MethodGet && call.Request.CachePolicy == httputil.CachePolicyDefault {
		call.Request.CachePolicy = httputil.CachePolicyReturnCacheElseLoad
	}
	return nil
}

// Respond returns a stored response for cacheable calls.
func (c *Cache) Respond(_ context.Context, call *plugin.Call) (*httputil.Response, bool) {
	if call.Request.Method != http.MethodGet || call.Request.CachePolicy != httputil.CachePolicyReturnCacheElseLoad {
		return nil, false
	}
	cached, ok := c.store.Get(call.Request.CacheKey())
	if !ok || cached == nil {
		return nil, false
	}
	return copyResponse(cached, true), true
}

// Observe stores fresh 2xx GET responses. Non-GET responses are never cached;
// a successful one clears the store, since a write may change any resource
// (a transfer moves the balances listed under /accounts).
func (c *Cache) Observe(_ context.Context, call *plugin.Call, resp *httputil.Response) error {
	if call.Request.Method != http.MethodGet {
		if resp.OK() {
			c.store.Clear()
		}
		return nil
	}
	if !resp.OK() || resp.FromCache {
		return nil
	}
	cost := int64(len(resp.Body))
	if cost == 0 {
		cost = 1
	}
	if c.store.SetWithTTL(call.Request.CacheKey(), copyResponse(resp, false), cost, c.ttl) {
		c.store.Wait()
	}
	return nil
}

// Clear drops every cached response, e.g. on sign-out.
func (c *Cache) Clear() {
	c.store.Clear()
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	c.store.Close()
}

func copyResponse(resp *httputil.Response, fromCache bool) *httputil.Response {
	return &httputil.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       append([]byte(nil), resp.Body...),
		FromCache:  fromCache,
	}
}
