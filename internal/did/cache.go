package did

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fairpm/fair-go/internal/telemetry"
)

// DefaultDocumentTTL is how long a resolved document is reused.
const DefaultDocumentTTL = 5 * time.Minute

type cachedDocument struct {
	doc     *Document
	expires time.Time
}

// Cache is a read-through cache of DID Documents keyed by DID string.
// Failed resolutions are never stored. Concurrent misses for the same DID
// share one resolution.
type Cache struct {
	resolver Resolver
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]cachedDocument
	group   singleflight.Group
}

// NewCache wraps resolver with a cache. A non-positive ttl uses
// DefaultDocumentTTL.
func NewCache(resolver Resolver, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultDocumentTTL
	}
	return &Cache{
		resolver: resolver,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]cachedDocument),
	}
}

// Get parses id and returns its document, resolving it on a miss.
func (c *Cache) Get(ctx context.Context, id string) (*Document, error) {
	parsed, err := Parse(id)
	if err != nil {
		return nil, err
	}
	return c.GetDID(ctx, parsed)
}

// GetDID returns the document for an already parsed DID.
func (c *Cache) GetDID(ctx context.Context, id DID) (*Document, error) {
	key := id.String()
	if doc, ok := c.lookup(key); ok {
		telemetry.DocumentCacheRequestsTotal.WithLabelValues("hit").Inc()
		return doc, nil
	}
	telemetry.DocumentCacheRequestsTotal.WithLabelValues("miss").Inc()

	v, err, shared := c.group.Do(key, func() (any, error) {
		// Another caller may have filled the entry between lookup and Do.
		if doc, ok := c.lookup(key); ok {
			return doc, nil
		}
		// The resolution is shared by every waiter, so one caller giving up
		// must not fail the others. The resolver's client timeout bounds it.
		doc, err := c.resolver.Resolve(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cachedDocument{doc: doc, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		slog.Debug("DID resolution failed", "did", key, "error", err, "shared", shared)
		return nil, err
	}
	return v.(*Document), nil
}

func (c *Cache) lookup(key string) (*Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.doc, true
}

// Invalidate drops the cached document for id.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Purge drops every cached document.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]cachedDocument)
	c.mu.Unlock()
}

// Len returns the number of cached documents, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
