package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/heliannuuthus-iam/authn-api/internal/domain"
)

// ConfigLoader fetches tenant configuration from the config service.
type ConfigLoader interface {
	FetchClientConfig(ctx context.Context, clientID string) (*domain.ClientConfig, error)
	FetchClientIdpConfig(ctx context.Context, clientID string, kind domain.ConnectorKind) (*domain.ClientIdpConfig, error)
	FetchChallengeConfig(ctx context.Context, clientID string) (*domain.ChallengeConfig, error)
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// ConfigCache is a read-through in-process cache in front of the config
// service. Entries expire after a fixed TTL and concurrent loads for
// the same key collapse into a single upstream call.
type ConfigCache struct {
	loader ConfigLoader
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
	flight  singleflight.Group
}

// NewConfigCache constructs a cache over the loader.
func NewConfigCache(loader ConfigLoader, ttl time.Duration) *ConfigCache {
	return &ConfigCache{
		loader:  loader,
		ttl:     ttl,
		entries: map[string]cacheEntry{},
	}
}

func (c *ConfigCache) load(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	value, err, _ := c.flight.Do(key, func() (any, error) {
		fetched, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{value: fetched, expiresAt: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// ClientConfig resolves the OAuth client registration for clientID.
func (c *ConfigCache) ClientConfig(ctx context.Context, clientID string) (*domain.ClientConfig, error) {
	value, err := c.load(ctx, "client:"+clientID, func(ctx context.Context) (any, error) {
		return c.loader.FetchClientConfig(ctx, clientID)
	})
	if err != nil {
		return nil, fmt.Errorf("load client config: %w", err)
	}
	return value.(*domain.ClientConfig), nil
}

// ClientIdpConfig resolves the upstream connector registration for the
// client and connector kind.
func (c *ConfigCache) ClientIdpConfig(ctx context.Context, clientID string, kind domain.ConnectorKind) (*domain.ClientIdpConfig, error) {
	value, err := c.load(ctx, "idp:"+clientID+":"+string(kind), func(ctx context.Context) (any, error) {
		return c.loader.FetchClientIdpConfig(ctx, clientID, kind)
	})
	if err != nil {
		return nil, fmt.Errorf("load idp config: %w", err)
	}
	return value.(*domain.ClientIdpConfig), nil
}

// ChallengeConfig resolves the client's challenge delivery settings.
func (c *ConfigCache) ChallengeConfig(ctx context.Context, clientID string) (*domain.ChallengeConfig, error) {
	value, err := c.load(ctx, "challenge:"+clientID, func(ctx context.Context) (any, error) {
		return c.loader.FetchChallengeConfig(ctx, clientID)
	})
	if err != nil {
		return nil, fmt.Errorf("load challenge config: %w", err)
	}
	return value.(*domain.ChallengeConfig), nil
}

// Invalidate drops every cached entry for the client.
func (c *ConfigCache) Invalidate(clientID string, kinds ...domain.ConnectorKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, "client:"+clientID)
	delete(c.entries, "challenge:"+clientID)
	for _, kind := range kinds {
		delete(c.entries, "idp:"+clientID+":"+string(kind))
	}
}
