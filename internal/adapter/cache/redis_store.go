package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a JSON document store with per-key TTLs, backed by Redis.
// Flows, SRP challenges, authorization codes, and connector state all
// live here; nothing in it survives its TTL.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewStore constructs a store over a dedicated client.
func NewStore(addr, password string, db int) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewStoreWithClient(client, "")
}

// NewStoreWithClient wraps an existing client. Tests hand in a
// miniredis-backed client here.
func NewStoreWithClient(client redis.UniversalClient, keyPrefix string) *Store {
	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) key(key string) string {
	return s.keyPrefix + key
}

// Set encodes the value and persists it with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist value: %w", err)
	}
	return nil
}

// Get decodes the stored value into dest. The boolean reports whether
// the key existed.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	payload, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("load value: %w", err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("decode value: %w", err)
	}
	return true, nil
}

// Delete removes the key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete value: %w", err)
	}
	return nil
}

// Ping verifies the backing connection, used by the lifecycle hook.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
