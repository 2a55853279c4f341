package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/heliannuuthus-iam/authn-api/internal/adapter/cache"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewStoreWithClient(client, "test:"), server
}

func TestStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", payload{Name: "flow", Count: 2}, time.Minute))

	var got payload
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, payload{Name: "flow", Count: 2}, got)
}

func TestStoreMissingKey(t *testing.T) {
	store, _ := newTestStore(t)

	var got payload
	found, err := store.Get(context.Background(), "absent", &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreExpiry(t *testing.T) {
	store, server := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", payload{Name: "flow"}, time.Second))
	server.FastForward(2 * time.Second)

	var got payload
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", payload{Name: "flow"}, time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"))

	var got payload
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, found)
}
