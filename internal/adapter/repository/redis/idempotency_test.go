package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore_ClaimsNewKey(t *testing.T) {
	client, mr := newTestRedisClient(t)
	store := NewIdempotencyStore(client)

	exists, resp, err := store.CheckAndSet(context.Background(), "key-1", nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Nil(t, resp)

	val, err := mr.Get(store.prefix + "key-1")
	require.NoError(t, err)
	assert.Equal(t, ProcessingMarker, val)
	assert.Equal(t, time.Minute, mr.TTL(store.prefix+"key-1"))
}

func TestIdempotencyStore_ReturnsStoredResponse(t *testing.T) {
	client, _ := newTestRedisClient(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	_, _, err := store.CheckAndSet(ctx, "key-1", nil, time.Minute)
	require.NoError(t, err)

	exists, resp, err := store.CheckAndSet(ctx, "key-1", nil, time.Minute)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, ProcessingMarker, string(resp))

	require.NoError(t, store.Update(ctx, "key-1", []byte(`{"status":201}`), time.Hour))

	exists, resp, err = store.CheckAndSet(ctx, "key-1", nil, time.Minute)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, `{"status":201}`, string(resp))
}

func TestIdempotencyStore_OneWinnerUnderConcurrency(t *testing.T) {
	client, _ := newTestRedisClient(t)
	store := NewIdempotencyStore(client)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exists, _, err := store.CheckAndSet(context.Background(), "race", nil, time.Minute)
			if err == nil && !exists {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestIdempotencyStore_Release(t *testing.T) {
	client, mr := newTestRedisClient(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	_, _, err := store.CheckAndSet(ctx, "key-1", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "key-1"))
	assert.False(t, mr.Exists(store.prefix+"key-1"))

	exists, _, err := store.CheckAndSet(ctx, "key-1", nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, exists, "a released key can be claimed again")
}
