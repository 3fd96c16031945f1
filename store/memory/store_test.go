package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fourlimit/fourlimit/store"
	"github.com/fourlimit/fourlimit/store/memory"
)

var _ store.Cache = (*memory.Cache)(nil)

func TestMemoryCache_MissReturnsNil(t *testing.T) {
	c := memory.New()

	value, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, value, "a miss must be (nil, nil), not an error")
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := memory.New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 0))

	value, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_CopiesOnBothSides(t *testing.T) {
	c := memory.New()
	ctx := context.Background()

	in := []byte("original")
	require.NoError(t, c.Set(ctx, "k", in, 0))
	in[0] = 'X' // caller reuses its buffer

	out, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), out, "Set must copy the value")

	out[0] = 'Y' // caller scribbles on the result
	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again, "Get must return a copy")
}

func TestMemoryCache_TTLExpires(t *testing.T) {
	c := memory.New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ttl-key", []byte("v"), 30*time.Millisecond))

	value, err := c.Get(ctx, "ttl-key")
	require.NoError(t, err)
	assert.NotNil(t, value, "value should be visible before expiry")

	time.Sleep(60 * time.Millisecond)

	value, err = c.Get(ctx, "ttl-key")
	require.NoError(t, err)
	assert.Nil(t, value, "value should expire after its TTL")
}

func TestMemoryCache_ZeroTTLNeverExpires(t *testing.T) {
	c := memory.New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	time.Sleep(20 * time.Millisecond)

	value, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotNil(t, value)
}

func TestMemoryCache_OverwriteKeepsLatest(t *testing.T) {
	c := memory.New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("first"), 0))
	require.NoError(t, c.Set(ctx, "k", []byte("second"), 0))

	value, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), value)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := memory.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "shared", []byte("v"), time.Minute)
				_, _ = c.Get(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	value, err := c.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}
