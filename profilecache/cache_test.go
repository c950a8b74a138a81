package profilecache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCoalescesConcurrentMisses(t *testing.T) {
	var loads int32
	loader := func(ctx context.Context, key Key) (*BoundProfileProvider, error) {
		atomic.AddInt32(&loads, 1)
		time.Sleep(20 * time.Millisecond)
		return &BoundProfileProvider{ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	c, err := New(loader, "")
	require.NoError(t, err)

	key := Key{ProfileID: "p", ProviderName: "prov"}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), key)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestGetServesStaleWhileRefreshing(t *testing.T) {
	var loads int32
	loader := func(ctx context.Context, key Key) (*BoundProfileProvider, error) {
		n := atomic.AddInt32(&loads, 1)
		expires := time.Now().Add(-time.Hour)
		if n > 1 {
			expires = time.Now().Add(time.Hour)
		}
		return &BoundProfileProvider{ExpiresAt: expires}, nil
	}
	c, err := New(loader, "")
	require.NoError(t, err)
	key := Key{ProfileID: "p"}

	v1, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, v1.ExpiresAt.Before(time.Now()))

	v2, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, v2)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&loads) >= 2
	}, time.Second, 5*time.Millisecond)
}
