package shm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heapRegistry(opened *atomic.Int32) *Registry {
	r := NewRegistry()
	r.open = func(_ context.Context, opts OpenOptions) (*Region, error) {
		if opts.Size <= 0 {
			return nil, ErrInvalidSize
		}
		opened.Add(1)
		return NewSharedRegion(opts.Size)
	}
	return r
}

func TestRegistryRefCounting(t *testing.T) {
	ctx := context.Background()
	var opened atomic.Int32
	reg := heapRegistry(&opened)

	a, err := reg.Acquire(ctx, OpenOptions{Name: "a", Size: 8})
	require.NoError(t, err)
	b, err := reg.Acquire(ctx, OpenOptions{Name: "a", Size: 8})
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, int32(1), opened.Load())
	assert.Equal(t, 2, reg.Refs("a"))
	assert.Equal(t, []string{"a"}, reg.Names())

	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	require.NoError(t, reg.Release(ctx, "a"))
	assert.False(t, a.Closed())
	require.NoError(t, reg.Release(ctx, "a"))
	assert.True(t, a.Closed())
	assert.Equal(t, 0, reg.Refs("a"))
	assert.ErrorIs(t, reg.Release(ctx, "a"), ErrUnknownRegion)
}

func TestRegistryConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	var opened atomic.Int32
	reg := heapRegistry(&opened)

	const n = 32
	regions := make([]*Region, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := reg.Acquire(ctx, OpenOptions{Name: "shared", Size: 16})
			assert.NoError(t, err)
			regions[i] = r
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), opened.Load())
	assert.Equal(t, n, reg.Refs("shared"))
	for _, r := range regions {
		assert.Same(t, regions[0], r)
	}
	require.NoError(t, reg.Close(ctx))
	assert.True(t, regions[0].Closed())
	assert.Empty(t, reg.Names())
}

func TestRegistryOpenFailure(t *testing.T) {
	ctx := context.Background()
	var opened atomic.Int32
	reg := heapRegistry(&opened)

	_, err := reg.Acquire(ctx, OpenOptions{Name: "bad"})
	assert.True(t, errors.Is(err, ErrInvalidSize))
	assert.Equal(t, 0, reg.Refs("bad"))
	_, ok := reg.Get("bad")
	assert.False(t, ok)

	// A failed entry is dropped, so a later Acquire retries the open.
	_, err = reg.Acquire(ctx, OpenOptions{Name: "bad", Size: 8})
	require.NoError(t, err)
	assert.Equal(t, int32(1), opened.Load())
}
