package shm

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testName(t *testing.T) string {
	return fmt.Sprintf("shm-atomics-%s-%d", t.Name(), os.Getpid())
}

func TestHeapRegions(t *testing.T) {
	shared, err := NewSharedRegion(30)
	require.NoError(t, err)
	assert.True(t, shared.Shared())
	assert.Equal(t, 32, shared.Size())
	assert.Equal(t, "heap", shared.Type())
	assert.Equal(t, -1, shared.Fd())
	assert.Len(t, shared.Bytes(), 32)
	assert.ErrorIs(t, shared.Detach(), ErrNotDetachable)
	assert.True(t, shared.Usable())

	plain, err := NewRegion(16)
	require.NoError(t, err)
	assert.False(t, plain.Shared())
	require.NoError(t, plain.Detach())
	assert.True(t, plain.Detached())
	assert.Nil(t, plain.Base())
	assert.Nil(t, plain.Bytes())
	assert.ErrorIs(t, plain.Detach(), ErrRegionClosed)

	_, err = NewSharedRegion(0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestRegionCloseIsIdempotent(t *testing.T) {
	r, err := NewSharedRegion(8)
	require.NoError(t, err)
	require.NoError(t, r.Close(context.Background()))
	assert.True(t, r.Closed())
	assert.Nil(t, r.Base())
	assert.NoError(t, r.Close(context.Background()))
}

func TestOpenSharesMemory(t *testing.T) {
	ctx := context.Background()
	name := testName(t)
	owner, err := Open(ctx, OpenOptions{Name: name, Size: 64, Create: true, Unlink: true})
	if err != nil {
		t.Skipf("shared memory not available: %v", err)
	}
	defer owner.Close(ctx)

	peer, err := Open(ctx, OpenOptions{Name: name})
	require.NoError(t, err)
	defer peer.Close(ctx)

	assert.True(t, peer.Shared())
	assert.Equal(t, name, peer.Name())
	assert.Equal(t, owner.Size(), peer.Size())
	owner.Bytes()[3] = 42
	assert.Equal(t, byte(42), peer.Bytes()[3])
}

func TestOpenCreateDoesNotResize(t *testing.T) {
	ctx := context.Background()
	name := testName(t)
	owner, err := Open(ctx, OpenOptions{Name: name, Size: 256, Create: true, Unlink: true})
	if err != nil {
		t.Skipf("shared memory not available: %v", err)
	}
	defer owner.Close(ctx)

	again, err := Open(ctx, OpenOptions{Name: name, Size: 16, Create: true})
	require.NoError(t, err)
	defer again.Close(ctx)
	assert.Equal(t, 256, again.Size())
	assert.Equal(t, 256, owner.Size())

	_, err = Open(ctx, OpenOptions{Name: name, Size: 512, Create: true})
	assert.ErrorIs(t, err, ErrRegionTooSmall)
}

func TestOpenValidatesSize(t *testing.T) {
	_, err := Open(context.Background(), OpenOptions{Name: "x", Create: true})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestOpenMissingRegion(t *testing.T) {
	_, err := Open(context.Background(), OpenOptions{Name: testName(t)})
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestOpenWaitsForPeer(t *testing.T) {
	ctx := context.Background()
	name := testName(t)
	created := make(chan *Region, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		r, err := Open(ctx, OpenOptions{Name: name, Size: 8, Create: true, Unlink: true})
		if err != nil {
			created <- nil
			return
		}
		created <- r
	}()

	r, err := Open(ctx, OpenOptions{Name: name, WaitTimeout: 5 * time.Second})
	owner := <-created
	if owner == nil {
		t.Skip("shared memory not available")
	}
	defer owner.Close(ctx)
	require.NoError(t, err)
	defer r.Close(ctx)
	assert.Equal(t, 8, r.Size())
}

func TestOpenWaitTimesOut(t *testing.T) {
	start := time.Now()
	_, err := Open(context.Background(), OpenOptions{Name: testName(t), WaitTimeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Less(t, time.Since(start), 5*time.Second)
}
