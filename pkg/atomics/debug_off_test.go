//go:build !shmatomicsdebug

package atomics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-atomics/pkg/shm"
)

type closingValue struct{ view *shm.View }

func (c closingValue) NumberValue() (float64, error) {
	return 1, c.view.Region().Close(context.Background())
}

// Without verification the operation completes on the already validated
// address. Heap regions stay reachable through the view, so this is safe here.
func TestNoVerificationInReleaseBuilds(t *testing.T) {
	require.False(t, verificationBuild)
	e, err := New(&Config{Strategy: StrategyInline, MetricsNamespace: "t"})
	require.NoError(t, err)
	view := newView(t, shm.KindInt32, 2)
	assert.NotPanics(t, func() {
		got, err := e.Store(view, 1, closingValue{view})
		assert.NoError(t, err)
		assert.Equal(t, int64(1), got.Int64())
	})
	_, err = e.Load(view, 1)
	assert.ErrorIs(t, err, ErrNotIntegerSharedView)
}
