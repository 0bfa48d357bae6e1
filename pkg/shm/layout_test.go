package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutAlignsViews(t *testing.T) {
	r, err := NewSharedRegion(64)
	require.NoError(t, err)
	l, err := NewLayout(r,
		ViewSpec{Name: "flags", Kind: KindUint8, Length: 3},
		ViewSpec{Name: "small", Kind: KindInt16, Length: 1},
		ViewSpec{Name: "wide", Kind: KindUint64, Length: 2},
	)
	require.NoError(t, err)

	flags, ok := l.View("flags")
	require.True(t, ok)
	assert.Equal(t, uintptr(0), flags.ByteOffset())
	small, _ := l.View("small")
	assert.Equal(t, uintptr(4), small.ByteOffset())
	wide, _ := l.View("wide")
	assert.Equal(t, uintptr(8), wide.ByteOffset())

	assert.Equal(t, LayoutStats{Views: 3, Used: 24, Free: 40}, l.Stats())
	views := l.Views()
	require.Len(t, views, 3)
	assert.Same(t, wide, views[2])
}

func TestLayoutErrors(t *testing.T) {
	r, err := NewSharedRegion(16)
	require.NoError(t, err)
	l, err := NewLayout(r)
	require.NoError(t, err)

	_, err = l.Alloc("a", KindUint32, 3)
	require.NoError(t, err)
	_, err = l.Alloc("a", KindUint8, 1)
	assert.Error(t, err)
	_, err = l.Alloc("b", KindUint64, 1)
	assert.ErrorIs(t, err, ErrLayoutExhausted)
	_, err = l.Alloc("c", ElementKind(42), 1)
	assert.Error(t, err)

	_, ok := l.View("b")
	assert.False(t, ok)
	assert.Equal(t, 4, l.Stats().Free)

	_, err = NewLayout(r, ViewSpec{Name: "huge", Kind: KindUint8, Length: 17})
	assert.ErrorIs(t, err, ErrLayoutExhausted)
}

func TestLayoutsMatchAcrossPeers(t *testing.T) {
	r, err := NewSharedRegion(32)
	require.NoError(t, err)
	specs := []ViewSpec{{"x", KindInt8, 5}, {"y", KindInt32, 2}}
	a, err := NewLayout(r, specs...)
	require.NoError(t, err)
	b, err := NewLayout(r, specs...)
	require.NoError(t, err)
	for i, v := range a.Views() {
		assert.Equal(t, v.Pointer(), b.Views()[i].Pointer())
	}
}

func TestLayoutSize(t *testing.T) {
	specs := []ViewSpec{
		{Name: "flags", Kind: KindUint8, Length: 3},
		{Name: "small", Kind: KindInt16, Length: 1},
		{Name: "wide", Kind: KindUint64, Length: 2},
	}
	assert.Equal(t, 24, LayoutSize(specs...))
	assert.Equal(t, 0, LayoutSize())

	r, err := NewSharedRegion(LayoutSize(specs...))
	require.NoError(t, err)
	l, err := NewLayout(r, specs...)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Stats().Free)
}
