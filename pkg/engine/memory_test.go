package engine

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHeapFirstFit verifies blocks are aligned, reused first-fit and coalesced on release
func TestHeapFirstFit(t *testing.T) {
	h := newHeap(0)

	a, err := h.malloc(10)
	require.NoError(t, err)
	b, err := h.malloc(8)
	require.NoError(t, err)
	c, err := h.malloc(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), a)
	assert.Equal(t, uint32(24), b)
	assert.Equal(t, uint32(32), c)
	assert.Equal(t, 40, h.inUse)

	require.NoError(t, h.release(b))
	d, err := h.malloc(3)
	require.NoError(t, err)
	assert.Equal(t, b, d, "freed block should be reused")

	require.NoError(t, h.release(a))
	require.NoError(t, h.release(d))
	assert.Equal(t, []span{{start: 8, size: 24}}, h.free)

	require.NoError(t, h.release(c))
	assert.Empty(t, h.free)
	assert.Len(t, h.mem, heapBase, "trailing memory should be returned")
	assert.Zero(t, h.inUse)
}

// TestHeapZeroesReusedBlocks verifies a reused block never leaks old contents
func TestHeapZeroesReusedBlocks(t *testing.T) {
	h := newHeap(0)
	a, err := h.malloc(8)
	require.NoError(t, err)
	_, err = h.malloc(8)
	require.NoError(t, err)
	require.NoError(t, h.write(a, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, h.release(a))

	again, err := h.malloc(8)
	require.NoError(t, err)
	require.Equal(t, a, again)
	got, err := h.read(again, 8)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), got)
}

// TestHeapLimit verifies the memory limit is enforced
func TestHeapLimit(t *testing.T) {
	h := newHeap(64)
	_, err := h.malloc(40)
	require.NoError(t, err)
	_, err = h.malloc(24)
	assert.True(t, errors.Is(err, ErrOutOfMemory))

	_, err = h.malloc(16)
	assert.NoError(t, err)
}

// TestHeapInvalidPointers verifies bad frees and out of range access are rejected
func TestHeapInvalidPointers(t *testing.T) {
	h := newHeap(0)
	p, err := h.malloc(16)
	require.NoError(t, err)

	assert.True(t, errors.Is(h.release(p+8), ErrInvalidPointer))
	assert.True(t, errors.Is(h.write(p+8, make([]byte, 16)), ErrInvalidPointer))
	_, err = h.read(0, 1)
	assert.True(t, errors.Is(err, ErrInvalidPointer))

	require.NoError(t, h.write(p+8, make([]byte, 8)))
	require.NoError(t, h.release(p))
	assert.True(t, errors.Is(h.release(p), ErrInvalidPointer), "double free")

	_, err = h.malloc(0)
	assert.Error(t, err)
}
