package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jilei-hao/scherzo/internal/models"
	"github.com/jilei-hao/scherzo/pkg/isosurface"
)

func testMask() *models.BinaryMask {
	m := &models.BinaryMask{
		Label:     1,
		Data:      make([]int16, 27),
		Size:      [3]int{3, 3, 3},
		Spacing:   [3]float64{1, 1, 1},
		Direction: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
	for i := range m.Data {
		m.Data[i] = -1
	}
	m.Data[13] = 1
	return m
}

// gridMesh returns a mesh with n points and n-2 fan triangles.
func gridMesh(n int) models.Mesh {
	m := models.Mesh{}
	for i := 0; i < n; i++ {
		m.Points = append(m.Points, float32(i)*0.37, float32(i%17)*1.3, float32(i%5)*-2.1)
	}
	for i := 1; i+1 < n; i++ {
		m.Triangles = append(m.Triangles, 0, int32(i), int32(i+1))
	}
	return m
}

// TestCachePutGet verifies stored meshes come back and misses are counted
func TestCachePutGet(t *testing.T) {
	c := New(1 << 20)
	key := Key(testMask(), isosurface.DefaultOptions())

	_, ok := c.Get(key)
	assert.False(t, ok)

	want := gridMesh(50)
	require.NoError(t, c.Put(key, want))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, want, got)

	assert.Equal(t, uint64(1), c.Hits())
	assert.Equal(t, uint64(1), c.Misses())
	assert.Positive(t, c.Entries())

	c.Clear()
	_, ok = c.Get(key)
	assert.False(t, ok)
}

// TestCacheChunksLargeMeshes verifies meshes above the per-entry limit are split and reassembled
func TestCacheChunksLargeMeshes(t *testing.T) {
	c := New(minSize)
	key := Key(testMask(), isosurface.DefaultOptions())

	want := gridMesh(2000)
	require.NoError(t, c.Put(key, want))
	assert.Greater(t, c.Entries(), int64(2))

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

// TestKey verifies the key follows mask content, geometry and options but not the label
func TestKey(t *testing.T) {
	opts := isosurface.DefaultOptions()
	base := Key(testMask(), opts)
	assert.Len(t, base, 8)
	assert.Equal(t, base, Key(testMask(), opts))

	relabeled := testMask()
	relabeled.Label = 7
	assert.Equal(t, base, Key(relabeled, opts))

	data := testMask()
	data.Data[0] = 1
	assert.NotEqual(t, base, Key(data, opts))

	moved := testMask()
	moved.Origin[2] = 4
	assert.NotEqual(t, base, Key(moved, opts))

	smoother := opts
	smoother.SmoothingIterations = 20
	assert.NotEqual(t, base, Key(testMask(), smoother))

	// debug output never changes the geometry
	verbose := opts
	verbose.Debug = true
	assert.Equal(t, base, Key(testMask(), verbose))
}

// TestNilCache verifies a nil cache is a no-op
func TestNilCache(t *testing.T) {
	var c *Cache
	key := Key(testMask(), isosurface.DefaultOptions())
	assert.NoError(t, c.Put(key, gridMesh(4)))
	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Zero(t, c.Hits())
	assert.Zero(t, c.Entries())
	c.Clear()
}
