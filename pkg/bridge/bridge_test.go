package bridge

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMemory is a map-backed Memory that counts calls and can be told to fail.
type fakeMemory struct {
	blocks    map[uint32][]byte
	next      uint32
	mallocs   int
	frees     int
	failAfter int // fail Malloc once this many blocks are live; 0 disables
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{blocks: make(map[uint32][]byte), next: 8}
}

func (m *fakeMemory) Malloc(size int) (uint32, error) {
	if m.failAfter > 0 && len(m.blocks) >= m.failAfter {
		return 0, errors.New("out of memory")
	}
	m.mallocs++
	ptr := m.next
	m.next += uint32(size) + 8
	m.blocks[ptr] = make([]byte, size)
	return ptr, nil
}

func (m *fakeMemory) Free(ptr uint32) error {
	if _, ok := m.blocks[ptr]; !ok {
		return errors.Errorf("double free of %d", ptr)
	}
	m.frees++
	delete(m.blocks, ptr)
	return nil
}

func (m *fakeMemory) Write(ptr uint32, data []byte) error {
	b, ok := m.blocks[ptr]
	if !ok || len(data) > len(b) {
		return errors.New("bad write")
	}
	copy(b, data)
	return nil
}

func (m *fakeMemory) Read(ptr uint32, n int) ([]byte, error) {
	b, ok := m.blocks[ptr]
	if !ok || n > len(b) {
		return nil, errors.New("bad read")
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// TestAllocateDispatch verifies every supported element type survives a round trip
func TestAllocateDispatch(t *testing.T) {
	tests := map[string]struct {
		array any
		typ   ElementType
	}{
		"int8":    {array: []int8{-128, 0, 127}, typ: Int8},
		"uint8":   {array: []uint8{0, 1, 255}, typ: Uint8},
		"int16":   {array: []int16{-1, 1, math.MaxInt16}, typ: Int16},
		"uint16":  {array: []uint16{0, 512, math.MaxUint16}, typ: Uint16},
		"int32":   {array: []int32{math.MinInt32, 0, 42}, typ: Int32},
		"uint32":  {array: []uint32{1, 2, math.MaxUint32}, typ: Uint32},
		"float32": {array: []float32{-0.5, 1.25, 3e8}, typ: Float32},
		"float64": {array: []float64{math.Pi, -math.E, 1e-300}, typ: Float64},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			mem := newFakeMemory()
			b := New(mem)

			h, err := b.Allocate(tc.array)
			require.NoError(t, err)
			assert.Equal(t, tc.typ, h.Type)
			assert.Equal(t, 3, h.Count)

			got, err := b.ReadBack(h, tc.typ, 3)
			require.NoError(t, err)
			assert.Equal(t, tc.array, got)

			require.NoError(t, b.Release(h))
			assert.Empty(t, mem.blocks)
		})
	}
}

// TestAllocateUnsupported verifies unsupported arrays are rejected without allocating
func TestAllocateUnsupported(t *testing.T) {
	mem := newFakeMemory()
	b := New(mem)

	for _, array := range []any{[]int64{1}, []string{"a"}, 3.0, nil, []complex64{1}} {
		_, err := b.Allocate(array)
		assert.ErrorIs(t, err, ErrUnsupportedBufferType)
		assert.ErrorIs(t, err, ErrBufferMarshal)
	}
	assert.Zero(t, mem.mallocs)
}

// TestAllocateFailure verifies allocation failures surface as marshal errors
func TestAllocateFailure(t *testing.T) {
	mem := newFakeMemory()
	mem.failAfter = 1
	b := New(mem)

	_, err := b.Allocate([]int16{1})
	require.NoError(t, err)
	_, err = b.Allocate([]int16{1})
	assert.ErrorIs(t, err, ErrBufferMarshal)

	var me *MarshalError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "allocate", me.Op)
}

// TestReadBackAs verifies the typed read helper
func TestReadBackAs(t *testing.T) {
	b := New(newFakeMemory())
	h, err := b.Allocate([]float32{1, 2, 3, 4})
	require.NoError(t, err)

	got, err := ReadBackAs[float32](b, h, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got)

	_, err = ReadBackAs[float32](b, h, 5)
	assert.ErrorIs(t, err, ErrBufferMarshal)

	_, err = b.ReadBack(Handle{}, Float32, 1)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

// TestEmptyArray verifies zero-length arrays still get a releasable handle
func TestEmptyArray(t *testing.T) {
	mem := newFakeMemory()
	b := New(mem)

	h, err := b.Allocate([]float64{})
	require.NoError(t, err)
	assert.False(t, h.IsZero())
	assert.Zero(t, h.Count)

	got, err := b.ReadBack(h, Float64, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{}, got)
	require.NoError(t, b.Release(h))
}

// TestScopeReleasesAll verifies every allocation is matched by one release
func TestScopeReleasesAll(t *testing.T) {
	mem := newFakeMemory()
	scope := New(mem).NewScope()

	_, err := scope.Allocate([]uint16{4, 4, 4})
	require.NoError(t, err)
	_, err = scope.Allocate([]float64{1, 1, 1})
	require.NoError(t, err)
	out, err := scope.Reserve(Float32, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, out.Count)
	assert.Equal(t, 3, scope.Len())

	require.NoError(t, scope.Close())
	assert.Equal(t, mem.mallocs, mem.frees)
	assert.Empty(t, mem.blocks)

	// idempotent, and closed for business
	require.NoError(t, scope.Close())
	_, err = scope.Allocate([]int8{1})
	assert.ErrorIs(t, err, ErrBufferMarshal)
	assert.Equal(t, mem.mallocs, mem.frees)
}

// TestScopeReleaseOnError verifies handles are released when a later allocation fails
func TestScopeReleaseOnError(t *testing.T) {
	mem := newFakeMemory()
	mem.failAfter = 2

	attempt := func() (err error) {
		scope := New(mem).NewScope()
		defer func() {
			if cerr := scope.Close(); err == nil {
				err = cerr
			}
		}()
		for i := 0; i < 4; i++ {
			if _, err := scope.Allocate([]int16{1, -1}); err != nil {
				return err
			}
		}
		return nil
	}

	err := attempt()
	assert.ErrorIs(t, err, ErrBufferMarshal)
	assert.Equal(t, 2, mem.mallocs)
	assert.Equal(t, 2, mem.frees)
	assert.Empty(t, mem.blocks)
}

// TestScopeEarlyRelease verifies a handle released early is not released twice
func TestScopeEarlyRelease(t *testing.T) {
	mem := newFakeMemory()
	scope := New(mem).NewScope()

	h, err := scope.Allocate([]int32{1})
	require.NoError(t, err)
	require.NoError(t, scope.Release(h))
	assert.ErrorIs(t, scope.Release(h), ErrInvalidHandle)
	require.NoError(t, scope.Close())
	assert.Equal(t, 1, mem.frees)
}

// TestElementType verifies sizes and names
func TestElementType(t *testing.T) {
	assert.Equal(t, 2, Int16.Size())
	assert.Equal(t, 8, Float64.Size())
	assert.Equal(t, 0, Invalid.Size())
	assert.Equal(t, "uint16", Uint16.String())
	assert.Equal(t, "ElementType(99)", ElementType(99).String())
	assert.Equal(t, Float32, TypeOf[float32]())
	assert.Equal(t, Uint8, TypeOf[byte]())

	_, err := New(newFakeMemory()).Reserve(Invalid, 3)
	assert.ErrorIs(t, err, ErrUnsupportedBufferType)
}
