package isosurface

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jilei-hao/scherzo/internal/models"
	"github.com/jilei-hao/scherzo/pkg/bridge"
	"github.com/jilei-hao/scherzo/pkg/engine"
)

// trackingEngine wraps a real engine and records every Malloc and Free.
// failAt makes the n-th Malloc fail.
type trackingEngine struct {
	*engine.Module

	mu      sync.Mutex
	live    map[uint32]bool
	mallocs int
	frees   int
	failAt  int
}

func newTrackingEngine(t *testing.T) *trackingEngine {
	t.Helper()
	m, err := engine.Load(context.Background(), engine.Options{MemoryLimit: 256 << 20})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return &trackingEngine{Module: m, live: make(map[uint32]bool)}
}

func (e *trackingEngine) Malloc(size int) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAt > 0 && e.mallocs+1 == e.failAt {
		e.failAt = 0
		return 0, engine.ErrOutOfMemory
	}
	ptr, err := e.Module.Malloc(size)
	if err != nil {
		return 0, err
	}
	e.mallocs++
	e.live[ptr] = true
	return ptr, nil
}

func (e *trackingEngine) Free(ptr uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.live[ptr] {
		return errors.Errorf("free of untracked pointer %d", ptr)
	}
	delete(e.live, ptr)
	e.frees++
	return e.Module.Free(ptr)
}

func (e *trackingEngine) requireBalanced(t *testing.T) {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.Equal(t, e.mallocs, e.frees, "every allocation must be released")
	require.Empty(t, e.live)
	require.Zero(t, e.Module.LiveAllocations())
	require.Zero(t, e.Module.LiveGenerators())
}

// sphereMask builds a size^3 mask with a ball of the given radius centred in the grid.
func sphereMask(label int32, size int, radius float64) *models.BinaryMask {
	m := &models.BinaryMask{
		Label:     label,
		Data:      make([]int16, size*size*size),
		Size:      [3]int{size, size, size},
		Spacing:   [3]float64{1, 1, 1},
		Direction: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
	c := float64(size-1) / 2
	i := 0
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx, dy, dz := float64(x)-c, float64(y)-c, float64(z)-c
				m.Data[i] = -1
				if math.Sqrt(dx*dx+dy*dy+dz*dz) <= radius {
					m.Data[i] = 1
				}
				i++
			}
		}
	}
	return m
}

// TestGenerateSphere verifies a sphere mask yields a valid closed mesh and releases everything
func TestGenerateSphere(t *testing.T) {
	e := newTrackingEngine(t)
	g := NewGenerator(e)

	mesh, err := g.Generate(context.Background(), sphereMask(1, 16, 5), DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, mesh.Validate())
	assert.Greater(t, mesh.PointCount(), 10)
	assert.Greater(t, mesh.TriangleCount(), 10)
	e.requireBalanced(t)

	// 5 input arrays plus the point and index buffers
	assert.Equal(t, 7, e.mallocs)
}

// TestGenerateEmptyMask verifies an all-background mask gives an empty mesh without error
func TestGenerateEmptyMask(t *testing.T) {
	e := newTrackingEngine(t)
	g := NewGenerator(e)

	mask := sphereMask(2, 8, 3)
	for i := range mask.Data {
		mask.Data[i] = -1
	}
	mesh, err := g.Generate(context.Background(), mask, DefaultOptions())
	require.NoError(t, err)
	assert.Zero(t, mesh.PointCount())
	assert.Zero(t, mesh.TriangleCount())
	e.requireBalanced(t)
}

// TestGenerateReleasesOnAllocationFailure verifies no buffer leaks whichever allocation fails
func TestGenerateReleasesOnAllocationFailure(t *testing.T) {
	for failAt := 1; failAt <= 7; failAt++ {
		e := newTrackingEngine(t)
		e.failAt = failAt
		g := NewGenerator(e)

		_, err := g.Generate(context.Background(), sphereMask(1, 12, 4), DefaultOptions())
		require.Error(t, err, "failAt=%d", failAt)
		assert.True(t, errors.Is(err, bridge.ErrBufferMarshal), "failAt=%d: %v", failAt, err)
		assert.True(t, errors.Is(err, engine.ErrOutOfMemory), "failAt=%d: %v", failAt, err)
		e.requireBalanced(t)
		assert.Equal(t, failAt-1, e.mallocs)
	}
}

// TestGenerateEngineUnavailable verifies a closed engine reports initialization failure
func TestGenerateEngineUnavailable(t *testing.T) {
	e := newTrackingEngine(t)
	e.Module.Close()

	_, err := NewGenerator(e).Generate(context.Background(), sphereMask(1, 8, 3), DefaultOptions())
	assert.True(t, errors.Is(err, ErrEngineInitializationFailed))
	assert.Zero(t, e.mallocs)
}

// TestGenerateRejects verifies bad masks and options fail before touching the engine
func TestGenerateRejects(t *testing.T) {
	e := newTrackingEngine(t)
	g := NewGenerator(e)
	ctx := context.Background()

	big := &models.BinaryMask{Data: make([]int16, 70000), Size: [3]int{70000, 1, 1}}
	_, err := g.Generate(ctx, big, DefaultOptions())
	assert.True(t, errors.Is(err, bridge.ErrBufferMarshal))

	short := sphereMask(1, 8, 3)
	short.Data = short.Data[:100]
	_, err = g.Generate(ctx, short, DefaultOptions())
	assert.True(t, errors.Is(err, ErrExtractionFailed))

	_, err = g.Generate(ctx, nil, DefaultOptions())
	assert.True(t, errors.Is(err, ErrExtractionFailed))

	opts := DefaultOptions()
	opts.SmoothingPassband = 0
	_, err = g.Generate(ctx, sphereMask(1, 8, 3), opts)
	assert.True(t, errors.Is(err, ErrInvalidOptions))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = g.Generate(cancelled, sphereMask(1, 8, 3), DefaultOptions())
	assert.True(t, errors.Is(err, context.Canceled))

	e.requireBalanced(t)
}

// TestGenerateDeterministic verifies concurrent extraction matches sequential output exactly
func TestGenerateDeterministic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrent extraction in short mode")
	}
	e := newTrackingEngine(t)
	g := NewGenerator(e)
	ctx := context.Background()

	masks := []*models.BinaryMask{sphereMask(1, 14, 3), sphereMask(2, 14, 4), sphereMask(3, 14, 5)}
	want := make([]models.Mesh, len(masks))
	for i, m := range masks {
		var err error
		want[i], err = g.Generate(ctx, m, DefaultOptions())
		require.NoError(t, err)
	}

	got := make([]models.Mesh, len(masks))
	var eg errgroup.Group
	for i, m := range masks {
		eg.Go(func() error {
			var err error
			got[i], err = g.Generate(ctx, m, DefaultOptions())
			return err
		})
	}
	require.NoError(t, eg.Wait())
	assert.Equal(t, want, got)
	e.requireBalanced(t)
}

// TestGenerateRASTransform verifies the RAS option flips x and y of the surface
func TestGenerateRASTransform(t *testing.T) {
	e := newTrackingEngine(t)
	g := NewGenerator(e)
	ctx := context.Background()

	mask := sphereMask(1, 12, 3)
	mask.Origin = [3]float64{5, 6, 7}
	plain, err := g.Generate(ctx, mask, DefaultOptions())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.ApplyRASTransform = true
	ras, err := g.Generate(ctx, mask, opts)
	require.NoError(t, err)

	require.Equal(t, plain.PointCount(), ras.PointCount())
	for i := 0; i < plain.PointCount(); i++ {
		p, q := plain.Point(i), ras.Point(i)
		assert.InDelta(t, -p[0], q[0], 1e-3)
		assert.InDelta(t, -p[1], q[1], 1e-3)
		assert.InDelta(t, p[2], q[2], 1e-3)
	}
	e.requireBalanced(t)
}

// TestParseOptions verifies defaults for omitted keys and that unknown keys are ignored
func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(map[string]any{
		"gaussianSigma":       1.5,
		"smoothingIterations": 20.0,
		"debug":               true,
		"colour":              "blue",
	})
	require.NoError(t, err)

	want := DefaultOptions()
	want.GaussianSigma = 1.5
	want.SmoothingIterations = 20
	want.Debug = true
	assert.Equal(t, want, opts)

	opts, err = ParseOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)

	_, err = ParseOptions(map[string]any{"smoothingIterations": "many"})
	assert.Error(t, err)
}

// TestOptionsValidate verifies the accepted parameter ranges
func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	tests := map[string]func(*Options){
		"negative sigma":     func(o *Options) { o.GaussianSigma = -1 },
		"zero passband":      func(o *Options) { o.SmoothingPassband = 0 },
		"full reduction":     func(o *Options) { o.DecimationTargetReduction = 1 },
		"negative iteration": func(o *Options) { o.SmoothingIterations = -1 },
		"wide feature angle": func(o *Options) { o.FeatureAngle = 181 },
		"negative edge":      func(o *Options) { o.EdgeAngle = -5 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			o := DefaultOptions()
			mutate(&o)
			assert.True(t, errors.Is(o.Validate(), ErrInvalidOptions))
		})
	}
}
