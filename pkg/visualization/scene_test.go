package visualization

import (
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jilei-hao/scherzo/internal/models"
)

func triangle(x float32) models.Mesh {
	return models.Mesh{Points: []float32{x, 0, 0, x + 1, 0, 0, x, 1, 0}, Triangles: []int32{0, 1, 2}}
}

// TestITKSnap verifies the preset entries and the fallback
func TestITKSnap(t *testing.T) {
	table := ITKSnap()
	assert.Equal(t, 16, table.Len())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, table.Lookup(1).NRGBA())
	assert.Equal(t, color.NRGBA{R: 192, G: 192, B: 192, A: 255}, table.Lookup(15).NRGBA())
	assert.Zero(t, table.Lookup(0).A)
	assert.False(t, table.Has(16))
	assert.Equal(t, FallbackColor, table.Lookup(16))
	assert.Equal(t, FallbackColor, table.Lookup(-3))
}

// TestDistinct verifies generated colours are opaque and different
func TestDistinct(t *testing.T) {
	labels := models.LabelSet{1, 2, 3, 7, 40}
	table := Distinct(labels)
	assert.Equal(t, len(labels), table.Len())

	seen := map[color.NRGBA]bool{}
	for _, l := range labels {
		c := table.Lookup(l)
		assert.Equal(t, 1.0, c.A)
		for _, v := range []float64{c.R, c.G, c.B} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		seen[c.NRGBA()] = true
	}
	assert.Len(t, seen, len(labels))
	assert.Equal(t, FallbackColor, table.Lookup(0))
}

// TestNewColorTable verifies presets and overrides
func TestNewColorTable(t *testing.T) {
	table, err := NewColorTable(PresetITKSnap, nil, map[string]string{
		"1":  "#00ff00",
		"20": "rgba(255,128,0,0.5)",
	})
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, table.Lookup(1).NRGBA())
	assert.Equal(t, color.NRGBA{R: 255, G: 128, A: 128}, table.Lookup(20).NRGBA())
	// the preset itself is untouched
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, ITKSnap().Lookup(1).NRGBA())

	table, err = NewColorTable(PresetDistinct, models.LabelSet{1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	_, err = NewColorTable("rainbow", nil, nil)
	assert.Error(t, err)
	_, err = NewColorTable(PresetITKSnap, nil, map[string]string{"one": "#fff"})
	assert.Error(t, err)
	_, err = NewColorTable(PresetITKSnap, nil, map[string]string{"1": "blue-ish"})
	assert.Error(t, err)
}

// TestSceneRebind verifies time point changes swap meshes by label value
func TestSceneRebind(t *testing.T) {
	set := models.ModelSet{
		{{Label: 1, Mesh: triangle(0)}, {Label: 3, Mesh: triangle(30)}},
		{{Label: 1, Mesh: triangle(1)}, {Label: 2, Mesh: triangle(20)}},
	}
	scene, err := NewScene(set, ITKSnap())
	require.NoError(t, err)
	assert.Equal(t, 2, scene.TimePoints())

	surfaces := scene.Surfaces()
	require.Len(t, surfaces, 3)
	assert.Equal(t, []int32{1, 2, 3}, []int32{surfaces[0].Label, surfaces[1].Label, surfaces[2].Label})
	assert.Equal(t, ITKSnap().Lookup(2), surfaces[1].Color)

	assert.Equal(t, 0, scene.CurrentTimePoint())
	assert.Equal(t, triangle(0), surfaces[0].Mesh)
	assert.True(t, surfaces[1].Mesh.IsEmpty())
	assert.Equal(t, triangle(30), surfaces[2].Mesh)

	require.NoError(t, scene.SetTimePoint(1))
	assert.Equal(t, 1, scene.CurrentTimePoint())
	assert.Equal(t, triangle(1), surfaces[0].Mesh)
	assert.Equal(t, triangle(20), surfaces[1].Mesh)
	assert.True(t, surfaces[2].Mesh.IsEmpty())

	// the same surfaces are reused
	again := scene.Surfaces()
	for i := range surfaces {
		assert.Same(t, surfaces[i], again[i])
	}

	assert.ErrorIs(t, scene.SetTimePoint(2), ErrTimePoint)
	assert.ErrorIs(t, scene.SetTimePoint(-1), ErrTimePoint)
	assert.Equal(t, 1, scene.CurrentTimePoint())

	_, err = NewScene(nil, ITKSnap())
	assert.ErrorIs(t, err, ErrTimePoint)
}

// TestSceneStep verifies stepping wraps in both directions
func TestSceneStep(t *testing.T) {
	set := make(models.ModelSet, 4)
	for i := range set {
		set[i] = models.TimePointModels{{Label: 1, Mesh: triangle(float32(i))}}
	}
	scene, err := NewScene(set, ITKSnap())
	require.NoError(t, err)

	assert.Equal(t, 1, scene.Step(1))
	assert.Equal(t, 3, scene.Step(2))
	assert.Equal(t, 0, scene.Step(1))
	assert.Equal(t, 3, scene.Step(-1))
	assert.Equal(t, 1, scene.Step(-6))
	assert.Equal(t, triangle(1), scene.Surfaces()[0].Mesh)
}

// TestScenePlay verifies playback advances until cancelled
func TestScenePlay(t *testing.T) {
	set := models.ModelSet{
		{{Label: 1, Mesh: triangle(0)}},
		{{Label: 1, Mesh: triangle(1)}},
		{{Label: 1, Mesh: triangle(2)}},
	}
	scene, err := NewScene(set, ITKSnap())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var frames []int
	err = scene.Play(ctx, time.Millisecond, func(tp int) {
		frames = append(frames, tp)
		if len(frames) == 5 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{1, 2, 0, 1, 2}, frames)

	assert.Error(t, scene.Play(context.Background(), 0, nil))
}
