package visualization

import (
	"image/color"
	"math"
	"sort"
	"strconv"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1"

	"github.com/jilei-hao/scherzo/internal/models"
)

// Colour presets.
const (
	PresetITKSnap  = "itksnap"
	PresetDistinct = "distinct"
)

// RGBA is a colour with components in [0, 1].
type RGBA struct {
	R, G, B, A float64
}

// NRGBA converts c to an 8-bit colour.
func (c RGBA) NRGBA() color.NRGBA {
	q := func(v float64) uint8 { return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255)) }
	return color.NRGBA{R: q(c.R), G: q(c.G), B: q(c.B), A: q(c.A)}
}

func rgb8(r, g, b uint8, a float64) RGBA {
	return RGBA{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255, A: a}
}

// FallbackColor is used for labels a table has no entry for.
var FallbackColor = RGBA{R: 0.9, G: 0.9, B: 0.9, A: 1}

// itkSnap is the default label colour table of ITK-SNAP.
var itkSnap = map[int32]RGBA{
	0:  rgb8(0, 0, 0, 0),
	1:  rgb8(255, 0, 0, 1),
	2:  rgb8(0, 255, 0, 1),
	3:  rgb8(0, 0, 255, 1),
	4:  rgb8(255, 255, 0, 1),
	5:  rgb8(0, 255, 255, 1),
	6:  rgb8(255, 0, 255, 1),
	7:  rgb8(255, 255, 255, 1),
	8:  rgb8(128, 0, 0, 1),
	9:  rgb8(0, 128, 0, 1),
	10: rgb8(0, 0, 128, 1),
	11: rgb8(128, 128, 0, 1),
	12: rgb8(128, 0, 128, 1),
	13: rgb8(0, 128, 128, 1),
	14: rgb8(128, 128, 128, 1),
	15: rgb8(192, 192, 192, 1),
}

// ColorTable maps label values to colours. A table never changes once
// built; With returns a modified copy.
type ColorTable struct {
	colors map[int32]RGBA
}

// ITKSnap returns the ITK-SNAP table.
func ITKSnap() *ColorTable {
	return &ColorTable{colors: itkSnap}
}

// goldenAngle spreads consecutive hues as far apart as possible.
const goldenAngle = 137.50776405003785

// Distinct returns a table giving each label a well separated hue.
func Distinct(labels models.LabelSet) *ColorTable {
	t := &ColorTable{colors: make(map[int32]RGBA, len(labels))}
	for i, label := range labels {
		c := colorful.Hsv(math.Mod(float64(i)*goldenAngle, 360), 0.75, 0.95).Clamped()
		t.colors[label] = RGBA{R: c.R, G: c.G, B: c.B, A: 1}
	}
	return t
}

// NewColorTable builds the named preset for labels and applies overrides,
// which map decimal label values to colour strings such as "#ff8000",
// "rgb(255,128,0)" or "rgba(255,128,0,0.5)".
func NewColorTable(preset string, labels models.LabelSet, overrides map[string]string) (*ColorTable, error) {
	var t *ColorTable
	switch preset {
	case PresetITKSnap, "":
		t = ITKSnap()
	case PresetDistinct:
		t = Distinct(labels)
	default:
		return nil, errors.Errorf("unknown colour preset %q", preset)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		label, err := strconv.ParseInt(k, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "colour override label %q", k)
		}
		c, err := ParseColor(overrides[k])
		if err != nil {
			return nil, err
		}
		t = t.With(int32(label), c)
	}
	return t, nil
}

// ParseColor parses a hex, rgb() or rgba() colour string.
func ParseColor(s string) (RGBA, error) {
	c, err := colors.Parse(s)
	if err != nil {
		return RGBA{}, errors.Wrapf(err, "parsing colour %q", s)
	}
	v := c.ToRGBA()
	return rgb8(v.R, v.G, v.B, v.A), nil
}

// With returns a copy of t mapping label to c.
func (t *ColorTable) With(label int32, c RGBA) *ColorTable {
	next := &ColorTable{colors: make(map[int32]RGBA, len(t.colors)+1)}
	for k, v := range t.colors {
		next.colors[k] = v
	}
	next.colors[label] = c
	return next
}

// Lookup returns the colour of label, or FallbackColor.
func (t *ColorTable) Lookup(label int32) RGBA {
	if c, ok := t.colors[label]; ok {
		return c
	}
	return FallbackColor
}

// Has reports whether label has its own entry.
func (t *ColorTable) Has(label int32) bool {
	_, ok := t.colors[label]
	return ok
}

// Len returns the number of entries.
func (t *ColorTable) Len() int { return len(t.colors) }
