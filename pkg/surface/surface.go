// Package surface holds the numerical routines that turn a signed scalar
// field into a smoothed, decimated triangle surface: Gaussian pre-smoothing,
// isosurface extraction, point merging, windowed-sinc smoothing and quadric
// decimation.
package surface

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// Field is a scalar image on a regular grid, x fastest.
type Field struct {
	Data      []float32
	Dims      [3]int
	Spacing   [3]float64
	Origin    [3]float64
	Direction [9]float64
}

func (f *Field) index(x, y, z int) int {
	return x + f.Dims[0]*(y+f.Dims[1]*z)
}

// IndexToPhysical maps a continuous grid index to physical space:
// origin + direction * (spacing * index).
func (f *Field) IndexToPhysical(i r3.Vec) r3.Vec {
	s := r3.Vec{X: i.X * f.Spacing[0], Y: i.Y * f.Spacing[1], Z: i.Z * f.Spacing[2]}
	d := f.Direction
	return r3.Vec{
		X: f.Origin[0] + d[0]*s.X + d[1]*s.Y + d[2]*s.Z,
		Y: f.Origin[1] + d[3]*s.X + d[4]*s.Y + d[5]*s.Z,
		Z: f.Origin[2] + d[6]*s.X + d[7]*s.Y + d[8]*s.Z,
	}
}

// handedness is the sign of det(direction) * spacing product. A negative value
// means the index-to-physical map mirrors the grid.
func (f *Field) handedness() float64 {
	d := f.Direction
	det := d[0]*(d[4]*d[8]-d[5]*d[7]) - d[1]*(d[3]*d[8]-d[5]*d[6]) + d[2]*(d[3]*d[7]-d[4]*d[6])
	return det * f.Spacing[0] * f.Spacing[1] * f.Spacing[2]
}

func (f *Field) validate() error {
	n := f.Dims[0] * f.Dims[1] * f.Dims[2]
	if f.Dims[0] <= 0 || f.Dims[1] <= 0 || f.Dims[2] <= 0 {
		return errors.Errorf("invalid dims %v", f.Dims)
	}
	if len(f.Data) != n {
		return errors.Errorf("field has %d values, dims %v need %d", len(f.Data), f.Dims, n)
	}
	for i, s := range f.Spacing {
		if !(s > 0) || math.IsInf(s, 0) {
			return errors.Errorf("invalid spacing[%d] = %v", i, s)
		}
	}
	if f.handedness() == 0 {
		return errors.New("direction matrix is singular")
	}
	return nil
}

// PolyData is an indexed triangle surface.
type PolyData struct {
	Points    []r3.Vec
	Triangles [][3]int
}

// Flatten returns the surface as flat float32 xyz and int32 index buffers.
func (p *PolyData) Flatten() ([]float32, []int32) {
	pts := make([]float32, 0, 3*len(p.Points))
	for _, v := range p.Points {
		pts = append(pts, float32(v.X), float32(v.Y), float32(v.Z))
	}
	tris := make([]int32, 0, 3*len(p.Triangles))
	for _, t := range p.Triangles {
		tris = append(tris, int32(t[0]), int32(t[1]), int32(t[2]))
	}
	return pts, tris
}

// Normal returns the unnormalised normal of triangle t.
func (p *PolyData) Normal(t [3]int) r3.Vec {
	a, b, c := p.Points[t[0]], p.Points[t[1]], p.Points[t[2]]
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// Area returns the total surface area.
func (p *PolyData) Area() float64 {
	area := 0.0
	for _, t := range p.Triangles {
		area += r3.Norm(p.Normal(t)) / 2
	}
	return area
}

// SignedVolume returns the volume enclosed by a closed, outward oriented surface.
func (p *PolyData) SignedVolume() float64 {
	vol := 0.0
	for _, t := range p.Triangles {
		a, b, c := p.Points[t[0]], p.Points[t[1]], p.Points[t[2]]
		vol += r3.Dot(a, r3.Cross(b, c)) / 6
	}
	return vol
}

// Bounds returns the axis aligned bounding box.
func (p *PolyData) Bounds() (lo, hi r3.Vec) {
	if len(p.Points) == 0 {
		return
	}
	lo, hi = p.Points[0], p.Points[0]
	for _, v := range p.Points[1:] {
		lo = r3.Vec{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vec{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	return lo, hi
}

// Params control extraction.
type Params struct {
	// GaussianSigma is the pre-smoothing standard deviation in voxels; 0 disables it
	GaussianSigma float64
	// RadiusFactor sets the kernel radius to RadiusFactor*GaussianSigma voxels
	RadiusFactor float64
	// IsoValue is the contour level
	IsoValue float64

	SmoothingIterations  int
	SmoothingPassband    float64
	FeatureAngle         float64 // degrees
	EdgeAngle            float64 // degrees
	FeatureEdgeSmoothing bool
	BoundarySmoothing    bool
	NonManifoldSmoothing bool

	// DecimationTargetReduction is the fraction of triangles to remove
	DecimationTargetReduction float64

	// ApplyRASTransform extracts with an identity direction and maps the
	// result into RAS world coordinates
	ApplyRASTransform bool
}

// DefaultParams returns the parameters used for label surfaces.
func DefaultParams() Params {
	return Params{
		GaussianSigma:             0.8,
		RadiusFactor:              1.5,
		IsoValue:                  0,
		SmoothingIterations:       50,
		SmoothingPassband:         0.01,
		FeatureAngle:              10,
		EdgeAngle:                 5,
		FeatureEdgeSmoothing:      false,
		BoundarySmoothing:         false,
		NonManifoldSmoothing:      true,
		DecimationTargetReduction: 0.7,
	}
}

func (p Params) smoothing() SmoothParams {
	return SmoothParams{
		Iterations:           p.SmoothingIterations,
		Passband:             p.SmoothingPassband,
		FeatureAngle:         p.FeatureAngle,
		EdgeAngle:            p.EdgeAngle,
		FeatureEdgeSmoothing: p.FeatureEdgeSmoothing,
		BoundarySmoothing:    p.BoundarySmoothing,
		NonManifoldSmoothing: p.NonManifoldSmoothing,
		NormalizeCoordinates: true,
	}
}

// Extract runs the full pipeline on f: smooth, contour, clean, smooth the
// mesh, decimate, smooth again and optionally map into RAS coordinates.
// An empty surface is not an error.
func Extract(f *Field, p Params) (*PolyData, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	work := *f
	if p.ApplyRASTransform {
		work.Direction = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	}

	smoothed := GaussianSmooth(&work, p.GaussianSigma, p.RadiusFactor)
	poly := Contour(smoothed, p.IsoValue)
	poly = Clean(poly, 0)
	if len(poly.Triangles) == 0 {
		return poly, nil
	}

	sp := p.smoothing()
	WindowedSinc(poly, sp)
	if p.DecimationTargetReduction > 0 {
		poly = Decimate(poly, p.DecimationTargetReduction)
	}
	WindowedSinc(poly, sp)

	if p.ApplyRASTransform {
		m := RASTransform(f.Spacing, f.Origin, f.Direction)
		Transform(poly, m)
	}
	return poly, nil
}
