package mesh

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/jilei-hao/scherzo/internal/models"
)

// Stats summarises the geometry of a mesh.
type Stats struct {
	Points    int
	Triangles int

	// Area is the total surface area in squared physical units
	Area float64

	// Volume is the signed enclosed volume; positive for closed surfaces
	// with outward normals
	Volume float64

	// MeanEdge and StdEdge describe the triangle edge lengths
	MeanEdge float64
	StdEdge  float64

	// MinQuality is the smallest triangle quality, 4*sqrt(3)*area divided by the
	// sum of squared edge lengths; 1 for an equilateral triangle
	MinQuality float64

	Min, Max [3]float64
}

func vec(m models.Mesh, i int32) r3.Vec {
	p := m.Point(int(i))
	return r3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
}

// ComputeStats returns the statistics of m. An empty mesh gives zero stats.
func ComputeStats(m models.Mesh) Stats {
	s := Stats{Points: m.PointCount(), Triangles: m.TriangleCount()}
	if s.Points == 0 {
		return s
	}

	for k := 0; k < 3; k++ {
		s.Min[k], s.Max[k] = math.Inf(1), math.Inf(-1)
	}
	for i := 0; i < s.Points; i++ {
		p := m.Point(i)
		for k := 0; k < 3; k++ {
			s.Min[k] = math.Min(s.Min[k], float64(p[k]))
			s.Max[k] = math.Max(s.Max[k], float64(p[k]))
		}
	}
	if s.Triangles == 0 {
		return s
	}

	areas := make([]float64, s.Triangles)
	volumes := make([]float64, s.Triangles)
	edges := make([]float64, 0, 3*s.Triangles)
	s.MinQuality = math.Inf(1)
	for t := 0; t < s.Triangles; t++ {
		a := vec(m, m.Triangles[3*t])
		b := vec(m, m.Triangles[3*t+1])
		c := vec(m, m.Triangles[3*t+2])
		areas[t] = r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a))) / 2
		volumes[t] = r3.Dot(a, r3.Cross(b, c)) / 6

		ab, bc, ca := r3.Norm(r3.Sub(b, a)), r3.Norm(r3.Sub(c, b)), r3.Norm(r3.Sub(a, c))
		edges = append(edges, ab, bc, ca)
		if sq := ab*ab + bc*bc + ca*ca; sq > 0 {
			s.MinQuality = math.Min(s.MinQuality, 4*math.Sqrt(3)*areas[t]/sq)
		} else {
			s.MinQuality = 0
		}
	}
	s.Area = floats.Sum(areas)
	s.Volume = floats.Sum(volumes)
	s.MeanEdge, s.StdEdge = stat.MeanStdDev(edges, nil)
	return s
}
