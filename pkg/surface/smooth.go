package surface

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// SmoothParams control WindowedSinc.
type SmoothParams struct {
	Iterations int
	Passband   float64

	// FeatureAngle in degrees; interior edges whose faces meet at a larger
	// angle are treated as sharp when FeatureEdgeSmoothing is set
	FeatureAngle         float64
	FeatureEdgeSmoothing bool

	// EdgeAngle in degrees; a vertex on a chain of boundary, non-manifold or
	// sharp edges is pinned when the chain bends by more than this
	EdgeAngle float64

	BoundarySmoothing    bool
	NonManifoldSmoothing bool
	NormalizeCoordinates bool
}

// sincCoefficients returns the Chebyshev coefficients c[0..n] of a
// Hamming-windowed low-pass filter whose gain at the pass band equals 1.
func sincCoefficients(n int, passband float64) []float64 {
	thetaPB := math.Acos(1 - 0.5*passband)
	w := make([]float64, n+1)
	for i := range w {
		w[i] = 0.54 + 0.46*math.Cos(float64(i)*math.Pi/float64(n+1))
	}

	c := make([]float64, n+1)
	compute := func(sigma float64) {
		theta := thetaPB + sigma
		c[0] = w[0] * theta / math.Pi
		for i := 1; i <= n; i++ {
			c[i] = 2 * w[i] * math.Sin(float64(i)*theta) / (float64(i) * math.Pi)
		}
	}

	// Newton iterations on the shift sigma of the cut-off.
	sigma := 0.0
	for iter := 0; iter < 500; iter++ {
		compute(sigma)
		f, fp := 0.0, w[0]/math.Pi
		for i := 0; i <= n; i++ {
			f += c[i] * math.Cos(float64(i)*thetaPB)
		}
		if math.Abs(f-1) < 1e-3 {
			break
		}
		theta := thetaPB + sigma
		for i := 1; i <= n; i++ {
			fp += 2 * w[i] * math.Cos(float64(i)*theta) / math.Pi * math.Cos(float64(i)*thetaPB)
		}
		if fp == 0 {
			break
		}
		sigma -= (f - 1) / fp
	}
	compute(sigma)
	return c
}

type edgeKey struct{ a, b int }

func newEdgeKey(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// topology is the edge-face incidence of a triangle surface.
type topology struct {
	edgeFaces map[edgeKey][]int
	neighbors [][]int
}

func buildTopology(p *PolyData) *topology {
	t := &topology{
		edgeFaces: make(map[edgeKey][]int, 3*len(p.Triangles)/2),
		neighbors: make([][]int, len(p.Points)),
	}
	for fi, tri := range p.Triangles {
		for k := 0; k < 3; k++ {
			a, b := tri[k], tri[(k+1)%3]
			key := newEdgeKey(a, b)
			if len(t.edgeFaces[key]) == 0 {
				t.neighbors[a] = append(t.neighbors[a], b)
				t.neighbors[b] = append(t.neighbors[b], a)
			}
			t.edgeFaces[key] = append(t.edgeFaces[key], fi)
		}
	}
	return t
}

// smoothingStencils classifies vertices and returns, per vertex, the
// neighbours that drive its motion. A nil stencil pins the vertex.
func smoothingStencils(p *PolyData, topo *topology, sp SmoothParams) [][]int {
	cosFeature := math.Cos(sp.FeatureAngle * math.Pi / 180)
	cosEdge := math.Cos(sp.EdgeAngle * math.Pi / 180)

	var normals []r3.Vec
	if sp.FeatureEdgeSmoothing {
		normals = make([]r3.Vec, len(p.Triangles))
		for i, t := range p.Triangles {
			if n := p.Normal(t); r3.Norm(n) > 0 {
				normals[i] = r3.Unit(n)
			}
		}
	}

	stencils := make([][]int, len(p.Points))
	for v, nbrs := range topo.neighbors {
		if len(nbrs) == 0 {
			continue
		}
		fixed := false
		var special []int
		for _, w := range nbrs {
			faces := topo.edgeFaces[newEdgeKey(v, w)]
			switch {
			case len(faces) == 1:
				if !sp.BoundarySmoothing {
					fixed = true
				}
				special = append(special, w)
			case len(faces) > 2:
				if !sp.NonManifoldSmoothing {
					fixed = true
				}
				special = append(special, w)
			case sp.FeatureEdgeSmoothing:
				if r3.Dot(normals[faces[0]], normals[faces[1]]) < cosFeature {
					special = append(special, w)
				}
			}
		}

		switch {
		case fixed:
		case len(special) == 0:
			stencils[v] = nbrs
		case len(special) == 2:
			l1 := r3.Sub(p.Points[v], p.Points[special[0]])
			l2 := r3.Sub(p.Points[special[1]], p.Points[v])
			if r3.Norm(l1) == 0 || r3.Norm(l2) == 0 {
				continue
			}
			if r3.Dot(r3.Unit(l1), r3.Unit(l2)) >= cosEdge {
				stencils[v] = special
			}
		}
	}
	return stencils
}

// WindowedSinc smooths p in place with a windowed-sinc low-pass filter over
// the mesh graph. It damps high frequency noise without the shrinkage of
// plain Laplacian smoothing.
func WindowedSinc(p *PolyData, sp SmoothParams) {
	n := len(p.Points)
	if sp.Iterations <= 0 || n == 0 {
		return
	}
	topo := buildTopology(p)
	stencils := smoothingStencils(p, topo, sp)
	coef := sincCoefficients(sp.Iterations, sp.Passband)

	center, scale := r3.Vec{}, 1.0
	if sp.NormalizeCoordinates {
		lo, hi := p.Bounds()
		center = r3.Scale(0.5, r3.Add(lo, hi))
		ext := r3.Sub(hi, lo)
		if l := math.Max(ext.X, math.Max(ext.Y, ext.Z)); l > 0 {
			scale = l
		}
	}

	x0 := make([]r3.Vec, n)
	for i, v := range p.Points {
		x0[i] = r3.Scale(1/scale, r3.Sub(v, center))
	}
	x1 := make([]r3.Vec, n)
	x2 := make([]r3.Vec, n)
	out := make([]r3.Vec, n)

	laplacian := func(x []r3.Vec, i int) r3.Vec {
		s := stencils[i]
		if len(s) == 0 {
			return r3.Vec{}
		}
		var mean r3.Vec
		for _, j := range s {
			mean = r3.Add(mean, x[j])
		}
		return r3.Sub(r3.Scale(1/float64(len(s)), mean), x[i])
	}

	for i := range x0 {
		x1[i] = r3.Add(x0[i], r3.Scale(0.5, laplacian(x0, i)))
		out[i] = r3.Add(r3.Scale(coef[0], x0[i]), r3.Scale(coef[1], x1[i]))
	}
	for k := 2; k <= sp.Iterations; k++ {
		for i := range x1 {
			x2[i] = r3.Sub(r3.Add(r3.Scale(2, x1[i]), laplacian(x1, i)), x0[i])
			out[i] = r3.Add(out[i], r3.Scale(coef[k], x2[i]))
		}
		x0, x1, x2 = x1, x2, x0
	}

	for i := range p.Points {
		if stencils[i] == nil {
			continue
		}
		p.Points[i] = r3.Add(r3.Scale(scale, out[i]), center)
	}
}
