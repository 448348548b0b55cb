package surface

import (
	"container/heap"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// quadric is a symmetric 4x4 error quadric stored as its upper triangle:
// a2 ab ac ad b2 bc bd c2 cd d2.
type quadric [10]float64

func planeQuadric(n r3.Vec, d, weight float64) quadric {
	a, b, c := n.X, n.Y, n.Z
	return quadric{
		weight * a * a, weight * a * b, weight * a * c, weight * a * d,
		weight * b * b, weight * b * c, weight * b * d,
		weight * c * c, weight * c * d,
		weight * d * d,
	}
}

func (q quadric) plus(o quadric) quadric {
	for i := range q {
		q[i] += o[i]
	}
	return q
}

// eval returns v^T Q v for the homogeneous point (v, 1).
func (q quadric) eval(v r3.Vec) float64 {
	x, y, z := v.X, v.Y, v.Z
	return q[0]*x*x + 2*q[1]*x*y + 2*q[2]*x*z + 2*q[3]*x +
		q[4]*y*y + 2*q[5]*y*z + 2*q[6]*y +
		q[7]*z*z + 2*q[8]*z +
		q[9]
}

// optimum returns the position minimising q for the edge (a, b) and its cost.
// The linear system is solved when it is well conditioned and the solution
// stays near the edge; otherwise the best of the endpoints and the midpoint
// is used.
func (q quadric) optimum(a, b r3.Vec) (r3.Vec, float64) {
	A := mat.NewSymDense(3, []float64{
		q[0], q[1], q[2],
		q[1], q[4], q[5],
		q[2], q[5], q[7],
	})
	rhs := mat.NewVecDense(3, []float64{-q[3], -q[6], -q[8]})
	var x mat.VecDense
	if err := x.SolveVec(A, rhs); err == nil {
		p := r3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
		mid := r3.Scale(0.5, r3.Add(a, b))
		if r3.Norm(r3.Sub(p, mid)) <= 2*r3.Norm(r3.Sub(b, a)) {
			return p, math.Max(q.eval(p), 0)
		}
	}

	best, cost := a, q.eval(a)
	for _, c := range []r3.Vec{b, r3.Scale(0.5, r3.Add(a, b))} {
		if e := q.eval(c); e < cost {
			best, cost = c, e
		}
	}
	return best, math.Max(cost, 0)
}

type collapse struct {
	cost       float64
	u, v       int
	pos        r3.Vec
	verU, verV int
}

type collapseQueue []collapse

func (h collapseQueue) Len() int { return len(h) }
func (h collapseQueue) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	if h[i].u != h[j].u {
		return h[i].u < h[j].u
	}
	return h[i].v < h[j].v
}
func (h collapseQueue) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *collapseQueue) Push(x any)   { *h = append(*h, x.(collapse)) }
func (h *collapseQueue) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

type decimator struct {
	pts     []r3.Vec
	q       []quadric
	tris    [][3]int
	alive   []bool
	vfaces  [][]int
	version []int
	removed []bool
	queue   collapseQueue
	live    int
}

// Decimate collapses edges in order of increasing quadric error until at most
// (1-reduction) of the triangles remain or no collapse keeps the surface
// manifold and its faces unflipped. p is not modified.
func Decimate(p *PolyData, reduction float64) *PolyData {
	if reduction <= 0 || len(p.Triangles) == 0 {
		return p
	}
	if reduction >= 1 {
		reduction = 0.999
	}
	target := int(math.Ceil((1 - reduction) * float64(len(p.Triangles))))

	d := newDecimator(p)
	for d.live > target && d.queue.Len() > 0 {
		c := heap.Pop(&d.queue).(collapse)
		if d.removed[c.u] || d.removed[c.v] || d.version[c.u] != c.verU || d.version[c.v] != c.verV {
			continue
		}
		d.collapse(c)
	}

	tris := make([][3]int, 0, d.live)
	for i, t := range d.tris {
		if d.alive[i] {
			tris = append(tris, t)
		}
	}
	return compact(d.pts, tris)
}

func newDecimator(p *PolyData) *decimator {
	n := len(p.Points)
	d := &decimator{
		pts:     append([]r3.Vec(nil), p.Points...),
		q:       make([]quadric, n),
		tris:    append([][3]int(nil), p.Triangles...),
		alive:   make([]bool, len(p.Triangles)),
		vfaces:  make([][]int, n),
		version: make([]int, n),
		removed: make([]bool, n),
		live:    len(p.Triangles),
	}

	topo := buildTopology(p)
	for fi, t := range d.tris {
		d.alive[fi] = true
		for _, v := range t {
			d.vfaces[v] = append(d.vfaces[v], fi)
		}
		nrm := p.Normal(t)
		l := r3.Norm(nrm)
		if l == 0 {
			continue
		}
		u := r3.Scale(1/l, nrm)
		fq := planeQuadric(u, -r3.Dot(u, d.pts[t[0]]), l/2)
		for _, v := range t {
			d.q[v] = d.q[v].plus(fq)
		}
	}

	// Boundary edges get a perpendicular constraint plane so open rims keep
	// their shape.
	for e, faces := range topo.edgeFaces {
		if len(faces) != 1 {
			continue
		}
		a, b := d.pts[e.a], d.pts[e.b]
		fn := p.Normal(d.tris[faces[0]])
		edge := r3.Sub(b, a)
		perp := r3.Cross(edge, fn)
		if r3.Norm(perp) == 0 {
			continue
		}
		perp = r3.Unit(perp)
		bq := planeQuadric(perp, -r3.Dot(perp, a), r3.Norm2(edge))
		d.q[e.a] = d.q[e.a].plus(bq)
		d.q[e.b] = d.q[e.b].plus(bq)
	}

	for e := range topo.edgeFaces {
		d.queue = append(d.queue, d.candidate(e.a, e.b))
	}
	heap.Init(&d.queue)
	return d
}

func (d *decimator) candidate(u, v int) collapse {
	pos, cost := d.q[u].plus(d.q[v]).optimum(d.pts[u], d.pts[v])
	return collapse{cost: cost, u: u, v: v, pos: pos, verU: d.version[u], verV: d.version[v]}
}

func (d *decimator) liveFaces(v int) []int {
	faces := d.vfaces[v][:0]
	for _, f := range d.vfaces[v] {
		if d.alive[f] {
			faces = append(faces, f)
		}
	}
	d.vfaces[v] = faces
	return faces
}

func (d *decimator) neighbors(v int) map[int]struct{} {
	out := make(map[int]struct{})
	for _, f := range d.liveFaces(v) {
		for _, w := range d.tris[f] {
			if w != v {
				out[w] = struct{}{}
			}
		}
	}
	return out
}

func contains(t [3]int, v int) bool {
	return t[0] == v || t[1] == v || t[2] == v
}

func (d *decimator) collapse(c collapse) {
	u, v := c.u, c.v
	uf, vf := d.liveFaces(u), d.liveFaces(v)

	var shared []int
	for _, f := range vf {
		if contains(d.tris[f], u) {
			shared = append(shared, f)
		}
	}
	if len(shared) == 0 || d.live-len(shared) < 4 {
		return
	}

	// link condition: the only common neighbours are the apexes of the shared faces
	nu, nv := d.neighbors(u), d.neighbors(v)
	common := 0
	for w := range nu {
		if _, ok := nv[w]; ok {
			common++
		}
	}
	if common != len(shared) {
		return
	}

	// reject collapses that flip or degenerate a surviving face
	moved := func(w int) r3.Vec {
		if w == u || w == v {
			return c.pos
		}
		return d.pts[w]
	}
	for _, faces := range [][]int{uf, vf} {
		for _, f := range faces {
			t := d.tris[f]
			if contains(t, u) && contains(t, v) {
				continue
			}
			a, b, cc := d.pts[t[0]], d.pts[t[1]], d.pts[t[2]]
			before := r3.Cross(r3.Sub(b, a), r3.Sub(cc, a))
			a, b, cc = moved(t[0]), moved(t[1]), moved(t[2])
			after := r3.Cross(r3.Sub(b, a), r3.Sub(cc, a))
			if r3.Norm(after) <= 1e-12*r3.Norm(before) || r3.Dot(before, after) <= 0 {
				return
			}
		}
	}

	for _, f := range shared {
		d.alive[f] = false
		d.live--
	}
	for _, f := range vf {
		if !d.alive[f] {
			continue
		}
		t := &d.tris[f]
		for k := range t {
			if t[k] == v {
				t[k] = u
			}
		}
		d.vfaces[u] = append(d.vfaces[u], f)
	}
	d.vfaces[v] = nil
	d.pts[u] = c.pos
	d.q[u] = d.q[u].plus(d.q[v])
	d.removed[v] = true
	d.version[u]++
	d.version[v]++

	for w := range d.neighbors(u) {
		heap.Push(&d.queue, d.candidate(u, w))
	}
}
