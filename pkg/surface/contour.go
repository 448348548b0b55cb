package surface

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// cubeCorner offsets, indexed by bit pattern x | y<<1 | z<<2.
var cubeCorner = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

// kuhnTets splits a cube into six tetrahedra around the 0-7 diagonal. Each
// one follows a monotone path from corner 0 to corner 7, one axis per step,
// so neighbouring cubes split their shared faces the same way and the
// contour has no cracks.
var kuhnTets = func() [6][4]int {
	perms := [6][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	var tets [6][4]int
	for i, p := range perms {
		c := 0
		tets[i][0] = c
		for step, axis := range p {
			c |= 1 << axis
			tets[i][step+1] = c
		}
	}
	return tets
}()

type gridEdge struct {
	a, b int // linear voxel indices, a < b
}

type contourer struct {
	f     *Field
	iso   float32
	verts map[gridEdge]int
	index []r3.Vec // crossing points in continuous index space
	tris  [][3]int
}

// vertex returns the id of the crossing point on the grid edge (a, b).
func (c *contourer) vertex(a, b int, pa, pb [3]int) int {
	if a > b {
		a, b = b, a
		pa, pb = pb, pa
	}
	key := gridEdge{a, b}
	if id, ok := c.verts[key]; ok {
		return id
	}
	fa, fb := c.f.Data[a], c.f.Data[b]
	t := 0.5
	if fb != fa {
		t = float64((c.iso - fa) / (fb - fa))
	}
	p := r3.Vec{
		X: float64(pa[0]) + t*float64(pb[0]-pa[0]),
		Y: float64(pa[1]) + t*float64(pb[1]-pa[1]),
		Z: float64(pa[2]) + t*float64(pb[2]-pa[2]),
	}
	id := len(c.index)
	c.index = append(c.index, p)
	c.verts[key] = id
	return id
}

// emit appends the triangle (p, q, r), wound so its normal points along out.
func (c *contourer) emit(p, q, r int, out r3.Vec) {
	if p == q || q == r || p == r {
		return
	}
	n := r3.Cross(r3.Sub(c.index[q], c.index[p]), r3.Sub(c.index[r], c.index[p]))
	if r3.Dot(n, out) < 0 {
		q, r = r, q
	}
	c.tris = append(c.tris, [3]int{p, q, r})
}

func (c *contourer) tetra(ids [4]int, pos [4][3]int) {
	var in, outside []int
	for i := 0; i < 4; i++ {
		if c.f.Data[ids[i]] > c.iso {
			in = append(in, i)
		} else {
			outside = append(outside, i)
		}
	}
	if len(in) == 0 || len(in) == 4 {
		return
	}

	// direction from the inside corners to the outside corners
	var cin, cout r3.Vec
	for _, i := range in {
		cin = r3.Add(cin, toVec(pos[i]))
	}
	for _, i := range outside {
		cout = r3.Add(cout, toVec(pos[i]))
	}
	dir := r3.Sub(r3.Scale(1/float64(len(outside)), cout), r3.Scale(1/float64(len(in)), cin))

	edge := func(i, j int) int { return c.vertex(ids[i], ids[j], pos[i], pos[j]) }

	switch len(in) {
	case 1, 3:
		lone, others := in, outside
		if len(in) == 3 {
			lone, others = outside, in
		}
		l := lone[0]
		c.emit(edge(l, others[0]), edge(l, others[1]), edge(l, others[2]), dir)
	case 2:
		a, b := in[0], in[1]
		p, q := outside[0], outside[1]
		ap, aq, bq, bp := edge(a, p), edge(a, q), edge(b, q), edge(b, p)
		c.emit(ap, aq, bq, dir)
		c.emit(ap, bq, bp, dir)
	}
}

func toVec(p [3]int) r3.Vec {
	return r3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
}

// Contour extracts the iso level set of f as a triangle surface in physical
// coordinates. Values above iso are inside; triangle normals point outwards.
//
// Every grid cube is split into six tetrahedra and each tetrahedron is
// contoured on its own, which keeps the surface closed wherever the inside
// region does not touch the image border.
func Contour(f *Field, iso float64) *PolyData {
	c := &contourer{
		f:     f,
		iso:   float32(iso),
		verts: make(map[gridEdge]int),
	}
	nx, ny, nz := f.Dims[0], f.Dims[1], f.Dims[2]

	var ids [8]int
	var pos [8][3]int
	for z := 0; z+1 < nz; z++ {
		for y := 0; y+1 < ny; y++ {
			for x := 0; x+1 < nx; x++ {
				above, below := 0, 0
				for k, off := range cubeCorner {
					pos[k] = [3]int{x + off[0], y + off[1], z + off[2]}
					ids[k] = f.index(pos[k][0], pos[k][1], pos[k][2])
					if f.Data[ids[k]] > c.iso {
						above++
					} else {
						below++
					}
				}
				if above == 0 || below == 0 {
					continue
				}
				for _, tet := range kuhnTets {
					c.tetra(
						[4]int{ids[tet[0]], ids[tet[1]], ids[tet[2]], ids[tet[3]]},
						[4][3]int{pos[tet[0]], pos[tet[1]], pos[tet[2]], pos[tet[3]]},
					)
				}
			}
		}
	}

	poly := &PolyData{
		Points:    make([]r3.Vec, len(c.index)),
		Triangles: c.tris,
	}
	for i, p := range c.index {
		poly.Points[i] = f.IndexToPhysical(p)
	}
	if f.handedness() < 0 {
		for i := range poly.Triangles {
			t := &poly.Triangles[i]
			t[1], t[2] = t[2], t[1]
		}
	}
	return poly
}
