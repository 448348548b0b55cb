package surface

import (
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// meshPoint is a surface point that remembers its position in PolyData.Points.
type meshPoint struct {
	r3.Vec
	id int
}

// Compare implements the kdtree.Comparable interface
func (p meshPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(meshPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

func (p meshPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance, which is what the tree's
// pruning assumes.
func (p meshPoint) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(p.Vec, c.(meshPoint).Vec))
}

// meshPoints satisfies kdtree.Interface
type meshPoints []meshPoint

func (p meshPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p meshPoints) Len() int                              { return len(p) }
func (p meshPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p meshPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{meshPoints: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{meshPoints: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for meshPoints
type pointPlane struct {
	meshPoints
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	return p.meshPoints[i].Compare(p.meshPoints[j], p.Dim) < 0
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{meshPoints: p.meshPoints[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.meshPoints[i], p.meshPoints[j] = p.meshPoints[j], p.meshPoints[i]
}

// Clean merges points closer than tolerance, drops triangles that became
// degenerate and removes points no triangle uses. The lowest index of each
// merged cluster survives.
func Clean(p *PolyData, tolerance float64) *PolyData {
	if len(p.Points) == 0 {
		return &PolyData{}
	}

	pts := make(meshPoints, len(p.Points))
	for i, v := range p.Points {
		pts[i] = meshPoint{Vec: v, id: i}
	}
	tree := kdtree.New(pts, false)

	merged := make([]int, len(p.Points))
	for i := range merged {
		merged[i] = -1
	}
	limit := tolerance * tolerance
	for i, v := range p.Points {
		if merged[i] >= 0 {
			continue
		}
		merged[i] = i
		keep := kdtree.NewDistKeeper(limit)
		tree.NearestSet(keep, meshPoint{Vec: v, id: i})
		for _, c := range keep.Heap {
			if c.Comparable == nil {
				continue
			}
			j := c.Comparable.(meshPoint).id
			if merged[j] < 0 {
				merged[j] = i
			}
		}
	}

	tris := make([][3]int, 0, len(p.Triangles))
	for _, t := range p.Triangles {
		a, b, c := merged[t[0]], merged[t[1]], merged[t[2]]
		if a == b || b == c || a == c {
			continue
		}
		tris = append(tris, [3]int{a, b, c})
	}
	return compact(p.Points, tris)
}

// compact keeps only referenced points, numbering them by first use.
func compact(points []r3.Vec, tris [][3]int) *PolyData {
	remap := make([]int, len(points))
	for i := range remap {
		remap[i] = -1
	}
	out := &PolyData{Triangles: make([][3]int, len(tris))}
	for ti, t := range tris {
		for k, v := range t {
			if remap[v] < 0 {
				remap[v] = len(out.Points)
				out.Points = append(out.Points, points[v])
			}
			out.Triangles[ti][k] = remap[v]
		}
	}
	return out
}
