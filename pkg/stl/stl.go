// Package stl writes label meshes as STL surface files, the format offered
// for download by the export collaborator.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/jilei-hao/scherzo/internal/models"
)

// Triangle is one STL facet.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// ErrFormat is returned when STL input cannot be parsed.
var ErrFormat = errors.New("malformed STL")

const (
	headerSize = 80
	facetSize  = 50
)

func toVec(p [3]float32) r3.Vec {
	return r3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
}

// FromMesh expands an indexed mesh into facets with unit normals following
// the triangle winding. Degenerate triangles get a zero normal.
func FromMesh(m models.Mesh) []Triangle {
	tris := make([]Triangle, m.TriangleCount())
	for i := range tris {
		t := &tris[i]
		t.Vertex1 = m.Point(int(m.Triangles[3*i]))
		t.Vertex2 = m.Point(int(m.Triangles[3*i+1]))
		t.Vertex3 = m.Point(int(m.Triangles[3*i+2]))

		a, b, c := toVec(t.Vertex1), toVec(t.Vertex2), toVec(t.Vertex3)
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
			t.Normal = [3]float32{float32(n.X), float32(n.Y), float32(n.Z)}
		}
	}
	return tris
}

// Write encodes triangles as binary STL. header is truncated to 80 bytes.
func Write(w io.Writer, header string, triangles []Triangle) error {
	bw := bufio.NewWriter(w)

	var head [headerSize]byte
	copy(head[:], header)
	if _, err := bw.Write(head[:]); err != nil {
		return errors.Wrap(err, "writing STL header")
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return errors.Wrap(err, "writing triangle count")
	}

	var facet [facetSize]byte
	for _, t := range triangles {
		off := 0
		for _, v := range [4][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			for _, c := range v {
				binary.LittleEndian.PutUint32(facet[off:], math.Float32bits(c))
				off += 4
			}
		}
		// attribute byte count stays zero
		if _, err := bw.Write(facet[:]); err != nil {
			return errors.Wrap(err, "writing facet")
		}
	}
	return errors.Wrap(bw.Flush(), "flushing STL")
}

// WriteASCII encodes triangles as ASCII STL under the given solid name.
func WriteASCII(w io.Writer, name string, triangles []Triangle) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "solid %s\n", name)
	for _, t := range triangles {
		fmt.Fprintf(bw, "  facet normal %e %e %e\n", t.Normal[0], t.Normal[1], t.Normal[2])
		fmt.Fprintf(bw, "    outer loop\n")
		for _, v := range [3][3]float32{t.Vertex1, t.Vertex2, t.Vertex3} {
			fmt.Fprintf(bw, "      vertex %e %e %e\n", v[0], v[1], v[2])
		}
		fmt.Fprintf(bw, "    endloop\n")
		fmt.Fprintf(bw, "  endfacet\n")
	}
	fmt.Fprintf(bw, "endsolid %s\n", name)
	return errors.Wrap(bw.Flush(), "writing ASCII STL")
}

// Read decodes a binary STL stream.
func Read(r io.Reader) (header string, triangles []Triangle, err error) {
	var head [headerSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return "", nil, errors.Wrap(ErrFormat, "short header")
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", nil, errors.Wrap(ErrFormat, "missing triangle count")
	}

	triangles = make([]Triangle, 0, min(int(n), 1<<20))
	var facet [facetSize]byte
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, facet[:]); err != nil {
			return "", nil, errors.Wrapf(ErrFormat, "facet %d of %d", i, n)
		}
		var t Triangle
		vs := [4]*[3]float32{&t.Normal, &t.Vertex1, &t.Vertex2, &t.Vertex3}
		for k, v := range vs {
			for c := 0; c < 3; c++ {
				v[c] = math.Float32frombits(binary.LittleEndian.Uint32(facet[12*k+4*c:]))
			}
		}
		triangles = append(triangles, t)
	}
	end := len(head)
	for end > 0 && head[end-1] == 0 {
		end--
	}
	return string(head[:end]), triangles, nil
}

// SaveToSTL writes triangles to a binary STL file.
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create STL file")
	}
	if err := Write(file, "scherzo label surface", triangles); err != nil {
		file.Close()
		return err
	}
	return errors.Wrap(file.Close(), "failed to close STL file")
}
