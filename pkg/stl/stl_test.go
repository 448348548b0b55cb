package stl

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jilei-hao/scherzo/internal/models"
)

// unitSquare is two triangles in the z=0 plane facing +z, plus a degenerate one.
func unitSquare() models.Mesh {
	return models.Mesh{
		Points: []float32{
			0, 0, 0,
			1, 0, 0,
			1, 1, 0,
			0, 1, 0,
		},
		Triangles: []int32{
			0, 1, 2,
			0, 2, 3,
			0, 0, 1,
		},
	}
}

// TestFromMesh verifies facets carry the mesh vertices and unit normals
func TestFromMesh(t *testing.T) {
	tris := FromMesh(unitSquare())
	if len(tris) != 3 {
		t.Fatalf("Expected 3 facets, got %d", len(tris))
	}

	for i, tri := range tris[:2] {
		if tri.Normal != [3]float32{0, 0, 1} {
			t.Errorf("Facet %d normal = %v, want +z", i, tri.Normal)
		}
	}
	if tris[1].Vertex3 != [3]float32{0, 1, 0} {
		t.Errorf("Unexpected third vertex %v", tris[1].Vertex3)
	}
	if tris[2].Normal != [3]float32{} {
		t.Errorf("Degenerate facet should have a zero normal, got %v", tris[2].Normal)
	}
}

// TestSaveToSTL verifies that the STL file can be written and has the binary layout
func TestSaveToSTL(t *testing.T) {
	triangles := FromMesh(unitSquare())
	path := filepath.Join(t.TempDir(), "square.stl")

	if err := SaveToSTL(path, triangles); err != nil {
		t.Fatalf("Failed to save STL: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat output file: %v", err)
	}

	// STL header: 80 bytes
	// Number of triangles: 4 bytes
	// Triangle: 50 bytes (12 bytes per vertex, 12 bytes per normal, 2 bytes attribute)
	wantSize := int64(80 + 4 + 50*len(triangles))
	if info.Size() != wantSize {
		t.Errorf("STL file size = %d, want %d", info.Size(), wantSize)
	}
}

// TestReadWrite verifies binary STL written by Write reads back unchanged
func TestReadWrite(t *testing.T) {
	want := FromMesh(unitSquare())

	var buf bytes.Buffer
	if err := Write(&buf, "label 3", want); err != nil {
		t.Fatalf("Failed to write STL: %v", err)
	}
	header, got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Failed to read STL: %v", err)
	}
	if header != "label 3" {
		t.Errorf("Header = %q", header)
	}
	if len(got) != len(want) {
		t.Fatalf("Read %d facets, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Facet %d = %v, want %v", i, got[i], want[i])
		}
	}

	// a truncated stream is rejected
	var short bytes.Buffer
	Write(&short, "", want)
	if _, _, err := Read(bytes.NewReader(short.Bytes()[:short.Len()-10])); err == nil {
		t.Error("Expected an error for a truncated file")
	}
}

// TestWriteASCII verifies the ASCII encoding structure
func TestWriteASCII(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteASCII(&buf, "square", FromMesh(unitSquare())); err != nil {
		t.Fatalf("Failed to write ASCII STL: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "solid square\n") || !strings.HasSuffix(out, "endsolid square\n") {
		t.Errorf("Missing solid delimiters:\n%s", out)
	}
	if n := strings.Count(out, "facet normal"); n != 3 {
		t.Errorf("Expected 3 facets, got %d", n)
	}
	if n := strings.Count(out, "vertex "); n != 9 {
		t.Errorf("Expected 9 vertices, got %d", n)
	}
}

// BenchmarkFromMesh benchmarks facet expansion of a dense strip
func BenchmarkFromMesh(b *testing.B) {
	const n = 10000
	m := models.Mesh{}
	for i := 0; i < n; i++ {
		x := float32(i)
		m.Points = append(m.Points, x, float32(math.Sin(float64(i))), 0, x, 1, 1)
	}
	for i := 0; i+1 < n; i++ {
		a := int32(2 * i)
		m.Triangles = append(m.Triangles, a, a+2, a+1, a+1, a+2, a+3)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		FromMesh(m)
	}
}
