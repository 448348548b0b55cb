package visualization

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/jilei-hao/scherzo/internal/models"
)

// layeredVolume gives every z slice the label z.
func layeredVolume(width, height, depth int) *models.Volume {
	data := make([]int32, width*height*depth)
	for z := 0; z < depth; z++ {
		for i := 0; i < width*height; i++ {
			data[z*width*height+i] = int32(z)
		}
	}
	return &models.Volume{
		Data:    data,
		Size:    []int{width, height, depth},
		Spacing: []float64{1, 1, 1},
	}
}

// TestNewSliceRenderer verifies the volume shape is checked
func TestNewSliceRenderer(t *testing.T) {
	r, err := NewSliceRenderer(layeredVolume(10, 8, 5), ITKSnap())
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}
	if r.width != 10 || r.height != 8 || r.depth != 5 {
		t.Errorf("Unexpected dimensions %dx%dx%d", r.width, r.height, r.depth)
	}

	bad := layeredVolume(4, 4, 4)
	bad.Data = bad.Data[:10]
	if _, err := NewSliceRenderer(bad, ITKSnap()); err == nil {
		t.Error("Expected error for short voxel buffer, got nil")
	}

	flat := &models.Volume{Data: make([]int32, 16), Size: []int{4, 4}}
	if _, err := NewSliceRenderer(flat, ITKSnap()); err == nil {
		t.Error("Expected error for 2-D volume, got nil")
	}
}

// TestExtractSlice verifies slices are coloured by label
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5
	r, err := NewSliceRenderer(layeredVolume(width, height, depth), ITKSnap())
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	for z := 0; z < depth; z++ {
		img, err := r.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != width || bounds.Dy() != height {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d", width, height, bounds.Dx(), bounds.Dy())
		}
		want := ITKSnap().Lookup(int32(z)).NRGBA()
		if got := img.NRGBAAt(width/2, height/2); got != want {
			t.Errorf("Z slice %d centre = %v, want %v", z, got, want)
		}
	}

	// background is transparent, label 1 is red
	imgZ0, _ := r.ExtractSlice("z", 0)
	if a := imgZ0.NRGBAAt(0, 0).A; a != 0 {
		t.Errorf("Background alpha = %d, want 0", a)
	}
	imgZ1, _ := r.ExtractSlice("z", 1)
	if c := imgZ1.NRGBAAt(0, 0); c.R != 255 || c.G != 0 || c.B != 0 || c.A != 255 {
		t.Errorf("Label 1 colour = %v, want opaque red", c)
	}

	imgX, err := r.ExtractSlice("x", width/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != depth || b.Dy() != height {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", depth, height, b.Dx(), b.Dy())
	}
	// along x the label changes with the column
	if got, want := imgX.NRGBAAt(2, 0), ITKSnap().Lookup(2).NRGBA(); got != want {
		t.Errorf("X slice column 2 = %v, want %v", got, want)
	}

	imgY, err := r.ExtractSlice("y", height/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != width || b.Dy() != depth {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", width, depth, b.Dx(), b.Dy())
	}

	if _, err := r.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := r.ExtractSlice("z", depth); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := r.ExtractSlice("y", -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

// TestExtractRegion verifies that label boxes are copied in x-fastest order
func TestExtractRegion(t *testing.T) {
	width, height, depth := 10, 10, 5
	v := layeredVolume(width, height, depth)
	for i := range v.Data {
		v.Data[i] = int32(i)
	}
	r, err := NewSliceRenderer(v, ITKSnap())
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	startX, startY, startZ := 2, 3, 1
	sizeX, sizeY, sizeZ := 4, 3, 2
	region, err := r.ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ)
	if err != nil {
		t.Fatalf("Failed to extract region: %v", err)
	}
	if len(region) != sizeX*sizeY*sizeZ {
		t.Fatalf("Expected region size %d, got %d", sizeX*sizeY*sizeZ, len(region))
	}
	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			for x := 0; x < sizeX; x++ {
				got := region[z*sizeX*sizeY+y*sizeX+x]
				want := v.Data[(startZ+z)*width*height+(startY+y)*width+startX+x]
				if got != want {
					t.Errorf("Region value mismatch at (%d,%d,%d): expected %d, got %d", x, y, z, want, got)
				}
			}
		}
	}

	if _, err := r.ExtractRegion(-1, 0, 0, 1, 1, 1); err == nil {
		t.Error("Expected error for negative start coordinate, got nil")
	}
	if _, err := r.ExtractRegion(0, 0, 0, 0, 1, 1); err == nil {
		t.Error("Expected error for zero size, got nil")
	}
	if _, err := r.ExtractRegion(width-1, 0, 0, 2, 1, 1); err == nil {
		t.Error("Expected error for region extending beyond volume, got nil")
	}
}

// TestSaveSliceSequence verifies that a sequence of PNG slices is written
func TestSaveSliceSequence(t *testing.T) {
	width, height, depth := 5, 5, 3
	r, err := NewSliceRenderer(layeredVolume(width, height, depth), ITKSnap())
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	outputDir := filepath.Join(t.TempDir(), "slices")
	if err := r.SaveSliceSequence("z", outputDir); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}

	for z := 0; z < depth; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.png", z))
		f, err := os.Open(filename)
		if err != nil {
			t.Fatalf("Expected slice file %s: %v", filename, err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("Failed to decode %s: %v", filename, err)
		}
		if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
			t.Errorf("Slice %d has size %dx%d", z, b.Dx(), b.Dy())
		}
	}

	if err := r.SaveSliceSequence("invalid", outputDir); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}
