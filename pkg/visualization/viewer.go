// Package visualization holds the state a renderer needs to show label
// surfaces: colour tables, the time point on screen and colourised slice
// previews of the source volume.
package visualization

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jilei-hao/scherzo/internal/models"
)

// SliceRenderer draws axis-aligned slices of a 3-D label volume, colouring
// each voxel by its label.
type SliceRenderer struct {
	// labels holds one label value per voxel, x fastest
	labels []int32

	// dimensions of the volume
	width  int
	height int
	depth  int

	// table maps labels to colours; background 0 is transparent in the presets
	table *ColorTable
}

// NewSliceRenderer creates a renderer for a 3-D volume.
func NewSliceRenderer(v *models.Volume, table *ColorTable) (*SliceRenderer, error) {
	if v.Dimension() != 3 {
		return nil, errors.Errorf("slice rendering needs a 3-D volume, got %d-D", v.Dimension())
	}
	if len(v.Data) != v.VoxelCount() {
		return nil, errors.Errorf("volume has %d voxels, size says %d", len(v.Data), v.VoxelCount())
	}
	return &SliceRenderer{
		labels: v.Data,
		width:  v.Size[0],
		height: v.Size[1],
		depth:  v.Size[2],
		table:  table,
	}, nil
}

func (r *SliceRenderer) at(x, y, z int) int32 {
	return r.labels[(z*r.height+y)*r.width+x]
}

// ExtractSlice renders the slice at position along axis x, y or z.
func (r *SliceRenderer) ExtractSlice(axis string, position int) (*image.NRGBA, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.NRGBA

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= r.width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, r.width)
		}
		img = image.NewNRGBA(image.Rect(0, 0, r.depth, r.height))
		for y := 0; y < r.height; y++ {
			for z := 0; z < r.depth; z++ {
				img.SetNRGBA(z, y, r.table.Lookup(r.at(position, y, z)).NRGBA())
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= r.height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, r.height)
		}
		img = image.NewNRGBA(image.Rect(0, 0, r.width, r.depth))
		for z := 0; z < r.depth; z++ {
			for x := 0; x < r.width; x++ {
				img.SetNRGBA(x, z, r.table.Lookup(r.at(x, position, z)).NRGBA())
			}
		}

	case "z", "Z":
		// XY plane
		if position >= r.depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, r.depth)
		}
		img = image.NewNRGBA(image.Rect(0, 0, r.width, r.height))
		for y := 0; y < r.height; y++ {
			for x := 0; x < r.width; x++ {
				img.SetNRGBA(x, y, r.table.Lookup(r.at(x, y, position)).NRGBA())
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractRegion copies a box of label values out of the volume.
func (r *SliceRenderer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) ([]int32, error) {
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	if startX+sizeX > r.width || startY+sizeY > r.height || startZ+sizeZ > r.depth {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := make([]int32, 0, sizeX*sizeY*sizeZ)
	for z := startZ; z < startZ+sizeZ; z++ {
		for y := startY; y < startY+sizeY; y++ {
			row := (z*r.height+y)*r.width + startX
			region = append(region, r.labels[row:row+sizeX]...)
		}
	}
	return region, nil
}

// SaveSlice saves a rendered slice as a PNG image.
func (r *SliceRenderer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return errors.Wrapf(err, "encoding %s", filename)
	}
	return file.Close()
}

// SaveSliceSequence renders and saves every slice along axis into outputDir.
func (r *SliceRenderer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = r.width
	case "y", "Y":
		maxPos = r.height
	case "z", "Z":
		maxPos = r.depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := r.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := r.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
