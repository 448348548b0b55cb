// Package volume prepares label volumes for surface extraction: it splits
// time-resolved volumes into 3-D time points, lists the labels present in a
// volume and builds the signed binary mask of a single label.
package volume

import (
	"github.com/pkg/errors"

	"github.com/jilei-hao/scherzo/internal/models"
)

var (
	// ErrUnsupportedDimensionality is returned for volumes that are neither 3-D nor 4-D.
	ErrUnsupportedDimensionality = errors.New("unsupported volume dimensionality")

	// ErrVoxelCountMismatch is returned when the voxel buffer does not match the volume size.
	ErrVoxelCountMismatch = errors.New("voxel buffer length does not match volume size")

	// ErrInvalidGeometry is returned for non-positive sizes or malformed geometry.
	ErrInvalidGeometry = errors.New("invalid volume geometry")
)

// identity3 is the default direction for volumes that carry none.
var identity3 = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

// Validate checks the rank, the size components and the buffer length of v.
func Validate(v *models.Volume) error {
	if v == nil {
		return errors.Wrap(ErrInvalidGeometry, "nil volume")
	}
	rank := v.Dimension()
	if rank != 3 && rank != 4 {
		return errors.Wrapf(ErrUnsupportedDimensionality, "rank %d", rank)
	}
	for i, s := range v.Size {
		if s <= 0 {
			return errors.Wrapf(ErrInvalidGeometry, "size[%d] = %d", i, s)
		}
	}
	if len(v.Spacing) != 0 && len(v.Spacing) < 3 {
		return errors.Wrapf(ErrInvalidGeometry, "spacing has %d components", len(v.Spacing))
	}
	if len(v.Origin) != 0 && len(v.Origin) < 3 {
		return errors.Wrapf(ErrInvalidGeometry, "origin has %d components", len(v.Origin))
	}
	if want := v.VoxelCount(); len(v.Data) != want {
		return errors.Wrapf(ErrVoxelCountMismatch, "have %d voxels, size %v needs %d", len(v.Data), v.Size, want)
	}
	return nil
}

// blockLength is the number of voxels in one 3-D time point.
func blockLength(v *models.Volume) int {
	return v.Size[0] * v.Size[1] * v.Size[2]
}

func firstThree(src []float64, fallback float64) []float64 {
	out := []float64{fallback, fallback, fallback}
	copy(out, src)
	return out
}

// direction3 returns the upper-left 3x3 block of the direction matrix.
// A 3-D volume carries a 3x3 matrix; a 4-D volume carries a 4x4 one,
// read at row-major offsets 0,1,2,4,5,6,8,9,10.
func direction3(dir []float64, rank int) ([]float64, error) {
	out := make([]float64, 9)
	switch {
	case len(dir) == 0:
		copy(out, identity3[:])
	case rank == 4 && len(dir) >= 11:
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				out[3*r+c] = dir[4*r+c]
			}
		}
	case len(dir) == 9:
		copy(out, dir)
	default:
		return nil, errors.Wrapf(ErrInvalidGeometry, "direction has %d components for a %d-D volume", len(dir), rank)
	}
	return out, nil
}
