package volume

import (
	"github.com/pkg/errors"

	"github.com/jilei-hao/scherzo/internal/models"
)

const (
	// Inside marks voxels of the target label.
	Inside int16 = 1
	// Outside marks every other voxel. It is -1 rather than 0 so that the
	// level set at 0 lies halfway between the two regions.
	Outside int16 = -1
)

// BuildMask returns the signed mask of label over the 3-D volume v.
// The geometry of v is copied verbatim.
func BuildMask(v *models.Volume, label int32) (*models.BinaryMask, error) {
	if err := Validate(v); err != nil {
		return nil, err
	}
	if v.Dimension() != 3 {
		return nil, errors.Wrapf(ErrUnsupportedDimensionality, "mask needs a 3-D volume, got rank %d", v.Dimension())
	}
	dir, err := direction3(v.Direction, 3)
	if err != nil {
		return nil, err
	}

	mask := &models.BinaryMask{
		Label: label,
		Data:  make([]int16, len(v.Data)),
	}
	copy(mask.Size[:], v.Size)
	copy(mask.Spacing[:], firstThree(v.Spacing, 1))
	copy(mask.Origin[:], firstThree(v.Origin, 0))
	copy(mask.Direction[:], dir)

	for i, value := range v.Data {
		if value == label {
			mask.Data[i] = Inside
		} else {
			mask.Data[i] = Outside
		}
	}
	return mask, nil
}
