package volume

import (
	"github.com/pkg/errors"

	"github.com/jilei-hao/scherzo/internal/models"
)

// Decompose splits v into one 3-D volume per time point.
//
// A 3-D volume yields a single-element series holding v itself. A 4-D volume
// yields Size[3] new volumes whose voxels are copied from the contiguous
// block at t*Size[0]*Size[1]*Size[2]; size, spacing and origin are truncated
// to three components and the direction to its upper-left 3x3 block.
// v is never modified.
func Decompose(v *models.Volume) (models.TimeSeries, error) {
	if err := Validate(v); err != nil {
		return nil, err
	}

	if v.Dimension() == 3 {
		return models.TimeSeries{v}, nil
	}

	dir, err := direction3(v.Direction, 4)
	if err != nil {
		return nil, err
	}
	size := []int{v.Size[0], v.Size[1], v.Size[2]}
	spacing := firstThree(v.Spacing, 1)
	origin := firstThree(v.Origin, 0)

	n := blockLength(v)
	series := make(models.TimeSeries, v.Size[3])
	for t := range series {
		block := v.Data[t*n : (t+1)*n]
		data := make([]int32, n)
		copy(data, block)

		series[t] = &models.Volume{
			Data:      data,
			Size:      append([]int(nil), size...),
			Spacing:   append([]float64(nil), spacing...),
			Origin:    append([]float64(nil), origin...),
			Direction: append([]float64(nil), dir...),
		}
	}
	return series, nil
}

// TimePoint returns the 3-D volume of time point t without decomposing the
// whole series.
func TimePoint(v *models.Volume, t int) (*models.Volume, error) {
	if err := Validate(v); err != nil {
		return nil, err
	}
	count := 1
	if v.Dimension() == 4 {
		count = v.Size[3]
	}
	if t < 0 || t >= count {
		return nil, errors.Errorf("time point %d out of range [0, %d)", t, count)
	}
	if v.Dimension() == 3 {
		return v, nil
	}
	series, err := Decompose(&models.Volume{
		Data:      v.Data[t*blockLength(v) : (t+1)*blockLength(v)],
		Size:      []int{v.Size[0], v.Size[1], v.Size[2], 1},
		Spacing:   v.Spacing,
		Origin:    v.Origin,
		Direction: v.Direction,
	})
	if err != nil {
		return nil, err
	}
	return series[0], nil
}
