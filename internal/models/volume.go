package models

// Volume represents a label image together with its physical geometry.
// Voxels are stored x fastest, then y, then z (then t for 4-D sources).
type Volume struct {
	// Data holds one label value per voxel
	Data []int32

	// Size holds the number of voxels along each axis (3 or 4 entries)
	Size []int

	// Spacing is the physical voxel size along each axis in mm
	Spacing []float64

	// Origin is the physical position of the first voxel
	Origin []float64

	// Direction is the row-major direction cosine matrix (3x3 or 4x4)
	Direction []float64
}

// Dimension returns the rank of the volume.
func (v *Volume) Dimension() int {
	return len(v.Size)
}

// VoxelCount returns the product of all size components.
func (v *Volume) VoxelCount() int {
	if len(v.Size) == 0 {
		return 0
	}
	n := 1
	for _, s := range v.Size {
		n *= s
	}
	return n
}

// Release drops the voxel buffer. The geometry stays readable.
func (v *Volume) Release() {
	v.Data = nil
}

// TimeSeries is an ordered sequence of 3-D volumes, one per time point.
type TimeSeries []*Volume

// Release drops the voxel buffers of every time point.
func (s TimeSeries) Release() {
	for _, v := range s {
		if v != nil {
			v.Release()
		}
	}
}

// LabelSet is an ascending list of distinct non-background label values.
type LabelSet []int32

// Contains reports whether label is part of the set.
func (l LabelSet) Contains(label int32) bool {
	for _, v := range l {
		if v == label {
			return true
		}
	}
	return false
}

// BinaryMask isolates one label of a volume: +1 inside, -1 everywhere else.
type BinaryMask struct {
	// Label is the value the mask was built for
	Label int32

	// Data holds +1 or -1 per voxel
	Data []int16

	Size      [3]int
	Spacing   [3]float64
	Origin    [3]float64
	Direction [9]float64
}

// VoxelCount returns the number of voxels described by Size.
func (m *BinaryMask) VoxelCount() int {
	return m.Size[0] * m.Size[1] * m.Size[2]
}

// ForegroundCount returns the number of +1 voxels.
func (m *BinaryMask) ForegroundCount() int {
	n := 0
	for _, v := range m.Data {
		if v > 0 {
			n++
		}
	}
	return n
}

// Release drops the mask buffer.
func (m *BinaryMask) Release() {
	m.Data = nil
}
