package surface

import "math"

// gaussianKernel returns the normalised half kernel w[0..r] for sigma and radius r.
func gaussianKernel(sigma float64, radius int) []float64 {
	w := make([]float64, radius+1)
	sum := 0.0
	for k := 0; k <= radius; k++ {
		w[k] = math.Exp(-float64(k*k) / (2 * sigma * sigma))
		if k == 0 {
			sum += w[k]
		} else {
			sum += 2 * w[k]
		}
	}
	for k := range w {
		w[k] /= sum
	}
	return w
}

// GaussianSmooth convolves f with a separable Gaussian of standard deviation
// sigma voxels, truncated at radius floor(radiusFactor*sigma). Near the border
// the kernel is truncated and renormalised. The result shares f's geometry.
func GaussianSmooth(f *Field, sigma, radiusFactor float64) *Field {
	out := *f
	out.Data = append([]float32(nil), f.Data...)

	radius := int(sigma * radiusFactor)
	if sigma <= 0 || radius < 1 {
		return &out
	}
	w := gaussianKernel(sigma, radius)

	strides := [3]int{1, f.Dims[0], f.Dims[0] * f.Dims[1]}
	line := make([]float64, 0, 256)
	src := out.Data
	for axis := 0; axis < 3; axis++ {
		n := f.Dims[axis]
		if n < 2 {
			continue
		}
		stride := strides[axis]
		dst := make([]float32, len(src))

		// visit every line along axis by iterating over its starting voxel
		for z := 0; z < f.Dims[2]; z++ {
			if axis == 2 && z > 0 {
				break
			}
			for y := 0; y < f.Dims[1]; y++ {
				if axis == 1 && y > 0 {
					break
				}
				for x := 0; x < f.Dims[0]; x++ {
					if axis == 0 && x > 0 {
						break
					}
					start := f.index(x, y, z)
					line = line[:0]
					for i := 0; i < n; i++ {
						line = append(line, float64(src[start+i*stride]))
					}
					for i := 0; i < n; i++ {
						acc, norm := 0.0, 0.0
						for k := -radius; k <= radius; k++ {
							j := i + k
							if j < 0 || j >= n {
								continue
							}
							wk := w[abs(k)]
							acc += wk * line[j]
							norm += wk
						}
						dst[start+i*stride] = float32(acc / norm)
					}
				}
			}
		}
		src = dst
	}
	out.Data = src
	return &out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
