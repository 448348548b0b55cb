package surface

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// RASTransform returns the 4x4 matrix that takes points extracted with an
// identity direction (origin + spacing*index) to RAS world coordinates.
//
// It is vox2ras * grid2vox, where grid2vox undoes the origin and spacing and
// vox2ras applies the LPS to RAS flip, the spacing and the direction, with the
// origin flipped into RAS as the translation.
func RASTransform(spacing, origin [3]float64, direction [9]float64) *mat.Dense {
	lpsToRAS := mat.NewDiagDense(3, []float64{-1, -1, 1})

	scale := mat.NewDiagDense(3, spacing[:])
	var flipScale mat.Dense
	flipScale.Mul(lpsToRAS, scale)

	dir := mat.NewDense(3, 3, direction[:])
	var linear mat.Dense
	linear.MulElem(&flipScale, dir)

	var offset mat.VecDense
	offset.MulVec(lpsToRAS, mat.NewVecDense(3, origin[:]))

	vox2ras := mat.NewDense(4, 4, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			vox2ras.Set(r, c, linear.At(r, c))
		}
		vox2ras.Set(r, 3, offset.AtVec(r))
	}
	vox2ras.Set(3, 3, 1)

	grid2vox := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		grid2vox.Set(i, i, 1/spacing[i])
		grid2vox.Set(i, 3, -origin[i]/spacing[i])
	}
	grid2vox.Set(3, 3, 1)

	var out mat.Dense
	out.Mul(vox2ras, grid2vox)
	return &out
}

// Transform applies the affine 4x4 matrix m to every point of p. If m mirrors
// space the triangles are rewound so normals keep pointing outwards.
func Transform(p *PolyData, m mat.Matrix) {
	at := m.At
	for i, v := range p.Points {
		p.Points[i] = r3.Vec{
			X: at(0, 0)*v.X + at(0, 1)*v.Y + at(0, 2)*v.Z + at(0, 3),
			Y: at(1, 0)*v.X + at(1, 1)*v.Y + at(1, 2)*v.Z + at(1, 3),
			Z: at(2, 0)*v.X + at(2, 1)*v.Y + at(2, 2)*v.Z + at(2, 3),
		}
	}

	linear := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			linear.Set(r, c, at(r, c))
		}
	}
	if mat.Det(linear) < 0 {
		for i := range p.Triangles {
			t := &p.Triangles[i]
			t[1], t[2] = t[2], t[1]
		}
	}
}
