package models

import "fmt"

// Mesh is a triangle surface stored as flat buffers.
type Mesh struct {
	// Points holds x, y, z for every point
	Points []float32

	// Triangles holds three point indices per triangle
	Triangles []int32
}

// PointCount returns the number of points in the mesh.
func (m Mesh) PointCount() int { return len(m.Points) / 3 }

// TriangleCount returns the number of triangles in the mesh.
func (m Mesh) TriangleCount() int { return len(m.Triangles) / 3 }

// IsEmpty reports whether the mesh carries no triangles.
func (m Mesh) IsEmpty() bool { return len(m.Triangles) == 0 }

// Validate checks the buffer shapes and that every index refers to a point.
func (m Mesh) Validate() error {
	if len(m.Points)%3 != 0 {
		return fmt.Errorf("point buffer length %d is not a multiple of 3", len(m.Points))
	}
	if len(m.Triangles)%3 != 0 {
		return fmt.Errorf("triangle buffer length %d is not a multiple of 3", len(m.Triangles))
	}
	n := int32(m.PointCount())
	for i, idx := range m.Triangles {
		if idx < 0 || idx >= n {
			return fmt.Errorf("triangle index %d at position %d out of range [0, %d)", idx, i, n)
		}
	}
	return nil
}

// Point returns point i.
func (m Mesh) Point(i int) [3]float32 {
	return [3]float32{m.Points[3*i], m.Points[3*i+1], m.Points[3*i+2]}
}

// LabelModel pairs a label value with its surface for one time point.
type LabelModel struct {
	Label int32
	Mesh  Mesh
}

// TimePointModels lists the label models of one time point in ascending label order.
type TimePointModels []LabelModel

// Labels returns the label values in order.
func (tp TimePointModels) Labels() LabelSet {
	labels := make(LabelSet, len(tp))
	for i, m := range tp {
		labels[i] = m.Label
	}
	return labels
}

// Find returns the model for label, if present.
func (tp TimePointModels) Find(label int32) (LabelModel, bool) {
	for _, m := range tp {
		if m.Label == label {
			return m, true
		}
	}
	return LabelModel{}, false
}

// ModelSet holds the label models of every time point, in time order.
type ModelSet []TimePointModels

// TimePoints returns the number of time points.
func (s ModelSet) TimePoints() int { return len(s) }

// Labels returns the label list of the first time point.
func (s ModelSet) Labels() LabelSet {
	if len(s) == 0 {
		return nil
	}
	return s[0].Labels()
}
