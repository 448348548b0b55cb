// Package mesh packages engine output into label models and model sets, and
// provides the operations the export and caching layers need on meshes.
package mesh

import (
	"github.com/pkg/errors"

	"github.com/jilei-hao/scherzo/internal/models"
)

var (
	// ErrLabelOrder is returned when a time point's labels are not strictly ascending.
	ErrLabelOrder = errors.New("labels not in ascending order")

	// ErrLabelMismatch is returned when time points disagree on their label lists.
	ErrLabelMismatch = errors.New("time points have different labels")
)

// AssembleLabel pairs label with its mesh.
func AssembleLabel(label int32, m models.Mesh) models.LabelModel {
	return models.LabelModel{Label: label, Mesh: m}
}

// AssembleTimePoint collects the label models of one time point, keeping
// their order. Labels must already be strictly ascending.
func AssembleTimePoint(labelModels []models.LabelModel) (models.TimePointModels, error) {
	tp := make(models.TimePointModels, len(labelModels))
	for i, lm := range labelModels {
		if i > 0 && lm.Label <= labelModels[i-1].Label {
			return nil, errors.Wrapf(ErrLabelOrder, "label %d follows %d", lm.Label, labelModels[i-1].Label)
		}
		tp[i] = lm
	}
	return tp, nil
}

// AssembleSeries collects the time points in order. Every time point must
// list the same labels in the same order, so renderers can match them by
// position.
func AssembleSeries(timePoints []models.TimePointModels) (models.ModelSet, error) {
	set := make(models.ModelSet, len(timePoints))
	for t, tp := range timePoints {
		if t > 0 {
			if err := sameLabels(timePoints[0], tp); err != nil {
				return nil, errors.Wrapf(err, "time point %d", t)
			}
		}
		set[t] = tp
	}
	return set, nil
}

func sameLabels(a, b models.TimePointModels) error {
	if len(a) != len(b) {
		return errors.Wrapf(ErrLabelMismatch, "%d labels, want %d", len(b), len(a))
	}
	for i := range a {
		if a[i].Label != b[i].Label {
			return errors.Wrapf(ErrLabelMismatch, "label %d at position %d, want %d", b[i].Label, i, a[i].Label)
		}
	}
	return nil
}

// Merge concatenates meshes into one. Triangle indices of each mesh are
// offset by the number of points that precede it.
func Merge(meshes ...models.Mesh) models.Mesh {
	var nPts, nIdx int
	for _, m := range meshes {
		nPts += len(m.Points)
		nIdx += len(m.Triangles)
	}
	out := models.Mesh{
		Points:    make([]float32, 0, nPts),
		Triangles: make([]int32, 0, nIdx),
	}
	for _, m := range meshes {
		offset := int32(out.PointCount())
		out.Points = append(out.Points, m.Points...)
		for _, idx := range m.Triangles {
			out.Triangles = append(out.Triangles, idx+offset)
		}
	}
	return out
}

// MergeTimePoint merges every label mesh of tp, in label order.
func MergeTimePoint(tp models.TimePointModels) models.Mesh {
	meshes := make([]models.Mesh, len(tp))
	for i, lm := range tp {
		meshes[i] = lm.Mesh
	}
	return Merge(meshes...)
}
