package volume

import (
	"sort"

	"github.com/jilei-hao/scherzo/internal/models"
)

// ExtractLabels returns the distinct voxel values of v in ascending numeric
// order, without the background value 0.
func ExtractLabels(v *models.Volume) models.LabelSet {
	seen := make(map[int32]struct{})
	var last int32
	haveLast := false
	for _, value := range v.Data {
		// Label volumes are run-heavy; skip the map lookup on repeats.
		if haveLast && value == last {
			continue
		}
		last, haveLast = value, true
		seen[value] = struct{}{}
	}
	delete(seen, 0)

	labels := make(models.LabelSet, 0, len(seen))
	for value := range seen {
		labels = append(labels, value)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// UnionLabels merges several label sets into one ascending set.
func UnionLabels(sets ...models.LabelSet) models.LabelSet {
	seen := make(map[int32]struct{})
	for _, set := range sets {
		for _, l := range set {
			seen[l] = struct{}{}
		}
	}
	union := make(models.LabelSet, 0, len(seen))
	for l := range seen {
		union = append(union, l)
	}
	sort.Slice(union, func(i, j int) bool { return union[i] < union[j] })
	return union
}

// CountLabel returns the number of voxels of v equal to label.
func CountLabel(v *models.Volume, label int32) int {
	n := 0
	for _, value := range v.Data {
		if value == label {
			n++
		}
	}
	return n
}
