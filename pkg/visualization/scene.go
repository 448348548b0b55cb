package visualization

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jilei-hao/scherzo/internal/models"
	"github.com/jilei-hao/scherzo/pkg/logging"
	"github.com/jilei-hao/scherzo/pkg/volume"
)

// ErrTimePoint is returned for a time point outside the scene.
var ErrTimePoint = errors.New("time point out of range")

// Surface is the renderable state of one label. The scene creates one per
// label and only swaps its mesh when the time point changes.
type Surface struct {
	Label int32
	Color RGBA
	Mesh  models.Mesh
}

// Scene tracks which time point of a ModelSet is on screen.
type Scene struct {
	mu       sync.RWMutex
	set      models.ModelSet
	surfaces []*Surface
	current  int
}

// NewScene creates a surface for every label found at any time point and
// binds the meshes of time point 0.
func NewScene(set models.ModelSet, table *ColorTable) (*Scene, error) {
	if len(set) == 0 {
		return nil, errors.Wrap(ErrTimePoint, "empty model set")
	}
	sets := make([]models.LabelSet, len(set))
	for t, tp := range set {
		sets[t] = tp.Labels()
	}
	labels := volume.UnionLabels(sets...)

	s := &Scene{set: set, surfaces: make([]*Surface, len(labels))}
	for i, label := range labels {
		s.surfaces[i] = &Surface{Label: label, Color: table.Lookup(label)}
	}
	s.bind(0)
	return s, nil
}

// bind points every surface at its mesh of time point t. Labels are matched
// by value, so time points may list different labels.
func (s *Scene) bind(t int) {
	tp := s.set[t]
	for _, surf := range s.surfaces {
		m, _ := tp.Find(surf.Label)
		surf.Mesh = m.Mesh
	}
	s.current = t
}

// Surfaces returns the scene's surfaces in label order. The pointers stay the
// same for the lifetime of the scene.
func (s *Scene) Surfaces() []*Surface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Surface(nil), s.surfaces...)
}

// TimePoints returns the number of time points.
func (s *Scene) TimePoints() int { return len(s.set) }

// CurrentTimePoint returns the index of the bound time point.
func (s *Scene) CurrentTimePoint() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetTimePoint binds the meshes of time point t.
func (s *Scene) SetTimePoint(t int) error {
	if t < 0 || t >= len(s.set) {
		return errors.Wrapf(ErrTimePoint, "%d of %d", t, len(s.set))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bind(t)
	return nil
}

// Step moves delta time points forward, wrapping around at both ends, and
// returns the new time point.
func (s *Scene) Step(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.set)
	t := ((s.current+delta)%n + n) % n
	s.bind(t)
	return t
}

// Play advances one time point per interval and calls onFrame after each
// step, until ctx is done. It returns ctx's error.
func (s *Scene) Play(ctx context.Context, interval time.Duration, onFrame func(t int)) error {
	if interval <= 0 {
		return errors.Errorf("invalid playback interval %s", interval)
	}
	logging.Debugf("Playing %d time points every %s", len(s.set), interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := ctx.Err(); err != nil {
				return err
			}
			t := s.Step(1)
			if onFrame != nil {
				onFrame(t)
			}
		}
	}
}
