package isosurface

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Options control surface generation for one label mask.
type Options struct {
	// GaussianSigma is the pre-smoothing kernel width in voxels
	GaussianSigma float64 `yaml:"gaussianSigma" toml:"gaussian_sigma"`

	// SmoothingPassband is the windowed-sinc pass band in (0, 2]
	SmoothingPassband float64 `yaml:"smoothingPassband" toml:"smoothing_passband"`

	// DecimationTargetReduction is the fraction of triangles to remove, in [0, 1)
	DecimationTargetReduction float64 `yaml:"decimationTargetReduction" toml:"decimation_target_reduction"`

	SmoothingIterations  int     `yaml:"smoothingIterations" toml:"smoothing_iterations"`
	FeatureAngle         float64 `yaml:"featureAngle" toml:"feature_angle"`
	EdgeAngle            float64 `yaml:"edgeAngle" toml:"edge_angle"`
	FeatureEdgeSmoothing bool    `yaml:"featureEdgeSmoothing" toml:"feature_edge_smoothing"`

	// ApplyRASTransform maps the surface into RAS world coordinates
	ApplyRASTransform bool `yaml:"applyRASTransform" toml:"apply_ras_transform"`

	// Debug turns on engine diagnostics; it never changes the geometry
	Debug bool `yaml:"debug" toml:"debug"`
}

// DefaultOptions returns the options used for label surfaces.
func DefaultOptions() Options {
	return Options{
		GaussianSigma:             0.8,
		SmoothingPassband:         0.01,
		DecimationTargetReduction: 0.7,
		SmoothingIterations:       50,
		FeatureAngle:              10,
		EdgeAngle:                 5,
	}
}

// ParseOptions builds Options from loosely typed key/value pairs, such as a
// decoded JSON request. Omitted keys keep their defaults and unknown keys are
// ignored.
func ParseOptions(values map[string]any) (Options, error) {
	opts := DefaultOptions()
	if len(values) == 0 {
		return opts, nil
	}
	raw, err := yaml.Marshal(values)
	if err != nil {
		return opts, errors.Wrap(err, "encoding options")
	}
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return DefaultOptions(), errors.Wrap(err, "decoding options")
	}
	return opts, nil
}

// Validate reports options the engine would reject.
func (o Options) Validate() error {
	switch {
	case o.GaussianSigma < 0:
		return errors.Wrapf(ErrInvalidOptions, "gaussianSigma %v", o.GaussianSigma)
	case o.SmoothingPassband <= 0 || o.SmoothingPassband > 2:
		return errors.Wrapf(ErrInvalidOptions, "smoothingPassband %v outside (0, 2]", o.SmoothingPassband)
	case o.DecimationTargetReduction < 0 || o.DecimationTargetReduction >= 1:
		return errors.Wrapf(ErrInvalidOptions, "decimationTargetReduction %v outside [0, 1)", o.DecimationTargetReduction)
	case o.SmoothingIterations < 0:
		return errors.Wrapf(ErrInvalidOptions, "smoothingIterations %d", o.SmoothingIterations)
	case o.FeatureAngle < 0 || o.FeatureAngle > 180:
		return errors.Wrapf(ErrInvalidOptions, "featureAngle %v", o.FeatureAngle)
	case o.EdgeAngle < 0 || o.EdgeAngle > 180:
		return errors.Wrapf(ErrInvalidOptions, "edgeAngle %v", o.EdgeAngle)
	}
	return nil
}
