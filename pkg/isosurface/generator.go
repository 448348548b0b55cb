// Package isosurface drives the computation engine to turn one binary label
// mask into a triangle mesh.
package isosurface

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/jilei-hao/scherzo/internal/models"
	"github.com/jilei-hao/scherzo/pkg/bridge"
	"github.com/jilei-hao/scherzo/pkg/engine"
	"github.com/jilei-hao/scherzo/pkg/logging"
)

var (
	// ErrEngineInitializationFailed means no generator context could be created.
	ErrEngineInitializationFailed = errors.New("engine initialization failed")

	// ErrEmptySurface describes a mask without foreground. Generate recovers
	// from it and returns an empty mesh; it is exported for callers that
	// classify results.
	ErrEmptySurface = errors.New("empty surface")

	// ErrExtractionFailed means the engine rejected the image or the extraction.
	ErrExtractionFailed = errors.New("surface extraction failed")

	// ErrInvalidOptions means the engine rejected a generation parameter.
	ErrInvalidOptions = errors.New("invalid generation options")
)

// Engine is the computation engine as seen by the generator: a linear memory
// plus the exported generator calls. *engine.Module implements it.
type Engine interface {
	bridge.Memory

	CreateGenerator() uint32
	DestroyGenerator(id uint32)

	SetGaussianSigma(id uint32, sigma float64) int
	SetMeshSmoothingIterations(id uint32, n uint32) int
	SetMeshSmoothingPassband(id uint32, passband float64) int
	SetMeshFeatureAngle(id uint32, degrees float64) int
	SetMeshEdgeAngle(id uint32, degrees float64) int
	SetFeatureEdgeSmoothing(id uint32, on bool) int
	SetMeshDecimationTargetReduction(id uint32, reduction float64) int
	SetApplyRASTransform(id uint32, on bool) int
	SetPrintDebugInfo(id uint32, on bool) int

	SetImage(id, buf uint32, bufLen int, dims, spacing, origin, direction uint32) int
	GenerateModel(id uint32) int
	GetNumberOfPoints(id uint32) int
	GetNumberOfCellIndices(id uint32) int
	GetModel(id, points, cells uint32) int
}

var _ Engine = (*engine.Module)(nil)

// SessionEngine returns the engine shared by this process, loading it on first use.
func SessionEngine(ctx context.Context) (Engine, error) {
	m, err := engine.Shared(ctx)
	if err != nil {
		return nil, errors.Wrap(ErrEngineInitializationFailed, err.Error())
	}
	return m, nil
}

// Generator extracts label surfaces with an Engine. It holds no per-call
// state and may be used from several goroutines when the engine allows it.
type Generator struct {
	engine Engine
	bridge *bridge.Bridge
}

// NewGenerator returns a Generator that runs on e.
func NewGenerator(e Engine) *Generator {
	return &Generator{engine: e, bridge: bridge.New(e)}
}

// Generate extracts the zero level set of mask as a mesh.
//
// Every engine buffer and the generator context are released before Generate
// returns, whatever the outcome. A mask without foreground gives an empty
// mesh and a nil error.
func (g *Generator) Generate(ctx context.Context, mask *models.BinaryMask, opts Options) (mesh models.Mesh, err error) {
	if err := ctx.Err(); err != nil {
		return models.Mesh{}, err
	}
	if mask == nil {
		return models.Mesh{}, errors.Wrap(ErrExtractionFailed, "nil mask")
	}
	if n := mask.VoxelCount(); len(mask.Data) != n {
		return models.Mesh{}, errors.Wrapf(ErrExtractionFailed, "mask has %d voxels, size %v needs %d", len(mask.Data), mask.Size, n)
	}
	dims := make([]uint16, 3)
	for i, s := range mask.Size {
		if s <= 0 || s > math.MaxUint16 {
			return models.Mesh{}, &bridge.MarshalError{Op: "dims", Err: errors.Errorf("size %v does not fit 16 bits", mask.Size)}
		}
		dims[i] = uint16(s)
	}

	var tlog logging.TimeLog
	if opts.Debug {
		tlog = logging.NewTimeLog()
	}

	id := g.engine.CreateGenerator()
	if id == 0 {
		return models.Mesh{}, ErrEngineInitializationFailed
	}
	defer g.engine.DestroyGenerator(id)

	scope := g.bridge.NewScope()
	defer func() {
		if cerr := scope.Close(); cerr != nil && err == nil {
			mesh, err = models.Mesh{}, cerr
		}
	}()

	if err := g.configure(id, opts); err != nil {
		return models.Mesh{}, err
	}

	var h [5]bridge.Handle
	for i, arr := range []any{dims, mask.Spacing[:], mask.Origin[:], mask.Direction[:], mask.Data} {
		if h[i], err = scope.Allocate(arr); err != nil {
			return models.Mesh{}, err
		}
	}
	if code := g.engine.SetImage(id, h[4].Ptr, len(mask.Data), h[0].Ptr, h[1].Ptr, h[2].Ptr, h[3].Ptr); code != engine.StatusOK {
		return models.Mesh{}, statusError("setImage", code)
	}

	switch code := g.engine.GenerateModel(id); code {
	case engine.StatusOK:
	case engine.StatusEmptySurface:
		if opts.Debug {
			tlog.Debugf("label %d: %v", mask.Label, ErrEmptySurface)
		}
		return models.Mesh{}, nil
	default:
		return models.Mesh{}, statusError("generateModel", code)
	}
	if err := ctx.Err(); err != nil {
		return models.Mesh{}, err
	}

	nPoints := g.engine.GetNumberOfPoints(id)
	nIndices := g.engine.GetNumberOfCellIndices(id)
	if nPoints < 0 || nIndices < 0 || nIndices%3 != 0 {
		return models.Mesh{}, errors.Wrapf(ErrExtractionFailed, "engine reported %d points, %d indices", nPoints, nIndices)
	}
	if nPoints == 0 || nIndices == 0 {
		return models.Mesh{}, nil
	}

	points, err := scope.Reserve(bridge.Float32, 3*nPoints)
	if err != nil {
		return models.Mesh{}, err
	}
	cells, err := scope.Reserve(bridge.Int32, nIndices)
	if err != nil {
		return models.Mesh{}, err
	}
	if code := g.engine.GetModel(id, points.Ptr, cells.Ptr); code != engine.StatusOK {
		return models.Mesh{}, statusError("getModel", code)
	}

	mesh.Points, err = bridge.ReadBackAs[float32](g.bridge, points, 3*nPoints)
	if err != nil {
		return models.Mesh{}, err
	}
	mesh.Triangles, err = bridge.ReadBackAs[int32](g.bridge, cells, nIndices)
	if err != nil {
		return models.Mesh{}, err
	}
	if err := mesh.Validate(); err != nil {
		return models.Mesh{}, errors.Wrap(ErrExtractionFailed, err.Error())
	}

	if opts.Debug {
		tlog.Debugf("label %d: %d points, %d triangles", mask.Label, mesh.PointCount(), mesh.TriangleCount())
	}
	return mesh, nil
}

func (g *Generator) configure(id uint32, o Options) error {
	iterations := o.SmoothingIterations
	if iterations < 0 {
		iterations = 0
	}
	calls := []struct {
		name string
		code int
	}{
		{"gaussianSigma", g.engine.SetGaussianSigma(id, o.GaussianSigma)},
		{"smoothingIterations", g.engine.SetMeshSmoothingIterations(id, uint32(iterations))},
		{"smoothingPassband", g.engine.SetMeshSmoothingPassband(id, o.SmoothingPassband)},
		{"featureAngle", g.engine.SetMeshFeatureAngle(id, o.FeatureAngle)},
		{"edgeAngle", g.engine.SetMeshEdgeAngle(id, o.EdgeAngle)},
		{"featureEdgeSmoothing", g.engine.SetFeatureEdgeSmoothing(id, o.FeatureEdgeSmoothing)},
		{"decimationTargetReduction", g.engine.SetMeshDecimationTargetReduction(id, o.DecimationTargetReduction)},
		{"applyRASTransform", g.engine.SetApplyRASTransform(id, o.ApplyRASTransform)},
		{"debug", g.engine.SetPrintDebugInfo(id, o.Debug)},
	}
	for _, c := range calls {
		switch c.code {
		case engine.StatusOK:
		case engine.StatusInvalidArgument:
			return errors.Wrapf(ErrInvalidOptions, "%s rejected", c.name)
		default:
			return statusError(c.name, c.code)
		}
	}
	return nil
}

func statusError(call string, code int) error {
	switch code {
	case engine.StatusBadPointer:
		return &bridge.MarshalError{Op: call, Err: errors.New(engine.StatusText(code))}
	case engine.StatusInvalidContext:
		return errors.Wrapf(ErrEngineInitializationFailed, "%s: %s", call, engine.StatusText(code))
	}
	return errors.Wrapf(ErrExtractionFailed, "%s: %s", call, engine.StatusText(code))
}
