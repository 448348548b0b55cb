package engine

import (
	"encoding/binary"
	"math"

	"github.com/jilei-hao/scherzo/pkg/logging"
	"github.com/jilei-hao/scherzo/pkg/surface"
)

// Status codes returned by generator calls.
const (
	StatusOK = iota
	StatusInvalidContext
	StatusInvalidArgument
	StatusInvalidImage
	StatusNoImage
	StatusEmptySurface
	StatusFailed
	StatusBadPointer
)

var statusNames = map[int]string{
	StatusOK:              "ok",
	StatusInvalidContext:  "invalid generator context",
	StatusInvalidArgument: "invalid argument",
	StatusInvalidImage:    "invalid image",
	StatusNoImage:         "no image set",
	StatusEmptySurface:    "empty surface",
	StatusFailed:          "extraction failed",
	StatusBadPointer:      "bad pointer",
}

// StatusText returns a description of a status code.
func StatusText(code int) string {
	if s, ok := statusNames[code]; ok {
		return s
	}
	return "unknown status"
}

type generator struct {
	params surface.Params
	debug  bool
	field  *surface.Field
	result *surface.PolyData
}

// CreateGenerator allocates a generator context with default parameters.
// It returns 0 if the module is closed.
func (m *Module) CreateGenerator() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0
	}
	m.nextID++
	if m.nextID == 0 {
		m.nextID++
	}
	m.generators[m.nextID] = &generator{params: surface.DefaultParams()}
	return m.nextID
}

// DestroyGenerator releases a generator context and its results.
func (m *Module) DestroyGenerator(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.generators, id)
}

func (m *Module) lookup(id uint32) *generator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generators[id]
}

func (m *Module) update(id uint32, ok bool, fn func(g *generator)) int {
	g := m.lookup(id)
	if g == nil {
		return StatusInvalidContext
	}
	if !ok {
		return StatusInvalidArgument
	}
	fn(g)
	return StatusOK
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (m *Module) SetGaussianSigma(id uint32, sigma float64) int {
	return m.update(id, finite(sigma) && sigma >= 0, func(g *generator) { g.params.GaussianSigma = sigma })
}

func (m *Module) SetMeshSmoothingIterations(id uint32, n uint32) int {
	return m.update(id, n <= 10000, func(g *generator) { g.params.SmoothingIterations = int(n) })
}

func (m *Module) SetMeshSmoothingPassband(id uint32, passband float64) int {
	return m.update(id, finite(passband) && passband > 0 && passband <= 2, func(g *generator) { g.params.SmoothingPassband = passband })
}

func (m *Module) SetMeshFeatureAngle(id uint32, degrees float64) int {
	return m.update(id, finite(degrees) && degrees >= 0 && degrees <= 180, func(g *generator) { g.params.FeatureAngle = degrees })
}

func (m *Module) SetMeshEdgeAngle(id uint32, degrees float64) int {
	return m.update(id, finite(degrees) && degrees >= 0 && degrees <= 180, func(g *generator) { g.params.EdgeAngle = degrees })
}

func (m *Module) SetFeatureEdgeSmoothing(id uint32, on bool) int {
	return m.update(id, true, func(g *generator) { g.params.FeatureEdgeSmoothing = on })
}

func (m *Module) SetMeshDecimationTargetReduction(id uint32, reduction float64) int {
	return m.update(id, finite(reduction) && reduction >= 0 && reduction < 1, func(g *generator) { g.params.DecimationTargetReduction = reduction })
}

func (m *Module) SetApplyRASTransform(id uint32, on bool) int {
	return m.update(id, true, func(g *generator) { g.params.ApplyRASTransform = on })
}

func (m *Module) SetPrintDebugInfo(id uint32, on bool) int {
	return m.update(id, true, func(g *generator) { g.debug = on })
}

func (m *Module) readFloat64s(ptr uint32, n int) ([]float64, error) {
	raw, err := m.Read(ptr, 8*n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	_, err = binary.Decode(raw, binary.LittleEndian, out)
	return out, err
}

// SetImage loads a signed 16-bit mask into the generator.
//
// buf holds bufLen int16 voxels; dims points at 3 uint16, spacing and origin
// at 3 float64 each, direction at 9 float64 in row-major order. bufLen must
// equal the product of the dimensions.
func (m *Module) SetImage(id, buf uint32, bufLen int, dims, spacing, origin, direction uint32) int {
	g := m.lookup(id)
	if g == nil {
		return StatusInvalidContext
	}

	rawDims, err := m.Read(dims, 6)
	if err != nil {
		return StatusBadPointer
	}
	var d [3]int
	for i := range d {
		d[i] = int(binary.LittleEndian.Uint16(rawDims[2*i:]))
	}
	if d[0] == 0 || d[1] == 0 || d[2] == 0 || bufLen != d[0]*d[1]*d[2] {
		if g.debug {
			logging.Debugf("setImage: buffer of %d voxels does not match dims %v", bufLen, d)
		}
		return StatusInvalidImage
	}

	sp, err := m.readFloat64s(spacing, 3)
	if err != nil {
		return StatusBadPointer
	}
	org, err := m.readFloat64s(origin, 3)
	if err != nil {
		return StatusBadPointer
	}
	dir, err := m.readFloat64s(direction, 9)
	if err != nil {
		return StatusBadPointer
	}
	for _, s := range sp {
		if !finite(s) || s <= 0 {
			return StatusInvalidImage
		}
	}

	raw, err := m.Read(buf, 2*bufLen)
	if err != nil {
		return StatusBadPointer
	}
	field := &surface.Field{Data: make([]float32, bufLen), Dims: d}
	for i := range field.Data {
		field.Data[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:])))
	}
	copy(field.Spacing[:], sp)
	copy(field.Origin[:], org)
	copy(field.Direction[:], dir)

	if g.debug {
		logging.Debugf("setImage: dims %v spacing %v origin %v", d, sp, org)
		logging.Debugf("setImage: direction %v", dir)
	}

	m.mu.Lock()
	g.field = field
	g.result = nil
	m.mu.Unlock()
	return StatusOK
}

// GenerateModel runs extraction on the loaded image.
func (m *Module) GenerateModel(id uint32) int {
	g := m.lookup(id)
	if g == nil {
		return StatusInvalidContext
	}
	if g.field == nil {
		return StatusNoImage
	}

	tlog := logging.NewTimeLog()
	result, err := surface.Extract(g.field, g.params)
	if err != nil {
		if g.debug {
			logging.Debugf("generateModel failed: %v", err)
		}
		return StatusFailed
	}
	if g.debug {
		tlog.Debugf("generateModel: %d points, %d triangles", len(result.Points), len(result.Triangles))
	}

	m.mu.Lock()
	g.result = result
	m.mu.Unlock()
	if len(result.Triangles) == 0 {
		return StatusEmptySurface
	}
	return StatusOK
}

// GetNumberOfPoints returns the point count of the last result, or -1.
func (m *Module) GetNumberOfPoints(id uint32) int {
	g := m.lookup(id)
	if g == nil || g.result == nil {
		return -1
	}
	return len(g.result.Points)
}

// GetNumberOfCellIndices returns the length of the triangle index buffer of
// the last result, or -1.
func (m *Module) GetNumberOfCellIndices(id uint32) int {
	g := m.lookup(id)
	if g == nil || g.result == nil {
		return -1
	}
	return 3 * len(g.result.Triangles)
}

// GetModel writes the last result into linear memory: x, y, z float32 per
// point at points and three int32 indices per triangle at cells.
func (m *Module) GetModel(id, points, cells uint32) int {
	g := m.lookup(id)
	if g == nil {
		return StatusInvalidContext
	}
	if g.result == nil {
		return StatusNoImage
	}

	pts, tris := g.result.Flatten()
	if len(pts) > 0 {
		buf := make([]byte, 4*len(pts))
		if _, err := binary.Encode(buf, binary.LittleEndian, pts); err != nil {
			return StatusFailed
		}
		if err := m.Write(points, buf); err != nil {
			return StatusBadPointer
		}
	}
	if len(tris) > 0 {
		buf := make([]byte, 4*len(tris))
		if _, err := binary.Encode(buf, binary.LittleEndian, tris); err != nil {
			return StatusFailed
		}
		if err := m.Write(cells, buf); err != nil {
			return StatusBadPointer
		}
	}
	return StatusOK
}
