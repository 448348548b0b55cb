package reconstruction

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/jilei-hao/scherzo/internal/models"
	"github.com/jilei-hao/scherzo/pkg/bridge"
	"github.com/jilei-hao/scherzo/pkg/cache"
	"github.com/jilei-hao/scherzo/pkg/isosurface"
	"github.com/jilei-hao/scherzo/pkg/logging"
	"github.com/jilei-hao/scherzo/pkg/mesh"
	"github.com/jilei-hao/scherzo/pkg/metrics"
	"github.com/jilei-hao/scherzo/pkg/volume"
)

// Params holds the generation parameters of a Reconstructor.
type Params struct {
	// Options are handed to the isosurface generator for every label.
	// They are validated once before any work starts.
	Options isosurface.Options

	// NumWorkers bounds the number of label surfaces extracted at the same
	// time. Values below 1 select runtime.NumCPU().
	NumWorkers int

	// ReleaseSource drops the voxel buffer of the input volume once it is no
	// longer needed. For a 4-D input this happens right after decomposition,
	// for a 3-D input once every mask has been built. The caller must not
	// reuse the volume's data afterwards.
	ReleaseSource bool
}

// FailureKind classifies why a label surface could not be produced.
type FailureKind int

const (
	// FailureMarshal means moving buffers into or out of the engine failed.
	FailureMarshal FailureKind = iota + 1

	// FailureExtraction means the engine rejected the mask or the extraction.
	FailureExtraction
)

func (k FailureKind) String() string {
	switch k {
	case FailureMarshal:
		return "buffer marshal"
	case FailureExtraction:
		return "extraction"
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

// LabelFailure records one label that is missing from a ModelSet.
type LabelFailure struct {
	TimePoint int
	Label     int32
	Kind      FailureKind
	Err       error
}

func (f LabelFailure) Error() string {
	return fmt.Sprintf("time point %d, label %d: %s: %v", f.TimePoint, f.Label, f.Kind, f.Err)
}

func (f LabelFailure) Unwrap() error { return f.Err }

// GenerationError is returned together with a partial ModelSet when some
// labels failed. The failed labels carry empty meshes in the set.
type GenerationError struct {
	Failures []LabelFailure
}

func (e *GenerationError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("%d label surface(s) failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *GenerationError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Report summarises the last generation run.
type Report struct {
	TimePoints int
	Labels     int

	// Generated, Empty, Cached and Failed count label surfaces by outcome
	Generated int
	Empty     int
	Cached    int
	Failed    int

	Points    int
	Triangles int

	Duration time.Duration

	// ModelSetBytes is the in-memory footprint of the returned ModelSet
	ModelSetBytes int
}

func (r Report) String() string {
	return fmt.Sprintf("%d time point(s) x %d label(s): %d generated, %d empty, %d cached, %d failed; %s points, %s triangles, %s in %s",
		r.TimePoints, r.Labels, r.Generated, r.Empty, r.Cached, r.Failed,
		humanize.Comma(int64(r.Points)), humanize.Comma(int64(r.Triangles)),
		humanize.Bytes(uint64(r.ModelSetBytes)), r.Duration.Round(time.Millisecond))
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithCache makes the Reconstructor reuse meshes stored in c.
func WithCache(c *cache.Cache) Option {
	return func(r *Reconstructor) { r.cache = c }
}

// WithMetrics makes the Reconstructor record its work in m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Reconstructor) { r.metrics = m }
}

// Reconstructor turns label volumes into per-label, per-time-point surface
// models.
//
// The generation process consists of several steps:
// 1. Splitting the volume into 3-D time points
// 2. Collecting the labels of every time point into one ascending label set
// 3. Building the signed mask of each (time point, label) pair
// 4. Extracting, smoothing and decimating each mask's surface in the engine,
// with at most NumWorkers extractions in flight
// 5. Assembling the meshes in time point and label order
type Reconstructor struct {
	// params stores the generation configuration
	params Params

	// generator drives the computation engine; it holds no per-call state
	generator *isosurface.Generator

	// cache, when set, short-circuits extraction for masks seen before
	cache *cache.Cache

	// metrics, when set, receives per-label and per-run observations
	metrics *metrics.Recorder

	mu     sync.Mutex
	report Report
}

// NewReconstructor creates a Reconstructor that extracts surfaces with e.
//
// Parameters:
//   - params: generation parameters; nil selects the default options
//   - e: the computation engine, typically from isosurface.SessionEngine
//   - opts: optional cache and metrics
func NewReconstructor(params *Params, e isosurface.Engine, opts ...Option) *Reconstructor {
	p := Params{Options: isosurface.DefaultOptions()}
	if params != nil {
		p = *params
	}
	if p.NumWorkers < 1 {
		p.NumWorkers = runtime.NumCPU()
	}
	r := &Reconstructor{
		params:    p,
		generator: isosurface.NewGenerator(e),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GenerateModels runs the whole pipeline on vol and returns one entry per
// time point, each listing the same labels in ascending order.
//
// A label absent from some time point gets an empty mesh there. Decomposition
// errors, invalid options, engine initialisation failures and cancellation
// abort the request. Failures of individual labels do not: the ModelSet is
// returned together with a *GenerationError naming them.
func (r *Reconstructor) GenerateModels(ctx context.Context, vol *models.Volume) (set models.ModelSet, err error) {
	start := time.Now()
	tlog := logging.NewTimeLog()
	defer func() { r.metrics.ObserveRun(time.Since(start), err) }()

	if err := r.params.Options.Validate(); err != nil {
		return nil, err
	}
	series, err := volume.Decompose(vol)
	if err != nil {
		return nil, errors.Wrap(err, "decomposing volume")
	}
	if r.params.ReleaseSource && vol.Dimension() == 4 {
		vol.Release()
	}

	sets := make([]models.LabelSet, len(series))
	for t, tp := range series {
		sets[t] = volume.ExtractLabels(tp)
	}
	labels := volume.UnionLabels(sets...)
	logging.Infof("Generating %d label surface(s) for %d time point(s) with %d worker(s)",
		len(labels), len(series), r.params.NumWorkers)

	run := &runState{
		results: make([][]models.LabelModel, len(series)),
		report:  Report{TimePoints: len(series), Labels: len(labels)},
	}
	for t := range run.results {
		run.results[t] = make([]models.LabelModel, len(labels))
		for i, label := range labels {
			run.results[t][i] = mesh.AssembleLabel(label, models.Mesh{})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.params.NumWorkers)
schedule:
	for t, tp := range series {
		for i, label := range labels {
			if gctx.Err() != nil {
				break schedule
			}
			if !sets[t].Contains(label) {
				run.record(t, i, models.Mesh{}, metrics.OutcomeEmpty)
				r.metrics.ObserveLabel(metrics.OutcomeEmpty, 0, models.Mesh{})
				continue
			}
			g.Go(func() error {
				return r.generateLabel(gctx, run, t, i, tp, label)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// the errgroup context is cancelled by Wait; check the caller's
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.params.ReleaseSource {
		series.Release()
	}

	timePoints := make([]models.TimePointModels, len(series))
	for t, labelModels := range run.results {
		if timePoints[t], err = mesh.AssembleTimePoint(labelModels); err != nil {
			return nil, err
		}
	}
	if set, err = mesh.AssembleSeries(timePoints); err != nil {
		return nil, err
	}

	run.report.Duration = time.Since(start)
	run.report.ModelSetBytes = size.Of(set)
	r.mu.Lock()
	r.report = run.report
	r.mu.Unlock()
	tlog.Infof("Generated %s", run.report)

	if len(run.failures) > 0 {
		sort.Slice(run.failures, func(i, j int) bool {
			a, b := run.failures[i], run.failures[j]
			if a.TimePoint != b.TimePoint {
				return a.TimePoint < b.TimePoint
			}
			return a.Label < b.Label
		})
		return set, &GenerationError{Failures: run.failures}
	}
	return set, nil
}

// runState collects the results of one GenerateModels call.
type runState struct {
	mu       sync.Mutex
	results  [][]models.LabelModel
	failures []LabelFailure
	report   Report
}

func (r *runState) record(t, i int, m models.Mesh, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[t][i].Mesh = m
	switch outcome {
	case metrics.OutcomeGenerated:
		r.report.Generated++
	case metrics.OutcomeEmpty:
		r.report.Empty++
	case metrics.OutcomeCached:
		r.report.Cached++
	}
	r.report.Points += m.PointCount()
	r.report.Triangles += m.TriangleCount()
}

func (r *runState) fail(f LabelFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
	r.report.Failed++
}

// generateLabel extracts one label of one time point. It returns an error only
// for failures that must abort the whole request.
func (r *Reconstructor) generateLabel(ctx context.Context, run *runState, t, i int, tp *models.Volume, label int32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mask, err := volume.BuildMask(tp, label)
	if err != nil {
		return errors.Wrapf(err, "time point %d, label %d", t, label)
	}
	defer mask.Release()

	var key []byte
	if r.cache != nil {
		key = cache.Key(mask, r.params.Options)
		if m, ok := r.cache.Get(key); ok {
			logging.Debugf("time point %d, label %d: cached", t, label)
			run.record(t, i, m, metrics.OutcomeCached)
			r.metrics.ObserveLabel(metrics.OutcomeCached, 0, m)
			return nil
		}
	}

	start := time.Now()
	done := r.metrics.Start()
	m, err := r.generator.Generate(ctx, mask, r.params.Options)
	done()
	elapsed := time.Since(start)

	switch {
	case err == nil:
	case errors.Is(err, bridge.ErrUnsupportedBufferType),
		errors.Is(err, isosurface.ErrEngineInitializationFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return errors.Wrapf(err, "time point %d, label %d", t, label)
	default:
		kind := FailureExtraction
		if errors.Is(err, bridge.ErrBufferMarshal) {
			kind = FailureMarshal
		}
		logging.Warningf("time point %d, label %d: %v", t, label, err)
		run.fail(LabelFailure{TimePoint: t, Label: label, Kind: kind, Err: err})
		r.metrics.ObserveLabel(metrics.OutcomeFailed, elapsed, models.Mesh{})
		return nil
	}

	outcome := metrics.OutcomeGenerated
	if m.IsEmpty() {
		outcome = metrics.OutcomeEmpty
	}
	logging.Debugf("time point %d, label %d: %d points, %d triangles in %s", t, label, m.PointCount(), m.TriangleCount(), elapsed)
	run.record(t, i, m, outcome)
	r.metrics.ObserveLabel(outcome, elapsed, m)

	if key != nil {
		if err := r.cache.Put(key, m); err != nil {
			logging.Warningf("caching label %d: %v", label, err)
		}
	}
	return nil
}

// GetReport returns the report of the last successful GenerateModels call.
func (r *Reconstructor) GetReport() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report
}

// GenerateModels converts vol into a ModelSet with the session engine, using
// every CPU. vol is not modified, so repeated calls with the same input give
// the same result.
func GenerateModels(ctx context.Context, vol *models.Volume, opts isosurface.Options) (models.ModelSet, error) {
	e, err := isosurface.SessionEngine(ctx)
	if err != nil {
		return nil, err
	}
	return NewReconstructor(&Params{Options: opts}, e).GenerateModels(ctx, vol)
}
