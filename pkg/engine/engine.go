// Package engine runs an interpolation strategy over a whole mesh.
//
// An Engine is created in state Configured, moves to Running when Run is
// called and ends in Completed or Failed. Run may be called only once.
//
// Entities are split into batches that a pool of workers evaluates
// concurrently. A single collector merges the per-batch outcomes into the
// property field, so the field never has more than one writer. Cancellation
// through the context is observed between batches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"img2physprop/internal/models"
	"img2physprop/pkg/aggregate"
	"img2physprop/pkg/calibration"
	"img2physprop/pkg/field"
	"img2physprop/pkg/interpolation"
)

// State is the lifecycle stage of an Engine
type State int

const (
	Configured State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrAlreadyRun is returned by a second call to Run.
var ErrAlreadyRun = errors.New("engine: Run called more than once")

// ProgressCallback is a function that reports progress during a run
type ProgressCallback func(completed, total int, message string)

// Params holds the inputs of a run.
type Params struct {
	// Volume is the image data. It is only read.
	Volume *models.Volume

	// Mesh is the target discretization. It is only read.
	Mesh *models.Mesh

	// Curve maps intensities to property values. Ignored when
	// Options.CalibrationEnabled is false.
	Curve calibration.Curve

	Options Options

	// Logger receives step and warning messages. Nil uses log.Default().
	Logger *log.Logger

	// Progress, when set, is called after every merged batch.
	Progress ProgressCallback
}

// Engine evaluates one interpolation run
type Engine struct {
	opts     Options
	mesh     *models.Mesh
	channels int
	interp   interpolation.Interpolator
	logger   *log.Logger
	progress ProgressCallback

	mu      sync.Mutex
	state   State
	summary field.Summary
}

// New validates the inputs and prepares the interpolator. Configuration
// errors (singular orientation, invalid curve, bad worker settings) are
// reported here, before any entity is evaluated.
func New(params *Params) (*Engine, error) {
	const op = "engine.New"
	if params == nil || params.Volume == nil || params.Mesh == nil {
		return nil, models.NewError(models.KindInvalidConfig, op, fmt.Errorf("volume and mesh are required"))
	}
	opts := params.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var conv *calibration.Converter
	if opts.CalibrationEnabled {
		c, err := calibration.NewConverter(params.Curve, opts.CalibrationRange)
		if err != nil {
			return nil, err
		}
		conv = c
	}

	interp, err := interpolation.New(opts.Strategy, interpolation.Deps{
		Volume:    params.Volume,
		Mesh:      params.Mesh,
		Converter: conv,
		Options:   opts.interpolationOptions(),
	})
	if err != nil {
		return nil, err
	}

	logger := params.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		opts:     opts,
		mesh:     params.Mesh,
		channels: params.Volume.Channels,
		interp:   interp,
		logger:   logger,
		progress: params.Progress,
		state:    Configured,
	}, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Summary returns the status counts of a completed run.
func (e *Engine) Summary() field.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run evaluates every entity and returns the frozen field with its summary.
func (e *Engine) Run(ctx context.Context) (*field.PropertyField, field.Summary, error) {
	e.mu.Lock()
	if e.state != Configured {
		e.mu.Unlock()
		return nil, field.Summary{}, ErrAlreadyRun
	}
	e.state = Running
	e.mu.Unlock()

	f, err := e.run(ctx)
	if err != nil {
		e.setState(Failed)
		return nil, field.Summary{}, err
	}

	summary := f.Summary()
	e.mu.Lock()
	e.summary = summary
	e.state = Completed
	e.mu.Unlock()
	return f, summary, nil
}

func (e *Engine) run(ctx context.Context) (*field.PropertyField, error) {
	start := time.Now()
	strategy := e.interp.Strategy()

	// Step 1: evaluate every entity of the strategy's own granularity
	e.logger.Infof("Step 1: Interpolating %d %ss with strategy %s...", len(e.interp.IDs()), e.interp.Granularity(), strategy)
	native, err := e.evaluate(ctx)
	if err != nil {
		return nil, err
	}
	e.logWarnings(native.Summary())

	// Step 2: move values to the requested granularity
	out := native
	target := e.opts.OutputGranularity.resolve(strategy)
	if target != native.Granularity() {
		e.logger.Infof("Step 2: Aggregating %s values to %ss...", native.Granularity(), target)
		if target == field.Node {
			out, err = aggregate.ElementsToNodes(e.mesh, native)
		} else {
			out, err = aggregate.NodesToElements(e.mesh, native)
		}
		if err != nil {
			return nil, err
		}
	}

	e.logger.Infof("Interpolation finished: %s (%s)", out.Summary(), time.Since(start).Round(time.Millisecond))
	return out, nil
}

// batchResult carries the outcomes of one batch to the collector
type batchResult struct {
	size     int
	outcomes []interpolation.Outcome
	err      error
}

// evaluate fans batches out over the workers and merges their outcomes.
func (e *Engine) evaluate(ctx context.Context) (*field.PropertyField, error) {
	ids := e.interp.IDs()
	batches := partition(ids, e.opts.BatchSize)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan []int)
	results := make(chan batchResult)

	var wg sync.WaitGroup
	for w := 0; w < min(e.opts.NumWorkers, max(1, len(batches))); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				if runCtx.Err() != nil {
					continue
				}
				results <- e.evaluateBatch(batch)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, batch := range batches {
			select {
			case jobs <- batch:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	b := field.NewBuilder(e.interp.Granularity(), e.channels)
	var fatal []error
	var firstErr error
	completed := 0
	for res := range results {
		completed += res.size
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			cancel()
			continue
		}
		for _, out := range res.outcomes {
			if err := b.Set(out.ID, out.Record()); err != nil && firstErr == nil {
				firstErr = err
				cancel()
			}
			if out.Fatal() {
				fatal = append(fatal, out.Err)
				if e.opts.FailFast {
					cancel()
				}
			}
		}
		if e.progress != nil {
			e.progress(completed, len(ids), fmt.Sprintf("Interpolated %d/%d %ss", completed, len(ids), e.interp.Granularity()))
		}
		e.logger.Debugf("Interpolated %d/%d %ss", completed, len(ids), e.interp.Granularity())
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if len(fatal) > 0 {
		sortByEntity(fatal)
		if e.opts.FailFast {
			return nil, fatal[0]
		}
		return nil, errors.Join(fatal...)
	}
	if err := ctx.Err(); err != nil && b.Len() < len(ids) {
		return nil, fmt.Errorf("interpolation aborted after %d of %d %ss: %w", b.Len(), len(ids), e.interp.Granularity(), err)
	}
	return b.Freeze(), nil
}

func (e *Engine) evaluateBatch(batch []int) batchResult {
	res := batchResult{size: len(batch), outcomes: make([]interpolation.Outcome, 0, len(batch))}
	for _, id := range batch {
		out, err := e.interp.Interpolate(id)
		if err != nil {
			res.err = err
			return res
		}
		res.outcomes = append(res.outcomes, out)
	}
	return res
}

// logWarnings reports entities that did not get a regular sample.
func (e *Engine) logWarnings(s field.Summary) {
	entity := e.interp.Granularity()
	if s.Fallback > 0 {
		e.logger.Warnf("%d of %d %ss were outside the image and got the default value %g", s.Fallback, s.Total, entity, e.opts.DefaultValue)
	}
	if s.FallbackToCentroid > 0 {
		e.logger.Warnf("%d of %d %ss enclosed no voxel and were sampled at their centroid", s.FallbackToCentroid, s.Total, entity)
	}
}

func partition(ids []int, size int) [][]int {
	var batches [][]int
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}

func sortByEntity(errs []error) {
	sort.SliceStable(errs, func(i, j int) bool {
		_, a, _ := models.EntityOf(errs[i])
		_, b, _ := models.EntityOf(errs[j])
		return a < b
	})
}
