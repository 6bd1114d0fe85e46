// Package interpolation samples an image volume at mesh geometry and turns the
// samples into property values.
//
// Three strategies exist:
//
//   - node:      one value per mesh node, sampled at the node
//   - center:    one value per element, sampled at its centroid
//   - all_voxel: one value per element, aggregated over the voxels whose
//     centres lie inside the element, with a centroid fallback
//
// Every strategy evaluates one entity at a time through Interpolate, which
// is a pure function of the shared read-only inputs, so callers may fan
// entities out over goroutines freely.
package interpolation

import (
	"fmt"
	"strings"

	"img2physprop/internal/models"
	"img2physprop/pkg/calibration"
	"img2physprop/pkg/field"
)

// Strategy selects how the volume is sampled
type Strategy int

const (
	Node Strategy = iota
	Center
	AllVoxel
)

func (s Strategy) String() string {
	switch s {
	case Node:
		return "node"
	case Center:
		return "center"
	case AllVoxel:
		return "all_voxel"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// NativeGranularity is the entity kind the strategy produces values for.
func (s Strategy) NativeGranularity() field.Granularity {
	if s == Node {
		return field.Node
	}
	return field.Element
}

// ParseStrategy accepts node, center and all_voxel (also allvoxel,
// all-voxel and elementcenter).
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "node", "nodes":
		return Node, nil
	case "center", "centre", "elementcenter":
		return Center, nil
	case "all_voxel", "all-voxel", "allvoxel", "allvoxels":
		return AllVoxel, nil
	}
	return 0, fmt.Errorf("unknown interpolation strategy %q", s)
}

// OutOfBoundsPolicy decides what happens to sample points outside the volume
type OutOfBoundsPolicy int

const (
	// ClampDefault assigns the default property value and marks the entity
	// as a fallback.
	ClampDefault OutOfBoundsPolicy = iota
	// FailOutOfBounds marks the entity out_of_bounds, which fails the run.
	FailOutOfBounds
)

func (p OutOfBoundsPolicy) String() string {
	if p == FailOutOfBounds {
		return "error"
	}
	return "clamp_default"
}

// ParseOutOfBoundsPolicy accepts clamp_default and error.
func ParseOutOfBoundsPolicy(s string) (OutOfBoundsPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clamp_default", "clamp", "":
		return ClampDefault, nil
	case "error":
		return FailOutOfBounds, nil
	}
	return 0, fmt.Errorf("unknown out-of-bounds policy %q", s)
}

// Statistic aggregates the voxels of an element
type Statistic int

const (
	Mean Statistic = iota
	WeightedMean
	Median
)

func (s Statistic) String() string {
	switch s {
	case Mean:
		return "mean"
	case WeightedMean:
		return "weighted_mean"
	case Median:
		return "median"
	}
	return fmt.Sprintf("Statistic(%d)", int(s))
}

// ParseStatistic accepts mean, weighted_mean and median.
func ParseStatistic(s string) (Statistic, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mean", "":
		return Mean, nil
	case "weighted_mean", "weighted-mean":
		return WeightedMean, nil
	case "median":
		return Median, nil
	}
	return 0, fmt.Errorf("unknown aggregation statistic %q", s)
}

// CalibrationDomain tells the all-voxel strategy where to apply the
// calibration curve.
type CalibrationDomain int

const (
	// CalibrateStatistic converts the aggregated raw intensity once.
	CalibrateStatistic CalibrationDomain = iota
	// CalibrateIntensity converts every voxel before aggregation.
	CalibrateIntensity
)

func (d CalibrationDomain) String() string {
	if d == CalibrateIntensity {
		return "intensity"
	}
	return "statistic"
}

// ParseCalibrationDomain accepts statistic and intensity.
func ParseCalibrationDomain(s string) (CalibrationDomain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "statistic", "":
		return CalibrateStatistic, nil
	case "intensity":
		return CalibrateIntensity, nil
	}
	return 0, fmt.Errorf("unknown calibration domain %q", s)
}

// Options are the per-run settings shared by all strategies
type Options struct {
	OutOfBounds       OutOfBoundsPolicy
	DefaultValue      float64
	Statistic         Statistic
	CalibrationDomain CalibrationDomain
}

// Deps are the read-only inputs of an interpolator. Converter may be nil, in
// which case raw intensities are returned.
type Deps struct {
	Volume    *models.Volume
	Mesh      *models.Mesh
	Converter *calibration.Converter
	Options   Options
}

// Outcome is the result of interpolating one entity
type Outcome struct {
	ID     int
	Status field.Status
	Value  []float64
	Err    error
}

// Fatal reports whether the outcome fails the run.
func (o Outcome) Fatal() bool {
	return o.Status.IsError()
}

// Record converts the outcome to a field record.
func (o Outcome) Record() field.Record {
	return field.Record{Status: o.Status, Value: o.Value, Err: o.Err}
}

// Interpolator evaluates one strategy over the entities of a mesh.
type Interpolator interface {
	Strategy() Strategy
	Granularity() field.Granularity
	// IDs lists the entities in mesh order.
	IDs() []int
	// Interpolate evaluates a single entity. An unknown id yields a
	// mesh inconsistency error.
	Interpolate(id int) (Outcome, error)
}

// New returns the interpolator for strategy.
func New(strategy Strategy, deps Deps) (Interpolator, error) {
	b, err := newBase(deps)
	if err != nil {
		return nil, err
	}
	switch strategy {
	case Node:
		return &NodeInterpolator{base: b}, nil
	case Center:
		return &CenterInterpolator{base: b}, nil
	case AllVoxel:
		return &AllVoxelInterpolator{base: b}, nil
	}
	return nil, models.NewError(models.KindInvalidConfig, "interpolation.New", fmt.Errorf("unknown strategy %v", strategy))
}
