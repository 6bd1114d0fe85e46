package engine

import (
	"fmt"
	"runtime"
	"strings"

	"img2physprop/internal/models"
	"img2physprop/pkg/calibration"
	"img2physprop/pkg/field"
	"img2physprop/pkg/interpolation"
)

// OutputGranularity selects the entity kind of the returned field
type OutputGranularity int

const (
	// OutputNative keeps the strategy's own granularity.
	OutputNative OutputGranularity = iota
	OutputNode
	OutputElement
)

func (g OutputGranularity) String() string {
	switch g {
	case OutputNode:
		return "node"
	case OutputElement:
		return "element"
	}
	return "native"
}

// ParseOutputGranularity accepts native, node and element.
func ParseOutputGranularity(s string) (OutputGranularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native", "":
		return OutputNative, nil
	case "node", "nodes":
		return OutputNode, nil
	case "element", "elements":
		return OutputElement, nil
	}
	return 0, fmt.Errorf("unknown output granularity %q", s)
}

// resolve returns the field granularity for a strategy.
func (g OutputGranularity) resolve(s interpolation.Strategy) field.Granularity {
	switch g {
	case OutputNode:
		return field.Node
	case OutputElement:
		return field.Element
	}
	return s.NativeGranularity()
}

// Options is the immutable run configuration. Zero values of the enum
// fields are the defaults: node strategy, clamp_default, mean, statistic
// domain, native output.
type Options struct {
	Strategy          interpolation.Strategy
	OutOfBounds       interpolation.OutOfBoundsPolicy
	DefaultValue      float64
	Statistic         interpolation.Statistic
	CalibrationDomain interpolation.CalibrationDomain

	// CalibrationEnabled turns conversion on. When false the field holds
	// raw intensities.
	CalibrationEnabled bool
	CalibrationRange   calibration.RangePolicy

	OutputGranularity OutputGranularity

	// FailFast aborts on the first fatal entity. Otherwise every entity is
	// evaluated and all fatal entities are reported together.
	FailFast bool

	// NumWorkers is the number of goroutines evaluating batches.
	NumWorkers int
	// BatchSize is the number of entities per unit of work.
	BatchSize int
}

// DefaultOptions returns options with calibration enabled, fail-fast on and
// one worker per CPU.
func DefaultOptions() Options {
	return Options{
		Strategy:           interpolation.Node,
		OutOfBounds:        interpolation.ClampDefault,
		Statistic:          interpolation.Mean,
		CalibrationEnabled: true,
		CalibrationRange:   calibration.Clamp,
		FailFast:           true,
		NumWorkers:         runtime.NumCPU(),
		BatchSize:          256,
	}
}

// Validate checks the numeric settings.
func (o Options) Validate() error {
	const op = "engine.Options.Validate"
	if o.NumWorkers < 1 {
		return models.NewError(models.KindInvalidConfig, op, fmt.Errorf("num_workers must be at least 1, got %d", o.NumWorkers))
	}
	if o.BatchSize < 1 {
		return models.NewError(models.KindInvalidConfig, op, fmt.Errorf("batch_size must be at least 1, got %d", o.BatchSize))
	}
	return nil
}

func (o Options) interpolationOptions() interpolation.Options {
	return interpolation.Options{
		OutOfBounds:       o.OutOfBounds,
		DefaultValue:      o.DefaultValue,
		Statistic:         o.Statistic,
		CalibrationDomain: o.CalibrationDomain,
	}
}
