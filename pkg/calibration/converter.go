// Package calibration converts raw image intensities (or statistics of them)
// into physical property values through a piecewise-linear calibration curve.
package calibration

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"img2physprop/internal/models"
)

// RangePolicy decides what happens to values outside the curve.
type RangePolicy int

const (
	// Clamp maps values below the first / above the last breakpoint to the
	// boundary property.
	Clamp RangePolicy = iota
	// Reject reports an error of kind models.KindCalibrationRange.
	Reject
)

func (p RangePolicy) String() string {
	switch p {
	case Clamp:
		return "clamp"
	case Reject:
		return "error"
	}
	return fmt.Sprintf("RangePolicy(%d)", int(p))
}

// ParseRangePolicy accepts "clamp" and "error".
func ParseRangePolicy(s string) (RangePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clamp", "":
		return Clamp, nil
	case "error":
		return Reject, nil
	}
	return 0, fmt.Errorf("unknown calibration range policy %q (want clamp or error)", s)
}

// Breakpoint is one (intensity, property) pair of a curve
type Breakpoint struct {
	Intensity float64 `yaml:"intensity" toml:"intensity"`
	Property  float64 `yaml:"property" toml:"property"`
}

// Curve is an ordered list of breakpoints, strictly increasing in intensity
type Curve []Breakpoint

// Identity returns the curve {(lo,lo), (hi,hi)}, which returns its input
// unchanged on [lo, hi].
func Identity(lo, hi float64) Curve {
	return Curve{{Intensity: lo, Property: lo}, {Intensity: hi, Property: hi}}
}

// Validate checks the curve invariants.
func (c Curve) Validate() error {
	const op = "calibration.Curve.Validate"
	if len(c) == 0 {
		return models.NewError(models.KindInvalidCalibration, op, fmt.Errorf("curve has no breakpoints"))
	}
	for i, bp := range c {
		if math.IsNaN(bp.Intensity) || math.IsInf(bp.Intensity, 0) || math.IsNaN(bp.Property) || math.IsInf(bp.Property, 0) {
			return models.NewError(models.KindInvalidCalibration, op, fmt.Errorf("breakpoint %d is not finite: %+v", i, bp))
		}
		if i > 0 && !(bp.Intensity > c[i-1].Intensity) {
			return models.NewError(models.KindInvalidCalibration, op,
				fmt.Errorf("intensities must be strictly increasing: breakpoint %d (%g) follows %g", i, bp.Intensity, c[i-1].Intensity))
		}
	}
	return nil
}

// Converter applies a validated curve. It is immutable and safe for
// concurrent use.
type Converter struct {
	curve  Curve
	policy RangePolicy
}

// NewConverter validates the curve once; Convert never re-validates.
func NewConverter(curve Curve, policy RangePolicy) (*Converter, error) {
	if err := curve.Validate(); err != nil {
		return nil, err
	}
	own := make(Curve, len(curve))
	copy(own, curve)
	return &Converter{curve: own, policy: policy}, nil
}

// Policy returns the out-of-range policy.
func (c *Converter) Policy() RangePolicy {
	return c.policy
}

// Curve returns a copy of the breakpoints.
func (c *Converter) Curve() Curve {
	out := make(Curve, len(c.curve))
	copy(out, c.curve)
	return out
}

// Convert maps x through the curve by linear interpolation between the two
// bracketing breakpoints.
func (c *Converter) Convert(x float64) (float64, error) {
	first, last := c.curve[0], c.curve[len(c.curve)-1]

	if math.IsNaN(x) || x < first.Intensity || x > last.Intensity {
		if c.policy == Reject || math.IsNaN(x) {
			return 0, models.NewError(models.KindCalibrationRange, "calibration.Convert",
				fmt.Errorf("value %g outside [%g, %g]", x, first.Intensity, last.Intensity))
		}
		if x < first.Intensity {
			return first.Property, nil
		}
		return last.Property, nil
	}

	// First breakpoint with Intensity >= x
	hi := sort.Search(len(c.curve), func(i int) bool { return c.curve[i].Intensity >= x })
	if c.curve[hi].Intensity == x {
		return c.curve[hi].Property, nil
	}
	a, b := c.curve[hi-1], c.curve[hi]
	t := (x - a.Intensity) / (b.Intensity - a.Intensity)
	return a.Property + t*(b.Property-a.Property), nil
}

// ConvertAll converts every channel of a multi-channel value. The first
// failing channel aborts the conversion.
func (c *Converter) ConvertAll(values []float64) ([]float64, error) {
	out := make([]float64, len(values))
	for i, x := range values {
		y, err := c.Convert(x)
		if err != nil {
			return nil, err
		}
		out[i] = y
	}
	return out, nil
}
