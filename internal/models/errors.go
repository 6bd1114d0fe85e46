package models

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per failure class. Every *Error wraps the sentinel of
// its kind so callers can match with errors.Is.
var (
	ErrCoordinateMapping  = errors.New("coordinate mapping failed")
	ErrOutOfBounds        = errors.New("point outside volume bounds")
	ErrEmptyAggregation   = errors.New("no voxel inside element")
	ErrCalibrationRange   = errors.New("value outside calibration range")
	ErrAggregationGap     = errors.New("entity has no contributing value")
	ErrMeshInconsistency  = errors.New("inconsistent mesh")
	ErrInvalidVolume      = errors.New("invalid volume")
	ErrInvalidCalibration = errors.New("invalid calibration curve")
	ErrInvalidConfig      = errors.New("invalid config")
)

// ErrorKind classifies an Error.
type ErrorKind string

const (
	KindCoordinateMapping  ErrorKind = "coordinate_mapping"
	KindOutOfBounds        ErrorKind = "out_of_bounds"
	KindEmptyAggregation   ErrorKind = "empty_aggregation"
	KindCalibrationRange   ErrorKind = "calibration_range"
	KindAggregationGap     ErrorKind = "aggregation_gap"
	KindMeshInconsistency  ErrorKind = "mesh_inconsistency"
	KindInvalidVolume      ErrorKind = "invalid_volume"
	KindInvalidCalibration ErrorKind = "invalid_calibration"
	KindInvalidConfig      ErrorKind = "invalid_config"
)

var kindSentinels = map[ErrorKind]error{
	KindCoordinateMapping:  ErrCoordinateMapping,
	KindOutOfBounds:        ErrOutOfBounds,
	KindEmptyAggregation:   ErrEmptyAggregation,
	KindCalibrationRange:   ErrCalibrationRange,
	KindAggregationGap:     ErrAggregationGap,
	KindMeshInconsistency:  ErrMeshInconsistency,
	KindInvalidVolume:      ErrInvalidVolume,
	KindInvalidCalibration: ErrInvalidCalibration,
	KindInvalidConfig:      ErrInvalidConfig,
}

// EntityKind names the mesh entity an Error refers to.
type EntityKind string

const (
	EntityNone    EntityKind = ""
	EntityNode    EntityKind = "node"
	EntityElement EntityKind = "element"
)

// Error carries the failure class, the operation and, when the failure is
// tied to one mesh entity, that entity's id.
type Error struct {
	Kind   ErrorKind
	Op     string
	Entity EntityKind
	ID     int
	Err    error
}

// NewError builds an Error that is not tied to a mesh entity.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewEntityError builds an Error for a single node or element.
func NewEntityError(kind ErrorKind, op string, entity EntityKind, id int, err error) *Error {
	return &Error{Kind: kind, Op: op, Entity: entity, ID: id, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Entity != EntityNone {
		base += fmt.Sprintf(" (%s=%d)", e.Entity, e.ID)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel of the error's kind, so that
// errors.Is(err, ErrOutOfBounds) holds for any out-of-bounds Error.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	return kindSentinels[e.Kind] == target
}

// IsKind reports whether err is an Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// EntityOf extracts the entity reference from err, if any.
func EntityOf(err error) (EntityKind, int, bool) {
	var e *Error
	if errors.As(err, &e) && e.Entity != EntityNone {
		return e.Entity, e.ID, true
	}
	return EntityNone, 0, false
}
