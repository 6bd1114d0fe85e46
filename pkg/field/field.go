// Package field holds the result of an interpolation run: one property value
// per mesh node or element, together with a status telling how the value was
// obtained.
package field

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"img2physprop/internal/models"
)

// Granularity tells which mesh entities a field is attached to
type Granularity int

const (
	Node Granularity = iota
	Element
)

func (g Granularity) String() string {
	switch g {
	case Node:
		return "node"
	case Element:
		return "element"
	}
	return fmt.Sprintf("Granularity(%d)", int(g))
}

// EntityKind returns the models entity kind used in errors for g.
func (g Granularity) EntityKind() models.EntityKind {
	if g == Node {
		return models.EntityNode
	}
	return models.EntityElement
}

// Status records how an entity's value was produced.
type Status int

const (
	StatusOK Status = iota
	// StatusFallback: the sample point was outside the volume and the
	// default property value was assigned.
	StatusFallback
	// StatusFallbackToCentroid: no voxel lay inside the element, the
	// value was sampled at its centroid.
	StatusFallbackToCentroid
	StatusOutOfBounds
	StatusCalibrationRange
	StatusAggregationGap
)

var statusNames = [...]string{
	StatusOK:                 "ok",
	StatusFallback:           "fallback",
	StatusFallbackToCentroid: "fallback_to_centroid",
	StatusOutOfBounds:        "out_of_bounds",
	StatusCalibrationRange:   "calibration_range",
	StatusAggregationGap:     "aggregation_gap",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// IsFallback reports whether s is one of the two fallback statuses.
func (s Status) IsFallback() bool {
	return s == StatusFallback || s == StatusFallbackToCentroid
}

// IsError reports whether the entity carries no usable value.
func (s Status) IsError() bool {
	return s >= StatusOutOfBounds
}

// Record is the per-entity outcome stored in a field
type Record struct {
	Status Status
	Value  []float64
	// Err is the cause for error and fallback statuses, nil for ok.
	Err error
}

// PropertyField maps entity ids to property values. It is read-only; build
// one with a Builder.
type PropertyField struct {
	runID       uuid.UUID
	granularity Granularity
	channels    int
	records     map[int]Record
	ids         []int
}

// RunID identifies the run that produced the field.
func (f *PropertyField) RunID() uuid.UUID { return f.runID }

// Granularity returns the kind of entity the field is attached to.
func (f *PropertyField) Granularity() Granularity { return f.granularity }

// Channels is the length of every value in the field.
func (f *PropertyField) Channels() int { return f.channels }

// Len is the number of entities.
func (f *PropertyField) Len() int { return len(f.ids) }

// IDs returns the entity ids in ascending order.
func (f *PropertyField) IDs() []int {
	out := make([]int, len(f.ids))
	copy(out, f.ids)
	return out
}

// Record returns the outcome recorded for id.
func (f *PropertyField) Record(id int) (Record, bool) {
	r, ok := f.records[id]
	if !ok {
		return Record{}, false
	}
	r.Value = cloneValue(r.Value)
	return r, true
}

// Value returns the property value of id. ok is false when the entity is
// unknown or has an error status.
func (f *PropertyField) Value(id int) ([]float64, bool) {
	r, ok := f.records[id]
	if !ok || r.Value == nil {
		return nil, false
	}
	return cloneValue(r.Value), true
}

// Scalar returns the first channel of the value of id.
func (f *PropertyField) Scalar(id int) (float64, bool) {
	r, ok := f.records[id]
	if !ok || len(r.Value) == 0 {
		return 0, false
	}
	return r.Value[0], true
}

// Status returns the status of id.
func (f *PropertyField) Status(id int) (Status, bool) {
	r, ok := f.records[id]
	return r.Status, ok
}

// Values returns a copy of every value keyed by id. Entities without a
// value are left out.
func (f *PropertyField) Values() map[int][]float64 {
	out := make(map[int][]float64, len(f.records))
	for id, r := range f.records {
		if r.Value != nil {
			out[id] = cloneValue(r.Value)
		}
	}
	return out
}

// Summary counts the entities of the field by status.
func (f *PropertyField) Summary() Summary {
	s := Summary{Total: len(f.ids)}
	for _, id := range f.ids {
		s.add(f.records[id].Status)
	}
	return s
}

// Builder accumulates records for a new field. It is not safe for
// concurrent use: a single goroutine owns it.
type Builder struct {
	runID       uuid.UUID
	granularity Granularity
	channels    int
	records     map[int]Record
	frozen      bool
}

// NewBuilder starts a field with a fresh run id.
func NewBuilder(granularity Granularity, channels int) *Builder {
	return &Builder{
		runID:       uuid.New(),
		granularity: granularity,
		channels:    channels,
		records:     make(map[int]Record),
	}
}

// WithRunID makes the field carry id instead of a fresh one, so that derived
// fields keep the run id of their source.
func (b *Builder) WithRunID(id uuid.UUID) *Builder {
	b.runID = id
	return b
}

// Set stores the record of one entity. Each id may be set once.
func (b *Builder) Set(id int, r Record) error {
	if b.frozen {
		return fmt.Errorf("field: builder already frozen")
	}
	if _, dup := b.records[id]; dup {
		return fmt.Errorf("field: %s %d recorded twice", b.granularity, id)
	}
	if r.Value != nil && len(r.Value) != b.channels {
		return fmt.Errorf("field: %s %d has %d channels, want %d", b.granularity, id, len(r.Value), b.channels)
	}
	r.Value = cloneValue(r.Value)
	b.records[id] = r
	return nil
}

// Len is the number of records set so far.
func (b *Builder) Len() int { return len(b.records) }

// Freeze returns the finished field. The builder cannot be used afterwards.
func (b *Builder) Freeze() *PropertyField {
	b.frozen = true
	ids := make([]int, 0, len(b.records))
	for id := range b.records {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return &PropertyField{
		runID:       b.runID,
		granularity: b.granularity,
		channels:    b.channels,
		records:     b.records,
		ids:         ids,
	}
}

func cloneValue(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
