// Package aggregate moves property values between node and element
// granularity of a mesh.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"img2physprop/internal/models"
	"img2physprop/pkg/field"
)

// GapError lists the entities that ended without any contributing value.
type GapError struct {
	Granularity field.Granularity
	IDs         []int
}

func (e *GapError) Error() string {
	ids := make([]string, 0, len(e.IDs))
	for i, id := range e.IDs {
		if i == 20 {
			ids = append(ids, fmt.Sprintf("... (%d more)", len(e.IDs)-20))
			break
		}
		ids = append(ids, fmt.Sprint(id))
	}
	return fmt.Sprintf("%d %s(s) without value: %s", len(e.IDs), e.Granularity, strings.Join(ids, ", "))
}

// NodesToElements gives each element the mean of its node values. Nodes
// without a value, or with a NaN channel, are skipped.
func NodesToElements(mesh *models.Mesh, nodes *field.PropertyField) (*field.PropertyField, error) {
	if nodes.Granularity() != field.Node {
		return nil, fmt.Errorf("aggregate: NodesToElements needs a node field, got %s", nodes.Granularity())
	}

	contributors := make(map[int][]int, len(mesh.Elements))
	for _, e := range mesh.Elements {
		contributors[e.ID] = e.NodeIDs
	}
	return average(nodes, field.Element, contributors, "aggregate.NodesToElements")
}

// ElementsToNodes gives each node the mean of the values of the elements
// sharing it.
func ElementsToNodes(mesh *models.Mesh, elements *field.PropertyField) (*field.PropertyField, error) {
	if elements.Granularity() != field.Element {
		return nil, fmt.Errorf("aggregate: ElementsToNodes needs an element field, got %s", elements.Granularity())
	}

	contributors := make(map[int][]int, len(mesh.Nodes))
	for _, n := range mesh.Nodes {
		contributors[n.ID] = nil
	}
	for _, e := range mesh.Elements {
		for _, id := range e.NodeIDs {
			contributors[id] = append(contributors[id], e.ID)
		}
	}
	return average(elements, field.Node, contributors, "aggregate.ElementsToNodes")
}

// average builds a field of granularity to whose entity id takes the mean of
// the values of contributors[id] in src. The status of a target is the most
// degraded status among its contributors.
func average(src *field.PropertyField, to field.Granularity, contributors map[int][]int, op string) (*field.PropertyField, error) {
	channels := src.Channels()
	b := field.NewBuilder(to, channels).WithRunID(src.RunID())

	targets := make([]int, 0, len(contributors))
	for id := range contributors {
		targets = append(targets, id)
	}
	sort.Ints(targets)

	var gaps []int
	xs := make([][]float64, channels)
	for _, id := range targets {
		for c := range xs {
			xs[c] = xs[c][:0]
		}
		status := field.StatusOK
		for _, from := range contributors[id] {
			rec, ok := src.Record(from)
			if !ok || rec.Value == nil || hasNaN(rec.Value) {
				continue
			}
			for c := range xs {
				xs[c] = append(xs[c], rec.Value[c])
			}
			if rec.Status > status {
				status = rec.Status
			}
		}

		if len(xs) == 0 || len(xs[0]) == 0 {
			gaps = append(gaps, id)
			err := models.NewEntityError(models.KindAggregationGap, op, to.EntityKind(), id, fmt.Errorf("no contributing value"))
			if err := b.Set(id, field.Record{Status: field.StatusAggregationGap, Err: err}); err != nil {
				return nil, err
			}
			continue
		}

		value := make([]float64, channels)
		for c := range value {
			value[c] = stat.Mean(xs[c], nil)
		}
		if err := b.Set(id, field.Record{Status: status, Value: value}); err != nil {
			return nil, err
		}
	}

	out := b.Freeze()
	if len(gaps) > 0 {
		return out, models.NewError(models.KindAggregationGap, op, &GapError{Granularity: to, IDs: gaps})
	}
	return out, nil
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
