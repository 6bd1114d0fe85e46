package aggregate

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
	"img2physprop/pkg/field"
)

// twoTets shares the face (2,3,4) between element 10 and element 20
func twoTets(t *testing.T, extraNode bool) *models.Mesh {
	t.Helper()
	nodes := []models.Node{
		{ID: 1, Coord: r3.Vec{}},
		{ID: 2, Coord: r3.Vec{X: 1}},
		{ID: 3, Coord: r3.Vec{Y: 1}},
		{ID: 4, Coord: r3.Vec{Z: 1}},
		{ID: 5, Coord: r3.Vec{X: 1, Y: 1, Z: 1}},
	}
	if extraNode {
		nodes = append(nodes, models.Node{ID: 6, Coord: r3.Vec{X: 5}})
	}
	elements := []models.Element{
		{ID: 10, NodeIDs: []int{1, 2, 3, 4}, Type: models.Tet4},
		{ID: 20, NodeIDs: []int{2, 3, 4, 5}, Type: models.Tet4},
	}
	m, err := models.NewMesh(nodes, elements)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNodesToElements(t *testing.T) {
	mesh := twoTets(t, false)
	b := field.NewBuilder(field.Node, 1)
	values := map[int]float64{1: 1, 2: 2, 3: 3, 4: 4, 5: math.NaN()}
	for id, v := range values {
		b.Set(id, field.Record{Status: field.StatusOK, Value: []float64{v}})
	}
	nodes := b.Freeze()

	elems, err := NodesToElements(mesh, nodes)
	if err != nil {
		t.Fatalf("NodesToElements: %v", err)
	}
	if elems.Granularity() != field.Element || elems.RunID() != nodes.RunID() {
		t.Errorf("derived field has wrong granularity or run id")
	}

	// Element 20 skips the NaN node 5
	want := map[int]float64{10: 2.5, 20: 3}
	for id, w := range want {
		got, ok := elems.Scalar(id)
		if !ok || math.Abs(got-w) > 1e-12 {
			t.Errorf("element %d = %v, want %v", id, got, w)
		}
	}
}

func TestElementsToNodes(t *testing.T) {
	mesh := twoTets(t, false)
	b := field.NewBuilder(field.Element, 2)
	b.Set(10, field.Record{Status: field.StatusOK, Value: []float64{2, 20}})
	b.Set(20, field.Record{Status: field.StatusFallback, Value: []float64{4, 40}})

	nodes, err := ElementsToNodes(mesh, b.Freeze())
	if err != nil {
		t.Fatalf("ElementsToNodes: %v", err)
	}

	testCases := []struct {
		id     int
		want   []float64
		status field.Status
	}{
		{1, []float64{2, 20}, field.StatusOK},
		{2, []float64{3, 30}, field.StatusFallback},
		{4, []float64{3, 30}, field.StatusFallback},
		{5, []float64{4, 40}, field.StatusFallback},
	}
	for _, tc := range testCases {
		v, ok := nodes.Value(tc.id)
		if !ok {
			t.Fatalf("node %d has no value", tc.id)
		}
		for c := range tc.want {
			if math.Abs(v[c]-tc.want[c]) > 1e-12 {
				t.Errorf("node %d channel %d = %v, want %v", tc.id, c, v[c], tc.want[c])
			}
		}
		if st, _ := nodes.Status(tc.id); st != tc.status {
			t.Errorf("node %d status = %v, want %v", tc.id, st, tc.status)
		}
	}
}

func TestAggregationGap(t *testing.T) {
	mesh := twoTets(t, true)
	b := field.NewBuilder(field.Element, 1)
	b.Set(10, field.Record{Status: field.StatusOK, Value: []float64{1}})
	b.Set(20, field.Record{Status: field.StatusOutOfBounds, Err: errors.New("outside")})

	nodes, err := ElementsToNodes(mesh, b.Freeze())
	if !errors.Is(err, models.ErrAggregationGap) {
		t.Fatalf("expected aggregation gap error, got %v", err)
	}
	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("error does not carry the gap ids: %v", err)
	}
	// Node 5 only touches the failed element, node 6 touches nothing
	if len(gap.IDs) != 2 || gap.IDs[0] != 5 || gap.IDs[1] != 6 {
		t.Errorf("gap ids = %v, want [5 6]", gap.IDs)
	}
	if st, _ := nodes.Status(6); st != field.StatusAggregationGap {
		t.Errorf("node 6 status = %v", st)
	}
}

func TestWrongGranularity(t *testing.T) {
	mesh := twoTets(t, false)
	if _, err := NodesToElements(mesh, field.NewBuilder(field.Element, 1).Freeze()); err == nil {
		t.Errorf("expected element field to be rejected")
	}
	if _, err := ElementsToNodes(mesh, field.NewBuilder(field.Node, 1).Freeze()); err == nil {
		t.Errorf("expected node field to be rejected")
	}
}
