package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
	"img2physprop/pkg/field"
)

// createTestField holds elements 1, 2 and 10 with one out-of-bounds entity
func createTestField(t *testing.T) *field.PropertyField {
	t.Helper()
	b := field.NewBuilder(field.Element, 1)
	records := map[int]field.Record{
		1:  {Status: field.StatusOK, Value: []float64{100}},
		2:  {Status: field.StatusFallbackToCentroid, Value: []float64{300}},
		10: {Status: field.StatusFallback, Value: []float64{0}},
		4:  {Status: field.StatusOutOfBounds},
	}
	for id, r := range records {
		if err := b.Set(id, r); err != nil {
			t.Fatal(err)
		}
	}
	return b.Freeze()
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, createTestField(t), Options{PropertyName: "youngs_modulus"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var decoded map[string]map[string]float64
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	values := decoded["youngs_modulus"]
	if len(values) != 3 || values["1"] != 100 || values["2"] != 300 || values["10"] != 0 {
		t.Errorf("decoded values = %v", values)
	}
	if _, ok := values["4"]; ok {
		t.Errorf("entity without value was exported")
	}

	// Numeric, not lexical, id order
	out := buf.String()
	if strings.Index(out, `"2"`) > strings.Index(out, `"10"`) {
		t.Errorf("ids not in numeric order:\n%s", out)
	}
}

func TestWriteJSONVector(t *testing.T) {
	b := field.NewBuilder(field.Node, 3)
	if err := b.Set(0, field.Record{Value: []float64{1, 2, 3}}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, b.Freeze(), Options{OneBasedIDs: true}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var decoded map[string]map[string][]float64
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if v := decoded["property"]["1"]; len(v) != 3 || v[2] != 3 {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestWriteTXTNormalized(t *testing.T) {
	var buf bytes.Buffer
	opts := Options{Normalize: true, NormalizeRange: [2]float64{0, 512}, OneBasedIDs: true}
	if err := WriteTXT(&buf, createTestField(t), opts); err != nil {
		t.Fatalf("WriteTXT: %v", err)
	}
	want := "2:0.1953125\n3:0.5859375\n11:0\n"
	if buf.String() != want {
		t.Errorf("WriteTXT = %q, want %q", buf.String(), want)
	}

	opts.NormalizeRange = [2]float64{5, 5}
	if err := WriteTXT(&buf, createTestField(t), opts); err == nil {
		t.Errorf("expected empty normalization range to fail")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, createTestField(t), Options{}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	var records []*csvRow
	if err := gocsv.UnmarshalBytes(buf.Bytes(), &records); err != nil {
		t.Fatalf("UnmarshalBytes: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records", len(records))
	}
	if r := records[2]; r.ID != 4 || r.Status != "out_of_bounds" || r.Value != "" {
		t.Errorf("record 2 = %+v", r)
	}
	if r := records[1]; r.ID != 2 || r.Status != "fallback_to_centroid" || r.Value != "300" {
		t.Errorf("record 1 = %+v", r)
	}
}

func TestWriteVTK(t *testing.T) {
	var nodes []models.Node
	for i, c := range []r3.Vec{{X: 0}, {X: 1}, {Y: 1}, {Z: 1}, {X: 1, Y: 1, Z: 1}} {
		nodes = append(nodes, models.Node{ID: i + 1, Coord: c})
	}
	mesh, err := models.NewMesh(nodes, []models.Element{
		{ID: 1, NodeIDs: []int{1, 2, 3, 4}, Type: models.Tet4},
		{ID: 2, NodeIDs: []int{2, 3, 4, 5}, Type: models.Tet4},
	})
	if err != nil {
		t.Fatal(err)
	}
	b := field.NewBuilder(field.Element, 1)
	if err := b.Set(1, field.Record{Value: []float64{7.5}}); err != nil {
		t.Fatal(err)
	}
	if err := b.Set(2, field.Record{Status: field.StatusOutOfBounds}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, b.Freeze(), mesh, Options{Format: FormatVTK, PropertyName: "density"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"DATASET UNSTRUCTURED_GRID",
		"POINTS 5 double",
		"CELLS 2 10\n4 0 1 2 3\n4 1 2 3 4\n",
		"CELL_TYPES 2\n10\n10\n",
		"CELL_DATA 2",
		"SCALARS density double 1\nLOOKUP_TABLE default\n7.5\nnan\n",
		"SCALARS status int 1\nLOOKUP_TABLE default\n0\n3\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("VTK output missing %q:\n%s", want, out)
		}
	}

	if err := Write(&buf, b.Freeze(), nil, Options{Format: FormatVTK}); err == nil {
		t.Errorf("expected vtk without mesh to fail")
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "props.txt")
	if err := WriteFile(path, createTestField(t), nil, Options{}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "1:100\n") {
		t.Errorf("file content = %q", data)
	}

	if err := WriteFile(filepath.Join(t.TempDir(), "props.bin"), createTestField(t), nil, Options{}); err == nil {
		t.Errorf("expected unknown extension to fail")
	}
}

func TestParseFormat(t *testing.T) {
	testCases := map[string]Format{
		"":     FormatAuto,
		"JSON": FormatJSON,
		"vtu":  FormatVTK,
		"csv":  FormatCSV,
	}
	for in, want := range testCases {
		if got, err := ParseFormat(in); err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Errorf("expected unknown format to fail")
	}
}
