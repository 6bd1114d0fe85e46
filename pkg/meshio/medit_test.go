package meshio

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
)

const testMesh = `MeshVersionFormatted 2
Dimension
3
# cube corners plus an apex
Vertices
9
0 0 0 0
1 0 0 0
1 1 0 0
0 1 0 0
0 0 1 0
1 0 1 0
1 1 1 0
0 1 1 0
0.5 0.5 2 0
Triangles 1
1 2 3 7
Hexahedra
1
1 2 3 4 5 6 7 8 3
Pyramids 1
5 6 7 8 9 4
Tetrahedra
1
1 2 4 5 3
End
`

func TestReadMedit(t *testing.T) {
	mesh, err := ReadMedit(strings.NewReader(testMesh))
	if err != nil {
		t.Fatalf("ReadMedit: %v", err)
	}

	if len(mesh.Nodes) != 9 || len(mesh.Elements) != 3 {
		t.Fatalf("got %d nodes, %d elements", len(mesh.Nodes), len(mesh.Elements))
	}
	if mesh.Nodes[8].ID != 9 || mesh.Nodes[8].Coord != (r3.Vec{X: 0.5, Y: 0.5, Z: 2}) {
		t.Errorf("apex node = %+v", mesh.Nodes[8])
	}

	testCases := []struct {
		id       int
		typ      models.ElementType
		material int
		first    int
	}{
		{1, models.Hex8, 3, 1},
		{2, models.Pyramid5, 4, 5},
		{3, models.Tet4, 3, 1},
	}
	for _, tc := range testCases {
		idx, ok := mesh.ElementIndex(tc.id)
		if !ok {
			t.Errorf("element %d missing", tc.id)
			continue
		}
		e := mesh.Elements[idx]
		if e.Type != tc.typ || e.Material != tc.material || e.NodeIDs[0] != tc.first {
			t.Errorf("element %d = %+v", tc.id, e)
		}
		if len(e.NodeIDs) != tc.typ.NodeCount() {
			t.Errorf("element %d lists %d nodes", tc.id, len(e.NodeIDs))
		}
	}

	filtered, err := mesh.FilterMaterials([]int{4})
	if err != nil {
		t.Fatalf("FilterMaterials: %v", err)
	}
	if len(filtered.Elements) != 1 || len(filtered.Nodes) != 5 {
		t.Errorf("filtered mesh has %d elements, %d nodes", len(filtered.Elements), len(filtered.Nodes))
	}
}

func TestReadMeditErrors(t *testing.T) {
	testCases := map[string]string{
		"2D mesh":         "Dimension 2\nEnd\n",
		"truncated":       "Dimension 3\nVertices 2\n0 0 0 0\n1 1",
		"bad number":      "Vertices 1\n0 x 0 0\nEnd\n",
		"unknown section": "Dimension 3\nNormals 0\nEnd\n",
		"missing end":     "Dimension 3\nVertices 0\n",
		"negative count":  "Vertices -1\nEnd\n",
	}
	for name, input := range testCases {
		if _, err := ReadMedit(strings.NewReader(input)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}

	// Connectivity problems surface as mesh inconsistencies
	dangling := "Dimension 3\nVertices 1\n0 0 0 0\nTetrahedra 1\n1 2 3 4 0\nEnd\n"
	_, err := ReadMedit(strings.NewReader(dangling))
	if !errors.Is(err, models.ErrMeshInconsistency) {
		t.Errorf("expected mesh inconsistency, got %v", err)
	}
	if kind, id, ok := models.EntityOf(err); !ok || kind != models.EntityElement || id != 1 {
		t.Errorf("EntityOf = %v, %d, %v", kind, id, ok)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.mesh")
	if err := os.WriteFile(path, []byte(testMesh), 0644); err != nil {
		t.Fatal(err)
	}
	mesh, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(mesh.Elements) != 3 {
		t.Errorf("got %d elements", len(mesh.Elements))
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.mesh")); err == nil {
		t.Errorf("expected missing file to fail")
	}
}
