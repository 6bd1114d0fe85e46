package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"img2physprop/internal/models"
	"img2physprop/pkg/field"
)

// VTK cell type codes
var vtkCellTypes = map[models.ElementType]int{
	models.Tet4:     10,
	models.Tet10:    24,
	models.Hex8:     12,
	models.Hex20:    25,
	models.Hex27:    29,
	models.Wedge6:   13,
	models.Pyramid5: 14,
}

// WriteVTK writes mesh as a legacy ASCII VTK unstructured grid with the
// field attached as cell data (element fields) or point data (node fields),
// together with the per-entity status codes. Missing values are written as
// NaN.
func WriteVTK(w io.Writer, f *field.PropertyField, mesh *models.Mesh, opts Options) error {
	rs, err := rows(f, opts)
	if err != nil {
		return err
	}
	byID := make(map[int]row, len(rs))
	for _, r := range rs {
		id := r.ID
		if opts.OneBasedIDs {
			id--
		}
		byID[id] = r
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# vtk DataFile Version 3.0\n")
	fmt.Fprintf(bw, "%s run %s\n", opts.propertyName(), f.RunID())
	fmt.Fprintf(bw, "ASCII\nDATASET UNSTRUCTURED_GRID\n")

	fmt.Fprintf(bw, "POINTS %d double\n", len(mesh.Nodes))
	for _, n := range mesh.Nodes {
		fmt.Fprintf(bw, "%s %s %s\n", formatFloat(n.Coord.X), formatFloat(n.Coord.Y), formatFloat(n.Coord.Z))
	}

	size := 0
	for _, e := range mesh.Elements {
		size += len(e.NodeIDs) + 1
	}
	fmt.Fprintf(bw, "CELLS %d %d\n", len(mesh.Elements), size)
	for _, e := range mesh.Elements {
		bw.WriteString(strconv.Itoa(len(e.NodeIDs)))
		for _, id := range e.NodeIDs {
			idx, ok := mesh.NodeIndex(id)
			if !ok {
				return models.NewEntityError(models.KindMeshInconsistency, "export.WriteVTK", models.EntityElement, e.ID,
					fmt.Errorf("references unknown node %d", id))
			}
			bw.WriteString(" " + strconv.Itoa(idx))
		}
		bw.WriteString("\n")
	}
	fmt.Fprintf(bw, "CELL_TYPES %d\n", len(mesh.Elements))
	for _, e := range mesh.Elements {
		code, ok := vtkCellTypes[e.Type]
		if !ok {
			return fmt.Errorf("element %d: no VTK cell type for %s", e.ID, e.Type)
		}
		fmt.Fprintf(bw, "%d\n", code)
	}

	var entityIDs []int
	if f.Granularity() == field.Element {
		fmt.Fprintf(bw, "CELL_DATA %d\n", len(mesh.Elements))
		for _, e := range mesh.Elements {
			entityIDs = append(entityIDs, e.ID)
		}
	} else {
		fmt.Fprintf(bw, "POINT_DATA %d\n", len(mesh.Nodes))
		for _, n := range mesh.Nodes {
			entityIDs = append(entityIDs, n.ID)
		}
	}

	channels := f.Channels()
	fmt.Fprintf(bw, "SCALARS %s double %d\nLOOKUP_TABLE default\n", opts.propertyName(), channels)
	for _, id := range entityIDs {
		r, ok := byID[id]
		for c := 0; c < channels; c++ {
			v := math.NaN()
			if ok && r.Value != nil {
				v = r.Value[c]
			}
			if c > 0 {
				bw.WriteString(" ")
			}
			bw.WriteString(formatFloat(v))
		}
		bw.WriteString("\n")
	}

	fmt.Fprintf(bw, "SCALARS status int 1\nLOOKUP_TABLE default\n")
	for _, id := range entityIDs {
		status := -1
		if r, ok := byID[id]; ok {
			status = int(r.Status)
		}
		fmt.Fprintf(bw, "%d\n", status)
	}

	return bw.Flush()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
