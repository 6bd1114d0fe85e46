package meshio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
)

const (
	datNodeSection    = "NODE COORDS"
	datElementSection = "STRUCTURE ELEMENTS"
)

// Cell type names of structure elements
var datCellTypes = map[string]models.ElementType{
	"TET4":     models.Tet4,
	"TET10":    models.Tet10,
	"HEX8":     models.Hex8,
	"HEX20":    models.Hex20,
	"HEX27":    models.Hex27,
	"WEDGE6":   models.Wedge6,
	"PYRAMID5": models.Pyramid5,
}

// ReadDat parses the NODE COORDS and STRUCTURE ELEMENTS sections of a 4C
// input file and ignores every other section. Node and element ids are kept
// as written. Lines look like
//
//	NODE 1 COORD 0.0 0.0 0.0
//	1 SOLID HEX8 1 2 3 4 5 6 7 8 MAT 1 KINEM nonlinear
//
// Elements without a MAT option get material 0.
func ReadDat(r io.Reader) (*models.Mesh, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var nodes []models.Node
	var elements []models.Element
	section := ""
	line := 0
	sawNodes := false

	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.Index(text, "//"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "--") {
			section = strings.ToUpper(strings.TrimSpace(strings.TrimLeft(text, "-")))
			sawNodes = sawNodes || section == datNodeSection
			continue
		}

		switch section {
		case datNodeSection:
			n, err := parseDatNode(strings.Fields(text))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			nodes = append(nodes, n)
		case datElementSection:
			e, err := parseDatElement(strings.Fields(text))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			elements = append(elements, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sawNodes {
		return nil, fmt.Errorf("no %s section", datNodeSection)
	}
	return models.NewMesh(nodes, elements)
}

func parseDatNode(fields []string) (models.Node, error) {
	if len(fields) < 6 || fields[0] != "NODE" || fields[2] != "COORD" {
		return models.Node{}, fmt.Errorf("malformed node %q", strings.Join(fields, " "))
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return models.Node{}, fmt.Errorf("invalid node id %q", fields[1])
	}
	var xyz [3]float64
	for c := range xyz {
		if xyz[c], err = strconv.ParseFloat(fields[3+c], 64); err != nil {
			return models.Node{}, fmt.Errorf("node %d: invalid coordinate %q", id, fields[3+c])
		}
	}
	return models.Node{ID: id, Coord: r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}}, nil
}

func parseDatElement(fields []string) (models.Element, error) {
	if len(fields) < 3 {
		return models.Element{}, fmt.Errorf("malformed element %q", strings.Join(fields, " "))
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return models.Element{}, fmt.Errorf("invalid element id %q", fields[0])
	}
	typ, ok := datCellTypes[strings.ToUpper(fields[2])]
	if !ok {
		return models.Element{}, fmt.Errorf("element %d: unsupported cell type %q", id, fields[2])
	}

	rest := fields[3:]
	if len(rest) < typ.NodeCount() {
		return models.Element{}, fmt.Errorf("element %d: %s needs %d nodes, got %d", id, typ, typ.NodeCount(), len(rest))
	}
	ids := make([]int, typ.NodeCount())
	for i := range ids {
		if ids[i], err = strconv.Atoi(rest[i]); err != nil {
			return models.Element{}, fmt.Errorf("element %d: invalid node id %q", id, rest[i])
		}
	}

	material := 0
	options := rest[len(ids):]
	for i := 0; i < len(options); i++ {
		if strings.ToUpper(options[i]) != "MAT" {
			continue
		}
		if i+1 == len(options) {
			return models.Element{}, fmt.Errorf("element %d: MAT without a value", id)
		}
		if material, err = strconv.Atoi(options[i+1]); err != nil {
			return models.Element{}, fmt.Errorf("element %d: invalid material %q", id, options[i+1])
		}
		break
	}

	return models.Element{ID: id, NodeIDs: ids, Type: typ, Material: material}, nil
}
