package models

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ElementType tags the finite-element topology of an element
type ElementType int

const (
	Tet4 ElementType = iota
	Tet10
	Hex8
	Hex20
	Hex27
	Wedge6
	Pyramid5
)

var elementTypeNames = map[ElementType]string{
	Tet4:     "tet4",
	Tet10:    "tet10",
	Hex8:     "hex8",
	Hex20:    "hex20",
	Hex27:    "hex27",
	Wedge6:   "wedge6",
	Pyramid5: "pyramid5",
}

func (t ElementType) String() string {
	if name, ok := elementTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ElementType(%d)", int(t))
}

// ParseElementType accepts the names returned by String.
func ParseElementType(s string) (ElementType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range elementTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown element type %q", s)
}

// NodeCount is the number of node ids an element of this type lists.
func (t ElementType) NodeCount() int {
	switch t {
	case Tet4:
		return 4
	case Tet10:
		return 10
	case Hex8:
		return 8
	case Hex20:
		return 20
	case Hex27:
		return 27
	case Wedge6:
		return 6
	case Pyramid5:
		return 5
	}
	return 0
}

// CornerCount is the number of leading node ids that are element corners.
// Higher-order nodes follow the corners.
func (t ElementType) CornerCount() int {
	switch t {
	case Tet4, Tet10:
		return 4
	case Hex8, Hex20, Hex27:
		return 8
	case Wedge6:
		return 6
	case Pyramid5:
		return 5
	}
	return 0
}

// Node is a mesh vertex
type Node struct {
	ID    int
	Coord r3.Vec
}

// Element is a mesh cell referencing nodes by id
type Element struct {
	ID       int
	NodeIDs  []int
	Type     ElementType
	Material int
}

// Mesh is a read-only finite-element discretization with validated
// connectivity.
type Mesh struct {
	Nodes    []Node
	Elements []Element

	nodeIndex    map[int]int
	elementIndex map[int]int
}

// NewMesh checks id uniqueness and connectivity. Any element referencing a
// missing node fails with ErrMeshInconsistency naming that element.
func NewMesh(nodes []Node, elements []Element) (*Mesh, error) {
	const op = "models.NewMesh"

	m := &Mesh{
		Nodes:        nodes,
		Elements:     elements,
		nodeIndex:    make(map[int]int, len(nodes)),
		elementIndex: make(map[int]int, len(elements)),
	}

	for i, n := range nodes {
		if _, dup := m.nodeIndex[n.ID]; dup {
			return nil, NewEntityError(KindMeshInconsistency, op, EntityNode, n.ID, fmt.Errorf("duplicate node id"))
		}
		m.nodeIndex[n.ID] = i
	}

	for i, e := range elements {
		if _, dup := m.elementIndex[e.ID]; dup {
			return nil, NewEntityError(KindMeshInconsistency, op, EntityElement, e.ID, fmt.Errorf("duplicate element id"))
		}
		m.elementIndex[e.ID] = i

		if want := e.Type.NodeCount(); want != 0 && len(e.NodeIDs) != want {
			return nil, NewEntityError(KindMeshInconsistency, op, EntityElement, e.ID,
				fmt.Errorf("%s element lists %d nodes, want %d", e.Type, len(e.NodeIDs), want))
		}
		for _, id := range e.NodeIDs {
			if _, ok := m.nodeIndex[id]; !ok {
				return nil, NewEntityError(KindMeshInconsistency, op, EntityElement, e.ID,
					fmt.Errorf("references unknown node %d", id))
			}
		}
	}

	return m, nil
}

// NodeIndex returns the position of node id in Nodes.
func (m *Mesh) NodeIndex(id int) (int, bool) {
	i, ok := m.nodeIndex[id]
	return i, ok
}

// ElementIndex returns the position of element id in Elements.
func (m *Mesh) ElementIndex(id int) (int, bool) {
	i, ok := m.elementIndex[id]
	return i, ok
}

// ElementNodes returns the coordinates of all nodes of e in connectivity order.
func (m *Mesh) ElementNodes(e Element) []r3.Vec {
	pts := make([]r3.Vec, len(e.NodeIDs))
	for i, id := range e.NodeIDs {
		pts[i] = m.Nodes[m.nodeIndex[id]].Coord
	}
	return pts
}

// Centroid is the arithmetic mean of all node coordinates of e.
func (m *Mesh) Centroid(e Element) r3.Vec {
	var c r3.Vec
	for _, id := range e.NodeIDs {
		c = r3.Add(c, m.Nodes[m.nodeIndex[id]].Coord)
	}
	if len(e.NodeIDs) == 0 {
		return c
	}
	return r3.Scale(1/float64(len(e.NodeIDs)), c)
}

// Bounds returns the axis-aligned bounding box of all nodes.
func (m *Mesh) Bounds() (min, max r3.Vec) {
	if len(m.Nodes) == 0 {
		return min, max
	}
	min = r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max = r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, n := range m.Nodes {
		min.X, max.X = math.Min(min.X, n.Coord.X), math.Max(max.X, n.Coord.X)
		min.Y, max.Y = math.Min(min.Y, n.Coord.Y), math.Max(max.Y, n.Coord.Y)
		min.Z, max.Z = math.Min(min.Z, n.Coord.Z), math.Max(max.Z, n.Coord.Z)
	}
	return min, max
}

// FilterMaterials keeps the elements whose Material is listed and the nodes
// they reference. Node order and element order are preserved.
func (m *Mesh) FilterMaterials(materials []int) (*Mesh, error) {
	if len(materials) == 0 {
		return m, nil
	}
	keep := make(map[int]bool, len(materials))
	for _, mat := range materials {
		keep[mat] = true
	}

	used := make(map[int]bool)
	var elements []Element
	for _, e := range m.Elements {
		if !keep[e.Material] {
			continue
		}
		elements = append(elements, e)
		for _, id := range e.NodeIDs {
			used[id] = true
		}
	}

	nodes := make([]Node, 0, len(used))
	for _, n := range m.Nodes {
		if used[n.ID] {
			nodes = append(nodes, n)
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return NewMesh(nodes, elements)
}
