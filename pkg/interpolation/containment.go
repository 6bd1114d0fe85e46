package interpolation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
)

// ContainmentTolerance is the barycentric slack of the point-in-tetrahedron
// test. Points on an element face count as inside.
const ContainmentTolerance = 1e-9

// Corner-index decompositions into tetrahedra. Hexahedra are split around
// the 0-6 diagonal, wedges and pyramids along a base diagonal.
var (
	tetSplit     = [][4]int{{0, 1, 2, 3}}
	hexSplit     = [][4]int{{0, 1, 2, 6}, {0, 2, 3, 6}, {0, 3, 7, 6}, {0, 7, 4, 6}, {0, 4, 5, 6}, {0, 5, 1, 6}}
	wedgeSplit   = [][4]int{{0, 1, 2, 5}, {0, 1, 5, 4}, {0, 4, 5, 3}}
	pyramidSplit = [][4]int{{0, 1, 2, 4}, {0, 2, 3, 4}}
)

func decomposition(t models.ElementType) ([][4]int, error) {
	switch t {
	case models.Tet4, models.Tet10:
		return tetSplit, nil
	case models.Hex8, models.Hex20, models.Hex27:
		return hexSplit, nil
	case models.Wedge6:
		return wedgeSplit, nil
	case models.Pyramid5:
		return pyramidSplit, nil
	}
	return nil, fmt.Errorf("no containment rule for element type %v", t)
}

// tetrahedron is prepared for repeated barycentric tests
type tetrahedron struct {
	a          r3.Vec
	e1, e2, e3 r3.Vec
	c23        r3.Vec // e2 × e3
	det        float64
}

func newTetrahedron(a, b, c, d r3.Vec) (tetrahedron, bool) {
	t := tetrahedron{a: a, e1: r3.Sub(b, a), e2: r3.Sub(c, a), e3: r3.Sub(d, a)}
	t.c23 = r3.Cross(t.e2, t.e3)
	t.det = r3.Dot(t.e1, t.c23)

	scale := r3.Norm(t.e1) * r3.Norm(t.e2) * r3.Norm(t.e3)
	if scale == 0 || math.Abs(t.det) <= 1e-12*scale {
		return t, false
	}
	return t, true
}

func (t tetrahedron) contains(p r3.Vec) bool {
	q := r3.Sub(p, t.a)
	l1 := r3.Dot(q, t.c23) / t.det
	l2 := r3.Dot(t.e1, r3.Cross(q, t.e3)) / t.det
	l3 := r3.Dot(t.e1, r3.Cross(t.e2, q)) / t.det
	tol := ContainmentTolerance
	return l1 >= -tol && l2 >= -tol && l3 >= -tol && l1+l2+l3 <= 1+tol
}

// Solid is an element shape as a union of non-degenerate tetrahedra.
type Solid struct {
	tets     []tetrahedron
	min, max r3.Vec
}

// NewSolid builds the containment shape of an element from its corner
// coordinates. Degenerate tetrahedra of the decomposition contain nothing
// and are dropped.
func NewSolid(t models.ElementType, corners []r3.Vec) (*Solid, error) {
	split, err := decomposition(t)
	if err != nil {
		return nil, err
	}
	if len(corners) < t.CornerCount() {
		return nil, fmt.Errorf("%v needs %d corners, got %d", t, t.CornerCount(), len(corners))
	}

	s := &Solid{}
	s.min, s.max = corners[0], corners[0]
	for _, c := range corners[:t.CornerCount()] {
		s.min = r3.Vec{X: math.Min(s.min.X, c.X), Y: math.Min(s.min.Y, c.Y), Z: math.Min(s.min.Z, c.Z)}
		s.max = r3.Vec{X: math.Max(s.max.X, c.X), Y: math.Max(s.max.Y, c.Y), Z: math.Max(s.max.Z, c.Z)}
	}
	for _, ix := range split {
		if tet, ok := newTetrahedron(corners[ix[0]], corners[ix[1]], corners[ix[2]], corners[ix[3]]); ok {
			s.tets = append(s.tets, tet)
		}
	}
	return s, nil
}

// Bounds returns the axis-aligned bounding box of the corners.
func (s *Solid) Bounds() (min, max r3.Vec) {
	return s.min, s.max
}

// Contains reports whether p is inside any tetrahedron of the solid.
func (s *Solid) Contains(p r3.Vec) bool {
	if p.X < s.min.X-ContainmentTolerance || p.X > s.max.X+ContainmentTolerance ||
		p.Y < s.min.Y-ContainmentTolerance || p.Y > s.max.Y+ContainmentTolerance ||
		p.Z < s.min.Z-ContainmentTolerance || p.Z > s.max.Z+ContainmentTolerance {
		return false
	}
	for _, t := range s.tets {
		if t.contains(p) {
			return true
		}
	}
	return false
}

// Degenerate reports whether the solid has no volume.
func (s *Solid) Degenerate() bool {
	return len(s.tets) == 0
}
