// Package grid maps between physical mesh coordinates and continuous voxel
// indices of a volume, and samples the volume at continuous indices.
//
// Voxel (i,j,k) has its centre at index coordinate (i,j,k); the physical
// position of an index coordinate idx is
//
//	origin + R * (idx ∘ spacing)
//
// where R holds the direction cosines of the index axes as columns.
package grid

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
)

// Mapper converts between physical space and voxel-index space of one
// volume. It is immutable and safe for concurrent use.
type Mapper struct {
	origin  r3.Vec
	spacing r3.Vec
	rot     [3][3]float64
	inv     [3][3]float64
}

// NewMapper inverts the volume orientation. A singular orientation yields an
// error of kind models.KindCoordinateMapping.
func NewMapper(vol *models.Volume) (*Mapper, error) {
	const op = "grid.NewMapper"

	if !(vol.Spacing.X > 0 && vol.Spacing.Y > 0 && vol.Spacing.Z > 0) {
		return nil, models.NewError(models.KindCoordinateMapping, op, fmt.Errorf("non-positive spacing %v", vol.Spacing))
	}

	r := mat.NewDense(3, 3, nil)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			r.Set(row, col, vol.Orientation[row][col])
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(r); err != nil {
		return nil, models.NewError(models.KindCoordinateMapping, op, fmt.Errorf("orientation matrix is singular: %w", err))
	}

	m := &Mapper{
		origin:  vol.Origin,
		spacing: vol.Spacing,
		rot:     vol.Orientation,
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			m.inv[row][col] = inv.At(row, col)
		}
	}
	return m, nil
}

// ToVoxelSpace returns the continuous voxel index of physical point p:
// R⁻¹·(p − origin) / spacing.
func (m *Mapper) ToVoxelSpace(p r3.Vec) r3.Vec {
	d := r3.Sub(p, m.origin)
	q := mulVec(&m.inv, d)
	return r3.Vec{X: q.X / m.spacing.X, Y: q.Y / m.spacing.Y, Z: q.Z / m.spacing.Z}
}

// ToPhysicalSpace is the inverse of ToVoxelSpace.
func (m *Mapper) ToPhysicalSpace(idx r3.Vec) r3.Vec {
	scaled := r3.Vec{X: idx.X * m.spacing.X, Y: idx.Y * m.spacing.Y, Z: idx.Z * m.spacing.Z}
	return r3.Add(m.origin, mulVec(&m.rot, scaled))
}

// ToVoxelSpaceAll maps a set of points.
func (m *Mapper) ToVoxelSpaceAll(pts []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(pts))
	for i, p := range pts {
		out[i] = m.ToVoxelSpace(p)
	}
	return out
}

func mulVec(a *[3][3]float64, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: a[0][0]*v.X + a[0][1]*v.Y + a[0][2]*v.Z,
		Y: a[1][0]*v.X + a[1][1]*v.Y + a[1][2]*v.Z,
		Z: a[2][0]*v.X + a[2][1]*v.Y + a[2][2]*v.Z,
	}
}
