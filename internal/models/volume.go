package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// OrthonormalTolerance bounds the deviation of Volume.Orientation from an
// orthonormal matrix.
const OrthonormalTolerance = 1e-6

// Volume represents a 3D intensity grid positioned in physical space
type Volume struct {
	// Dims holds the number of voxels along the i, j and k index axes
	Dims [3]int

	// Spacing is the physical size of a voxel along each index axis in mm
	Spacing r3.Vec

	// Origin is the physical coordinate of the centre of voxel (0,0,0)
	Origin r3.Vec

	// Orientation holds the direction cosines of the index axes as columns:
	// Orientation[r][c] is component r of the unit vector of index axis c.
	Orientation [3][3]float64

	// Channels is the number of values stored per voxel (1 for CT/MR, 3 for RGB)
	Channels int

	// Data is the voxel buffer in row-major order,
	// offset = ((k*ny + j)*nx + i) * Channels
	Data []float64
}

// IdentityOrientation returns the axis-aligned orientation.
func IdentityOrientation() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// NewVolume validates the grid geometry and returns an immutable volume.
// Data is not copied; callers must not modify it afterwards.
func NewVolume(dims [3]int, spacing, origin r3.Vec, orientation [3][3]float64, channels int, data []float64) (*Volume, error) {
	const op = "models.NewVolume"

	if channels < 1 {
		return nil, NewError(KindInvalidVolume, op, fmt.Errorf("channels must be positive, got %d", channels))
	}
	for axis, n := range dims {
		if n < 1 {
			return nil, NewError(KindInvalidVolume, op, fmt.Errorf("dimension %d must be positive, got %d", axis, n))
		}
	}
	if want := dims[0] * dims[1] * dims[2] * channels; len(data) != want {
		return nil, NewError(KindInvalidVolume, op, fmt.Errorf("buffer holds %d values, grid needs %d", len(data), want))
	}
	if !(spacing.X > 0 && spacing.Y > 0 && spacing.Z > 0) {
		return nil, NewError(KindInvalidVolume, op, fmt.Errorf("spacing must be strictly positive, got %v", spacing))
	}
	if err := checkOrthonormal(orientation); err != nil {
		return nil, NewError(KindInvalidVolume, op, err)
	}

	return &Volume{
		Dims:        dims,
		Spacing:     spacing,
		Origin:      origin,
		Orientation: orientation,
		Channels:    channels,
		Data:        data,
	}, nil
}

func checkOrthonormal(m [3][3]float64) error {
	for a := 0; a < 3; a++ {
		for b := a; b < 3; b++ {
			dot := m[0][a]*m[0][b] + m[1][a]*m[1][b] + m[2][a]*m[2][b]
			want := 0.0
			if a == b {
				want = 1
			}
			if math.Abs(dot-want) > OrthonormalTolerance {
				return fmt.Errorf("orientation is not orthonormal: column %d . column %d = %g", a, b, dot)
			}
		}
	}
	return nil
}

// Offset returns the buffer offset of the first channel of voxel (i,j,k).
func (v *Volume) Offset(i, j, k int) int {
	return ((k*v.Dims[1]+j)*v.Dims[0] + i) * v.Channels
}

// Contains reports whether (i,j,k) is a valid voxel index.
func (v *Volume) Contains(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < v.Dims[0] && j < v.Dims[1] && k < v.Dims[2]
}

// IntensityAt returns the first channel of voxel (i,j,k).
func (v *Volume) IntensityAt(i, j, k int) float64 {
	return v.Data[v.Offset(i, j, k)]
}

// VoxelAt returns all channels of voxel (i,j,k). The returned slice aliases
// the volume buffer and must not be modified.
func (v *Volume) VoxelAt(i, j, k int) []float64 {
	off := v.Offset(i, j, k)
	return v.Data[off : off+v.Channels : off+v.Channels]
}

// NumVoxels returns nx*ny*nz.
func (v *Volume) NumVoxels() int {
	return v.Dims[0] * v.Dims[1] * v.Dims[2]
}

// Range returns the smallest and largest stored value over all channels.
func (v *Volume) Range() (min, max float64) {
	if len(v.Data) == 0 {
		return 0, 0
	}
	min, max = v.Data[0], v.Data[0]
	for _, x := range v.Data[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return min, max
}

// Axis returns the unit vector of index axis c in physical space.
func (v *Volume) Axis(c int) r3.Vec {
	return r3.Vec{X: v.Orientation[0][c], Y: v.Orientation[1][c], Z: v.Orientation[2][c]}
}

// Crop returns the sub-volume of voxels lo <= idx < hi (per axis), keeping
// every voxel at the same physical position.
func (v *Volume) Crop(lo, hi [3]int) (*Volume, error) {
	var dims [3]int
	for a := 0; a < 3; a++ {
		if lo[a] < 0 {
			lo[a] = 0
		}
		if hi[a] > v.Dims[a] {
			hi[a] = v.Dims[a]
		}
		dims[a] = hi[a] - lo[a]
		if dims[a] < 1 {
			return nil, NewError(KindInvalidVolume, "models.Volume.Crop", fmt.Errorf("empty crop along axis %d: [%d,%d)", a, lo[a], hi[a]))
		}
	}

	data := make([]float64, 0, dims[0]*dims[1]*dims[2]*v.Channels)
	for k := lo[2]; k < hi[2]; k++ {
		for j := lo[1]; j < hi[1]; j++ {
			start := v.Offset(lo[0], j, k)
			end := v.Offset(hi[0]-1, j, k) + v.Channels
			data = append(data, v.Data[start:end]...)
		}
	}

	origin := v.Origin
	origin = r3.Add(origin, r3.Scale(float64(lo[0])*v.Spacing.X, v.Axis(0)))
	origin = r3.Add(origin, r3.Scale(float64(lo[1])*v.Spacing.Y, v.Axis(1)))
	origin = r3.Add(origin, r3.Scale(float64(lo[2])*v.Spacing.Z, v.Axis(2)))

	return NewVolume(dims, v.Spacing, origin, v.Orientation, v.Channels, data)
}

// WithData returns a copy of the volume geometry holding a new buffer.
func (v *Volume) WithData(data []float64) (*Volume, error) {
	return NewVolume(v.Dims, v.Spacing, v.Origin, v.Orientation, v.Channels, data)
}
