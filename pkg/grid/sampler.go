package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
)

// BoundsTolerance is how far outside [0, dim-1] an index coordinate may lie
// and still be treated as on the boundary.
const BoundsTolerance = 1e-9

// Sampler performs tri-linear interpolation of a volume at continuous voxel
// indices. It never applies a bounds policy: coordinates outside the grid
// are reported as out-of-bounds errors and the caller decides what to do.
type Sampler struct {
	vol *models.Volume
}

// NewSampler wraps vol. The volume is only read.
func NewSampler(vol *models.Volume) *Sampler {
	return &Sampler{vol: vol}
}

// Volume returns the sampled volume.
func (s *Sampler) Volume() *models.Volume {
	return s.vol
}

// InBounds reports whether idx lies within [0, dim-1] on all axes.
func (s *Sampler) InBounds(idx r3.Vec) bool {
	_, _, ok0 := axisCell(idx.X, s.vol.Dims[0])
	_, _, ok1 := axisCell(idx.Y, s.vol.Dims[1])
	_, _, ok2 := axisCell(idx.Z, s.vol.Dims[2])
	return ok0 && ok1 && ok2
}

// Clamp moves idx to the nearest point inside the grid.
func (s *Sampler) Clamp(idx r3.Vec) r3.Vec {
	clamp := func(x float64, n int) float64 {
		return math.Max(0, math.Min(float64(n-1), x))
	}
	return r3.Vec{
		X: clamp(idx.X, s.vol.Dims[0]),
		Y: clamp(idx.Y, s.vol.Dims[1]),
		Z: clamp(idx.Z, s.vol.Dims[2]),
	}
}

// Sample returns the interpolated value of every channel at idx.
func (s *Sampler) Sample(idx r3.Vec) ([]float64, error) {
	out := make([]float64, s.vol.Channels)
	if err := s.SampleInto(idx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SampleScalar returns the interpolated first channel at idx.
func (s *Sampler) SampleScalar(idx r3.Vec) (float64, error) {
	var one [1]float64
	if s.vol.Channels == 1 {
		if err := s.SampleInto(idx, one[:]); err != nil {
			return 0, err
		}
		return one[0], nil
	}
	v, err := s.Sample(idx)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// SampleInto writes the interpolated channels at idx into dst, which must
// hold at least Channels values.
func (s *Sampler) SampleInto(idx r3.Vec, dst []float64) error {
	v := s.vol
	i0, fx, okx := axisCell(idx.X, v.Dims[0])
	j0, fy, oky := axisCell(idx.Y, v.Dims[1])
	k0, fz, okz := axisCell(idx.Z, v.Dims[2])
	if !(okx && oky && okz) {
		return models.NewError(models.KindOutOfBounds, "grid.Sample",
			fmt.Errorf("voxel index (%.4g, %.4g, %.4g) outside [0,%d]x[0,%d]x[0,%d]",
				idx.X, idx.Y, idx.Z, v.Dims[0]-1, v.Dims[1]-1, v.Dims[2]-1))
	}

	i1, j1, k1 := next(i0, v.Dims[0]), next(j0, v.Dims[1]), next(k0, v.Dims[2])

	for c := 0; c < v.Channels; c++ {
		c000 := v.Data[v.Offset(i0, j0, k0)+c]
		c100 := v.Data[v.Offset(i1, j0, k0)+c]
		c010 := v.Data[v.Offset(i0, j1, k0)+c]
		c110 := v.Data[v.Offset(i1, j1, k0)+c]
		c001 := v.Data[v.Offset(i0, j0, k1)+c]
		c101 := v.Data[v.Offset(i1, j0, k1)+c]
		c011 := v.Data[v.Offset(i0, j1, k1)+c]
		c111 := v.Data[v.Offset(i1, j1, k1)+c]

		c00 := lerp(c000, c100, fx)
		c10 := lerp(c010, c110, fx)
		c01 := lerp(c001, c101, fx)
		c11 := lerp(c011, c111, fx)

		c0 := lerp(c00, c10, fy)
		c1 := lerp(c01, c11, fy)

		dst[c] = lerp(c0, c1, fz)
	}
	return nil
}

// axisCell returns the lower cell index and the fractional offset of x along
// an axis with n voxels. ok is false outside [0, n-1].
func axisCell(x float64, n int) (i0 int, f float64, ok bool) {
	if math.IsNaN(x) || x < -BoundsTolerance || x > float64(n-1)+BoundsTolerance {
		return 0, 0, false
	}
	if n == 1 {
		return 0, 0, true
	}
	x = math.Max(0, math.Min(float64(n-1), x))
	i0 = int(math.Floor(x))
	if i0 >= n-1 {
		i0 = n - 2
	}
	return i0, x - float64(i0), true
}

func next(i, n int) int {
	if i+1 < n {
		return i + 1
	}
	return i
}

// lerp returns a exactly when t == 0 and b exactly when t == 1.
func lerp(a, b, t float64) float64 {
	if t == 0 {
		return a
	}
	if t == 1 {
		return b
	}
	return a*(1-t) + b*t
}
