package imageio

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
)

// cosineTolerance bounds the difference between direction cosines of slices
// in one stack.
const cosineTolerance = 1e-4

// StackSlices orders parallel slices along their normal and assembles them
// into a volume. Voxel (i,j,k) is column i, row j of the k-th slice.
func StackSlices(slices []*models.Slice) (*models.Volume, error) {
	const op = "imageio.StackSlices"
	if len(slices) == 0 {
		return nil, models.NewError(models.KindInvalidVolume, op, fmt.Errorf("no slices"))
	}

	sorted := make([]*models.Slice, len(slices))
	copy(sorted, slices)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Depth() < sorted[b].Depth() })

	first := sorted[0]
	for _, s := range sorted[1:] {
		if s.Rows != first.Rows || s.Cols != first.Cols || s.Channels != first.Channels {
			return nil, models.NewError(models.KindInvalidVolume, op,
				fmt.Errorf("slice %s is %dx%dx%d, expected %dx%dx%d", s.Filename, s.Cols, s.Rows, s.Channels, first.Cols, first.Rows, first.Channels))
		}
		if r3.Norm(r3.Sub(s.RowCosine, first.RowCosine)) > cosineTolerance || r3.Norm(r3.Sub(s.ColCosine, first.ColCosine)) > cosineTolerance {
			return nil, models.NewError(models.KindInvalidVolume, op, fmt.Errorf("slice %s is not parallel to %s", s.Filename, first.Filename))
		}
	}

	// Slice distance is the mean gap between consecutive slices; a single
	// slice uses its thickness.
	dz := first.Thickness
	if len(sorted) > 1 {
		dz = (sorted[len(sorted)-1].Depth() - first.Depth()) / float64(len(sorted)-1)
	}
	if !(dz > 0) || math.IsInf(dz, 0) {
		dz = 1
	}

	plane := first.Rows * first.Cols * first.Channels
	data := make([]float64, 0, plane*len(sorted))
	for _, s := range sorted {
		if len(s.Pixels) != plane {
			return nil, models.NewError(models.KindInvalidVolume, op, fmt.Errorf("slice %s holds %d values, want %d", s.Filename, len(s.Pixels), plane))
		}
		data = append(data, s.Pixels...)
	}

	normal := first.Normal()
	orientation := [3][3]float64{
		{first.RowCosine.X, first.ColCosine.X, normal.X},
		{first.RowCosine.Y, first.ColCosine.Y, normal.Y},
		{first.RowCosine.Z, first.ColCosine.Z, normal.Z},
	}
	spacing := r3.Vec{X: first.PixelSpacing[1], Y: first.PixelSpacing[0], Z: dz}

	return models.NewVolume([3]int{first.Cols, first.Rows, len(sorted)}, spacing, first.Position, orientation, first.Channels, data)
}
