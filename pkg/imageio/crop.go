package imageio

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
	"img2physprop/pkg/grid"
)

// DefaultCropMargin is the number of voxels kept around the mesh bounds.
const DefaultCropMargin = 2

// CropToMesh returns the part of vol covering the bounding box of mesh,
// enlarged by margin voxels on every side. It fails when the mesh does not
// overlap the image at all.
func CropToMesh(vol *models.Volume, mesh *models.Mesh, margin int) (*models.Volume, error) {
	const op = "imageio.CropToMesh"
	if len(mesh.Nodes) == 0 {
		return vol, nil
	}

	mapper, err := grid.NewMapper(vol)
	if err != nil {
		return nil, err
	}

	min, max := mesh.Bounds()
	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, x := range []float64{min.X, max.X} {
		for _, y := range []float64{min.Y, max.Y} {
			for _, z := range []float64{min.Z, max.Z} {
				idx := mapper.ToVoxelSpace(r3.Vec{X: x, Y: y, Z: z})
				lo = r3.Vec{X: math.Min(lo.X, idx.X), Y: math.Min(lo.Y, idx.Y), Z: math.Min(lo.Z, idx.Z)}
				hi = r3.Vec{X: math.Max(hi.X, idx.X), Y: math.Max(hi.Y, idx.Y), Z: math.Max(hi.Z, idx.Z)}
			}
		}
	}

	var from, to [3]int
	for axis, bounds := range [][2]float64{{lo.X, hi.X}, {lo.Y, hi.Y}, {lo.Z, hi.Z}} {
		from[axis] = int(math.Floor(bounds[0])) - margin
		to[axis] = int(math.Ceil(bounds[1])) + margin + 1
		if to[axis] <= 0 || from[axis] >= vol.Dims[axis] {
			return nil, models.NewError(models.KindInvalidVolume, op, fmt.Errorf("mesh coordinates are not in image data"))
		}
	}

	return vol.Crop(from, to)
}
