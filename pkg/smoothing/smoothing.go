// Package smoothing reduces voxel noise before interpolation by replacing
// every voxel with the mean of its nearest neighbours.
package smoothing

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/spatial/kdtree"

	"img2physprop/internal/models"
)

// DefaultNeighbours covers the full 3x3x3 block around an interior voxel.
const DefaultNeighbours = 27

// ProgressCallback reports progress as slices are smoothed
type ProgressCallback func(completed, total int, message string)

// Params controls the smoothing pass
type Params struct {
	Neighbours int
	NumWorkers int
	Progress   ProgressCallback
}

// Smooth returns a new volume in which each voxel value is the mean of its
// Neighbours nearest voxel centres (itself included), measured in physical
// distance. NaN voxels contribute nothing; a voxel whose neighbours are all
// NaN stays NaN. Each channel is smoothed independently.
func Smooth(ctx context.Context, vol *models.Volume, p Params) (*models.Volume, error) {
	const op = "smoothing.Smooth"

	if p.Neighbours < 1 {
		return nil, models.NewError(models.KindInvalidConfig, op, fmt.Errorf("neighbours must be positive, got %d", p.Neighbours))
	}
	if p.NumWorkers < 1 {
		p.NumWorkers = runtime.NumCPU()
	}

	nx, ny, nz := vol.Dims[0], vol.Dims[1], vol.Dims[2]
	points := make(Points3D, 0, vol.NumVoxels())
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				points = append(points, voxelPoint(vol, i, j, k))
			}
		}
	}
	tree := kdtree.New(points, false)

	out := make([]float64, len(vol.Data))

	slices := make(chan int)
	done := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(p.NumWorkers, nz); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sums := make([]float64, vol.Channels)
			counts := make([]int, vol.Channels)
			for k := range slices {
				for j := 0; j < ny; j++ {
					for i := 0; i < nx; i++ {
						smoothVoxel(vol, tree, voxelPoint(vol, i, j, k), p.Neighbours, sums, counts, out)
					}
				}
				done <- k
			}
		}()
	}

	go func() {
		defer close(slices)
		for k := 0; k < nz; k++ {
			if ctx.Err() != nil {
				return
			}
			select {
			case slices <- k:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	completed := 0
	for range done {
		completed++
		if p.Progress != nil {
			p.Progress(completed, nz, fmt.Sprintf("Smoothed %d/%d slices", completed, nz))
		}
	}
	if completed < nz {
		return nil, ctx.Err()
	}

	return vol.WithData(out)
}

func voxelPoint(vol *models.Volume, i, j, k int) Point3D {
	return Point3D{
		X:     float64(i) * vol.Spacing.X,
		Y:     float64(j) * vol.Spacing.Y,
		Z:     float64(k) * vol.Spacing.Z,
		Index: vol.Offset(i, j, k) / vol.Channels,
	}
}

func smoothVoxel(vol *models.Volume, tree *kdtree.Tree, q Point3D, n int, sums []float64, counts []int, out []float64) {
	for c := range sums {
		sums[c], counts[c] = 0, 0
	}

	keeper := kdtree.NewNKeeper(n)
	tree.NearestSet(keeper, q)
	for _, item := range keeper.Heap {
		// Skip the sentinel value
		if item.Comparable == nil {
			continue
		}
		base := item.Comparable.(Point3D).Index * vol.Channels
		for c := range sums {
			if v := vol.Data[base+c]; !math.IsNaN(v) {
				sums[c] += v
				counts[c]++
			}
		}
	}

	base := q.Index * vol.Channels
	for c := range sums {
		if counts[c] == 0 {
			out[base+c] = math.NaN()
			continue
		}
		out[base+c] = sums[c] / float64(counts[c])
	}
}
