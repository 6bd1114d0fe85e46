package interpolation

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"img2physprop/internal/models"
	"img2physprop/pkg/field"
)

// subOffsets are the sub-sample positions along one axis of a voxel used to
// estimate how much of it an element occupies. The centre is always sampled.
var subOffsets = [3]float64{-1.0 / 3, 0, 1.0 / 3}

// AllVoxelInterpolator aggregates every voxel enclosed by an element. An
// element enclosing no voxel centre falls back to its centroid.
type AllVoxelInterpolator struct {
	*base
}

func (a *AllVoxelInterpolator) Strategy() Strategy { return AllVoxel }

func (a *AllVoxelInterpolator) Granularity() field.Granularity { return field.Element }

func (a *AllVoxelInterpolator) IDs() []int { return a.elementIDs() }

// voxelHit is one voxel contributing to an element
type voxelHit struct {
	idx    [3]int
	weight float64
}

// solid returns the element shape in voxel-index space. The mapping is
// affine, so containment is the same as in physical space.
func (a *AllVoxelInterpolator) solid(e models.Element) (*Solid, error) {
	corners := a.mesh.ElementNodes(e)[:e.Type.CornerCount()]
	return NewSolid(e.Type, a.mapper.ToVoxelSpaceAll(corners))
}

// enclosed lists the voxels of e. With weighted set every voxel partially
// covered contributes with its estimated occupancy; otherwise only voxels
// whose centre is inside contribute, with weight 1.
func (a *AllVoxelInterpolator) enclosed(e models.Element, weighted bool) ([]voxelHit, error) {
	s, err := a.solid(e)
	if err != nil {
		return nil, err
	}
	if s.Degenerate() {
		return nil, nil
	}

	pad := 0.0
	if weighted {
		pad = 0.5
	}
	lo, hi := s.Bounds()
	var from, to [3]int
	for axis, bounds := range [][2]float64{{lo.X, hi.X}, {lo.Y, hi.Y}, {lo.Z, hi.Z}} {
		from[axis] = max(0, int(math.Ceil(bounds[0]-pad-ContainmentTolerance)))
		to[axis] = min(a.vol.Dims[axis]-1, int(math.Floor(bounds[1]+pad+ContainmentTolerance)))
		if from[axis] > to[axis] {
			return nil, nil
		}
	}

	var hits []voxelHit
	for k := from[2]; k <= to[2]; k++ {
		for j := from[1]; j <= to[1]; j++ {
			for i := from[0]; i <= to[0]; i++ {
				centre := r3.Vec{X: float64(i), Y: float64(j), Z: float64(k)}
				if !weighted {
					if s.Contains(centre) {
						hits = append(hits, voxelHit{idx: [3]int{i, j, k}, weight: 1})
					}
					continue
				}
				if w := occupancy(s, centre); w > 0 {
					hits = append(hits, voxelHit{idx: [3]int{i, j, k}, weight: w})
				}
			}
		}
	}
	return hits, nil
}

// occupancy estimates the fraction of the voxel at centre inside s.
func occupancy(s *Solid, centre r3.Vec) float64 {
	inside := 0
	for _, dz := range subOffsets {
		for _, dy := range subOffsets {
			for _, dx := range subOffsets {
				if s.Contains(r3.Vec{X: centre.X + dx, Y: centre.Y + dy, Z: centre.Z + dz}) {
					inside++
				}
			}
		}
	}
	return float64(inside) / 27
}

// EnclosedVoxels returns the indices of the voxels whose centre lies inside
// element id.
func (a *AllVoxelInterpolator) EnclosedVoxels(id int) ([][3]int, error) {
	e, err := a.element(id)
	if err != nil {
		return nil, err
	}
	hits, err := a.enclosed(e, false)
	if err != nil {
		return nil, models.NewEntityError(models.KindMeshInconsistency, "interpolation.EnclosedVoxels", models.EntityElement, id, err)
	}
	out := make([][3]int, len(hits))
	for i, h := range hits {
		out[i] = h.idx
	}
	return out, nil
}

func (a *AllVoxelInterpolator) Interpolate(id int) (Outcome, error) {
	e, err := a.element(id)
	if err != nil {
		return Outcome{}, err
	}
	hits, err := a.enclosed(e, a.opts.Statistic == WeightedMean)
	if err != nil {
		return Outcome{}, models.NewEntityError(models.KindMeshInconsistency, "interpolation.Interpolate", models.EntityElement, id, err)
	}

	channels := a.channels()
	samples := make([][]float64, channels)
	weights := make([]float64, 0, len(hits))
	for _, h := range hits {
		off := a.vol.Offset(h.idx[0], h.idx[1], h.idx[2])
		voxel := a.vol.Data[off : off+channels]
		if hasNaN(voxel) {
			continue
		}
		if a.conv != nil && a.opts.CalibrationDomain == CalibrateIntensity {
			converted := a.convert(models.EntityElement, id, voxel)
			if converted.Status != field.StatusOK {
				return converted, nil
			}
			voxel = converted.Value
		}
		for c := range samples {
			samples[c] = append(samples[c], voxel[c])
		}
		weights = append(weights, h.weight)
	}

	if len(weights) == 0 {
		return a.centroidFallback(e), nil
	}

	value := make([]float64, channels)
	for c, xs := range samples {
		value[c] = a.aggregate(xs, weights)
	}

	if a.conv != nil && a.opts.CalibrationDomain == CalibrateIntensity {
		return Outcome{ID: id, Status: field.StatusOK, Value: value}, nil
	}
	return a.convert(models.EntityElement, id, value), nil
}

// centroidFallback samples the centroid of an element that encloses no
// usable voxel. The empty aggregation is always kept as the record's cause;
// a centroid that itself fails keeps its error status.
func (a *AllVoxelInterpolator) centroidFallback(e models.Element) Outcome {
	out := a.centroidOutcome(e)
	if out.Fatal() {
		return out
	}
	cause := out.Err
	if cause == nil {
		cause = fmt.Errorf("no voxel centre inside element, sampled centroid")
	}
	out.Status = field.StatusFallbackToCentroid
	out.Err = models.NewEntityError(models.KindEmptyAggregation, "interpolation.Interpolate", models.EntityElement, e.ID, cause)
	return out
}

func (a *AllVoxelInterpolator) aggregate(xs, weights []float64) float64 {
	switch a.opts.Statistic {
	case WeightedMean:
		return stat.Mean(xs, weights)
	case Median:
		m, err := stats.Median(stats.Float64Data(xs))
		if err != nil {
			return math.NaN()
		}
		return m
	}
	return stat.Mean(xs, nil)
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
