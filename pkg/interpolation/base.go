package interpolation

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
	"img2physprop/pkg/calibration"
	"img2physprop/pkg/field"
	"img2physprop/pkg/grid"
)

// base holds what every strategy shares: the mapped volume, the mesh and the
// point-sampling path used for nodes, centroids and the centroid fallback.
type base struct {
	vol     *models.Volume
	mesh    *models.Mesh
	mapper  *grid.Mapper
	sampler *grid.Sampler
	conv    *calibration.Converter
	opts    Options
}

func newBase(deps Deps) (*base, error) {
	const op = "interpolation.New"
	if deps.Volume == nil {
		return nil, models.NewError(models.KindInvalidConfig, op, fmt.Errorf("no volume"))
	}
	if deps.Mesh == nil {
		return nil, models.NewError(models.KindInvalidConfig, op, fmt.Errorf("no mesh"))
	}
	mapper, err := grid.NewMapper(deps.Volume)
	if err != nil {
		return nil, err
	}
	return &base{
		vol:     deps.Volume,
		mesh:    deps.Mesh,
		mapper:  mapper,
		sampler: grid.NewSampler(deps.Volume),
		conv:    deps.Converter,
		opts:    deps.Options,
	}, nil
}

func (b *base) channels() int {
	return b.vol.Channels
}

func (b *base) elementIDs() []int {
	ids := make([]int, len(b.mesh.Elements))
	for i, e := range b.mesh.Elements {
		ids[i] = e.ID
	}
	return ids
}

func (b *base) element(id int) (models.Element, error) {
	i, ok := b.mesh.ElementIndex(id)
	if !ok {
		return models.Element{}, models.NewEntityError(models.KindMeshInconsistency, "interpolation.Interpolate",
			models.EntityElement, id, fmt.Errorf("unknown element"))
	}
	return b.mesh.Elements[i], nil
}

// samplePoint maps p into the volume, samples it and converts the sample.
// Out-of-bounds points follow the configured policy.
func (b *base) samplePoint(entity models.EntityKind, id int, p r3.Vec) Outcome {
	idx := b.mapper.ToVoxelSpace(p)

	raw := make([]float64, b.channels())
	if err := b.sampler.SampleInto(idx, raw); err != nil {
		cause := models.NewEntityError(models.KindOutOfBounds, "interpolation.Sample", entity, id,
			fmt.Errorf("point (%.6g, %.6g, %.6g): %w", p.X, p.Y, p.Z, err))
		if b.opts.OutOfBounds == ClampDefault {
			// the cause stays on the record so readers know why the default was used
			return Outcome{ID: id, Status: field.StatusFallback, Value: b.defaultValue(), Err: cause}
		}
		return Outcome{ID: id, Status: field.StatusOutOfBounds, Err: cause}
	}
	return b.convert(entity, id, raw)
}

// convert applies the calibration curve to raw, channel by channel.
func (b *base) convert(entity models.EntityKind, id int, raw []float64) Outcome {
	if b.conv == nil {
		return Outcome{ID: id, Status: field.StatusOK, Value: raw}
	}
	value, err := b.conv.ConvertAll(raw)
	if err != nil {
		return Outcome{
			ID:     id,
			Status: field.StatusCalibrationRange,
			Err:    models.NewEntityError(models.KindCalibrationRange, "interpolation.Convert", entity, id, err),
		}
	}
	return Outcome{ID: id, Status: field.StatusOK, Value: value}
}

func (b *base) defaultValue() []float64 {
	v := make([]float64, b.channels())
	for c := range v {
		v[c] = b.opts.DefaultValue
	}
	return v
}

// centroidOutcome is the center strategy for a single element.
func (b *base) centroidOutcome(e models.Element) Outcome {
	return b.samplePoint(models.EntityElement, e.ID, b.mesh.Centroid(e))
}
