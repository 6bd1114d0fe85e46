// Package pipeline runs a complete img2physprop job: it reads the image and
// the mesh named in a configuration, prepares the volume, interpolates the
// property field and writes it out.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"img2physprop/internal/models"
	"img2physprop/pkg/config"
	"img2physprop/pkg/engine"
	"img2physprop/pkg/export"
	"img2physprop/pkg/field"
	"img2physprop/pkg/imageio"
	"img2physprop/pkg/meshio"
	"img2physprop/pkg/smoothing"
	"img2physprop/pkg/visualization"
)

// ProgressCallback is a function that reports progress of the long running
// steps (smoothing and interpolation)
type ProgressCallback func(completed, total int, message string)

// Params holds everything a run needs besides its inputs on disk
type Params struct {
	Config *config.Config

	// Logger receives step messages. Nil uses log.Default().
	Logger *log.Logger

	Progress ProgressCallback
}

// ValueStats describes the distribution of the exported values (first
// channel, valued entities only)
type ValueStats struct {
	Count        int
	Min, Max     float64
	Mean, StdDev float64
}

// Report summarizes a finished run
type Report struct {
	RunID      uuid.UUID
	VolumeDims [3]int
	Channels   int
	Nodes      int
	Elements   int
	Summary    field.Summary
	Values     ValueStats
	OutputPath string
	Elapsed    time.Duration
}

// Pipeline executes one configured job.
//
// The steps are:
// 1. Loading the image into a volume
// 2. Loading the mesh and filtering it by material
// 3. Cropping and smoothing the volume
// 4. Interpolating the property field
// 5. Exporting the field
// 6. Rendering slices with the field drawn on top (optional)
type Pipeline struct {
	params *Params
	cfg    *config.Config
	logger *log.Logger

	vol        *models.Volume
	mesh       *models.Mesh
	pixelRange [2]float64

	field  *field.PropertyField
	report Report
}

// NewPipeline validates the configuration and returns a pipeline ready to
// run.
func NewPipeline(params *Params) (*Pipeline, error) {
	if params == nil || params.Config == nil {
		return nil, models.NewError(models.KindInvalidConfig, "pipeline.NewPipeline", fmt.Errorf("configuration is required"))
	}
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}
	logger := params.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{params: params, cfg: params.Config, logger: logger}, nil
}

// Process runs the complete pipeline
func (p *Pipeline) Process(ctx context.Context) error {
	start := time.Now()

	if err := p.Load(); err != nil {
		return err
	}

	// Step 3: Prepare the volume
	if err := p.prepareVolume(ctx); err != nil {
		return fmt.Errorf("failed to prepare volume: %w", err)
	}

	// Step 4: Interpolate
	p.logger.Info("Step 4: Interpolating property field...")
	opts, err := p.cfg.EngineOptions()
	if err != nil {
		return err
	}
	eng, err := engine.New(&engine.Params{
		Volume:   p.vol,
		Mesh:     p.mesh,
		Curve:    p.cfg.Calibration.Curve,
		Options:  opts,
		Logger:   p.logger,
		Progress: engine.ProgressCallback(p.params.Progress),
	})
	if err != nil {
		return err
	}
	f, summary, err := eng.Run(ctx)
	if err != nil {
		return err
	}
	p.field = f

	// Step 5: Export
	p.logger.Infof("Step 5: Exporting %d %ss to %s...", f.Len(), f.Granularity(), p.cfg.Output.Path)
	exportOpts, err := p.exportOptions()
	if err != nil {
		return err
	}
	if err := export.WriteFile(p.cfg.Output.Path, f, p.mesh, exportOpts); err != nil {
		return fmt.Errorf("failed to export field: %w", err)
	}

	// Step 6: Render slices
	if dir := p.cfg.Visualization.SliceDir; dir != "" {
		p.logger.Infof("Step 6: Rendering %s slices to %s...", p.cfg.Visualization.Axis, dir)
		if err := p.RenderSlices(dir, p.cfg.Visualization.Axis); err != nil {
			return fmt.Errorf("failed to render slices: %w", err)
		}
	}

	p.report = Report{
		RunID:      f.RunID(),
		VolumeDims: p.vol.Dims,
		Channels:   p.vol.Channels,
		Nodes:      len(p.mesh.Nodes),
		Elements:   len(p.mesh.Elements),
		Summary:    summary,
		Values:     valueStats(f),
		OutputPath: p.cfg.Output.Path,
		Elapsed:    time.Since(start),
	}
	p.logger.Infof("Run %s complete (%s)", p.report.RunID, p.report.Elapsed.Round(time.Millisecond))
	return nil
}

// Load reads the image and the mesh (steps 1 and 2). Process calls it; it is
// exported for commands that only inspect the inputs.
func (p *Pipeline) Load() error {
	// Step 1: Load the image
	p.logger.Infof("Step 1: Loading image data from %s...", p.cfg.Image.Path)
	imgOpts, err := p.imageOptions()
	if err != nil {
		return err
	}
	vol, err := imageio.Read(p.cfg.Image.Path, imgOpts)
	if err != nil {
		return fmt.Errorf("failed to load image data: %w", err)
	}
	p.vol = vol
	lo, hi := vol.Range()
	p.pixelRange = [2]float64{lo, hi}
	p.logger.Infof("Loaded volume %dx%dx%d, %d channel(s), spacing %v", vol.Dims[0], vol.Dims[1], vol.Dims[2], vol.Channels, vol.Spacing)

	// Step 2: Load the mesh
	p.logger.Infof("Step 2: Loading mesh from %s...", p.cfg.Mesh.Path)
	mesh, err := meshio.ReadFile(p.cfg.Mesh.Path)
	if err != nil {
		return fmt.Errorf("failed to load mesh: %w", err)
	}
	if len(p.cfg.Mesh.MaterialIDs) > 0 {
		if mesh, err = mesh.FilterMaterials(p.cfg.Mesh.MaterialIDs); err != nil {
			return err
		}
		p.logger.Infof("Kept materials %v", p.cfg.Mesh.MaterialIDs)
	}
	if len(mesh.Nodes) == 0 {
		return models.NewError(models.KindMeshInconsistency, "pipeline.Load", fmt.Errorf("mesh has no nodes"))
	}
	p.mesh = mesh
	p.logger.Infof("Loaded mesh with %d nodes and %d elements", len(mesh.Nodes), len(mesh.Elements))
	return nil
}

func (p *Pipeline) prepareVolume(ctx context.Context) error {
	p.logger.Info("Step 3: Preparing volume...")

	if p.cfg.Processing.CropToMesh {
		cropped, err := imageio.CropToMesh(p.vol, p.mesh, imageio.DefaultCropMargin)
		if err != nil {
			return err
		}
		p.logger.Debugf("Cropped volume to %v", cropped.Dims)
		p.vol = cropped
	}

	if p.cfg.Smoothing.Enabled {
		smoothed, err := smoothing.Smooth(ctx, p.vol, smoothing.Params{
			Neighbours: p.cfg.Smoothing.Neighbours,
			NumWorkers: p.cfg.Processing.NumWorkers,
			Progress:   smoothing.ProgressCallback(p.params.Progress),
		})
		if err != nil {
			return err
		}
		p.logger.Debugf("Smoothed volume over %d neighbours", p.cfg.Smoothing.Neighbours)
		p.vol = smoothed
	}
	return nil
}

// RenderSlices writes every slice of the loaded volume along axis to dir.
// After Process the field is drawn on each slice.
func (p *Pipeline) RenderSlices(dir, axis string) error {
	if p.vol == nil {
		return fmt.Errorf("no volume loaded")
	}
	viewer, err := visualization.NewViewer(p.vol)
	if err != nil {
		return err
	}
	if p.field == nil {
		return viewer.SaveSliceSequence(axis, dir, nil, nil)
	}
	return viewer.SaveSliceSequence(axis, dir, p.mesh, p.field)
}

func (p *Pipeline) imageOptions() (imageio.Options, error) {
	opts := imageio.Options{Format: imageio.Format(strings.ToLower(p.cfg.Image.Format))}
	pixelType, err := imageio.ParsePixelType(p.cfg.Image.PixelType)
	if err != nil {
		return opts, err
	}
	opts.PixelType = pixelType
	if s := p.cfg.Image.Spacing; len(s) == 3 {
		opts.Spacing = r3.Vec{X: s[0], Y: s[1], Z: s[2]}
	}
	if o := p.cfg.Image.Origin; len(o) == 3 {
		opts.Origin = r3.Vec{X: o[0], Y: o[1], Z: o[2]}
	}
	return opts, nil
}

func (p *Pipeline) exportOptions() (export.Options, error) {
	format, err := export.ParseFormat(p.cfg.Output.Format)
	if err != nil {
		return export.Options{}, err
	}
	return export.Options{
		Format:         format,
		PropertyName:   p.cfg.Output.PropertyName,
		OneBasedIDs:    p.cfg.Output.OneBasedIDs,
		Normalize:      p.cfg.Output.Normalize,
		NormalizeRange: p.pixelRange,
	}, nil
}

// Volume returns the volume the field was interpolated from
func (p *Pipeline) Volume() *models.Volume { return p.vol }

// Mesh returns the filtered mesh
func (p *Pipeline) Mesh() *models.Mesh { return p.mesh }

// Field returns the interpolated field, nil before Process succeeds
func (p *Pipeline) Field() *field.PropertyField { return p.field }

// Report returns the summary of the last successful Process
func (p *Pipeline) Report() Report { return p.report }

func valueStats(f *field.PropertyField) ValueStats {
	var xs []float64
	for _, id := range f.IDs() {
		if v, ok := f.Scalar(id); ok {
			xs = append(xs, v)
		}
	}
	if len(xs) == 0 {
		return ValueStats{}
	}
	s := ValueStats{Count: len(xs), Min: floats.Min(xs), Max: floats.Max(xs)}
	s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	return s
}
