// Package config provides configuration loading and management for img2physprop.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"img2physprop/internal/models"
	"img2physprop/pkg/calibration"
	"img2physprop/pkg/engine"
	"img2physprop/pkg/interpolation"
)

// Config represents the application configuration
type Config struct {
	// Image input
	Image struct {
		// Path is a DICOM directory, a NIfTI file or a directory of PNG/JPEG slices
		Path string `yaml:"path" toml:"path"`

		// Format is one of auto, dicom, nifti or png
		Format string `yaml:"format" toml:"format"`

		// PixelType is ct, mrt or rgb. rgb yields three channels per voxel
		PixelType string `yaml:"pixel_type" toml:"pixel_type"`

		// Spacing and Origin apply to PNG stacks, which carry no geometry
		Spacing []float64 `yaml:"spacing" toml:"spacing"`
		Origin  []float64 `yaml:"origin" toml:"origin"`
	} `yaml:"image" toml:"image"`

	// Mesh input
	Mesh struct {
		// Path is a Medit .mesh or 4C .dat file
		Path string `yaml:"path" toml:"path"`

		// MaterialIDs restricts the mesh to elements of these materials; empty keeps all
		MaterialIDs []int `yaml:"material_ids" toml:"material_ids"`
	} `yaml:"mesh" toml:"mesh"`

	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many goroutines evaluate entities
		NumWorkers int `yaml:"num_workers" toml:"num_workers"`

		// BatchSize is the number of entities per unit of work
		BatchSize int `yaml:"batch_size" toml:"batch_size"`

		// FailFast aborts the run on the first fatal entity
		FailFast bool `yaml:"fail_fast" toml:"fail_fast"`

		// CropToMesh crops the volume to the mesh bounds before interpolating
		CropToMesh bool `yaml:"crop_to_mesh" toml:"crop_to_mesh"`
	} `yaml:"processing" toml:"processing"`

	// Smoothing of voxel intensities before interpolation
	Smoothing struct {
		Enabled bool `yaml:"enabled" toml:"enabled"`

		// Neighbours is the number of nearest voxels averaged, the voxel included
		Neighbours int `yaml:"neighbours" toml:"neighbours"`
	} `yaml:"smoothing" toml:"smoothing"`

	// Interpolation parameters
	Interpolation struct {
		Strategy             string  `yaml:"strategy" toml:"strategy"`
		OutOfBoundsPolicy    string  `yaml:"out_of_bounds_policy" toml:"out_of_bounds_policy"`
		DefaultPropertyValue float64 `yaml:"default_property_value" toml:"default_property_value"`
		AggregationStatistic string  `yaml:"aggregation_statistic" toml:"aggregation_statistic"`
		OutputGranularity    string  `yaml:"output_granularity" toml:"output_granularity"`
	} `yaml:"interpolation" toml:"interpolation"`

	// Calibration from intensity to property value
	Calibration struct {
		// Enabled applies the curve. When false raw intensities are exported
		Enabled bool `yaml:"enabled" toml:"enabled"`

		RangePolicy string `yaml:"range_policy" toml:"range_policy"`

		// Domain is statistic (convert the aggregated intensity) or
		// intensity (convert every voxel before aggregating)
		Domain string `yaml:"domain" toml:"domain"`

		Curve calibration.Curve `yaml:"curve" toml:"curve"`
	} `yaml:"calibration" toml:"calibration"`

	// Output parameters
	Output struct {
		// Path of the exported field
		Path string `yaml:"path" toml:"path"`

		// Format is json, txt, csv or vtk; empty picks it from the path extension
		Format string `yaml:"format" toml:"format"`

		// PropertyName labels the values in the exported file
		PropertyName string `yaml:"property_name" toml:"property_name"`

		// Normalize scales values into [0,1] using the image intensity range
		Normalize bool `yaml:"normalize" toml:"normalize"`

		// OneBasedIDs adds one to every exported id, for meshes numbered from zero
		OneBasedIDs bool `yaml:"one_based_ids" toml:"one_based_ids"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose" toml:"verbose"`
	} `yaml:"output" toml:"output"`

	// Visualization parameters
	Visualization struct {
		// SliceDir receives rendered slices when set
		SliceDir string `yaml:"slice_dir" toml:"slice_dir"`

		// Axis is z (axial), y (coronal) or x (sagittal)
		Axis string `yaml:"axis" toml:"axis"`
	} `yaml:"visualization" toml:"visualization"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Image.Format = "auto"
	cfg.Image.PixelType = "ct"
	cfg.Image.Spacing = []float64{1, 1, 1}
	cfg.Image.Origin = []float64{0, 0, 0}

	// Use all available cores by default
	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.BatchSize = 256
	cfg.Processing.FailFast = true
	cfg.Processing.CropToMesh = true

	cfg.Smoothing.Enabled = false
	cfg.Smoothing.Neighbours = 27

	cfg.Interpolation.Strategy = "all_voxel"
	cfg.Interpolation.OutOfBoundsPolicy = "clamp_default"
	cfg.Interpolation.DefaultPropertyValue = 0
	cfg.Interpolation.AggregationStatistic = "mean"
	cfg.Interpolation.OutputGranularity = "native"

	cfg.Calibration.Enabled = false
	cfg.Calibration.RangePolicy = "clamp"
	cfg.Calibration.Domain = "statistic"
	cfg.Calibration.Curve = calibration.Identity(0, 1)

	cfg.Output.Path = "properties.json"
	cfg.Output.PropertyName = "property"
	cfg.Output.Verbose = false

	cfg.Visualization.Axis = "z"

	return cfg
}

// isTOML reports whether path names a TOML file
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML or TOML file, chosen by extension.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// EngineOptions validates the interpolation, calibration and processing
// sections and converts them into engine options.
func (c *Config) EngineOptions() (engine.Options, error) {
	opts := engine.DefaultOptions()
	var err error

	if opts.Strategy, err = interpolation.ParseStrategy(c.Interpolation.Strategy); err != nil {
		return opts, invalid(err)
	}
	if opts.OutOfBounds, err = interpolation.ParseOutOfBoundsPolicy(c.Interpolation.OutOfBoundsPolicy); err != nil {
		return opts, invalid(err)
	}
	if opts.Statistic, err = interpolation.ParseStatistic(c.Interpolation.AggregationStatistic); err != nil {
		return opts, invalid(err)
	}
	if opts.OutputGranularity, err = engine.ParseOutputGranularity(c.Interpolation.OutputGranularity); err != nil {
		return opts, invalid(err)
	}
	if opts.CalibrationRange, err = calibration.ParseRangePolicy(c.Calibration.RangePolicy); err != nil {
		return opts, invalid(err)
	}
	if opts.CalibrationDomain, err = interpolation.ParseCalibrationDomain(c.Calibration.Domain); err != nil {
		return opts, invalid(err)
	}

	opts.DefaultValue = c.Interpolation.DefaultPropertyValue
	opts.CalibrationEnabled = c.Calibration.Enabled
	opts.FailFast = c.Processing.FailFast
	opts.NumWorkers = c.Processing.NumWorkers
	opts.BatchSize = c.Processing.BatchSize

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	if opts.CalibrationEnabled {
		if err := c.Calibration.Curve.Validate(); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if _, err := c.EngineOptions(); err != nil {
		return err
	}
	if len(c.Image.Spacing) != 3 || len(c.Image.Origin) != 3 {
		return invalid(fmt.Errorf("image spacing and origin need three values"))
	}
	for _, s := range c.Image.Spacing {
		if s <= 0 {
			return invalid(fmt.Errorf("image spacing must be positive, got %v", c.Image.Spacing))
		}
	}
	if c.Smoothing.Enabled && c.Smoothing.Neighbours < 1 {
		return invalid(fmt.Errorf("smoothing needs at least one neighbour"))
	}
	switch strings.ToLower(c.Visualization.Axis) {
	case "x", "y", "z", "":
	default:
		return invalid(fmt.Errorf("unknown slice axis %q", c.Visualization.Axis))
	}
	return nil
}

func invalid(err error) error {
	return models.NewError(models.KindInvalidConfig, "config.Validate", err)
}
