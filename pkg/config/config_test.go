package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"img2physprop/internal/models"
	"img2physprop/pkg/calibration"
	"img2physprop/pkg/engine"
	"img2physprop/pkg/interpolation"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Strategy != interpolation.AllVoxel || opts.OutOfBounds != interpolation.ClampDefault {
		t.Errorf("unexpected default options %+v", opts)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Smoothing.Neighbours != 27 {
		t.Errorf("expected defaults, got %+v", cfg.Smoothing)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := `
interpolation:
  strategy: center
  out_of_bounds_policy: error
  default_property_value: 1.5
  output_granularity: node
calibration:
  enabled: true
  range_policy: error
  curve:
    - {intensity: -1000, property: 0.01}
    - {intensity: 2000, property: 2.5}
processing:
  num_workers: 3
  batch_size: 16
  fail_fast: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		t.Fatalf("EngineOptions: %v", err)
	}

	if opts.Strategy != interpolation.Center || opts.OutOfBounds != interpolation.FailOutOfBounds {
		t.Errorf("strategy/policy = %v/%v", opts.Strategy, opts.OutOfBounds)
	}
	if opts.DefaultValue != 1.5 || opts.OutputGranularity != engine.OutputNode {
		t.Errorf("default/granularity = %v/%v", opts.DefaultValue, opts.OutputGranularity)
	}
	if !opts.CalibrationEnabled || opts.CalibrationRange != calibration.Reject {
		t.Errorf("calibration options = %v/%v", opts.CalibrationEnabled, opts.CalibrationRange)
	}
	if opts.NumWorkers != 3 || opts.BatchSize != 16 || opts.FailFast {
		t.Errorf("processing options = %d/%d/%v", opts.NumWorkers, opts.BatchSize, opts.FailFast)
	}
	if len(cfg.Calibration.Curve) != 2 || cfg.Calibration.Curve[1].Property != 2.5 {
		t.Errorf("curve = %+v", cfg.Calibration.Curve)
	}
	// Unset keys keep their defaults
	if cfg.Interpolation.AggregationStatistic != "mean" {
		t.Errorf("aggregation statistic = %q", cfg.Interpolation.AggregationStatistic)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	content := `
[interpolation]
strategy = "all_voxel"
aggregation_statistic = "median"

[mesh]
material_ids = [1, 3]

[[calibration.curve]]
intensity = 0
property = 1

[[calibration.curve]]
intensity = 255
property = 2
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Strategy != interpolation.AllVoxel || opts.Statistic != interpolation.Median {
		t.Errorf("strategy/statistic = %v/%v", opts.Strategy, opts.Statistic)
	}
	if len(cfg.Mesh.MaterialIDs) != 2 || cfg.Mesh.MaterialIDs[1] != 3 {
		t.Errorf("material ids = %v", cfg.Mesh.MaterialIDs)
	}
	if len(cfg.Calibration.Curve) != 2 || cfg.Calibration.Curve[1].Intensity != 255 {
		t.Errorf("curve = %+v", cfg.Calibration.Curve)
	}
}

func TestSaveAndReload(t *testing.T) {
	for _, name := range []string{"cfg.yaml", "cfg.toml"} {
		path := filepath.Join(t.TempDir(), "nested", name)
		cfg := DefaultConfig()
		cfg.Interpolation.Strategy = "node"
		cfg.Output.PropertyName = "youngs_modulus"
		if err := SaveConfig(cfg, path); err != nil {
			t.Fatalf("SaveConfig(%s): %v", name, err)
		}

		loaded, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig(%s): %v", name, err)
		}
		if loaded.Interpolation.Strategy != "node" || loaded.Output.PropertyName != "youngs_modulus" {
			t.Errorf("%s: values lost in round trip: %+v", name, loaded.Interpolation)
		}
	}

	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestInvalidValues(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"strategy", func(c *Config) { c.Interpolation.Strategy = "nearest" }},
		{"policy", func(c *Config) { c.Interpolation.OutOfBoundsPolicy = "ignore" }},
		{"statistic", func(c *Config) { c.Interpolation.AggregationStatistic = "mode" }},
		{"granularity", func(c *Config) { c.Interpolation.OutputGranularity = "face" }},
		{"workers", func(c *Config) { c.Processing.NumWorkers = 0 }},
		{"batch", func(c *Config) { c.Processing.BatchSize = -1 }},
		{"spacing", func(c *Config) { c.Image.Spacing = []float64{1, 0, 1} }},
		{"axis", func(c *Config) { c.Visualization.Axis = "w" }},
	}

	for _, tc := range testCases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, models.ErrInvalidConfig) {
			t.Errorf("%s: expected invalid config error, got %v", tc.name, err)
		}
	}

	cfg := DefaultConfig()
	cfg.Calibration.Enabled = true
	cfg.Calibration.Curve = calibration.Curve{{Intensity: 1, Property: 0}, {Intensity: 1, Property: 2}}
	if err := cfg.Validate(); !errors.Is(err, models.ErrInvalidCalibration) {
		t.Errorf("expected invalid calibration error, got %v", err)
	}
}
