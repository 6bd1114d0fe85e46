package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"img2physprop/pkg/config"
	"img2physprop/pkg/pipeline"
)

const defaultConfigPath = "config.yaml"

// runOpts holds the command-line overrides of the run command
type runOpts struct {
	configPath string
	image      string
	mesh       string
	output     string
	strategy   string
	workers    int
	sliceDir   string
}

func newRunCmd() *cobra.Command {
	var opts runOpts

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Interpolate and export a property field",
		Long:  `Reads the image and mesh named in the configuration, interpolates the property field and writes it to the configured output. Flags override the configuration file.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.apply(cfg)
			if cfg.Output.Verbose {
				logger.SetLevel(log.DebugLevel)
			}

			p, err := pipeline.NewPipeline(&pipeline.Params{
				Config: cfg,
				Logger: logger,
				Progress: func(completed, total int, message string) {
					logger.Debugf("[%d/%d] %s", completed, total, message)
				},
			})
			if err != nil {
				return err
			}

			sw := startStopwatch(logger)
			if err := p.Process(ctx); err != nil {
				return err
			}
			sw.finish(fmt.Sprintf("Wrote %s", cfg.Output.Path))

			printReport(cmd.OutOrStdout(), p.Report())
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "configuration file (YAML or TOML)")
	cmd.Flags().StringVar(&opts.image, "image", "", "image path (overrides image.path)")
	cmd.Flags().StringVar(&opts.mesh, "mesh", "", "mesh path (overrides mesh.path)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output path (overrides output.path)")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "interpolation strategy: node, center or all_voxel")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "number of worker goroutines")
	cmd.Flags().StringVar(&opts.sliceDir, "slices-dir", "", "render slices with the field to this directory")

	return cmd
}

// apply copies the flags that were set onto cfg
func (o runOpts) apply(cfg *config.Config) {
	if o.image != "" {
		cfg.Image.Path = o.image
	}
	if o.mesh != "" {
		cfg.Mesh.Path = o.mesh
	}
	if o.output != "" {
		cfg.Output.Path = o.output
	}
	if o.strategy != "" {
		cfg.Interpolation.Strategy = o.strategy
	}
	if o.workers > 0 {
		cfg.Processing.NumWorkers = o.workers
	}
	if o.sliceDir != "" {
		cfg.Visualization.SliceDir = o.sliceDir
	}
}

// loadConfig reads path. The default path may be missing, in which case the
// defaults are used; an explicitly named file must exist.
func loadConfig(path string) (*config.Config, error) {
	if path != defaultConfigPath && !fileExists(path) {
		return nil, fmt.Errorf("config file %s not found (create one with init-config)", path)
	}
	return config.LoadConfig(path)
}
