package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"img2physprop/pkg/config"
	"img2physprop/pkg/pipeline"
)

func newInitConfigCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a default configuration file",
		Long:  `Writes the default configuration to path (config.yaml when omitted). A .toml extension selects TOML.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if fileExists(path) && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			loggerFromContext(cmd.Context()).Infof("Wrote default configuration to %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Load the configured image and mesh and describe them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			p, err := pipeline.NewPipeline(&pipeline.Params{Config: cfg, Logger: loggerFromContext(cmd.Context())})
			if err != nil {
				return err
			}
			if err := p.Load(); err != nil {
				return err
			}
			printInputs(cmd.OutOrStdout(), p.Volume(), p.Mesh())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "configuration file (YAML or TOML)")
	return cmd
}

func newSlicesCmd() *cobra.Command {
	var configPath, dir, axis string

	cmd := &cobra.Command{
		Use:   "slices",
		Short: "Render the slices of the configured image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if axis == "" {
				axis = cfg.Visualization.Axis
			}

			p, err := pipeline.NewPipeline(&pipeline.Params{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			if err := p.Load(); err != nil {
				return err
			}

			sw := startStopwatch(logger)
			if err := p.RenderSlices(dir, axis); err != nil {
				return err
			}
			sw.finish(fmt.Sprintf("Rendered %s slices to %s", axis, dir))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "configuration file (YAML or TOML)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "slices", "output directory")
	cmd.Flags().StringVar(&axis, "axis", "", "slice axis x, y or z (defaults to visualization.axis)")
	return cmd
}
