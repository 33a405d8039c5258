package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pavolume/internal/models"
	"pavolume/pkg/compositor"
	"pavolume/pkg/config"
	"pavolume/pkg/pipeline"
	"pavolume/pkg/tissue"
	"pavolume/pkg/visualization"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool
	log := logrus.New()

	root := &cobra.Command{
		Use:   "pavolume",
		Short: "Build photoacoustic tissue volumes from declarative scene files",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newBuildCommand(log), newInitConfigCommand(), newLibraryCommand())
	return root
}

func newBuildCommand(log *logrus.Logger) *cobra.Command {
	var (
		configPath string
		slicesDir  string
		format     string
		labelDir   string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compose the scene, compute fluence and initial pressure, and export slices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Output.Verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			if cmd.Flags().Changed("slices") {
				cfg.Output.SliceDir = slicesDir
			}
			if cmd.Flags().Changed("format") {
				cfg.Output.SliceFormat = format
			}
			if cmd.Flags().Changed("labels") {
				cfg.Segmentation.LabelDir = labelDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			imageFormat, err := visualization.ParseFormat(cfg.Output.SliceFormat)
			if err != nil {
				return err
			}

			registry, err := cfg.Registry()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			start := time.Now()
			results, err := pipeline.Run(ctx, cfg, registry, pipeline.BeerLambert{Incident: 1}, nil, log)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"wavelengths": len(results),
				"structures":  registry.Len(),
				"elapsed":     time.Since(start).Round(time.Millisecond),
			}).Info("Build completed")

			out := cmd.OutOrStdout()
			for _, r := range results {
				printSummary(out, r.Grid)
				if cfg.Output.SliceDir == "" {
					continue
				}
				dir := filepath.Join(cfg.Output.SliceDir, fmt.Sprintf("%.0fnm", r.Grid.Wavelength))
				if err := exportSlices(r, dir, imageFormat, log); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "pavolume.yaml", "scene configuration file")
	cmd.Flags().StringVar(&slicesDir, "slices", "", "directory to export slice images to")
	cmd.Flags().StringVar(&format, "format", "png", "slice image format (png or jpeg)")
	cmd.Flags().StringVar(&labelDir, "labels", "", "directory of label PNG slices to use instead of the structures")
	return cmd
}

func printSummary(out io.Writer, grid *models.VoxelGrid) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%.0f nm, %dx%dx%d voxels of %.3f mm\n", grid.Wavelength, grid.Width, grid.Height, grid.Depth, grid.Spacing)
	fmt.Fprintln(w, "property\tmin\tmax\tmean\tstd\tundefined")
	for _, s := range compositor.Summarize(grid) {
		fmt.Fprintf(w, "%s\t%.4g\t%.4g\t%.4g\t%.4g\t%d\n", s.Property, s.Min, s.Max, s.Mean, s.StdDev, s.Undefined)
	}
	fmt.Fprintln(w)
	w.Flush()
}

// exportSlices writes z slices of every property and of the initial pressure
func exportSlices(r pipeline.Result, dir string, format visualization.Format, log logrus.FieldLogger) error {
	for _, p := range models.Properties {
		viewer, err := visualization.ForProperty(r.Grid, p)
		if err != nil {
			return err
		}
		if _, err := viewer.SaveSliceSequence("z", dir, string(p), format); err != nil {
			return fmt.Errorf("exporting %s: %w", p, err)
		}
	}
	if _, err := visualization.NewViewer(r.InitialPressure).SaveSliceSequence("z", dir, "initial_pressure", format); err != nil {
		return fmt.Errorf("exporting initial pressure: %w", err)
	}
	log.WithField("dir", dir).Info("Exported slices")
	return nil
}

func newInitConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default scene configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "pavolume.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}
}

func newLibraryCommand() *cobra.Command {
	var wavelength float64

	cmd := &cobra.Command{
		Use:   "library",
		Short: "List the tissue library with its properties at a wavelength",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "tissue\tlabel\tmua [1/cm]\tmus [1/cm]\tg\toxygenation\tsos [m/s]\tdensity [kg/m3]\n")
			for _, name := range tissue.Names() {
				comp, err := tissue.Lookup(name, tissue.Options{Mua: 0.1, Mus: 100, G: 0.9})
				if err != nil {
					return err
				}
				p := comp.Resolve(wavelength)
				fmt.Fprintf(w, "%s\t%s\t%.4g\t%.4g\t%.3g\t%.3g\t%.1f\t%.1f\n", name, comp.Label(),
					p.AbsorptionPerCm, p.ScatteringPerCm, p.Anisotropy, p.Oxygenation, p.SpeedOfSound, p.Density)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Float64VarP(&wavelength, "wavelength", "w", 800, "wavelength in nm")
	return cmd
}
