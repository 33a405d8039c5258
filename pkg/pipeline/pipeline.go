// Package pipeline hands composed tissue volumes to the optical and acoustic
// forward models and computes the initial pressure between them.
package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"pavolume/internal/models"
	"pavolume/pkg/compositor"
	"pavolume/pkg/config"
	"pavolume/pkg/structure"
	"pavolume/pkg/visualization"
	"pavolume/pkg/volerr"
)

// OpticalSolver computes the light fluence in a composed volume
type OpticalSolver interface {
	Fluence(ctx context.Context, grid *models.VoxelGrid) (*models.Volume, error)
}

// AcousticInput carries everything an acoustic forward model needs
type AcousticInput struct {
	Wavelength       float64
	SpeedOfSound     *models.Volume
	Density          *models.Volume
	AlphaCoefficient *models.Volume
	InitialPressure  *models.Volume
}

// AcousticSolver propagates an initial pressure distribution
type AcousticSolver interface {
	Simulate(ctx context.Context, in AcousticInput) error
}

// Result holds the outputs of one wavelength
type Result struct {
	Grid            *models.VoxelGrid
	Fluence         *models.Volume
	InitialPressure *models.Volume
}

// InitialPressure computes p0 = Γ·μa·Φ per voxel
func InitialPressure(grid *models.VoxelGrid, fluence *models.Volume) (*models.Volume, error) {
	mua, err := grid.Volume(models.AbsorptionPerCm)
	if err != nil {
		return nil, err
	}
	gruneisen, err := grid.Volume(models.GruneisenParameter)
	if err != nil {
		return nil, err
	}
	if !mua.SameShape(fluence) {
		return nil, volerr.Configf("fluence", "shape %dx%dx%d does not match volume %dx%dx%d",
			fluence.Width, fluence.Height, fluence.Depth, mua.Width, mua.Height, mua.Depth)
	}

	p0 := models.NewVolume(mua.Width, mua.Height, mua.Depth, mua.Spacing)
	for idx := range p0.Data {
		v := gruneisen.Data[idx] * mua.Data[idx] * fluence.Data[idx]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			x, y, z := p0.Coords(idx)
			return nil, &volerr.NumericAnomalyError{Property: "initial_pressure", X: x, Y: y, Z: z, Value: v}
		}
		p0.Data[idx] = v
	}
	return p0, nil
}

// BeerLambert is a diffusion-style attenuation model: light enters at z = 0
// with fluence Incident and decays along +z with the effective attenuation
// coefficient of each voxel it crosses
type BeerLambert struct {
	Incident float64
}

// Fluence implements OpticalSolver. Values refer to voxel centres.
func (b BeerLambert) Fluence(ctx context.Context, grid *models.VoxelGrid) (*models.Volume, error) {
	mua, err := grid.Volume(models.AbsorptionPerCm)
	if err != nil {
		return nil, err
	}
	mus, err := grid.Volume(models.ScatteringPerCm)
	if err != nil {
		return nil, err
	}
	g, err := grid.Volume(models.Anisotropy)
	if err != nil {
		return nil, err
	}

	incident := b.Incident
	if incident == 0 {
		incident = 1
	}
	// mm to cm
	dz := grid.Spacing / 10

	phi := models.NewVolume(grid.Width, grid.Height, grid.Depth, grid.Spacing)
	for y := 0; y < grid.Height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < grid.Width; x++ {
			depth := 0.0
			for z := 0; z < grid.Depth; z++ {
				idx := phi.Index(x, y, z)
				a := mua.Data[idx]
				reduced := mus.Data[idx] * (1 - g.Data[idx])
				mueff := math.Sqrt(3 * a * (a + reduced))
				phi.Data[idx] = incident * math.Exp(-(depth + 0.5*mueff*dz))
				depth += mueff * dz
			}
		}
	}
	return phi, nil
}

// composeFunc produces the property volumes at one wavelength
type composeFunc func(ctx context.Context, wavelength float64) (*models.VoxelGrid, error)

// volumeSource composes the structures of registry, or maps a label volume
// when the configuration names one
func volumeSource(cfg *config.Config, registry *structure.Registry, log logrus.FieldLogger) (composeFunc, error) {
	if !cfg.UsesSegmentation() {
		composer, err := compositor.New(cfg, registry, log)
		if err != nil {
			return nil, err
		}
		return composer.Compose, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	grid, err := cfg.Grid()
	if err != nil {
		return nil, err
	}
	mapping, err := cfg.SegmentationMapping()
	if err != nil {
		return nil, err
	}
	labels, err := visualization.LoadLabelSlices(cfg.Segmentation.LabelDir, grid.Spacing)
	if err != nil {
		return nil, fmt.Errorf("loading label volume: %w", err)
	}
	log.WithFields(logrus.Fields{
		"dir":     cfg.Segmentation.LabelDir,
		"classes": len(mapping),
	}).Info("Loaded label volume")

	return func(ctx context.Context, wavelength float64) (*models.VoxelGrid, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return compositor.FromSegmentation(grid, labels, mapping, wavelength)
	}, nil
}

// Run composes the scene at every configured wavelength, computes fluence and
// initial pressure, and passes the first wavelength to the acoustic solver.
// A nil acoustic solver stops after the optical stage. With a label directory
// configured the registry is ignored and the label volume is mapped instead.
func Run(ctx context.Context, cfg *config.Config, registry *structure.Registry,
	optical OpticalSolver, acoustic AcousticSolver, log logrus.FieldLogger) ([]Result, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if optical == nil {
		return nil, volerr.Configf("pipeline", "an optical solver is required")
	}

	compose, err := volumeSource(cfg, registry, log)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(cfg.Volume.Wavelengths))
	for _, wl := range cfg.Volume.Wavelengths {
		wlog := log.WithField("wavelength", wl)

		grid, err := compose(ctx, wl)
		if err != nil {
			return nil, fmt.Errorf("composing at %v nm: %w", wl, err)
		}
		wlog.Info("Composed tissue volume")

		fluence, err := optical.Fluence(ctx, grid)
		if err != nil {
			return nil, fmt.Errorf("optical forward model at %v nm: %w", wl, err)
		}
		p0, err := InitialPressure(grid, fluence)
		if err != nil {
			return nil, fmt.Errorf("initial pressure at %v nm: %w", wl, err)
		}
		wlog.Debug("Computed initial pressure")

		results = append(results, Result{Grid: grid, Fluence: fluence, InitialPressure: p0})
	}

	if acoustic != nil && len(results) > 0 {
		first := results[0]
		if err := acoustic.Simulate(ctx, AcousticInput{
			Wavelength:       first.Grid.Wavelength,
			SpeedOfSound:     first.Grid.Volumes[models.SpeedOfSound],
			Density:          first.Grid.Volumes[models.Density],
			AlphaCoefficient: first.Grid.Volumes[models.AlphaCoefficient],
			InitialPressure:  first.InitialPressure,
		}); err != nil {
			return nil, fmt.Errorf("acoustic forward model: %w", err)
		}
		log.WithField("wavelength", first.Grid.Wavelength).Info("Ran acoustic forward model")
	}

	return results, nil
}
