// Package compositor merges the occupancies of all structures of a scene into
// per-voxel property volumes.
//
// Structures are processed by descending priority. Each one claims at most the
// fraction of a voxel that earlier structures left unclaimed, and the
// background fills whatever remains, so the claimed fractions of every voxel
// add up to one.
package compositor

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"pavolume/internal/models"
	"pavolume/pkg/config"
	"pavolume/pkg/deformation"
	"pavolume/pkg/geometry"
	"pavolume/pkg/structure"
	"pavolume/pkg/volerr"
)

// ClaimTolerance bounds the deviation of a voxel's total claimed fraction from one
const ClaimTolerance = 1e-5

// Composer composes the volumes of one scene. Occupancies do not depend on the
// wavelength; they are computed on the first call to Compose and reused.
// A Composer is not safe for concurrent use.
type Composer struct {
	grid       geometry.Grid
	surface    *deformation.Surface
	workers    int
	log        logrus.FieldLogger
	order      []*structure.Structure
	background *structure.Structure
	occupancy  []*geometry.Occupancy
}

// New prepares a composer for the scene of cfg. A nil logger selects the
// logrus standard logger.
func New(cfg *config.Config, registry *structure.Registry, log logrus.FieldLogger) (*Composer, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	grid, err := cfg.Grid()
	if err != nil {
		return nil, err
	}
	background, err := registry.Background()
	if err != nil {
		return nil, err
	}

	c := &Composer{
		grid:       grid,
		workers:    cfg.Cores(),
		log:        log,
		order:      registry.Sorted(),
		background: background,
	}

	if cfg.Deformation.Enabled {
		extent := grid.Extent()
		bounds := deformation.Bounds{XMin: 0, XMax: extent.X, YMin: 0, YMax: extent.Y}
		field, err := deformation.Create(bounds, cfg.DeformationParams(), rand.New(rand.NewSource(cfg.Volume.RandomSeed)))
		if err != nil {
			return nil, fmt.Errorf("deformation: %w", err)
		}
		if c.surface, err = field.Surface(grid); err != nil {
			return nil, fmt.Errorf("deformation: %w", err)
		}
		lo, hi := c.surface.Range()
		log.WithFields(logrus.Fields{"min": lo, "max": hi}).Debug("Created deformation surface")
	}

	return c, nil
}

// Grid returns the voxel grid of the scene
func (c *Composer) Grid() geometry.Grid {
	return c.grid
}

// Surface returns the deformation surface, nil if deformation is disabled
func (c *Composer) Surface() *deformation.Surface {
	return c.surface
}

func (c *Composer) shift() geometry.ColumnShift {
	if c.surface == nil {
		return nil
	}
	return c.surface
}

// occupancies rasterizes all structures, up to workers at a time
func (c *Composer) occupancies(ctx context.Context) ([]*geometry.Occupancy, error) {
	if c.occupancy != nil {
		return c.occupancy, nil
	}

	occ := make([]*geometry.Occupancy, len(c.order))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.workers)
	for idx, s := range c.order {
		idx, s := idx, s
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			o, err := s.GeometricalVolume(c.grid, c.shift())
			if err != nil {
				return err
			}
			occ[idx] = o
			c.log.WithFields(logrus.Fields{
				"structure": s.Name,
				"type":      s.Kind.String(),
				"voxels":    o.Sum(),
			}).Debug("Rasterized structure")
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for idx, o := range occ {
		if o.Sum() == 0 {
			c.log.WithField("structure", c.order[idx].Name).
				Warn("Structure has zero occupancy in the volume; its geometry is under-determined")
		}
	}
	c.occupancy = occ
	return occ, nil
}

// Compose builds the property volumes at a wavelength in nm and validates them
func (c *Composer) Compose(ctx context.Context, wavelength float64) (*models.VoxelGrid, error) {
	grid, _, err := c.merge(ctx, wavelength)
	if err != nil {
		return nil, err
	}
	if err := Validate(grid); err != nil {
		return nil, err
	}
	return grid, nil
}

// layer is one contribution to the merge
type layer struct {
	s    *structure.Structure
	occ  []float64
	fill bool
}

// merge applies the claiming rule and returns the grid and the claimed
// fraction of every voxel
func (c *Composer) merge(ctx context.Context, wavelength float64) (*models.VoxelGrid, []float64, error) {
	occ, err := c.occupancies(ctx)
	if err != nil {
		return nil, nil, err
	}

	g := c.grid
	out := models.NewVoxelGrid(g.Nx, g.Ny, g.Nz, g.Spacing, wavelength)
	claimed := make([]float64, g.Len())
	best := make([]float64, g.Len())
	// oxygenated marks voxels claimed in part by tissue containing hemoglobin
	oxygenated := make([]bool, g.Len())

	layers := make([]layer, 0, len(c.order)+1)
	for idx, s := range c.order {
		layers = append(layers, layer{s: s, occ: occ[idx].Data})
	}
	layers = append(layers, layer{s: c.background, fill: true})

	segmentation := out.Volumes[models.Segmentation]
	for _, l := range layers {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		props := l.s.PropertiesForWavelength(wavelength)
		label := float64(l.s.Label())

		type target struct {
			data  []float64
			value float64
		}
		hasOxygenation := !math.IsNaN(props.Oxygenation)
		targets := make([]target, 0, len(models.Properties))
		for _, p := range models.Properties {
			if p == models.Segmentation || (p == models.Oxygenation && !hasOxygenation) {
				continue
			}
			targets = append(targets, target{data: out.Volumes[p].Data, value: props.Value(p)})
		}

		for idx := range claimed {
			available := 1 - claimed[idx]
			if available <= 0 {
				continue
			}
			assigned := available
			if !l.fill {
				assigned = math.Min(available, l.occ[idx])
			}
			if assigned <= 0 {
				continue
			}
			for _, t := range targets {
				t.data[idx] += assigned * t.value
			}
			claimed[idx] += assigned
			if hasOxygenation {
				oxygenated[idx] = true
			}
			if assigned > best[idx] {
				best[idx] = assigned
				segmentation.Data[idx] = label
			}
		}
	}

	oxygenation := out.Volumes[models.Oxygenation].Data
	for idx, ok := range oxygenated {
		if !ok {
			oxygenation[idx] = math.NaN()
		}
	}

	return out, claimed, nil
}

// Validate reports the first non-finite value of any property volume. NaN is
// accepted in the oxygenation volume, where it marks voxels without blood.
func Validate(grid *models.VoxelGrid) error {
	for _, p := range models.Properties {
		vol, err := grid.Volume(p)
		if err != nil {
			return err
		}
		for idx, v := range vol.Data {
			if math.IsInf(v, 0) || (math.IsNaN(v) && p != models.Oxygenation) {
				x, y, z := vol.Coords(idx)
				return &volerr.NumericAnomalyError{Property: string(p), X: x, Y: y, Z: z, Value: v}
			}
		}
	}
	return nil
}

// Compose is a one-shot helper building a composer and composing at a single
// wavelength
func Compose(ctx context.Context, cfg *config.Config, registry *structure.Registry, wavelength float64, log logrus.FieldLogger) (*models.VoxelGrid, error) {
	c, err := New(cfg, registry, log)
	if err != nil {
		return nil, err
	}
	return c.Compose(ctx, wavelength)
}
