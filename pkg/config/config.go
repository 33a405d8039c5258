// Package config provides configuration loading and management for pavolume.
// It handles loading scene descriptions from YAML files, provides default
// values and turns structure descriptors into a structure registry.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"pavolume/internal/models"
	"pavolume/pkg/deformation"
	"pavolume/pkg/geometry"
	"pavolume/pkg/spectra"
	"pavolume/pkg/structure"
	"pavolume/pkg/tissue"
	"pavolume/pkg/vessel"
	"pavolume/pkg/volerr"
)

// Config represents the scene configuration loaded from YAML
type Config struct {
	// Volume parameters
	Volume struct {
		// Spacing is the isotropic voxel edge length in mm
		Spacing float64 `yaml:"spacing"`

		// DimX, DimY and DimZ are the physical extents of the volume in mm
		DimX float64 `yaml:"dimX"`
		DimY float64 `yaml:"dimY"`
		DimZ float64 `yaml:"dimZ"`

		// Wavelengths in nm to compose the volume for
		Wavelengths []float64 `yaml:"wavelengths"`

		// RandomSeed seeds the deformation field and unseeded vessel trees
		RandomSeed uint64 `yaml:"randomSeed"`
	} `yaml:"volume"`

	// Deformation parameters
	Deformation struct {
		// Enabled turns on the random surface deformation
		Enabled bool `yaml:"enabled"`

		// MaxElevation is the depth range of the surface in mm
		MaxElevation float64 `yaml:"maxElevation"`

		// FilterSigma smooths the knot grid, in knots
		FilterSigma float64 `yaml:"filterSigma"`

		// CosineScaling controls the tapering towards the volume edges
		CosineScaling float64 `yaml:"cosineScaling"`
	} `yaml:"deformation"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many structures are rasterized in parallel
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// SliceDir is the directory slice images are written to; empty skips export
		SliceDir string `yaml:"sliceDir"`

		// SliceFormat is png or jpeg
		SliceFormat string `yaml:"sliceFormat"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Structures are the tissue regions of the scene
	Structures []StructureConfig `yaml:"structures"`

	// Segmentation replaces the structures with a pre-labelled volume when
	// LabelDir is set
	Segmentation struct {
		// LabelDir holds one gray PNG per z slice, gray level = class label
		LabelDir string `yaml:"labelDir,omitempty"`

		// Classes map every label of the volume to a library tissue
		Classes []ClassConfig `yaml:"classes,omitempty"`
	} `yaml:"segmentation,omitempty"`
}

// ClassConfig maps one segmentation label to a tissue composition
type ClassConfig struct {
	Label       int      `yaml:"label"`
	Composition string   `yaml:"composition"`
	Oxygenation *float64 `yaml:"oxygenation,omitempty"`
	Mua         float64  `yaml:"mua,omitempty"`
	Mus         float64  `yaml:"mus,omitempty"`
	G           float64  `yaml:"g,omitempty"`
}

// StructureConfig describes one structure. Which geometry fields are read
// depends on Type.
type StructureConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Priority    int    `yaml:"priority"`
	Composition string `yaml:"composition"`

	// Oxygenation overrides the library default of the composition
	Oxygenation *float64 `yaml:"oxygenation,omitempty"`

	// Mua, Mus and G parameterize the constant composition
	Mua float64 `yaml:"mua,omitempty"`
	Mus float64 `yaml:"mus,omitempty"`
	G   float64 `yaml:"g,omitempty"`

	PartialVolume       bool `yaml:"partialVolume"`
	AdhereToDeformation bool `yaml:"adhereToDeformation"`

	// Geometry in mm; points and vectors are [x, y, z]
	Start        []float64 `yaml:"start,omitempty,flow"`
	End          []float64 `yaml:"end,omitempty,flow"`
	Extent       []float64 `yaml:"extent,omitempty,flow"`
	Center       []float64 `yaml:"center,omitempty,flow"`
	EdgeA        []float64 `yaml:"edgeA,omitempty,flow"`
	EdgeB        []float64 `yaml:"edgeB,omitempty,flow"`
	EdgeC        []float64 `yaml:"edgeC,omitempty,flow"`
	Radius       float64   `yaml:"radius,omitempty"`
	Eccentricity float64   `yaml:"eccentricity,omitempty"`

	// Vessel holds the growth parameters of vessel trees
	Vessel *VesselConfig `yaml:"vessel,omitempty"`
}

// VesselConfig holds the vessel tree parameters beyond start and radius
type VesselConfig struct {
	Direction             []float64 `yaml:"direction,flow"`
	BifurcationLength     float64   `yaml:"bifurcationLength"`
	CurvatureFactor       float64   `yaml:"curvatureFactor"`
	RadiusVariationFactor float64   `yaml:"radiusVariationFactor"`
	MinRadius             float64   `yaml:"minRadius,omitempty"`
	MaxDepth              int       `yaml:"maxDepth,omitempty"`
	ContinueProbability   float64   `yaml:"continueProbability,omitempty"`
	TerminateProbability  float64   `yaml:"terminateProbability,omitempty"`
	BifurcateProbability  float64   `yaml:"bifurcateProbability,omitempty"`

	// Seed of the tree; derived from the volume seed if omitted
	Seed *uint64 `yaml:"seed,omitempty"`
}

// DefaultConfig returns a configuration with default values: a layered skin
// model with a straight vessel and a small vessel tree in muscle
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default volume parameters
	cfg.Volume.Spacing = 0.5
	cfg.Volume.DimX = 20
	cfg.Volume.DimY = 20
	cfg.Volume.DimZ = 15
	cfg.Volume.Wavelengths = []float64{800}
	cfg.Volume.RandomSeed = 42

	// Set default deformation parameters
	def := deformation.DefaultParams()
	cfg.Deformation.Enabled = true
	cfg.Deformation.MaxElevation = def.MaxElevation
	cfg.Deformation.FilterSigma = def.FilterSigma
	cfg.Deformation.CosineScaling = def.CosineScaling

	// Use all available cores by default
	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Output.SliceFormat = "png"
	cfg.Output.Verbose = false

	bloodOxygenation := 0.95
	cfg.Structures = []StructureConfig{
		{Name: "tissue", Type: "background", Composition: "soft_tissue"},
		{Name: "epidermis", Type: "horizontal_layer", Priority: 8, Composition: "epidermis",
			PartialVolume: true, AdhereToDeformation: true,
			Start: []float64{0, 0, 0}, End: []float64{0, 0, 0.1}},
		{Name: "dermis", Type: "horizontal_layer", Priority: 7, Composition: "dermis",
			PartialVolume: true, AdhereToDeformation: true,
			Start: []float64{0, 0, 0.1}, End: []float64{0, 0, 1.5}},
		{Name: "fat", Type: "horizontal_layer", Priority: 6, Composition: "subcutaneous_fat",
			PartialVolume: true, AdhereToDeformation: true,
			Start: []float64{0, 0, 1.5}, End: []float64{0, 0, 4}},
		{Name: "muscle", Type: "horizontal_layer", Priority: 5, Composition: "muscle",
			PartialVolume: true, AdhereToDeformation: true,
			Start: []float64{0, 0, 4}, End: []float64{0, 0, 15}},
		{Name: "artery", Type: "circular_tube", Priority: 9, Composition: "blood",
			Oxygenation: &bloodOxygenation, PartialVolume: true, AdhereToDeformation: true,
			Start: []float64{0, 10, 7}, End: []float64{20, 10, 7}, Radius: 1},
		{Name: "capillaries", Type: "vessel_tree", Priority: 10, Composition: "blood",
			PartialVolume: true, AdhereToDeformation: true,
			Start: []float64{10, 0, 10}, Radius: 0.8,
			Vessel: &VesselConfig{
				Direction:             []float64{0, 1, 0},
				BifurcationLength:     6,
				CurvatureFactor:       0.05,
				RadiusVariationFactor: 0.01,
				MaxDepth:              3,
			}},
	}

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

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

// Grid returns the voxel grid of the volume
func (c *Config) Grid() (geometry.Grid, error) {
	return geometry.NewGrid(c.Volume.Spacing, c.Volume.DimX, c.Volume.DimY, c.Volume.DimZ)
}

// DeformationParams returns the deformation settings
func (c *Config) DeformationParams() deformation.Params {
	return deformation.Params{
		MaxElevation:  c.Deformation.MaxElevation,
		FilterSigma:   c.Deformation.FilterSigma,
		CosineScaling: c.Deformation.CosineScaling,
	}
}

// Cores returns the number of parallel workers, at least one
func (c *Config) Cores() int {
	if c.Processing.NumCores < 1 {
		return runtime.NumCPU()
	}
	return c.Processing.NumCores
}

// Validate checks the scalar settings. Structures are checked by Registry.
func (c *Config) Validate() error {
	if _, err := c.Grid(); err != nil {
		return err
	}

	if len(c.Volume.Wavelengths) == 0 {
		return volerr.Configf("wavelengths", "at least one wavelength is required")
	}
	lo, hi := spectra.Wavelengths[0], spectra.Wavelengths[len(spectra.Wavelengths)-1]
	for _, wl := range c.Volume.Wavelengths {
		if !(wl >= lo && wl <= hi) {
			return volerr.Configf("wavelengths", "%v nm outside the tabulated range [%v, %v]", wl, lo, hi)
		}
	}

	if c.Deformation.Enabled {
		d := c.Deformation
		if !(d.MaxElevation >= 0) || math.IsInf(d.MaxElevation, 0) {
			return volerr.Configf("deformation.maxElevation", "must be finite and not negative, got %v", d.MaxElevation)
		}
		if !(d.FilterSigma >= 0) {
			return volerr.Configf("deformation.filterSigma", "must not be negative, got %v", d.FilterSigma)
		}
		if !(d.CosineScaling > 0) {
			return volerr.Configf("deformation.cosineScaling", "must be positive, got %v", d.CosineScaling)
		}
	}

	if c.Processing.NumCores < 0 {
		return volerr.Configf("processing.numCores", "must not be negative, got %d", c.Processing.NumCores)
	}

	switch strings.ToLower(c.Output.SliceFormat) {
	case "", "png", "jpeg", "jpg":
	default:
		return volerr.Configf("output.sliceFormat", "unsupported format %q", c.Output.SliceFormat)
	}

	if c.UsesSegmentation() && len(c.Segmentation.Classes) == 0 {
		return volerr.Configf("segmentation.classes", "at least one class is required with a label directory")
	}

	return nil
}

// UsesSegmentation reports whether the volume comes from a label volume
// instead of the structures
func (c *Config) UsesSegmentation() bool {
	return c.Segmentation.LabelDir != ""
}

// SegmentationMapping builds the class to composition mapping of the
// segmentation section
func (c *Config) SegmentationMapping() (map[models.SegmentationClass]*tissue.Composition, error) {
	mapping := make(map[models.SegmentationClass]*tissue.Composition, len(c.Segmentation.Classes))
	for _, cc := range c.Segmentation.Classes {
		class := models.SegmentationClass(cc.Label)
		if _, dup := mapping[class]; dup {
			return nil, volerr.Configf("segmentation.classes", "label %d is mapped twice", cc.Label)
		}
		comp, err := tissue.Lookup(cc.Composition, tissue.Options{
			Oxygenation: cc.Oxygenation,
			Mua:         cc.Mua,
			Mus:         cc.Mus,
			G:           cc.G,
		})
		if err != nil {
			return nil, fmt.Errorf("segmentation class %d: %w", cc.Label, err)
		}
		mapping[class] = comp
	}
	return mapping, nil
}

// Registry builds the structure registry from the structure descriptors
func (c *Config) Registry() (*structure.Registry, error) {
	r := structure.NewRegistry()
	for idx, sc := range c.Structures {
		s, err := sc.build(c.Volume.RandomSeed + uint64(idx) + 1)
		if err != nil {
			return nil, err
		}
		if err := r.Add(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (sc StructureConfig) build(seed uint64) (*structure.Structure, error) {
	kind, err := structure.ParseKind(sc.Type)
	if err != nil {
		return nil, fmt.Errorf("structure %s: %w", sc.Name, err)
	}

	comp, err := tissue.Lookup(sc.Composition, tissue.Options{
		Oxygenation: sc.Oxygenation,
		Mua:         sc.Mua,
		Mus:         sc.Mus,
		G:           sc.G,
	})
	if err != nil {
		return nil, fmt.Errorf("structure %s: %w", sc.Name, err)
	}

	shape, err := sc.shape(kind, seed)
	if err != nil {
		return nil, fmt.Errorf("structure %s: %w", sc.Name, err)
	}

	return &structure.Structure{
		Name:                sc.Name,
		Kind:                kind,
		Priority:            sc.Priority,
		Shape:               shape,
		Composition:         comp,
		PartialVolume:       sc.PartialVolume,
		AdhereToDeformation: sc.AdhereToDeformation,
	}, nil
}

func (sc StructureConfig) shape(kind structure.Kind, seed uint64) (geometry.Shape, error) {
	v := vectors{name: sc.Name}
	var shape geometry.Shape
	switch kind {
	case structure.Background:
		return nil, nil
	case structure.HorizontalLayer:
		l, err := geometry.NewLayerFromPoints(v.get("start", sc.Start), v.get("end", sc.End))
		if v.err != nil {
			return nil, v.err
		}
		if err != nil {
			return nil, err
		}
		shape = l
	case structure.CircularTube:
		shape = geometry.Tube{Start: v.get("start", sc.Start), End: v.get("end", sc.End), Radius: sc.Radius}
	case structure.EllipticalTube:
		shape = geometry.EllipticalTube{Start: v.get("start", sc.Start), End: v.get("end", sc.End),
			Radius: sc.Radius, Eccentricity: sc.Eccentricity}
	case structure.Sphere:
		shape = geometry.Sphere{Center: v.get("center", sc.Center), Radius: sc.Radius}
	case structure.RectangularCuboid:
		shape = geometry.Cuboid{Start: v.get("start", sc.Start), Extent: v.get("extent", sc.Extent)}
	case structure.Parallelepiped:
		shape = geometry.Parallelepiped{Start: v.get("start", sc.Start),
			EdgeA: v.get("edgeA", sc.EdgeA), EdgeB: v.get("edgeB", sc.EdgeB), EdgeC: v.get("edgeC", sc.EdgeC)}
	case structure.VesselTree:
		if sc.Vessel == nil {
			return nil, volerr.Configf(sc.Name, "vessel_tree requires a vessel section")
		}
		vc := sc.Vessel
		if vc.Seed != nil {
			seed = *vc.Seed
		}
		shape = vessel.Shape{Params: vessel.Params{
			Start:                 v.get("start", sc.Start),
			Direction:             v.get("vessel.direction", vc.Direction),
			Radius:                sc.Radius,
			BifurcationLength:     vc.BifurcationLength,
			CurvatureFactor:       vc.CurvatureFactor,
			RadiusVariationFactor: vc.RadiusVariationFactor,
			MinRadius:             vc.MinRadius,
			MaxDepth:              vc.MaxDepth,
			ContinueProbability:   vc.ContinueProbability,
			TerminateProbability:  vc.TerminateProbability,
			BifurcateProbability:  vc.BifurcateProbability,
			Seed:                  seed,
		}}
	}
	if v.err != nil {
		return nil, v.err
	}
	return shape, nil
}

// vectors converts [x, y, z] lists and keeps the first error
type vectors struct {
	name string
	err  error
}

func (v *vectors) get(field string, xyz []float64) r3.Vec {
	if v.err != nil {
		return r3.Vec{}
	}
	if len(xyz) != 3 {
		v.err = volerr.Configf(v.name, "%s must have three components, got %d", field, len(xyz))
		return r3.Vec{}
	}
	return r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}
}
