package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"gonum.org/v1/gonum/spatial/r3"

	"pavolume/internal/models"
	"pavolume/pkg/config"
	"pavolume/pkg/geometry"
	"pavolume/pkg/structure"
	"pavolume/pkg/tissue"
	"pavolume/pkg/visualization"
	"pavolume/pkg/volerr"
)

type constantFluence float64

func (c constantFluence) Fluence(ctx context.Context, grid *models.VoxelGrid) (*models.Volume, error) {
	v := models.NewVolume(grid.Width, grid.Height, grid.Depth, grid.Spacing)
	v.Fill(float64(c))
	return v, nil
}

type recorder struct {
	calls int
	in    AcousticInput
}

func (r *recorder) Simulate(ctx context.Context, in AcousticInput) error {
	r.calls++
	r.in = in
	return nil
}

func uniformGrid(t *testing.T, name string, n int) *models.VoxelGrid {
	t.Helper()
	comp, err := tissue.Lookup(name, tissue.Options{})
	if err != nil {
		t.Fatalf("Failed to build %s: %v", name, err)
	}
	props := comp.Resolve(800)
	grid := models.NewVoxelGrid(n, n, n, 1, 800)
	for _, p := range models.Properties {
		grid.Volumes[p].Fill(props.Value(p))
	}
	return grid
}

// TestInitialPressure verifies p0 is the product of Gruneisen, absorption and fluence
func TestInitialPressure(t *testing.T) {
	grid := uniformGrid(t, "muscle", 3)
	fluence, _ := constantFluence(2).Fluence(context.Background(), grid)

	p0, err := InitialPressure(grid, fluence)
	if err != nil {
		t.Fatalf("InitialPressure failed: %v", err)
	}
	want := grid.Volumes[models.GruneisenParameter].Data[0] * grid.Volumes[models.AbsorptionPerCm].Data[0] * 2
	if got := p0.At(1, 2, 0); math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected %v, got %v", want, got)
	}

	var cfgErr *volerr.ConfigurationError
	if _, err := InitialPressure(grid, models.NewVolume(2, 3, 3, 1)); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for mismatched fluence, got %v", err)
	}

	fluence.Set(0, 0, 0, math.Inf(1))
	var anomaly *volerr.NumericAnomalyError
	if _, err := InitialPressure(grid, fluence); !errors.As(err, &anomaly) {
		t.Errorf("Expected NumericAnomalyError for infinite fluence, got %v", err)
	}
}

// TestBeerLambert verifies exponential decay with depth in a uniform medium
func TestBeerLambert(t *testing.T) {
	grid := uniformGrid(t, "muscle", 4)
	phi, err := BeerLambert{Incident: 10}.Fluence(context.Background(), grid)
	if err != nil {
		t.Fatalf("Fluence failed: %v", err)
	}

	a := grid.Volumes[models.AbsorptionPerCm].Data[0]
	s := grid.Volumes[models.ScatteringPerCm].Data[0] * (1 - grid.Volumes[models.Anisotropy].Data[0])
	step := math.Sqrt(3*a*(a+s)) * 0.1

	if got, want := phi.At(2, 1, 0), 10*math.Exp(-0.5*step); math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected surface fluence %v, got %v", want, got)
	}
	for z := 1; z < 4; z++ {
		ratio := phi.At(0, 0, z) / phi.At(0, 0, z-1)
		if math.Abs(ratio-math.Exp(-step)) > 1e-9 {
			t.Errorf("Expected decay ratio %v at depth %d, got %v", math.Exp(-step), z, ratio)
		}
	}
}

// TestRun verifies every wavelength is composed and only the first is
// passed on to the acoustic solver
func TestRun(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Volume.Spacing = 1
	cfg.Volume.DimX, cfg.Volume.DimY, cfg.Volume.DimZ = 6, 6, 6
	cfg.Volume.Wavelengths = []float64{700, 850}
	cfg.Deformation.Enabled = false
	cfg.Structures = nil

	blood, _ := tissue.Lookup("blood", tissue.Options{})
	registry := structure.NewRegistry()
	if err := registry.Add(&structure.Structure{
		Name:          "ball",
		Kind:          structure.Sphere,
		Priority:      1,
		Shape:         geometry.Sphere{Center: r3.Vec{X: 3, Y: 3, Z: 3}, Radius: 2},
		Composition:   blood,
		PartialVolume: true,
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	logger, _ := test.NewNullLogger()
	acoustic := &recorder{}
	results, err := Run(context.Background(), cfg, registry, constantFluence(1), acoustic, logger)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[1].Grid.Wavelength != 850 {
		t.Errorf("Expected second result at 850 nm, got %v", results[1].Grid.Wavelength)
	}
	if acoustic.calls != 1 || acoustic.in.Wavelength != 700 {
		t.Errorf("Expected one acoustic run at 700 nm, got %d at %v", acoustic.calls, acoustic.in.Wavelength)
	}
	if acoustic.in.InitialPressure != results[0].InitialPressure {
		t.Error("Expected acoustic input to carry the first initial pressure")
	}
	if acoustic.in.SpeedOfSound == nil || acoustic.in.Density == nil || acoustic.in.AlphaCoefficient == nil {
		t.Error("Expected acoustic input volumes to be set")
	}

	center := results[0].InitialPressure.At(3, 3, 3)
	corner := results[0].InitialPressure.At(0, 0, 0)
	if !(center > corner) {
		t.Errorf("Expected higher initial pressure inside the blood sphere, got %v vs %v", center, corner)
	}
}

// TestRunRequiresOptical verifies a missing optical solver is rejected
func TestRunRequiresOptical(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := Run(context.Background(), cfg, structure.NewRegistry(), nil, nil, nil); err == nil {
		t.Error("Expected error without optical solver")
	}
}

// TestRunFromLabels verifies a configured label directory replaces the
// structures
func TestRunFromLabels(t *testing.T) {
	labels := models.NewVolume(4, 4, 4, 1)
	for z := 2; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				labels.Set(x, y, z, 1)
			}
		}
	}
	dir := t.TempDir()
	if err := visualization.SaveLabelSlices(labels, dir, "labels"); err != nil {
		t.Fatalf("SaveLabelSlices failed: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Volume.Spacing = 1
	cfg.Volume.DimX, cfg.Volume.DimY, cfg.Volume.DimZ = 4, 4, 4
	cfg.Segmentation.LabelDir = dir
	cfg.Segmentation.Classes = []config.ClassConfig{
		{Label: 0, Composition: "water"},
		{Label: 1, Composition: "muscle"},
	}

	logger, _ := test.NewNullLogger()
	results, err := Run(context.Background(), cfg, structure.NewRegistry(), constantFluence(1), nil, logger)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	seg := results[0].Grid.Volumes[models.Segmentation]
	if got := models.SegmentationClass(seg.At(1, 1, 0)); got != models.Water {
		t.Errorf("Expected water on top, got %v", got)
	}
	if got := models.SegmentationClass(seg.At(1, 1, 3)); got != models.Muscle {
		t.Errorf("Expected muscle below, got %v", got)
	}

	cfg.Volume.DimZ = 5
	var cfgErr *volerr.ConfigurationError
	if _, err := Run(context.Background(), cfg, structure.NewRegistry(), constantFluence(1), nil, logger); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for a label volume of the wrong depth, got %v", err)
	}
}
