package deformation

import (
	"errors"
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"pavolume/pkg/geometry"
	"pavolume/pkg/volerr"
)

func elevation(t *testing.T, f *Field, x, y float64) float64 {
	t.Helper()
	v, err := f.Evaluate(x, y)
	if err != nil {
		t.Fatalf("Evaluate(%f, %f) failed: %v", x, y, err)
	}
	return v
}

func testBounds() Bounds {
	return Bounds{XMin: 0, XMax: 20, YMin: 0, YMax: 30}
}

// TestCreateNormalization verifies that the highest knot sits at zero
func TestCreateNormalization(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		f, err := Create(testBounds(), Params{MaxElevation: 3, FilterSigma: 1, CosineScaling: 1}, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("Failed to create field: %v", err)
		}

		xs, ys, z := f.Knots()
		if len(xs) < 4 || len(xs) > 5 || len(ys) < 4 || len(ys) > 5 {
			t.Errorf("Expected 4 or 5 knots per axis, got %d x %d", len(xs), len(ys))
		}

		top := math.Inf(-1)
		for _, row := range z {
			for _, v := range row {
				top = math.Max(top, v)
			}
		}
		if top != 0 {
			t.Errorf("Expected highest knot at 0 for seed %d, got %f", seed, top)
		}
		if f.MaxElevation() > 3+1e-9 {
			t.Errorf("Expected depth range at most 3 mm, got %f", f.MaxElevation())
		}

		for x := 0.0; x <= 20; x += 0.7 {
			for y := 0.0; y <= 30; y += 1.3 {
				if v := elevation(t, f, x, y); v > 0 || math.IsNaN(v) {
					t.Fatalf("Expected non-positive elevation at (%f, %f), got %f", x, y, v)
				}
			}
		}
	}
}

// TestCreateDeterminism verifies that equal seeds give equal fields
func TestCreateDeterminism(t *testing.T) {
	a, err := Create(testBounds(), DefaultParams(), rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("Failed to create field: %v", err)
	}
	b, err := Create(testBounds(), DefaultParams(), rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("Failed to create field: %v", err)
	}

	for x := 0.0; x <= 20; x += 2.5 {
		for y := 0.0; y <= 30; y += 2.5 {
			if elevation(t, a, x, y) != elevation(t, b, x, y) {
				t.Fatalf("Expected identical elevation at (%f, %f), got %f and %f", x, y, elevation(t, a, x, y), elevation(t, b, x, y))
			}
		}
	}
}

// TestEvaluateKnots verifies interpolation through the knots and clamping outside
func TestEvaluateKnots(t *testing.T) {
	xs := []float64{0, 1, 2, 3}
	ys := []float64{0, 2, 4, 6}
	z := [][]float64{
		{-3, -2, -2, -3},
		{-2, -1, 0, -2},
		{-2, -1, -1, -2},
		{-3, -2, -2, -3},
	}
	f, err := NewField(xs, ys, z)
	if err != nil {
		t.Fatalf("Failed to create field: %v", err)
	}

	for i, x := range xs {
		for j, y := range ys {
			if got := elevation(t, f, x, y); math.Abs(got-z[i][j]) > 1e-9 {
				t.Errorf("Expected %f at knot (%f, %f), got %f", z[i][j], x, y, got)
			}
		}
	}
	if got, want := elevation(t, f, -5, 0), elevation(t, f, 0, 0); got != want {
		t.Errorf("Expected clamped evaluation %f, got %f", want, got)
	}
	if got := f.MaxElevation(); got != 3 {
		t.Errorf("Expected depth range 3, got %f", got)
	}
}

// TestEvaluateLinear verifies that a tilted plane is reproduced exactly
func TestEvaluateLinear(t *testing.T) {
	xs := []float64{0, 1, 2, 3}
	ys := []float64{0, 1, 2, 3}
	z := make([][]float64, len(xs))
	for i, x := range xs {
		z[i] = make([]float64, len(ys))
		for j := range ys {
			z[i][j] = x - 3
		}
	}
	f, err := NewField(xs, ys, z)
	if err != nil {
		t.Fatalf("Failed to create field: %v", err)
	}
	if got := elevation(t, f, 1.5, 2.2); math.Abs(got+1.5) > 1e-9 {
		t.Errorf("Expected -1.5, got %f", got)
	}
}

// TestSurface verifies per-column sampling on a grid
func TestSurface(t *testing.T) {
	g, err := geometry.NewGrid(1, 20, 30, 10)
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	f, err := Create(testBounds(), DefaultParams(), rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("Failed to create field: %v", err)
	}
	s, err := f.Surface(g)
	if err != nil {
		t.Fatalf("Surface failed: %v", err)
	}

	for j := 0; j < g.Ny; j++ {
		for i := 0; i < g.Nx; i++ {
			if got, want := s.Shift(i, j), elevation(t, f, float64(i)+0.5, float64(j)+0.5); got != want {
				t.Fatalf("Expected column (%d, %d) shift %f, got %f", i, j, want, got)
			}
		}
	}
	lo, hi := s.Range()
	if hi > 0 || lo < -6 {
		t.Errorf("Expected shifts within [-6, 0], got [%f, %f]", lo, hi)
	}
}

// TestCreateErrors verifies parameter validation
func TestCreateErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var cfgErr *volerr.ConfigurationError

	if _, err := Create(Bounds{XMax: 0, YMax: 1}, DefaultParams(), rng); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for empty bounds, got %v", err)
	}
	if _, err := Create(testBounds(), Params{MaxElevation: -1, CosineScaling: 1}, rng); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for negative elevation, got %v", err)
	}
	if _, err := NewField([]float64{0, 1}, []float64{0, 1}, [][]float64{{0, 0}}); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for missing knot row, got %v", err)
	}
}

// TestGaussianFilter verifies that smoothing keeps a constant grid and spreads a peak
func TestGaussianFilter(t *testing.T) {
	flat := [][]float64{{2, 2, 2}, {2, 2, 2}, {2, 2, 2}, {2, 2, 2}}
	for _, row := range gaussianFilter(flat, 1) {
		for _, v := range row {
			if math.Abs(v-2) > 1e-12 {
				t.Fatalf("Expected constant grid to stay at 2, got %f", v)
			}
		}
	}

	peak := [][]float64{{0, 0, 0, 0, 0}, {0, 0, 0, 0, 0}, {0, 0, 1, 0, 0}, {0, 0, 0, 0, 0}, {0, 0, 0, 0, 0}}
	out := gaussianFilter(peak, 1)
	if !(out[2][2] < 1 && out[2][2] > out[2][1] && out[2][1] > out[2][0] && out[2][0] > 0) {
		t.Errorf("Expected smoothed peak decaying from the centre, got row %v", out[2])
	}
	if math.Abs(out[1][2]-out[2][1]) > 1e-12 {
		t.Errorf("Expected symmetric smoothing, got %f and %f", out[1][2], out[2][1])
	}

	if reflect(-1, 4) != 0 || reflect(-2, 4) != 1 || reflect(4, 4) != 3 || reflect(5, 4) != 2 {
		t.Error("Expected half-sample mirroring at the grid edges")
	}
}
