// Package deformation generates smooth random elevation surfaces that push
// the boundaries of deformable structures downwards.
package deformation

import (
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat/distuv"

	"pavolume/pkg/geometry"
	"pavolume/pkg/volerr"
)

// Bounds is the rectangle in the xy plane the field is defined on, in mm
type Bounds struct {
	XMin, XMax float64
	YMin, YMax float64
}

// Params control the shape of a random field
type Params struct {
	// MaxElevation is the largest depth difference of the surface in mm
	MaxElevation float64

	// FilterSigma is the standard deviation of the Gaussian smoothing of the
	// knot grid, in knots. Zero disables smoothing.
	FilterSigma float64

	// CosineScaling controls the tapering window. With 1 the elevation
	// vanishes exactly at the bounds.
	CosineScaling float64
}

// DefaultParams match the deformed-layer settings of the model-based volume creator
func DefaultParams() Params {
	return Params{MaxElevation: 3, FilterSigma: 0, CosineScaling: 1}
}

// Field is a bicubic elevation surface over a sparse knot grid. All
// elevations are at most zero and the largest one is exactly zero.
type Field struct {
	xs, ys []float64
	z      [][]float64
	rows   []interp.NaturalCubic

	// top is the highest knot, which bounds the interpolated surface
	top float64

	// maxElevation is the depth range of the knots after tapering and scaling
	maxElevation float64
}

// Create draws a random field from rng
func Create(b Bounds, p Params, rng *rand.Rand) (*Field, error) {
	if !(b.XMax > b.XMin) || !(b.YMax > b.YMin) {
		return nil, volerr.Configf("deformation", "empty bounds %+v", b)
	}
	if p.MaxElevation < 0 || p.FilterSigma < 0 || !(p.CosineScaling > 0) {
		return nil, volerr.Configf("deformation", "invalid parameters %+v", p)
	}

	nx, ny := 4+rng.Intn(2), 4+rng.Intn(2)
	unit := distuv.Uniform{Min: 0, Max: 1, Src: rng}
	z := make([][]float64, nx)
	for i := range z {
		z[i] = make([]float64, ny)
		for j := range z[i] {
			z[i][j] = unit.Rand()
		}
	}

	z = gaussianFilter(z, p.FilterSigma)
	if m := gridMax(z); m > 0 {
		for i := range z {
			floats.Scale(1/m, z[i])
		}
	}

	xs := linspace(b.XMin, b.XMax, nx)
	ys := linspace(b.YMin, b.YMax, ny)
	c := p.CosineScaling
	taper := func(v, lo, hi float64) float64 {
		w := math.Cos((v-lo)/((hi-lo)*(c/math.Pi)) - math.Pi/(2*c))
		return w * w
	}
	for i, x := range xs {
		for j, y := range ys {
			z[i][j] *= taper(x, b.XMin, b.XMax) * taper(y, b.YMin, b.YMax) * p.MaxElevation
		}
	}

	top := gridMax(z)
	for i := range z {
		floats.AddConst(-top, z[i])
	}

	f, err := NewField(xs, ys, z)
	if err != nil {
		return nil, err
	}
	f.maxElevation = top
	return f, nil
}

// NewField builds a field from explicit knots. z is indexed [x][y].
func NewField(xs, ys []float64, z [][]float64) (*Field, error) {
	if len(xs) < 2 || len(ys) < 2 {
		return nil, volerr.Configf("deformation", "need at least two knots per axis")
	}
	if !sort.Float64sAreSorted(xs) || !sort.Float64sAreSorted(ys) {
		return nil, volerr.Configf("deformation", "knot positions must be increasing")
	}
	if len(z) != len(xs) {
		return nil, volerr.Configf("deformation", "%d knot rows for %d x positions", len(z), len(xs))
	}

	f := &Field{
		xs:   append([]float64(nil), xs...),
		ys:   append([]float64(nil), ys...),
		z:    make([][]float64, len(z)),
		rows: make([]interp.NaturalCubic, len(z)),
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, row := range z {
		if len(row) != len(ys) {
			return nil, volerr.Configf("deformation", "knot row %d has %d values for %d y positions", i, len(row), len(ys))
		}
		f.z[i] = append([]float64(nil), row...)
		if err := f.rows[i].Fit(f.ys, f.z[i]); err != nil {
			return nil, volerr.Configf("deformation", "fitting knot row %d: %v", i, err)
		}
		lo = math.Min(lo, floats.Min(row))
		hi = math.Max(hi, floats.Max(row))
	}
	f.top = hi
	f.maxElevation = hi - lo
	return f, nil
}

// Knots returns copies of the knot positions and elevations
func (f *Field) Knots() (xs, ys []float64, z [][]float64) {
	z = make([][]float64, len(f.z))
	for i := range f.z {
		z[i] = append([]float64(nil), f.z[i]...)
	}
	return append([]float64(nil), f.xs...), append([]float64(nil), f.ys...), z
}

// MaxElevation returns the depth range of the knots in mm
func (f *Field) MaxElevation() float64 {
	return f.maxElevation
}

// Evaluate returns the z offset in mm at (x, y). Positions outside the knot
// rectangle are clamped to it, and spline overshoot is cut at the highest knot.
func (f *Field) Evaluate(x, y float64) (float64, error) {
	across, err := f.across(y)
	if err != nil {
		return 0, err
	}
	return f.cut(across.Predict(clamp(x, f.xs[0], f.xs[len(f.xs)-1]))), nil
}

// across fits the spline along x through the row values at y
func (f *Field) across(y float64) (*interp.NaturalCubic, error) {
	y = clamp(y, f.ys[0], f.ys[len(f.ys)-1])
	column := make([]float64, len(f.rows))
	for i := range f.rows {
		column[i] = f.rows[i].Predict(y)
	}
	var spline interp.NaturalCubic
	if err := spline.Fit(f.xs, column); err != nil {
		return nil, volerr.Configf("deformation", "fitting across knots at y=%v: %v", y, err)
	}
	return &spline, nil
}

func (f *Field) cut(v float64) float64 {
	return math.Min(v, f.top)
}

// Surface caches the field at the column centres of g. The spline along x is
// fitted once per row of columns.
func (f *Field) Surface(g geometry.Grid) (*Surface, error) {
	s := &Surface{nx: g.Nx, ny: g.Ny, offsets: make([]float64, g.Nx*g.Ny)}
	lo, hi := f.xs[0], f.xs[len(f.xs)-1]
	for j := 0; j < g.Ny; j++ {
		across, err := f.across((float64(j) + 0.5) * g.Spacing)
		if err != nil {
			return nil, err
		}
		for i := 0; i < g.Nx; i++ {
			s.offsets[j*g.Nx+i] = f.cut(across.Predict(clamp((float64(i)+0.5)*g.Spacing, lo, hi)))
		}
	}
	return s, nil
}

// Surface is a field sampled per voxel column. It implements
// geometry.ColumnShift.
type Surface struct {
	nx, ny  int
	offsets []float64
}

// Shift returns the z offset of column (i, j)
func (s *Surface) Shift(i, j int) float64 {
	return s.offsets[j*s.nx+i]
}

// Range returns the smallest and largest column offsets
func (s *Surface) Range() (min, max float64) {
	return floats.Min(s.offsets), floats.Max(s.offsets)
}

func linspace(lo, hi float64, n int) []float64 {
	return floats.Span(make([]float64, n), lo, hi)
}

func gridMax(z [][]float64) float64 {
	m := math.Inf(-1)
	for _, row := range z {
		m = math.Max(m, floats.Max(row))
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
