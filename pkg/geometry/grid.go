// Package geometry computes partial-volume occupancy of primitive shapes on a
// regular voxel grid. Occupancy values are the fraction in [0, 1] of each
// voxel's volume covered by the shape.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"pavolume/pkg/volerr"
)

// Grid describes the voxel lattice of a simulation volume. Voxel (i, j, k)
// covers [i*Spacing, (i+1)*Spacing) along x and likewise along y and z.
type Grid struct {
	// Spacing is the isotropic voxel edge length in mm
	Spacing float64

	// Nx, Ny, Nz are the voxel counts along each axis
	Nx, Ny, Nz int
}

// NewGrid derives the voxel counts from physical dimensions in mm
func NewGrid(spacing, dimX, dimY, dimZ float64) (Grid, error) {
	if !(spacing > 0) || math.IsInf(spacing, 0) {
		return Grid{}, volerr.Configf("spacing", "must be positive, got %v", spacing)
	}
	g := Grid{Spacing: spacing}
	for _, d := range []struct {
		name string
		mm   float64
		n    *int
	}{{"dimX", dimX, &g.Nx}, {"dimY", dimY, &g.Ny}, {"dimZ", dimZ, &g.Nz}} {
		if !(d.mm > 0) || math.IsInf(d.mm, 0) {
			return Grid{}, volerr.Configf(d.name, "must be positive, got %v", d.mm)
		}
		*d.n = int(math.Round(d.mm / spacing))
		if *d.n < 1 {
			return Grid{}, volerr.Configf(d.name, "%v mm is less than one voxel of %v mm", d.mm, spacing)
		}
	}
	return g, nil
}

// Len returns the number of voxels
func (g Grid) Len() int {
	return g.Nx * g.Ny * g.Nz
}

// Index returns the linear position of voxel (i, j, k), x varying fastest
func (g Grid) Index(i, j, k int) int {
	return k*g.Nx*g.Ny + j*g.Nx + i
}

// Extent returns the far corner of the volume in mm
func (g Grid) Extent() r3.Vec {
	return r3.Vec{X: float64(g.Nx) * g.Spacing, Y: float64(g.Ny) * g.Spacing, Z: float64(g.Nz) * g.Spacing}
}

// Contains reports whether a point in mm lies inside the volume
func (g Grid) Contains(p r3.Vec) bool {
	e := g.Extent()
	return p.X >= 0 && p.Y >= 0 && p.Z >= 0 && p.X < e.X && p.Y < e.Y && p.Z < e.Z
}

// ColumnShift gives the z offset in mm applied to the voxel column (i, j) of
// a deformed structure. A shape evaluated with a shift is tested at z+shift,
// so negative shifts move it deeper.
type ColumnShift interface {
	Shift(i, j int) float64
}

func columnShift(shift ColumnShift, i, j int) float64 {
	if shift == nil {
		return 0
	}
	return shift.Shift(i, j)
}

// Shape is implemented by every primitive
type Shape interface {
	// Validate rejects degenerate parameters with a ConfigurationError
	Validate() error

	// Occupancy computes the per-voxel covered fraction on g
	Occupancy(g Grid, shift ColumnShift) (*Occupancy, error)
}

// Occupancy is a dense per-voxel fraction field
type Occupancy struct {
	Grid Grid
	Data []float64
}

// NewOccupancy allocates an empty occupancy field
func NewOccupancy(g Grid) *Occupancy {
	return &Occupancy{Grid: g, Data: make([]float64, g.Len())}
}

// At returns the fraction of voxel (i, j, k)
func (o *Occupancy) At(i, j, k int) float64 {
	return o.Data[o.Grid.Index(i, j, k)]
}

// Set stores the fraction of voxel (i, j, k)
func (o *Occupancy) Set(i, j, k int, v float64) {
	o.Data[o.Grid.Index(i, j, k)] = v
}

// Sum returns the occupied volume in voxel units
func (o *Occupancy) Sum() float64 {
	return floats.Sum(o.Data)
}

// Binarize replaces every fraction by 1 if it is at least one half and by 0
// otherwise
func (o *Occupancy) Binarize() {
	for i, v := range o.Data {
		if v >= 0.5 {
			o.Data[i] = 1
		} else {
			o.Data[i] = 0
		}
	}
}

func validPoint(p r3.Vec) bool {
	for _, c := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func validLength(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
