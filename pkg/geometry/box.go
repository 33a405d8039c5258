package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"pavolume/pkg/volerr"
)

// overlap returns the covered share of the voxel interval [v, v+s) by the
// interval [a, b]
func overlap(v, s, a, b float64) float64 {
	l := math.Min(v+s, b) - math.Max(v, a)
	if l <= 0 {
		return 0
	}
	return math.Min(l/s, 1)
}

// axisRange returns the voxel indices along one axis that can overlap [a, b]
func axisRange(s float64, n int, a, b float64) (int, int) {
	lo := int(math.Floor(a / s))
	hi := int(math.Ceil(b/s)) - 1
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi
}

// Cuboid is an axis-aligned box from Start spanning Extent in mm
type Cuboid struct {
	Start  r3.Vec
	Extent r3.Vec
}

// Validate implements Shape
func (c Cuboid) Validate() error {
	if !validPoint(c.Start) {
		return volerr.Configf("cuboid", "start %v is not finite", c.Start)
	}
	if !validLength(c.Extent.X) || !validLength(c.Extent.Y) || !validLength(c.Extent.Z) {
		return volerr.Configf("cuboid", "extents %v must all be positive", c.Extent)
	}
	return nil
}

// Occupancy implements Shape with the exact per-axis overlap product
func (c Cuboid) Occupancy(g Grid, shift ColumnShift) (*Occupancy, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	o := NewOccupancy(g)
	s := g.Spacing
	end := r3.Add(c.Start, c.Extent)

	i0, i1 := axisRange(s, g.Nx, c.Start.X, end.X)
	j0, j1 := axisRange(s, g.Ny, c.Start.Y, end.Y)
	for j := j0; j <= j1; j++ {
		fy := overlap(float64(j)*s, s, c.Start.Y, end.Y)
		for i := i0; i <= i1; i++ {
			fxy := fy * overlap(float64(i)*s, s, c.Start.X, end.X)
			if fxy == 0 {
				continue
			}
			dz := columnShift(shift, i, j)
			z0, z1 := c.Start.Z-dz, end.Z-dz
			k0, k1 := axisRange(s, g.Nz, z0, z1)
			for k := k0; k <= k1; k++ {
				o.Set(i, j, k, fxy*overlap(float64(k)*s, s, z0, z1))
			}
		}
	}
	return o, nil
}

// Layer is a slab unbounded in x and y between two depths in mm
type Layer struct {
	StartZ float64
	EndZ   float64
}

// NewLayerFromPoints builds a layer from start and end points. The points may
// sit anywhere in x and y but must differ only in z.
func NewLayerFromPoints(start, end r3.Vec) (Layer, error) {
	if d := r3.Sub(end, start); d.X != 0 || d.Y != 0 {
		return Layer{}, volerr.Configf("layer", "start %v and end %v must differ only in z", start, end)
	}
	l := Layer{StartZ: start.Z, EndZ: end.Z}
	return l, l.Validate()
}

// Validate implements Shape
func (l Layer) Validate() error {
	if math.IsNaN(l.StartZ) || math.IsNaN(l.EndZ) || math.IsInf(l.StartZ, 0) || math.IsInf(l.EndZ, 0) {
		return volerr.Configf("layer", "depths must be finite")
	}
	if l.EndZ <= l.StartZ {
		return volerr.Configf("layer", "end %v must lie below start %v", l.EndZ, l.StartZ)
	}
	return nil
}

// Occupancy implements Shape
func (l Layer) Occupancy(g Grid, shift ColumnShift) (*Occupancy, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	o := NewOccupancy(g)
	s := g.Spacing
	for j := 0; j < g.Ny; j++ {
		for i := 0; i < g.Nx; i++ {
			dz := columnShift(shift, i, j)
			z0, z1 := l.StartZ-dz, l.EndZ-dz
			k0, k1 := axisRange(s, g.Nz, z0, z1)
			for k := k0; k <= k1; k++ {
				o.Set(i, j, k, overlap(float64(k)*s, s, z0, z1))
			}
		}
	}
	return o, nil
}
