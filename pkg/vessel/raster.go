package vessel

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"pavolume/pkg/geometry"
)

// bounds returns the box enclosing the capsule
func (c Capsule) bounds() geometry.Bounds {
	r := r3.Vec{X: c.Radius, Y: c.Radius, Z: c.Radius}
	lo := r3.Vec{X: math.Min(c.A.X, c.B.X), Y: math.Min(c.A.Y, c.B.Y), Z: math.Min(c.A.Z, c.B.Z)}
	hi := r3.Vec{X: math.Max(c.A.X, c.B.X), Y: math.Max(c.A.Y, c.B.Y), Z: math.Max(c.A.Z, c.B.Z)}
	return geometry.Bounds{Min: r3.Sub(lo, r), Max: r3.Add(hi, r)}
}

// Contains reports whether p lies within the capsule
func (c Capsule) Contains(p r3.Vec) bool {
	d := r3.Sub(c.B, c.A)
	t := 0.0
	if l2 := r3.Norm2(d); l2 > 0 {
		t = math.Max(0, math.Min(1, r3.Dot(r3.Sub(p, c.A), d)/l2))
	}
	closest := r3.Add(c.A, r3.Scale(t, d))
	return r3.Norm2(r3.Sub(p, closest)) <= c.Radius*c.Radius
}

// Occupancy rasterizes the tree. A sub-sample counts once if any capsule
// covers it, so overlapping steps and branches never exceed full occupancy.
func (t *Tree) Occupancy(shift geometry.ColumnShift) *geometry.Occupancy {
	g := t.Grid
	masks := make([]uint64, g.Len())
	for _, c := range t.Capsules() {
		i0, i1, j0, j1, k0, k1 := geometry.VoxelRange(g, c.bounds(), shift != nil)
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				dz := 0.0
				if shift != nil {
					dz = shift.Shift(i, j)
				}
				for k := k0; k <= k1; k++ {
					idx := g.Index(i, j, k)
					masks[idx] |= geometry.SampleMask(g, i, j, k, dz, c.Contains)
				}
			}
		}
	}

	o := geometry.NewOccupancy(g)
	for idx, m := range masks {
		if m != 0 {
			o.Data[idx] = geometry.MaskFraction(m)
		}
	}
	return o
}

// Shape adapts a vessel tree description to geometry.Shape. The tree is
// regrown for every grid it is rasterized on.
type Shape struct {
	Params Params
}

// Validate implements geometry.Shape
func (s Shape) Validate() error {
	return s.Params.Validate()
}

// Occupancy implements geometry.Shape
func (s Shape) Occupancy(g geometry.Grid, shift geometry.ColumnShift) (*geometry.Occupancy, error) {
	tree, err := Generate(g, s.Params)
	if err != nil {
		return nil, err
	}
	return tree.Occupancy(shift), nil
}
