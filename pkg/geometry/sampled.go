package geometry

import (
	"math"
	"math/bits"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"pavolume/pkg/volerr"
)

// SamplesPerAxis is the number of regular sub-samples taken along each axis
// of a voxel when a shape has no closed-form overlap
const SamplesPerAxis = 4

// SamplesPerVoxel is the total number of sub-samples of one voxel
const SamplesPerVoxel = SamplesPerAxis * SamplesPerAxis * SamplesPerAxis

// sampleOffsets are the sub-sample positions in voxel units
var sampleOffsets = func() [SamplesPerAxis]float64 {
	var o [SamplesPerAxis]float64
	for n := range o {
		o[n] = (float64(n) + 0.5) / SamplesPerAxis
	}
	return o
}()

// Bounds is an axis-aligned region in mm
type Bounds struct {
	Min, Max r3.Vec
}

func unbounded() Bounds {
	inf := math.Inf(1)
	return Bounds{Min: r3.Vec{X: -inf, Y: -inf, Z: -inf}, Max: r3.Vec{X: inf, Y: inf, Z: inf}}
}

// VoxelRange clips b to the grid. With a deformation shift the z range is not
// known per column in advance, so the whole depth is scanned.
func VoxelRange(g Grid, b Bounds, shifted bool) (i0, i1, j0, j1, k0, k1 int) {
	s := g.Spacing
	i0, i1 = axisRange(s, g.Nx, b.Min.X, b.Max.X)
	j0, j1 = axisRange(s, g.Ny, b.Min.Y, b.Max.Y)
	if shifted {
		return i0, i1, j0, j1, 0, g.Nz - 1
	}
	k0, k1 = axisRange(s, g.Nz, b.Min.Z, b.Max.Z)
	return
}

// SampleMask tests the sub-samples of voxel (i, j, k) and returns a bit mask
// with one bit per sample inside. dz is added to the z coordinate of every
// sample.
func SampleMask(g Grid, i, j, k int, dz float64, inside func(p r3.Vec) bool) uint64 {
	s := g.Spacing
	var mask uint64
	bit := uint(0)
	for _, oz := range sampleOffsets {
		z := (float64(k)+oz)*s + dz
		for _, oy := range sampleOffsets {
			y := (float64(j) + oy) * s
			for _, ox := range sampleOffsets {
				if inside(r3.Vec{X: (float64(i) + ox) * s, Y: y, Z: z}) {
					mask |= 1 << bit
				}
				bit++
			}
		}
	}
	return mask
}

// MaskFraction converts a sample mask to the covered voxel fraction
func MaskFraction(mask uint64) float64 {
	return float64(bits.OnesCount64(mask)) / SamplesPerVoxel
}

// sample rasterizes a membership test over the part of the grid within b
func sample(g Grid, b Bounds, shift ColumnShift, inside func(p r3.Vec) bool) *Occupancy {
	o := NewOccupancy(g)
	i0, i1, j0, j1, k0, k1 := VoxelRange(g, b, shift != nil)
	for j := j0; j <= j1; j++ {
		for i := i0; i <= i1; i++ {
			dz := columnShift(shift, i, j)
			for k := k0; k <= k1; k++ {
				if mask := SampleMask(g, i, j, k, dz, inside); mask != 0 {
					o.Set(i, j, k, MaskFraction(mask))
				}
			}
		}
	}
	return o
}

// Tube is an infinite circular cylinder whose axis passes through Start and End
type Tube struct {
	Start  r3.Vec
	End    r3.Vec
	Radius float64
}

// Validate implements Shape
func (t Tube) Validate() error {
	return validateAxis("tube", t.Start, t.End, t.Radius)
}

func validateAxis(kind string, start, end r3.Vec, radius float64) error {
	if !validPoint(start) || !validPoint(end) {
		return volerr.Configf(kind, "start and end must be finite")
	}
	if r3.Norm(r3.Sub(end, start)) == 0 {
		return volerr.Configf(kind, "start and end coincide at %v", start)
	}
	if !validLength(radius) {
		return volerr.Configf(kind, "radius must be positive, got %v", radius)
	}
	return nil
}

// Occupancy implements Shape
func (t Tube) Occupancy(g Grid, shift ColumnShift) (*Occupancy, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	axis := r3.Unit(r3.Sub(t.End, t.Start))
	r2 := t.Radius * t.Radius
	return sample(g, unbounded(), shift, func(p r3.Vec) bool {
		d := r3.Sub(p, t.Start)
		along := r3.Dot(d, axis)
		return r3.Norm2(d)-along*along <= r2
	}), nil
}

// EllipticalTube is an infinite cylinder with an elliptical cross-section of
// the same area as a circle of Radius. Eccentricity 0 gives a circular tube.
type EllipticalTube struct {
	Start        r3.Vec
	End          r3.Vec
	Radius       float64
	Eccentricity float64
}

// Validate implements Shape
func (t EllipticalTube) Validate() error {
	if err := validateAxis("elliptical tube", t.Start, t.End, t.Radius); err != nil {
		return err
	}
	if !(t.Eccentricity >= 0 && t.Eccentricity < 1) {
		return volerr.Configf("elliptical tube", "eccentricity must lie in [0, 1), got %v", t.Eccentricity)
	}
	return nil
}

// SemiAxes returns the unit directions and lengths of the major and minor
// semi-axes. The major axis lies in the xy plane perpendicular to the tube.
func (t EllipticalTube) SemiAxes() (major r3.Vec, a float64, minor r3.Vec, b float64) {
	axis := r3.Unit(r3.Sub(t.End, t.Start))
	major = r3.Vec{X: axis.Y, Y: -axis.X}
	if r3.Norm(major) < 1e-12 {
		major = r3.Vec{X: 1}
	}
	major = r3.Unit(major)
	minor = r3.Unit(r3.Cross(axis, major))

	e2 := t.Eccentricity * t.Eccentricity
	a = t.Radius / math.Pow(1-e2, 0.25)
	b = a * math.Sqrt(1-e2)
	return major, a, minor, b
}

// Occupancy implements Shape
func (t EllipticalTube) Occupancy(g Grid, shift ColumnShift) (*Occupancy, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	major, a, minor, b := t.SemiAxes()
	return sample(g, unbounded(), shift, func(p r3.Vec) bool {
		d := r3.Sub(p, t.Start)
		u := r3.Dot(d, major) / a
		v := r3.Dot(d, minor) / b
		return u*u+v*v <= 1
	}), nil
}

// Sphere is a ball around Center
type Sphere struct {
	Center r3.Vec
	Radius float64
}

// Validate implements Shape
func (s Sphere) Validate() error {
	if !validPoint(s.Center) {
		return volerr.Configf("sphere", "center must be finite")
	}
	if !validLength(s.Radius) {
		return volerr.Configf("sphere", "radius must be positive, got %v", s.Radius)
	}
	return nil
}

// Bounds returns the box enclosing the sphere
func (s Sphere) Bounds() Bounds {
	r := r3.Vec{X: s.Radius, Y: s.Radius, Z: s.Radius}
	return Bounds{Min: r3.Sub(s.Center, r), Max: r3.Add(s.Center, r)}
}

// Occupancy implements Shape
func (s Sphere) Occupancy(g Grid, shift ColumnShift) (*Occupancy, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	r2 := s.Radius * s.Radius
	return sample(g, s.Bounds(), shift, func(p r3.Vec) bool {
		return r3.Norm2(r3.Sub(p, s.Center)) <= r2
	}), nil
}

// Parallelepiped is spanned by three edge vectors from Start
type Parallelepiped struct {
	Start r3.Vec
	EdgeA r3.Vec
	EdgeB r3.Vec
	EdgeC r3.Vec
}

// Validate implements Shape
func (p Parallelepiped) Validate() error {
	_, err := p.inverse()
	return err
}

// inverse returns the matrix mapping offsets from Start to edge coordinates
func (p Parallelepiped) inverse() (*mat.Dense, error) {
	if !validPoint(p.Start) || !validPoint(p.EdgeA) || !validPoint(p.EdgeB) || !validPoint(p.EdgeC) {
		return nil, volerr.Configf("parallelepiped", "start and edges must be finite")
	}
	edges := mat.NewDense(3, 3, []float64{
		p.EdgeA.X, p.EdgeB.X, p.EdgeC.X,
		p.EdgeA.Y, p.EdgeB.Y, p.EdgeC.Y,
		p.EdgeA.Z, p.EdgeB.Z, p.EdgeC.Z,
	})
	scale := r3.Norm(p.EdgeA) * r3.Norm(p.EdgeB) * r3.Norm(p.EdgeC)
	if scale == 0 || math.Abs(mat.Det(edges)) < 1e-9*scale {
		return nil, volerr.Configf("parallelepiped", "edges %v, %v, %v do not span a volume", p.EdgeA, p.EdgeB, p.EdgeC)
	}
	var inv mat.Dense
	if err := inv.Inverse(edges); err != nil {
		return nil, volerr.Configf("parallelepiped", "edge matrix is not invertible: %v", err)
	}
	return &inv, nil
}

// Bounds returns the box enclosing all eight corners
func (p Parallelepiped) Bounds() Bounds {
	b := Bounds{Min: p.Start, Max: p.Start}
	for n := 1; n < 8; n++ {
		c := p.Start
		if n&1 != 0 {
			c = r3.Add(c, p.EdgeA)
		}
		if n&2 != 0 {
			c = r3.Add(c, p.EdgeB)
		}
		if n&4 != 0 {
			c = r3.Add(c, p.EdgeC)
		}
		b.Min = r3.Vec{X: math.Min(b.Min.X, c.X), Y: math.Min(b.Min.Y, c.Y), Z: math.Min(b.Min.Z, c.Z)}
		b.Max = r3.Vec{X: math.Max(b.Max.X, c.X), Y: math.Max(b.Max.Y, c.Y), Z: math.Max(b.Max.Z, c.Z)}
	}
	return b
}

// Occupancy implements Shape
func (p Parallelepiped) Occupancy(g Grid, shift ColumnShift) (*Occupancy, error) {
	inv, err := p.inverse()
	if err != nil {
		return nil, err
	}
	var m [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[3*r+c] = inv.At(r, c)
		}
	}
	in := func(x float64) bool { return x >= 0 && x <= 1 }
	return sample(g, p.Bounds(), shift, func(q r3.Vec) bool {
		d := r3.Sub(q, p.Start)
		return in(m[0]*d.X+m[1]*d.Y+m[2]*d.Z) &&
			in(m[3]*d.X+m[4]*d.Y+m[5]*d.Z) &&
			in(m[6]*d.X+m[7]*d.Y+m[8]*d.Z)
	}), nil
}
