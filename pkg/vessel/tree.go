// Package vessel grows random branching vessel trees and rasterizes them into
// partial-volume occupancy.
//
// A tree is grown from a root segment. Every segment advances one voxel per
// step with a randomly perturbed direction and radius. Each time it has grown
// by the bifurcation length it continues, terminates or splits into two
// thinner children. Segments are kept in an arena and pending ones in a work
// queue, so generation never recurses. All randomness comes from one stream
// seeded by Params.Seed.
package vessel

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"pavolume/pkg/geometry"
	"pavolume/pkg/volerr"
)

// Decision is the outcome drawn whenever a segment has grown by the
// bifurcation length
type Decision int

const (
	Continue Decision = iota
	Terminate
	Bifurcate
)

func (d Decision) String() string {
	return [...]string{"continue", "terminate", "bifurcate"}[d]
}

// Defaults for the optional parameters
const (
	DefaultMaxDepth           = 6
	DefaultMinBranchAngle     = math.Pi / 8
	DefaultMaxBranchAngle     = math.Pi / 4
	DefaultRadiusReductionMin = 0.6
	DefaultRadiusReductionMax = 0.8
)

// Params describe a vessel tree. Zero values of the optional fields select
// the defaults.
type Params struct {
	// Start is the root position in mm
	Start r3.Vec

	// Direction is the initial growth direction, need not be normalized
	Direction r3.Vec

	// Radius is the nominal root radius in mm
	Radius float64

	// BifurcationLength is the length in mm grown between two decisions
	BifurcationLength float64

	// CurvatureFactor scales the random direction change per step
	CurvatureFactor float64

	// RadiusVariationFactor scales the random radius change per step in mm
	RadiusVariationFactor float64

	// MinRadius stops segments thinner than this, default half a voxel
	MinRadius float64

	// MaxDepth is the deepest bifurcation level; segments at it only continue.
	// Use the decision probabilities to disable branching altogether.
	MaxDepth int

	// MinBranchAngle and MaxBranchAngle bound the angle in radians between a
	// child and its parent
	MinBranchAngle, MaxBranchAngle float64

	// RadiusReductionMin and RadiusReductionMax bound the child to parent
	// radius ratio
	RadiusReductionMin, RadiusReductionMax float64

	// Decision probabilities. They are normalized by their sum; all zero
	// means always bifurcate.
	ContinueProbability, TerminateProbability, BifurcateProbability float64

	// Seed of the random stream
	Seed uint64
}

// withDefaults fills the optional parameters for grid g
func (p Params) withDefaults(g geometry.Grid) Params {
	if p.MinRadius == 0 {
		p.MinRadius = 0.5 * g.Spacing
	}
	if p.MaxDepth == 0 {
		p.MaxDepth = DefaultMaxDepth
	}
	if p.MinBranchAngle == 0 && p.MaxBranchAngle == 0 {
		p.MinBranchAngle, p.MaxBranchAngle = DefaultMinBranchAngle, DefaultMaxBranchAngle
	}
	if p.RadiusReductionMin == 0 && p.RadiusReductionMax == 0 {
		p.RadiusReductionMin, p.RadiusReductionMax = DefaultRadiusReductionMin, DefaultRadiusReductionMax
	}
	if p.ContinueProbability == 0 && p.TerminateProbability == 0 && p.BifurcateProbability == 0 {
		p.BifurcateProbability = 1
	}
	return p
}

// Validate rejects parameters that cannot describe a tree
func (p Params) Validate() error {
	finite := func(v r3.Vec) bool {
		return !math.IsNaN(v.X+v.Y+v.Z) && !math.IsInf(v.X+v.Y+v.Z, 0)
	}
	switch {
	case !finite(p.Start) || !finite(p.Direction):
		return volerr.Configf("vessel", "start and direction must be finite")
	case r3.Norm(p.Direction) == 0:
		return volerr.Configf("vessel", "direction must not be zero")
	case !(p.Radius > 0):
		return volerr.Configf("vessel", "radius must be positive, got %v", p.Radius)
	case !(p.BifurcationLength > 0):
		return volerr.Configf("vessel", "bifurcation length must be positive, got %v", p.BifurcationLength)
	case p.CurvatureFactor < 0 || p.RadiusVariationFactor < 0:
		return volerr.Configf("vessel", "curvature and radius variation must not be negative")
	case p.MinRadius < 0 || p.MaxDepth < 0:
		return volerr.Configf("vessel", "minimum radius and maximum depth must not be negative")
	case p.MinBranchAngle < 0 || p.MaxBranchAngle < p.MinBranchAngle || p.MaxBranchAngle > math.Pi:
		return volerr.Configf("vessel", "branch angles [%v, %v] out of order", p.MinBranchAngle, p.MaxBranchAngle)
	case p.RadiusReductionMin < 0 || p.RadiusReductionMax < p.RadiusReductionMin || p.RadiusReductionMax >= 1:
		return volerr.Configf("vessel", "radius reduction [%v, %v] must lie in (0, 1)",
			p.RadiusReductionMin, p.RadiusReductionMax)
	case p.ContinueProbability < 0 || p.TerminateProbability < 0 || p.BifurcateProbability < 0:
		return volerr.Configf("vessel", "decision probabilities must not be negative")
	}
	return nil
}

// Capsule is one growth step: the set of points within Radius of the
// segment from A to B
type Capsule struct {
	A, B   r3.Vec
	Radius float64
}

// Segment is one unbranched piece of the tree
type Segment struct {
	// Parent is the arena index of the parent segment, -1 for the root
	Parent int

	// Depth counts the bifurcations above this segment
	Depth int

	Start     r3.Vec
	Direction r3.Vec

	// Radius is the nominal radius the per-step radii vary around
	Radius float64

	// RadiusVariation is the per-step variation amplitude in mm
	RadiusVariation float64

	// Steps are the capsules grown by this segment
	Steps []Capsule

	// Children are the arena indices of the two branches, if it bifurcated
	Children []int

	// End records why growth stopped
	End Termination
}

// Termination is the reason a segment stopped growing
type Termination int

const (
	// TooThin segments are below the minimum radius and never grow
	TooThin Termination = iota
	LeftVolume
	Terminated
	Split
	StepLimit
)

// Tree is a generated vessel tree
type Tree struct {
	Grid     geometry.Grid
	Params   Params
	Segments []Segment
}

// generator holds the random stream while a tree grows
type generator struct {
	grid   geometry.Grid
	params Params
	sym    distuv.Uniform
	unit   distuv.Uniform
	tree   *Tree
	queue  []int
}

// Generate grows a tree in grid g
func Generate(g geometry.Grid, p Params) (*Tree, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p = p.withDefaults(g)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(p.Seed))
	gen := &generator{
		grid:   g,
		params: p,
		sym:    distuv.Uniform{Min: -1, Max: 1, Src: rng},
		unit:   distuv.Uniform{Min: 0, Max: 1, Src: rng},
		tree:   &Tree{Grid: g, Params: p},
	}

	gen.enqueue(Segment{
		Parent:          -1,
		Start:           p.Start,
		Direction:       r3.Unit(p.Direction),
		Radius:          p.Radius,
		RadiusVariation: p.RadiusVariationFactor,
	})
	for len(gen.queue) > 0 {
		idx := gen.queue[0]
		gen.queue = gen.queue[1:]
		gen.grow(idx)
	}
	return gen.tree, nil
}

func (gen *generator) enqueue(s Segment) int {
	idx := len(gen.tree.Segments)
	gen.tree.Segments = append(gen.tree.Segments, s)
	gen.queue = append(gen.queue, idx)
	return idx
}

// maxSteps bounds the length of one segment
func (gen *generator) maxSteps() int {
	return 4 * (gen.grid.Nx + gen.grid.Ny + gen.grid.Nz)
}

func (gen *generator) grow(idx int) {
	seg := gen.tree.Segments[idx]
	p := gen.params
	if seg.Radius < p.MinRadius {
		seg.End = TooThin
		gen.tree.Segments[idx] = seg
		return
	}

	step := gen.grid.Spacing
	tip, dir := seg.Start, seg.Direction
	entered := gen.grid.Contains(tip)
	grown := 0.0
	seg.End = StepLimit

	for n := 0; n < gen.maxSteps(); n++ {
		if p.CurvatureFactor > 0 {
			jitter := r3.Vec{X: gen.sym.Rand(), Y: gen.sym.Rand(), Z: gen.sym.Rand()}
			if d := r3.Add(dir, r3.Scale(p.CurvatureFactor, jitter)); r3.Norm(d) > 0 {
				dir = r3.Unit(d)
			}
		}
		radius := seg.Radius
		if seg.RadiusVariation > 0 {
			radius = math.Max(radius+seg.RadiusVariation*gen.sym.Rand(), 0.1*seg.Radius)
		}

		next := r3.Add(tip, r3.Scale(step, dir))
		seg.Steps = append(seg.Steps, Capsule{A: tip, B: next, Radius: radius})
		tip = next
		grown += step

		if gen.grid.Contains(tip) {
			entered = true
		} else if entered {
			seg.End = LeftVolume
			break
		}

		if grown < p.BifurcationLength-1e-9 {
			continue
		}
		grown = 0
		switch gen.decide() {
		case Terminate:
			seg.End = Terminated
		case Bifurcate:
			if seg.Depth >= p.MaxDepth {
				continue
			}
			seg.End = Split
		default:
			continue
		}
		break
	}

	if seg.End == Split {
		seg.Children = gen.split(idx, seg, tip, dir)
	}
	gen.tree.Segments[idx] = seg
}

// decide draws the next branching decision
func (gen *generator) decide() Decision {
	p := gen.params
	total := p.ContinueProbability + p.TerminateProbability + p.BifurcateProbability
	u := gen.unit.Rand() * total
	switch {
	case u < p.ContinueProbability:
		return Continue
	case u < p.ContinueProbability+p.TerminateProbability:
		return Terminate
	}
	return Bifurcate
}

// split enqueues two children diverging symmetrically from dir about a random
// axis perpendicular to it
func (gen *generator) split(parent int, seg Segment, tip, dir r3.Vec) []int {
	p := gen.params

	helper := r3.Vec{X: 1}
	if math.Abs(dir.X) > 0.9 {
		helper = r3.Vec{Y: 1}
	}
	e1 := r3.Unit(r3.Cross(dir, helper))
	e2 := r3.Cross(dir, e1)
	phi := 2 * math.Pi * gen.unit.Rand()
	axis := r3.Add(r3.Scale(math.Cos(phi), e1), r3.Scale(math.Sin(phi), e2))

	theta := p.MinBranchAngle + (p.MaxBranchAngle-p.MinBranchAngle)*gen.unit.Rand()

	children := make([]int, 0, 2)
	for _, angle := range []float64{theta, -theta} {
		factor := p.RadiusReductionMin + (p.RadiusReductionMax-p.RadiusReductionMin)*gen.unit.Rand()
		children = append(children, gen.enqueue(Segment{
			Parent:          parent,
			Depth:           seg.Depth + 1,
			Start:           tip,
			Direction:       r3.Unit(r3.Rotate(dir, angle, axis)),
			Radius:          seg.Radius * factor,
			RadiusVariation: seg.RadiusVariation * factor,
		}))
	}
	return children
}

// Bifurcations counts the segments that split
func (t *Tree) Bifurcations() int {
	n := 0
	for _, s := range t.Segments {
		if s.End == Split {
			n++
		}
	}
	return n
}

// Capsules returns all growth steps of the tree in arena order
func (t *Tree) Capsules() []Capsule {
	var caps []Capsule
	for _, s := range t.Segments {
		caps = append(caps, s.Steps...)
	}
	return caps
}
