package geometry

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Face identifies one of the six boundary planes of the volume
type Face int

const (
	FaceXMin Face = iota
	FaceXMax
	FaceYMin
	FaceYMax
	FaceZMin
	FaceZMax
)

// Faces lists all boundary planes
var Faces = []Face{FaceXMin, FaceXMax, FaceYMin, FaceYMax, FaceZMin, FaceZMax}

func (f Face) String() string {
	return [...]string{"x-min", "x-max", "y-min", "y-max", "z-min", "z-max"}[f]
}

// faceMask returns the occupied voxels of a boundary plane as a 2D mask
func faceMask(o *Occupancy, f Face) (mask []bool, w, h int) {
	g := o.Grid
	switch f {
	case FaceXMin, FaceXMax:
		i := 0
		if f == FaceXMax {
			i = g.Nx - 1
		}
		w, h = g.Ny, g.Nz
		mask = make([]bool, w*h)
		for k := 0; k < g.Nz; k++ {
			for j := 0; j < g.Ny; j++ {
				mask[k*w+j] = o.At(i, j, k) > 0
			}
		}
	case FaceYMin, FaceYMax:
		j := 0
		if f == FaceYMax {
			j = g.Ny - 1
		}
		w, h = g.Nx, g.Nz
		mask = make([]bool, w*h)
		for k := 0; k < g.Nz; k++ {
			for i := 0; i < g.Nx; i++ {
				mask[k*w+i] = o.At(i, j, k) > 0
			}
		}
	default:
		k := 0
		if f == FaceZMax {
			k = g.Nz - 1
		}
		w, h = g.Nx, g.Ny
		mask = make([]bool, w*h)
		for j := 0; j < g.Ny; j++ {
			for i := 0; i < g.Nx; i++ {
				mask[j*w+i] = o.At(i, j, k) > 0
			}
		}
	}
	return mask, w, h
}

// FaceComponents counts the 4-connected occupied regions on one boundary plane
func FaceComponents(o *Occupancy, f Face) int {
	mask, w, h := faceMask(o, f)
	g := simple.NewUndirectedGraph()
	for n, occupied := range mask {
		if occupied {
			g.AddNode(simple.Node(n))
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := y*w + x
			if !mask[n] {
				continue
			}
			if x+1 < w && mask[n+1] {
				g.SetEdge(g.NewEdge(simple.Node(n), simple.Node(n+1)))
			}
			if y+1 < h && mask[n+w] {
				g.SetEdge(g.NewEdge(simple.Node(n), simple.Node(n+w)))
			}
		}
	}
	return len(topo.ConnectedComponents(g))
}

// BoundaryComponents sums FaceComponents over all six boundary planes. A
// structure crossing the volume boundary shows up once per crossing.
func BoundaryComponents(o *Occupancy) int {
	total := 0
	for _, f := range Faces {
		total += FaceComponents(o, f)
	}
	return total
}
