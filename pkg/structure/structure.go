// Package structure declares the tissue structures of a simulation volume and
// keeps them in a priority-ordered registry.
package structure

import (
	"fmt"
	"sort"
	"strings"

	"pavolume/internal/models"
	"pavolume/pkg/geometry"
	"pavolume/pkg/tissue"
	"pavolume/pkg/vessel"
	"pavolume/pkg/volerr"
)

// Kind is the structure variant
type Kind int

const (
	Background Kind = iota
	HorizontalLayer
	CircularTube
	EllipticalTube
	Sphere
	RectangularCuboid
	Parallelepiped
	VesselTree
)

var kindNames = [...]string{
	Background:        "background",
	HorizontalLayer:   "horizontal_layer",
	CircularTube:      "circular_tube",
	EllipticalTube:    "elliptical_tube",
	Sphere:            "sphere",
	RectangularCuboid: "rectangular_cuboid",
	Parallelepiped:    "parallelepiped",
	VesselTree:        "vessel_tree",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind resolves a structure type name
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, volerr.Configf("structure type", "unknown type %q", name)
}

// Structure is one declared tissue region
type Structure struct {
	// Name identifies the structure in logs and errors
	Name string

	// Kind selects the shape variant
	Kind Kind

	// Priority decides which structure keeps a voxel share when several
	// overlap; higher wins
	Priority int

	// Shape computes the occupancy; nil for the background
	Shape geometry.Shape

	// Composition is the tissue filling the structure
	Composition *tissue.Composition

	// PartialVolume keeps fractional occupancy; otherwise it is rounded to 0 or 1
	PartialVolume bool

	// AdhereToDeformation shifts the structure with the deformation surface
	AdhereToDeformation bool
}

// Validate checks that the structure is complete and its shape matches its kind
func (s *Structure) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return volerr.Configf("structure", "missing name")
	}
	if s.Composition == nil {
		return &volerr.CompositionError{Composition: s.Name, Reason: "structure has no molecular composition"}
	}
	if s.Kind == Background {
		if s.Shape != nil {
			return volerr.Configf(s.Name, "background structures have no shape")
		}
		return nil
	}
	if s.Shape == nil {
		return volerr.Configf(s.Name, "missing %s shape", s.Kind)
	}
	if !kindMatches(s.Kind, s.Shape) {
		return volerr.Configf(s.Name, "shape %T does not match type %s", s.Shape, s.Kind)
	}
	if err := s.Shape.Validate(); err != nil {
		return fmt.Errorf("structure %s: %w", s.Name, err)
	}
	return nil
}

func kindMatches(k Kind, shape geometry.Shape) bool {
	switch shape.(type) {
	case geometry.Layer:
		return k == HorizontalLayer
	case geometry.Tube:
		return k == CircularTube
	case geometry.EllipticalTube:
		return k == EllipticalTube
	case geometry.Sphere:
		return k == Sphere
	case geometry.Cuboid:
		return k == RectangularCuboid
	case geometry.Parallelepiped:
		return k == Parallelepiped
	case vessel.Shape:
		return k == VesselTree
	}
	return false
}

// GeometricalVolume returns the occupancy of the structure on g. The surface
// is applied only if the structure adheres to deformation.
func (s *Structure) GeometricalVolume(g geometry.Grid, surface geometry.ColumnShift) (*geometry.Occupancy, error) {
	if s.Kind == Background {
		o := geometry.NewOccupancy(g)
		for i := range o.Data {
			o.Data[i] = 1
		}
		return o, nil
	}

	var shift geometry.ColumnShift
	if s.AdhereToDeformation {
		shift = surface
	}
	o, err := s.Shape.Occupancy(g, shift)
	if err != nil {
		return nil, fmt.Errorf("structure %s: %w", s.Name, err)
	}
	if !s.PartialVolume {
		o.Binarize()
	}
	return o, nil
}

// Label is the segmentation class of the structure's tissue
func (s *Structure) Label() models.SegmentationClass {
	return s.Composition.Label()
}

// PropertiesForWavelength resolves the structure's tissue at a wavelength in nm
func (s *Structure) PropertiesForWavelength(wavelength float64) tissue.Properties {
	return s.Composition.Resolve(wavelength)
}

// Registry holds the structures of one volume in declaration order plus the
// background that fills unclaimed space
type Registry struct {
	structures []*Structure
	background *Structure
	names      map[string]bool
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool)}
}

// Add validates and appends a structure. At most one background is allowed.
func (r *Registry) Add(s *Structure) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if r.names[s.Name] {
		return volerr.Configf(s.Name, "duplicate structure name")
	}
	if s.Kind == Background {
		if r.background != nil {
			return volerr.Configf(s.Name, "background already declared as %s", r.background.Name)
		}
		r.background = s
	} else {
		r.structures = append(r.structures, s)
	}
	r.names[s.Name] = true
	return nil
}

// Structures returns the non-background structures in declaration order
func (r *Registry) Structures() []*Structure {
	return append([]*Structure(nil), r.structures...)
}

// Len returns the number of non-background structures
func (r *Registry) Len() int {
	return len(r.structures)
}

// Sorted returns the non-background structures by descending priority.
// Structures of equal priority keep their declaration order.
func (r *Registry) Sorted() []*Structure {
	sorted := r.Structures()
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Priority > sorted[b].Priority
	})
	return sorted
}

// Background returns the declared background, or the library background if
// none was declared
func (r *Registry) Background() (*Structure, error) {
	if r.background != nil {
		return r.background, nil
	}
	comp, err := tissue.Background()
	if err != nil {
		return nil, err
	}
	return &Structure{Name: "background", Kind: Background, Composition: comp, PartialVolume: true}, nil
}
