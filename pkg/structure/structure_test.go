package structure

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"pavolume/internal/models"
	"pavolume/pkg/geometry"
	"pavolume/pkg/tissue"
	"pavolume/pkg/volerr"
)

func mustTissue(t *testing.T, name string) *tissue.Composition {
	t.Helper()
	c, err := tissue.Lookup(name, tissue.Options{})
	if err != nil {
		t.Fatalf("Failed to build %s: %v", name, err)
	}
	return c
}

func cube(name string, priority int, comp *tissue.Composition) *Structure {
	return &Structure{
		Name:          name,
		Kind:          RectangularCuboid,
		Priority:      priority,
		Shape:         geometry.Cuboid{Start: r3.Vec{X: 1, Y: 1, Z: 1}, Extent: r3.Vec{X: 2, Y: 2, Z: 2}},
		Composition:   comp,
		PartialVolume: true,
	}
}

// TestParseKind verifies type names round-trip through ParseKind
func TestParseKind(t *testing.T) {
	for k := Background; k <= VesselTree; k++ {
		got, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("ParseKind(%q) failed: %v", k.String(), err)
		}
		if got != k {
			t.Errorf("Expected %v, got %v", k, got)
		}
	}
	if _, err := ParseKind("torus"); err == nil {
		t.Error("Expected error for unknown type")
	}
}

// TestValidate verifies descriptor validation
func TestValidate(t *testing.T) {
	muscle := mustTissue(t, "muscle")

	cases := []struct {
		name string
		s    *Structure
	}{
		{"no name", &Structure{Kind: Background, Composition: muscle}},
		{"background with shape", &Structure{Name: "bg", Kind: Background, Composition: muscle,
			Shape: geometry.Layer{StartZ: 0, EndZ: 1}}},
		{"missing shape", &Structure{Name: "s", Kind: Sphere, Composition: muscle}},
		{"kind mismatch", &Structure{Name: "s", Kind: Sphere, Composition: muscle,
			Shape: geometry.Layer{StartZ: 0, EndZ: 1}}},
		{"degenerate", &Structure{Name: "s", Kind: Sphere, Composition: muscle,
			Shape: geometry.Sphere{Radius: 0}}},
	}
	for _, tc := range cases {
		var cfgErr *volerr.ConfigurationError
		if err := tc.s.Validate(); !errors.As(err, &cfgErr) {
			t.Errorf("%s: expected ConfigurationError, got %v", tc.name, err)
		}
	}

	noTissue := cube("c", 0, nil)
	var compErr *volerr.CompositionError
	if err := noTissue.Validate(); !errors.As(err, &compErr) {
		t.Errorf("Expected CompositionError for missing composition, got %v", err)
	}
}

// TestRegistryOrdering verifies descending priority with stable ties
func TestRegistryOrdering(t *testing.T) {
	muscle := mustTissue(t, "muscle")
	r := NewRegistry()
	for _, s := range []*Structure{
		cube("a", 1, muscle),
		cube("b", 5, muscle),
		cube("c", 1, muscle),
		cube("d", 3, muscle),
	} {
		if err := r.Add(s); err != nil {
			t.Fatalf("Add(%s) failed: %v", s.Name, err)
		}
	}

	want := []string{"b", "d", "a", "c"}
	sorted := r.Sorted()
	if len(sorted) != len(want) {
		t.Fatalf("Expected %d structures, got %d", len(want), len(sorted))
	}
	for i, s := range sorted {
		if s.Name != want[i] {
			t.Errorf("Expected %s at position %d, got %s", want[i], i, s.Name)
		}
	}
	if decl := r.Structures(); decl[0].Name != "a" || decl[3].Name != "d" {
		t.Error("Expected Structures to keep declaration order")
	}
}

// TestRegistryBackground verifies the single-background rule and its fallback
func TestRegistryBackground(t *testing.T) {
	r := NewRegistry()
	bg, err := r.Background()
	if err != nil {
		t.Fatalf("Background failed: %v", err)
	}
	if bg.Kind != Background || bg.Label() != models.Generic {
		t.Errorf("Expected generic fallback background, got %v labelled %v", bg.Kind, bg.Label())
	}

	water := mustTissue(t, "water")
	if err := r.Add(&Structure{Name: "medium", Kind: Background, Composition: water}); err != nil {
		t.Fatalf("Add background failed: %v", err)
	}
	if err := r.Add(&Structure{Name: "other", Kind: Background, Composition: water}); err == nil {
		t.Error("Expected error for second background")
	}
	if err := r.Add(cube("medium", 0, water)); err == nil {
		t.Error("Expected error for duplicate name")
	}
	bg, _ = r.Background()
	if bg.Name != "medium" {
		t.Errorf("Expected declared background, got %s", bg.Name)
	}
	if r.Len() != 0 {
		t.Errorf("Expected background excluded from Len, got %d", r.Len())
	}
}

// TestGeometricalVolume verifies binarization and deformation adherence
func TestGeometricalVolume(t *testing.T) {
	g := geometry.Grid{Spacing: 1, Nx: 4, Ny: 4, Nz: 4}
	muscle := mustTissue(t, "muscle")

	s := &Structure{
		Name:        "slab",
		Kind:        RectangularCuboid,
		Shape:       geometry.Cuboid{Start: r3.Vec{X: 0, Y: 0, Z: 1.3}, Extent: r3.Vec{X: 4, Y: 4, Z: 1}},
		Composition: muscle,
	}
	o, err := s.GeometricalVolume(g, nil)
	if err != nil {
		t.Fatalf("GeometricalVolume failed: %v", err)
	}
	if o.At(0, 0, 1) != 1 || o.At(0, 0, 2) != 0 {
		t.Errorf("Expected binarized 1 and 0, got %v and %v", o.At(0, 0, 1), o.At(0, 0, 2))
	}

	s.PartialVolume = true
	lift := shiftBy(-1)
	o, _ = s.GeometricalVolume(g, lift)
	if o.At(0, 0, 1) < 0.69 || o.At(0, 0, 1) > 0.71 {
		t.Errorf("Expected undeformed fraction 0.7 without adherence, got %v", o.At(0, 0, 1))
	}

	s.AdhereToDeformation = true
	o, _ = s.GeometricalVolume(g, lift)
	if o.At(0, 0, 2) < 0.69 || o.At(0, 0, 2) > 0.71 {
		t.Errorf("Expected fraction 0.7 shifted one voxel deeper, got %v", o.At(0, 0, 2))
	}

	bg := &Structure{Name: "bg", Kind: Background, Composition: muscle}
	o, _ = bg.GeometricalVolume(g, nil)
	if o.Sum() != float64(g.Len()) {
		t.Errorf("Expected background to fill %d voxels, got %v", g.Len(), o.Sum())
	}
}

type shiftBy float64

func (s shiftBy) Shift(i, j int) float64 { return float64(s) }
