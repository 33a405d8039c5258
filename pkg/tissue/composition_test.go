package tissue

import (
	"errors"
	"math"
	"testing"

	"pavolume/internal/models"
	"pavolume/pkg/spectra"
	"pavolume/pkg/volerr"
)

func testMolecule(name string, vf, mua, g float64) Molecule {
	return Molecule{
		Name:           name,
		VolumeFraction: vf,
		Absorption:     spectra.Constant(name, mua),
		MusP500:        100,
		FRay:           0,
		BMie:           0,
		Anisotropy:     spectra.Constant(name+"_g", g),
		Density:        1000,
	}
}

// TestNewCompositionRejectsBadFractions verifies that fractions not summing to one fail
func TestNewCompositionRejectsBadFractions(t *testing.T) {
	_, err := NewComposition("bad", models.Generic,
		testMolecule("a", 0.5, 1, 0.9),
		testMolecule("b", 0.4, 1, 0.9))
	if err == nil {
		t.Fatal("Expected error for fractions summing to 0.9")
	}

	var compErr *volerr.CompositionError
	if !errors.As(err, &compErr) {
		t.Fatalf("Expected CompositionError, got %T", err)
	}
	if math.Abs(compErr.Sum-0.9) > 1e-12 {
		t.Errorf("Expected reported sum 0.9, got %f", compErr.Sum)
	}

	if _, err := NewComposition("empty", models.Generic); err == nil {
		t.Error("Expected error for empty composition")
	}
	if _, err := NewComposition("negative", models.Generic,
		testMolecule("a", 1.2, 1, 0.9), testMolecule("b", -0.2, 1, 0.9)); err == nil {
		t.Error("Expected error for negative volume fraction")
	}

	// Within tolerance is accepted as is
	c, err := NewComposition("close", models.Generic,
		testMolecule("a", 0.5, 1, 0.9),
		testMolecule("b", 0.4995, 1, 0.9))
	if err != nil {
		t.Fatalf("Expected composition within tolerance to be accepted: %v", err)
	}
	if math.Abs(c.TotalFraction()-0.9995) > 1e-12 {
		t.Errorf("Expected fractions to be kept unnormalized, got total %f", c.TotalFraction())
	}
}

// TestResolveMixture verifies the volume fraction weighted mixing rules
func TestResolveMixture(t *testing.T) {
	c, err := NewComposition("mix", models.Muscle,
		testMolecule("a", 0.25, 4, 0.8),
		testMolecule("b", 0.75, 8, 0.6))
	if err != nil {
		t.Fatalf("Failed to create composition: %v", err)
	}

	p := c.Resolve(700)
	if math.Abs(p.AbsorptionPerCm-7) > 1e-12 {
		t.Errorf("Expected absorption 7, got %f", p.AbsorptionPerCm)
	}
	if math.Abs(p.ScatteringPerCm-100) > 1e-12 {
		t.Errorf("Expected scattering 100, got %f", p.ScatteringPerCm)
	}
	if math.Abs(p.Anisotropy-0.65) > 1e-12 {
		t.Errorf("Expected anisotropy 0.65, got %f", p.Anisotropy)
	}
	if math.Abs(p.Density-1000) > 1e-12 {
		t.Errorf("Expected density 1000, got %f", p.Density)
	}
	if !math.IsNaN(p.Oxygenation) {
		t.Errorf("Expected NaN oxygenation without hemoglobin, got %f", p.Oxygenation)
	}
	if p.Segmentation != models.Muscle {
		t.Errorf("Expected muscle label, got %v", p.Segmentation)
	}
	if p.Value(models.Segmentation) != float64(models.Muscle) {
		t.Errorf("Expected segmentation value %d, got %f", models.Muscle, p.Value(models.Segmentation))
	}
}

// TestResolveOxygenation verifies the hemoglobin oxygenation estimate
func TestResolveOxygenation(t *testing.T) {
	oxy := testMolecule("oxy", 0.3, 1, 0.9)
	oxy.Species = OxyHemoglobin
	deoxy := testMolecule("deoxy", 0.1, 1, 0.9)
	deoxy.Species = DeoxyHemoglobin

	c, err := NewComposition("blood", models.Blood, oxy, deoxy, testMolecule("water", 0.6, 0, 0.9))
	if err != nil {
		t.Fatalf("Failed to create composition: %v", err)
	}
	if got := c.Resolve(800).Oxygenation; math.Abs(got-0.75) > 1e-12 {
		t.Errorf("Expected oxygenation 0.75, got %f", got)
	}
}
