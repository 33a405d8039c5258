// Package tissue describes tissues as mixtures of molecules and resolves
// them into optical and acoustic properties at a given wavelength.
package tissue

import (
	"fmt"
	"math"

	"pavolume/internal/models"
	"pavolume/pkg/spectra"
	"pavolume/pkg/volerr"
)

// FractionTolerance is the allowed deviation of a composition's total volume
// fraction from one
const FractionTolerance = 1e-3

// Species marks the molecules that take part in the oxygenation estimate
type Species int

const (
	Generic Species = iota
	OxyHemoglobin
	DeoxyHemoglobin
)

// Molecule is one constituent of a tissue
type Molecule struct {
	// Name identifies the molecule within its composition
	Name string

	// Species is Generic for everything but hemoglobin
	Species Species

	// VolumeFraction is the share of the tissue volume taken by this molecule
	VolumeFraction float64

	// Absorption is the absorption coefficient spectrum in 1/cm
	Absorption *spectra.Spectrum

	// MusP500 is the scattering coefficient at 500 nm in 1/cm
	MusP500 float64

	// FRay is the Rayleigh share of the scattering
	FRay float64

	// BMie is the Mie power law exponent
	BMie float64

	// Anisotropy is the scattering anisotropy spectrum
	Anisotropy *spectra.Spectrum

	Gruneisen        float64
	Density          float64
	SpeedOfSound     float64
	AlphaCoefficient float64
}

// Composition is an ordered mixture of molecules whose volume fractions add
// up to one
type Composition struct {
	name      string
	label     models.SegmentationClass
	molecules []Molecule
}

// Properties are the resolved per-voxel values of a composition
type Properties struct {
	AbsorptionPerCm  float64
	ScatteringPerCm  float64
	Anisotropy       float64
	Oxygenation      float64
	Gruneisen        float64
	Density          float64
	SpeedOfSound     float64
	AlphaCoefficient float64
	Segmentation     models.SegmentationClass
}

// NewComposition validates and builds a composition. A composition whose
// fractions do not sum to one within FractionTolerance is rejected, never
// renormalized.
func NewComposition(name string, label models.SegmentationClass, molecules ...Molecule) (*Composition, error) {
	if len(molecules) == 0 {
		return nil, &volerr.CompositionError{Composition: name, Reason: "no molecules"}
	}

	sum := 0.0
	for _, m := range molecules {
		if math.IsNaN(m.VolumeFraction) || m.VolumeFraction < 0 || m.VolumeFraction > 1 {
			return nil, &volerr.CompositionError{
				Composition: name,
				Reason:      fmt.Sprintf("molecule %s has volume fraction %v outside [0, 1]", m.Name, m.VolumeFraction),
			}
		}
		if m.Absorption == nil || m.Anisotropy == nil {
			return nil, &volerr.CompositionError{
				Composition: name,
				Reason:      fmt.Sprintf("molecule %s is missing a spectrum", m.Name),
			}
		}
		sum += m.VolumeFraction
	}
	if math.Abs(sum-1) > FractionTolerance {
		return nil, &volerr.CompositionError{
			Composition: name,
			Sum:         sum,
			Reason:      fmt.Sprintf("volume fractions sum to %.4f instead of 1", sum),
		}
	}

	return &Composition{
		name:      name,
		label:     label,
		molecules: append([]Molecule(nil), molecules...),
	}, nil
}

// Name returns the composition name
func (c *Composition) Name() string { return c.name }

// Label returns the segmentation class of the composition
func (c *Composition) Label() models.SegmentationClass { return c.label }

// Molecules returns a copy of the constituents
func (c *Composition) Molecules() []Molecule {
	return append([]Molecule(nil), c.molecules...)
}

// TotalFraction returns the sum of all volume fractions
func (c *Composition) TotalFraction() float64 {
	sum := 0.0
	for _, m := range c.molecules {
		sum += m.VolumeFraction
	}
	return sum
}

// Resolve computes the properties of the mixture at the given wavelength in nm.
// Oxygenation is NaN when the composition holds no hemoglobin.
func (c *Composition) Resolve(wavelength float64) Properties {
	p := Properties{Segmentation: c.label}

	var total, anisotropy, oxy, deoxy float64
	for _, m := range c.molecules {
		vf := m.VolumeFraction
		total += vf
		p.AbsorptionPerCm += vf * m.Absorption.At(wavelength)
		p.ScatteringPerCm += vf * spectra.Scattering(wavelength, m.MusP500, m.FRay, m.BMie)
		anisotropy += vf * m.Anisotropy.At(wavelength)
		p.Gruneisen += vf * m.Gruneisen
		p.Density += vf * m.Density
		p.SpeedOfSound += vf * m.SpeedOfSound
		p.AlphaCoefficient += vf * m.AlphaCoefficient

		switch m.Species {
		case OxyHemoglobin:
			oxy += vf
		case DeoxyHemoglobin:
			deoxy += vf
		}
	}

	if total > 0 {
		p.Anisotropy = anisotropy / total
	}
	if oxy+deoxy > 0 {
		p.Oxygenation = oxy / (oxy + deoxy)
	} else {
		p.Oxygenation = math.NaN()
	}
	return p
}

// Value returns the resolved value of a property volume
func (p Properties) Value(prop models.Property) float64 {
	switch prop {
	case models.AbsorptionPerCm:
		return p.AbsorptionPerCm
	case models.ScatteringPerCm:
		return p.ScatteringPerCm
	case models.Anisotropy:
		return p.Anisotropy
	case models.Oxygenation:
		return p.Oxygenation
	case models.Segmentation:
		return float64(p.Segmentation)
	case models.GruneisenParameter:
		return p.Gruneisen
	case models.Density:
		return p.Density
	case models.SpeedOfSound:
		return p.SpeedOfSound
	case models.AlphaCoefficient:
		return p.AlphaCoefficient
	}
	return math.NaN()
}
