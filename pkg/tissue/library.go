package tissue

import (
	"fmt"
	"sort"
	"strings"

	"pavolume/internal/models"
	"pavolume/pkg/spectra"
	"pavolume/pkg/volerr"
)

// BodyTemperature in degrees Celsius used for the Gruneisen parameter
const BodyTemperature = 37.0

// GruneisenFromTemperature is the empirical water-based estimate of the
// Gruneisen parameter at a temperature in degrees Celsius
func GruneisenFromTemperature(celsius float64) float64 {
	return 0.0043 + 0.0053*celsius
}

// Literature values of the acoustic properties. Densities in kg/m^3, speeds of
// sound in m/s and attenuation coefficients in dB/cm/MHz.
const (
	DensityGeneric  = 1000.0
	DensityMuscle   = 1090.4
	DensityBone     = 1908.0
	DensityBlood    = 1049.75
	DensitySkin     = 1109.0
	DensityFat      = 911.0
	DensityWater    = 1000.0
	DensityAir      = 1.16
	DensityGelPad   = 890.0
	SoundGeneric    = 1540.0
	SoundAir        = 343.0
	SoundMuscle     = 1588.4
	SoundBone       = 3514.9
	SoundBlood      = 1578.2
	SoundSkin       = 1624.0
	SoundFat        = 1440.2
	SoundGel        = 1583.0
	SoundWater      = 1482.3
	AlphaGeneric    = 0.02
	AlphaAir        = 3.3875e-3
	AlphaMuscle     = 0.6175
	AlphaBone       = 4.7385
	AlphaBlood      = 0.2
	AlphaSkin       = 0.35
	AlphaFat        = 0.3785
	AlphaGel        = 0.277
	AlphaWater      = 2.1976e-3
	anisotropyTypic = 0.9
)

// Default oxygenations and volume fractions of the standard tissues
const (
	BackgroundOxygenation    = 0.175
	DermisOxygenation        = 0.5
	BloodFractionMuscle      = 0.01
	BloodFractionDermis      = 0.002
	WaterFractionBody        = 0.68
	WaterFractionBone        = 0.19
	MelaninFractionEpidermis = 0.014
	FatFractionSubcutaneous  = 0.3
)

// scatterer holds the reduced scattering parameters of a tissue type
type scatterer struct {
	mus500, fRay, bMie float64
}

var (
	scatterBackground = scatterer{191, 0.153, 1.091}
	scatterEpidermis  = scatterer{284.8, 0.56, 0.05}
	scatterDermis     = scatterer{172.6, 0.64, 1.55}
	scatterMuscle     = scatterer{341.1, 0.02, 1.05}
	scatterFat        = scatterer{193, 0.174, 0.447}
	scatterBlood      = scatterer{1170, 0, 0.93}
	scatterBone       = scatterer{153, 0.022, 0.326}
)

type acoustics struct {
	density, sound, alpha float64
}

var (
	acousticGeneric = acoustics{DensityGeneric, SoundGeneric, AlphaGeneric}
	acousticMuscle  = acoustics{DensityMuscle, SoundMuscle, AlphaMuscle}
	acousticBone    = acoustics{DensityBone, SoundBone, AlphaBone}
	acousticBlood   = acoustics{DensityBlood, SoundBlood, AlphaBlood}
	acousticSkin    = acoustics{DensitySkin, SoundSkin, AlphaSkin}
	acousticFat     = acoustics{DensityFat, SoundFat, AlphaFat}
	acousticWater   = acoustics{DensityWater, SoundWater, AlphaWater}
	acousticAir     = acoustics{DensityAir, SoundAir, AlphaAir}
	acousticGel     = acoustics{DensityGelPad, SoundGel, AlphaGel}
)

func molecule(name string, vf float64, absorption *spectra.Spectrum, s scatterer, g float64, a acoustics) Molecule {
	return Molecule{
		Name:             name,
		VolumeFraction:   vf,
		Absorption:       absorption,
		MusP500:          s.mus500,
		FRay:             s.fRay,
		BMie:             s.bMie,
		Anisotropy:       spectra.Constant(name+"_anisotropy", g),
		Gruneisen:        GruneisenFromTemperature(BodyTemperature),
		Density:          a.density,
		SpeedOfSound:     a.sound,
		AlphaCoefficient: a.alpha,
	}
}

// bloodMolecules splits a blood volume fraction into its oxy- and
// deoxyhemoglobin parts
func bloodMolecules(fraction, oxygenation float64) []Molecule {
	oxy := molecule("oxyhemoglobin", fraction*oxygenation, spectra.OxyHemoglobin, scatterBlood, 0.98, acousticBlood)
	oxy.Species = OxyHemoglobin
	deoxy := molecule("deoxyhemoglobin", fraction*(1-oxygenation), spectra.DeoxyHemoglobin, scatterBlood, 0.98, acousticBlood)
	deoxy.Species = DeoxyHemoglobin
	return []Molecule{oxy, deoxy}
}

func water(vf float64) Molecule {
	return molecule("water", vf, spectra.WaterAbsorption, scatterer{}, anisotropyTypic, acousticWater)
}

func checkOxygenation(tissue string, oxygenation float64) error {
	if oxygenation < 0 || oxygenation > 1 {
		return &volerr.CompositionError{
			Composition: tissue,
			Reason:      fmt.Sprintf("oxygenation %v outside [0, 1]", oxygenation),
		}
	}
	return nil
}

// Constant is a single absorber/scatterer with wavelength independent
// properties and generic acoustics
func Constant(mua, mus, g float64) (*Composition, error) {
	m := molecule("constant_absorber", 1, spectra.Constant("constant_absorption", mua),
		scatterer{mus500: mus}, g, acousticGeneric)
	return NewComposition("constant", models.Generic, m)
}

// Background is the nearly transparent filler of voxels no structure claims
func Background() (*Composition, error) {
	return Constant(1e-10, 1e-10, 1)
}

// Muscle tissue: perfused muscle fibres in water
func Muscle(oxygenation float64) (*Composition, error) {
	if err := checkOxygenation("muscle", oxygenation); err != nil {
		return nil, err
	}
	molecules := bloodMolecules(BloodFractionMuscle, oxygenation)
	molecules = append(molecules,
		molecule("muscle_scatterer", 1-BloodFractionMuscle-WaterFractionBody, spectra.MuscleBaseline,
			scatterMuscle, anisotropyTypic, acousticMuscle),
		water(WaterFractionBody))
	return NewComposition("muscle", models.Muscle, molecules...)
}

// SoftTissue is a generic perfused soft tissue
func SoftTissue(oxygenation float64) (*Composition, error) {
	if err := checkOxygenation("soft_tissue", oxygenation); err != nil {
		return nil, err
	}
	molecules := bloodMolecules(BloodFractionMuscle, oxygenation)
	molecules = append(molecules,
		molecule("soft_tissue_scatterer", 1-BloodFractionMuscle-WaterFractionBody, spectra.MuscleBaseline,
			scatterBackground, anisotropyTypic, acousticGeneric),
		water(WaterFractionBody))
	return NewComposition("soft_tissue", models.Generic, molecules...)
}

// Epidermis is the melanin-carrying outer skin layer
func Epidermis() (*Composition, error) {
	return NewComposition("epidermis", models.Epidermis,
		molecule("melanin", MelaninFractionEpidermis, spectra.Melanin, scatterEpidermis, anisotropyTypic, acousticSkin),
		molecule("epidermal_scatterer", 1-MelaninFractionEpidermis-WaterFractionBody,
			spectra.Constant("epidermal_scatterer_absorption", 0), scatterEpidermis, anisotropyTypic, acousticSkin),
		water(WaterFractionBody))
}

// Dermis is the weakly perfused inner skin layer
func Dermis(oxygenation float64) (*Composition, error) {
	if err := checkOxygenation("dermis", oxygenation); err != nil {
		return nil, err
	}
	molecules := bloodMolecules(BloodFractionDermis, oxygenation)
	molecules = append(molecules,
		molecule("dermal_scatterer", 1-BloodFractionDermis, spectra.SkinBaseline, scatterDermis, 0.715, acousticSkin))
	return NewComposition("dermis", models.Dermis, molecules...)
}

// SubcutaneousFat is adipose tissue below the dermis
func SubcutaneousFat(oxygenation float64) (*Composition, error) {
	if err := checkOxygenation("subcutaneous_fat", oxygenation); err != nil {
		return nil, err
	}
	molecules := bloodMolecules(BloodFractionMuscle, oxygenation)
	molecules = append(molecules,
		molecule("fat", FatFractionSubcutaneous, spectra.FatAbsorption, scatterFat, anisotropyTypic, acousticFat),
		molecule("soft_tissue_scatterer", 1-FatFractionSubcutaneous-WaterFractionBody-BloodFractionMuscle,
			spectra.MuscleBaseline, scatterBackground, anisotropyTypic, acousticGeneric),
		water(WaterFractionBody))
	return NewComposition("subcutaneous_fat", models.Fat, molecules...)
}

// Blood is whole blood at the given oxygen saturation
func Blood(oxygenation float64) (*Composition, error) {
	if err := checkOxygenation("blood", oxygenation); err != nil {
		return nil, err
	}
	return NewComposition("blood", models.Blood, bloodMolecules(1, oxygenation)...)
}

// Bone is cortical bone with its water content
func Bone() (*Composition, error) {
	return NewComposition("bone", models.Bone,
		molecule("bone", 1-WaterFractionBone, spectra.BoneAbsorption, scatterBone, anisotropyTypic, acousticBone),
		water(WaterFractionBone))
}

// Water is pure water
func Water() (*Composition, error) {
	return NewComposition("water", models.Water, water(1))
}

// UltrasoundGel is the acoustic coupling gel, optically equivalent to water
func UltrasoundGel() (*Composition, error) {
	m := water(1)
	m.Name = "ultrasound_gel"
	m.Density, m.SpeedOfSound, m.AlphaCoefficient = acousticGel.density, acousticGel.sound, acousticGel.alpha
	return NewComposition("ultrasound_gel", models.UltrasoundGel, m)
}

// Air is optically transparent and acoustically slow
func Air() (*Composition, error) {
	m := molecule("air", 1, spectra.Constant("air_absorption", 1e-10), scatterer{mus500: 1e-10}, 1, acousticAir)
	return NewComposition("air", models.Air, m)
}

// Options parameterize Lookup
type Options struct {
	// Oxygenation overrides the default blood oxygen saturation, if set
	Oxygenation *float64

	// Mua, Mus and G are the constant optical properties of "constant"
	Mua, Mus, G float64
}

func (o Options) oxygenation(def float64) float64 {
	if o.Oxygenation != nil {
		return *o.Oxygenation
	}
	return def
}

var library = map[string]func(Options) (*Composition, error){
	"constant":         func(o Options) (*Composition, error) { return Constant(o.Mua, o.Mus, o.G) },
	"background":       func(Options) (*Composition, error) { return Background() },
	"muscle":           func(o Options) (*Composition, error) { return Muscle(o.oxygenation(BackgroundOxygenation)) },
	"soft_tissue":      func(o Options) (*Composition, error) { return SoftTissue(o.oxygenation(BackgroundOxygenation)) },
	"epidermis":        func(Options) (*Composition, error) { return Epidermis() },
	"dermis":           func(o Options) (*Composition, error) { return Dermis(o.oxygenation(DermisOxygenation)) },
	"subcutaneous_fat": func(o Options) (*Composition, error) { return SubcutaneousFat(o.oxygenation(BackgroundOxygenation)) },
	"blood":            func(o Options) (*Composition, error) { return Blood(o.oxygenation(1)) },
	"bone":             func(Options) (*Composition, error) { return Bone() },
	"water":            func(Options) (*Composition, error) { return Water() },
	"ultrasound_gel":   func(Options) (*Composition, error) { return UltrasoundGel() },
	"air":              func(Options) (*Composition, error) { return Air() },
}

// Names lists the tissues known to Lookup in alphabetical order
func Names() []string {
	names := make([]string, 0, len(library))
	for name := range library {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup builds a library tissue by name
func Lookup(name string, opts Options) (*Composition, error) {
	build, ok := library[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, &volerr.CompositionError{
			Composition: name,
			Reason:      "unknown tissue, expected one of " + strings.Join(Names(), ", "),
		}
	}
	return build(opts)
}
