package spectra

import (
	"math"
)

// Wavelengths are the sampling points of the built-in tables in nm
var Wavelengths = []float64{450, 500, 550, 600, 650, 700, 750, 800, 850, 900, 950, 1000}

// Absorption coefficients in 1/cm of the pure molecular species at the
// standard wavelengths.
var (
	// OxyHemoglobin is whole blood at full oxygen saturation
	OxyHemoglobin = mustNew("oxyhemoglobin", Wavelengths,
		[]float64{336, 112, 230, 17, 2, 1.6, 2.8, 4.4, 5.7, 6.4, 6.4, 5.6})

	// DeoxyHemoglobin is whole blood at zero oxygen saturation
	DeoxyHemoglobin = mustNew("deoxyhemoglobin", Wavelengths,
		[]float64{553, 112, 286, 79, 20.1, 9.6, 7.5, 4.1, 3.7, 4.1, 3.2, 1.8})

	WaterAbsorption = mustNew("water", Wavelengths,
		[]float64{0.00015, 0.00025, 0.00057, 0.0023, 0.0032, 0.006, 0.026, 0.020, 0.043, 0.068, 0.39, 0.36})

	Melanin = mustNew("melanin", Wavelengths,
		[]float64{964.3, 697.8, 489.3, 372.7, 262.7, 219.0, 167.97, 134.18, 108.66, 89.06, 73.79, 61.72})

	// SkinBaseline is the bloodless background absorption of skin
	SkinBaseline = FromFunc("skin_baseline", func(wl float64) float64 {
		return 0.244 + 85.3*math.Exp(-(wl-154)/66.2)
	})

	// MuscleBaseline is the bloodless, water-free absorption of muscle fibres
	MuscleBaseline = mustNew("muscle_baseline", Wavelengths,
		[]float64{8, 6, 5, 4, 2.8016, 1.2707, 1.0501, 0.7254, 0.7428, 0.7379, 0.5071, 0.5071})

	FatAbsorption = mustNew("fat", Wavelengths,
		[]float64{0.08, 0.05, 0.03, 0.025, 0.02, 0.02, 0.025, 0.02, 0.03, 0.08, 0.06, 0.05})

	BoneAbsorption = Constant("bone", 1.8)
)
