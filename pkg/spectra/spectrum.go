// Package spectra provides wavelength-indexed absorption and anisotropy
// spectra and the reduced scattering law used by the tissue library.
package spectra

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// Spectrum is a tabulated quantity over wavelength in nm. Values between
// samples are linearly interpolated; queries outside the table are clamped
// to the first or last sample.
type Spectrum struct {
	name        string
	wavelengths []float64
	values      []float64
	fit         interp.PiecewiseLinear
}

// New builds a spectrum from wavelength/value pairs. The wavelengths must be
// strictly increasing and there must be at least two samples.
func New(name string, wavelengths, values []float64) (*Spectrum, error) {
	if len(wavelengths) != len(values) {
		return nil, fmt.Errorf("spectrum %s: %d wavelengths but %d values", name, len(wavelengths), len(values))
	}
	if len(wavelengths) < 2 {
		return nil, fmt.Errorf("spectrum %s: need at least two samples", name)
	}
	if !sort.Float64sAreSorted(wavelengths) {
		return nil, fmt.Errorf("spectrum %s: wavelengths must be increasing", name)
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("spectrum %s: non-finite value %v", name, v)
		}
	}

	s := &Spectrum{
		name:        name,
		wavelengths: append([]float64(nil), wavelengths...),
		values:      append([]float64(nil), values...),
	}
	if err := s.fit.Fit(s.wavelengths, s.values); err != nil {
		return nil, fmt.Errorf("spectrum %s: %w", name, err)
	}
	return s, nil
}

// Constant returns a spectrum with the same value at every wavelength
func Constant(name string, value float64) *Spectrum {
	s, err := New(name, []float64{Wavelengths[0], Wavelengths[len(Wavelengths)-1]}, []float64{value, value})
	if err != nil {
		panic(err)
	}
	return s
}

// FromFunc samples f at the standard wavelengths
func FromFunc(name string, f func(wavelength float64) float64) *Spectrum {
	values := make([]float64, len(Wavelengths))
	for i, wl := range Wavelengths {
		values[i] = f(wl)
	}
	return mustNew(name, Wavelengths, values)
}

// Name returns the spectrum name
func (s *Spectrum) Name() string {
	return s.name
}

// At returns the spectrum value at the given wavelength
func (s *Spectrum) At(wavelength float64) float64 {
	return s.fit.Predict(wavelength)
}

// Range returns the tabulated wavelength interval
func (s *Spectrum) Range() (min, max float64) {
	return s.wavelengths[0], s.wavelengths[len(s.wavelengths)-1]
}

// Scattering evaluates the reduced scattering coefficient in 1/cm at the given
// wavelength from its value at 500 nm. fRay weights the Rayleigh term, which
// falls with the fourth power of wavelength; the remainder follows a Mie power
// law with exponent bMie.
func Scattering(wavelength, mus500, fRay, bMie float64) float64 {
	x := wavelength / 500.0
	return mus500 * (fRay*math.Pow(x, -4) + (1-fRay)*math.Pow(x, -bMie))
}

func mustNew(name string, wavelengths, values []float64) *Spectrum {
	s, err := New(name, wavelengths, values)
	if err != nil {
		panic(err)
	}
	return s
}
