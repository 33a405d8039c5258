package deformation

import (
	"math"
)

// gaussianFilter smooths a 2D grid with a separable Gaussian kernel of the
// given standard deviation. The kernel is truncated at four standard
// deviations and the grid is mirrored at its edges.
func gaussianFilter(z [][]float64, sigma float64) [][]float64 {
	if sigma <= 0 {
		return z
	}
	kernel := gaussianKernel(sigma)

	nx, ny := len(z), len(z[0])
	tmp := make([][]float64, nx)
	for i := range tmp {
		tmp[i] = make([]float64, ny)
		for j := range tmp[i] {
			tmp[i][j] = convolve(kernel, ny, j, func(n int) float64 { return z[i][n] })
		}
	}

	out := make([][]float64, nx)
	for i := range out {
		out[i] = make([]float64, ny)
		for j := range out[i] {
			out[i][j] = convolve(kernel, nx, i, func(n int) float64 { return tmp[n][j] })
		}
	}
	return out
}

func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for n := -radius; n <= radius; n++ {
		w := math.Exp(-0.5 * float64(n*n) / (sigma * sigma))
		kernel[n+radius] = w
		sum += w
	}
	for n := range kernel {
		kernel[n] /= sum
	}
	return kernel
}

func convolve(kernel []float64, n, center int, at func(int) float64) float64 {
	radius := len(kernel) / 2
	v := 0.0
	for o := -radius; o <= radius; o++ {
		v += kernel[o+radius] * at(reflect(center+o, n))
	}
	return v
}

// reflect mirrors an index about the half-sample boundaries of [0, n)
func reflect(idx, n int) int {
	for idx < 0 || idx >= n {
		if idx < 0 {
			idx = -idx - 1
		}
		if idx >= n {
			idx = 2*n - idx - 1
		}
	}
	return idx
}
