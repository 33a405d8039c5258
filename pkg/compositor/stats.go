package compositor

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"pavolume/internal/models"
)

// Stats summarizes one property volume over its finite values
type Stats struct {
	Property models.Property
	Min      float64
	Max      float64
	Mean     float64
	StdDev   float64

	// Undefined counts the NaN voxels left out of the summary
	Undefined int
}

// Summarize returns the statistics of every property volume in output order
func Summarize(grid *models.VoxelGrid) []Stats {
	out := make([]Stats, 0, len(models.Properties))
	for _, p := range models.Properties {
		vol, ok := grid.Volumes[p]
		if !ok {
			continue
		}
		finite := make([]float64, 0, len(vol.Data))
		for _, v := range vol.Data {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				finite = append(finite, v)
			}
		}

		s := Stats{Property: p, Undefined: len(vol.Data) - len(finite)}
		if len(finite) == 0 {
			s.Min, s.Max, s.Mean, s.StdDev = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		} else {
			s.Min = floats.Min(finite)
			s.Max = floats.Max(finite)
			s.Mean, s.StdDev = stat.PopMeanStdDev(finite, nil)
		}
		out = append(out, s)
	}
	return out
}
