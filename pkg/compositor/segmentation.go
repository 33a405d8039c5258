package compositor

import (
	"math"
	"sort"

	"pavolume/internal/models"
	"pavolume/pkg/geometry"
	"pavolume/pkg/tissue"
	"pavolume/pkg/volerr"
)

// FromSegmentation builds the property volumes of a pre-labelled grid. Every
// voxel takes the properties of the composition its label maps to, and the
// segmentation volume holds the label of that composition.
func FromSegmentation(grid geometry.Grid, labels *models.Volume,
	mapping map[models.SegmentationClass]*tissue.Composition, wavelength float64) (*models.VoxelGrid, error) {
	if labels == nil {
		return nil, volerr.Configf("segmentation", "no label volume given")
	}
	if labels.Width != grid.Nx || labels.Height != grid.Ny || labels.Depth != grid.Nz {
		return nil, volerr.Configf("segmentation", "label volume %dx%dx%d does not match grid %dx%dx%d",
			labels.Width, labels.Height, labels.Depth, grid.Nx, grid.Ny, grid.Nz)
	}

	classes, err := classesOf(labels)
	if err != nil {
		return nil, err
	}
	resolved := make(map[models.SegmentationClass]tissue.Properties, len(classes))
	for _, class := range classes {
		comp, ok := mapping[class]
		if !ok || comp == nil {
			return nil, volerr.Configf("segmentation", "class %d has no composition", int(class))
		}
		resolved[class] = comp.Resolve(wavelength)
	}

	out := models.NewVoxelGrid(grid.Nx, grid.Ny, grid.Nz, grid.Spacing, wavelength)
	for _, p := range models.Properties {
		data := out.Volumes[p].Data
		for idx, v := range labels.Data {
			data[idx] = resolved[models.SegmentationClass(v)].Value(p)
		}
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// classesOf lists the distinct labels of a volume in ascending order
func classesOf(labels *models.Volume) ([]models.SegmentationClass, error) {
	seen := map[models.SegmentationClass]bool{}
	for idx, v := range labels.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			x, y, z := labels.Coords(idx)
			return nil, volerr.Configf("segmentation", "label %v at (%d, %d, %d) is not an integer", v, x, y, z)
		}
		seen[models.SegmentationClass(v)] = true
	}
	classes := make([]models.SegmentationClass, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes, nil
}
