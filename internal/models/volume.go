package models

import (
	"fmt"
)

// Volume is a dense 3D scalar field over the simulation grid
type Volume struct {
	// Data is the 3D volume data as a 1D array, x varying fastest
	Data []float64

	// Width is the number of voxels along x
	Width int

	// Height is the number of voxels along y
	Height int

	// Depth is the number of voxels along z
	Depth int

	// Spacing is the isotropic edge length of a voxel in mm
	Spacing float64
}

// NewVolume allocates a zero-filled volume
func NewVolume(width, height, depth int, spacing float64) *Volume {
	return &Volume{
		Data:    make([]float64, width*height*depth),
		Width:   width,
		Height:  height,
		Depth:   depth,
		Spacing: spacing,
	}
}

// Index returns the position of voxel (x, y, z) in Data
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// Coords is the inverse of Index
func (v *Volume) Coords(idx int) (x, y, z int) {
	plane := v.Width * v.Height
	z = idx / plane
	rem := idx % plane
	return rem % v.Width, rem / v.Width, z
}

// At returns the value of voxel (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores a value at voxel (x, y, z)
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Fill sets every voxel to value
func (v *Volume) Fill(value float64) {
	for i := range v.Data {
		v.Data[i] = value
	}
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	c := *v
	c.Data = append([]float64(nil), v.Data...)
	return &c
}

// SameShape reports whether o has the same voxel dimensions as v
func (v *Volume) SameShape(o *Volume) bool {
	return o != nil && v.Width == o.Width && v.Height == o.Height && v.Depth == o.Depth
}

// Property names one of the per-voxel property volumes
type Property string

const (
	AbsorptionPerCm    Property = "absorption_per_cm"
	ScatteringPerCm    Property = "scattering_per_cm"
	Anisotropy         Property = "anisotropy"
	Oxygenation        Property = "oxygenation"
	Segmentation       Property = "segmentation"
	GruneisenParameter Property = "gruneisen_parameter"
	Density            Property = "density"
	SpeedOfSound       Property = "speed_of_sound"
	AlphaCoefficient   Property = "alpha_coefficient"
)

// Properties lists every property volume in output order
var Properties = []Property{
	AbsorptionPerCm,
	ScatteringPerCm,
	Anisotropy,
	Oxygenation,
	Segmentation,
	GruneisenParameter,
	Density,
	SpeedOfSound,
	AlphaCoefficient,
}

// VoxelGrid holds the property volumes of one composed simulation volume.
// Wavelength dependent properties refer to Wavelength; the acoustic
// properties and the segmentation do not depend on it.
type VoxelGrid struct {
	// Width, Height, Depth are the voxel counts along x, y and z
	Width, Height, Depth int

	// Spacing is the voxel edge length in mm
	Spacing float64

	// Wavelength in nm the optical properties were resolved at
	Wavelength float64

	// Volumes maps each property to its dense volume
	Volumes map[Property]*Volume
}

// NewVoxelGrid allocates zeroed volumes for every property
func NewVoxelGrid(width, height, depth int, spacing, wavelength float64) *VoxelGrid {
	g := &VoxelGrid{
		Width:      width,
		Height:     height,
		Depth:      depth,
		Spacing:    spacing,
		Wavelength: wavelength,
		Volumes:    make(map[Property]*Volume, len(Properties)),
	}
	for _, p := range Properties {
		g.Volumes[p] = NewVolume(width, height, depth, spacing)
	}
	return g
}

// Volume returns the volume of a property or an error if it is absent
func (g *VoxelGrid) Volume(p Property) (*Volume, error) {
	v, ok := g.Volumes[p]
	if !ok {
		return nil, fmt.Errorf("voxel grid has no %s volume", p)
	}
	return v, nil
}

// SegmentationClass is the integer label stored in the segmentation volume
type SegmentationClass int

const (
	Generic SegmentationClass = iota - 1
	Air
	Muscle
	Bone
	Blood
	Epidermis
	Dermis
	Fat
	UltrasoundGel
	Water
	HeavyWater
	CouplingArtifact
	Mediprene
)

var classNames = map[SegmentationClass]string{
	Generic:          "generic",
	Air:              "air",
	Muscle:           "muscle",
	Bone:             "bone",
	Blood:            "blood",
	Epidermis:        "epidermis",
	Dermis:           "dermis",
	Fat:              "fat",
	UltrasoundGel:    "ultrasound_gel",
	Water:            "water",
	HeavyWater:       "heavy_water",
	CouplingArtifact: "coupling_artifact",
	Mediprene:        "mediprene",
}

func (c SegmentationClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", int(c))
}
