// Package visualization renders slices of composed property volumes as images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"

	"pavolume/internal/models"
)

// Format is an image encoding for exported slices
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// ParseFormat accepts png, jpeg and jpg in any case. Empty selects PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "png":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	}
	return "", fmt.Errorf("unsupported image format %q", s)
}

func (f Format) extension() string {
	if f == JPEG {
		return "jpg"
	}
	return "png"
}

// Viewer renders one property volume. Scalar volumes are scaled linearly from
// their finite minimum and maximum to the full gray range; NaN renders black.
// Segmentation volumes are drawn with one colour per tissue class.
type Viewer struct {
	volume *models.Volume

	// labels selects the class colour map
	labels bool

	// lo and hi are the value range mapped to black and white
	lo, hi float64
}

// NewViewer creates a viewer of a scalar property volume
func NewViewer(volume *models.Volume) *Viewer {
	v := &Viewer{volume: volume}
	finite := make([]float64, 0, len(volume.Data))
	for _, x := range volume.Data {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			finite = append(finite, x)
		}
	}
	if len(finite) > 0 {
		v.lo, v.hi = floats.Min(finite), floats.Max(finite)
	}
	return v
}

// NewLabelViewer creates a viewer of a segmentation volume
func NewLabelViewer(volume *models.Volume) *Viewer {
	return &Viewer{volume: volume, labels: true}
}

// ForProperty picks the viewer kind matching a property of grid
func ForProperty(grid *models.VoxelGrid, p models.Property) (*Viewer, error) {
	vol, err := grid.Volume(p)
	if err != nil {
		return nil, err
	}
	if p == models.Segmentation {
		return NewLabelViewer(vol), nil
	}
	return NewViewer(vol), nil
}

// Range returns the values mapped to black and white
func (v *Viewer) Range() (lo, hi float64) {
	return v.lo, v.hi
}

func (v *Viewer) gray(x float64) color.Gray16 {
	if math.IsNaN(x) || v.hi <= v.lo {
		return color.Gray16{}
	}
	t := (x - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, math.Round(t*65535))))}
}

// labelColours are indexed by segmentation class + 1 so Generic maps to gray
var labelColours = []color.RGBA{
	{128, 128, 128, 255}, // generic
	{0, 0, 0, 255},       // air
	{178, 34, 34, 255},   // muscle
	{245, 245, 220, 255}, // bone
	{220, 0, 0, 255},     // blood
	{255, 218, 185, 255}, // epidermis
	{238, 160, 140, 255}, // dermis
	{255, 215, 0, 255},   // fat
	{64, 224, 208, 255},  // ultrasound gel
	{30, 144, 255, 255},  // water
	{0, 0, 139, 255},     // heavy water
	{255, 0, 255, 255},   // coupling artifact
	{85, 107, 47, 255},   // mediprene
}

func labelColour(x float64) color.RGBA {
	idx := int(math.Round(x)) + 1
	if math.IsNaN(x) || idx < 0 || idx >= len(labelColours) {
		return color.RGBA{255, 255, 255, 255}
	}
	return labelColours[idx]
}

// plane maps image pixels of a slice to voxel indices
func (v *Viewer) plane(axis string, position int) (w, h int, voxel func(px, py int) int, err error) {
	vol := v.volume
	if position < 0 {
		return 0, 0, nil, fmt.Errorf("position must be non-negative")
	}
	switch axis {
	case "x", "X":
		// YZ plane, z across
		if position >= vol.Width {
			return 0, 0, nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		return vol.Depth, vol.Height, func(px, py int) int { return vol.Index(position, py, px) }, nil
	case "y", "Y":
		// XZ plane, z down
		if position >= vol.Height {
			return 0, 0, nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		return vol.Width, vol.Depth, func(px, py int) int { return vol.Index(px, position, py) }, nil
	case "z", "Z":
		if position >= vol.Depth {
			return 0, 0, nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		return vol.Width, vol.Height, func(px, py int) int { return vol.Index(px, py, position) }, nil
	}
	return 0, 0, nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice renders the slice at position along axis. Scalar volumes give
// an *image.Gray16, segmentation volumes an *image.RGBA.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	w, h, voxel, err := v.plane(axis, position)
	if err != nil {
		return nil, err
	}

	if v.labels {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for py := 0; py < h; py++ {
			for px := 0; px < w; px++ {
				img.SetRGBA(px, py, labelColour(v.volume.Data[voxel(px, py)]))
			}
		}
		return img, nil
	}

	img := image.NewGray16(image.Rect(0, 0, w, h))
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			img.SetGray16(px, py, v.gray(v.volume.Data[voxel(px, py)]))
		}
	}
	return img, nil
}

// ExtractRegion copies a box of voxels into a new volume
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) (*models.Volume, error) {
	vol := v.volume
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	if startX+sizeX > vol.Width || startY+sizeY > vol.Height || startZ+sizeZ > vol.Depth {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := models.NewVolume(sizeX, sizeY, sizeZ, vol.Spacing)
	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			src := vol.Index(startX, startY+y, startZ+z)
			copy(region.Data[region.Index(0, y, z):region.Index(0, y, z)+sizeX], vol.Data[src:src+sizeX])
		}
	}
	return region, nil
}

// SaveSlice writes an image in the given format
func SaveSlice(img image.Image, filename string, format Format) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if format == JPEG {
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
	return png.Encode(file, img)
}

// SaveSliceSequence writes every slice along axis to outputDir as
// <prefix>_<axis>_NNN.<ext> and returns the number of files written
func (v *Viewer) SaveSliceSequence(axis, outputDir, prefix string, format Format) (int, error) {
	var count int
	switch axis {
	case "x", "X":
		count = v.volume.Width
	case "y", "Y":
		count = v.volume.Height
	case "z", "Z":
		count = v.volume.Depth
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}
	for pos := 0; pos < count; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}
		name := fmt.Sprintf("%s_%s_%03d.%s", prefix, strings.ToLower(axis), pos, format.extension())
		if err := SaveSlice(img, filepath.Join(outputDir, name), format); err != nil {
			return pos, err
		}
	}
	return count, nil
}
