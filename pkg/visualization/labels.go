package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"pavolume/internal/models"
)

var sliceNumber = regexp.MustCompile(`(\d+)\D*$`)

// extractNumber returns the last number in a file name, or -1 without one
func extractNumber(name string) int {
	m := sliceNumber.FindStringSubmatch(name)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}

// LoadLabelSlices reads a segmentation volume from a directory of PNG z
// slices. Slices are ordered by the last number in their file names and the
// gray level of each pixel is its class label.
func LoadLabelSlices(dir string, spacing float64) (*models.Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no PNG slices found in %s", dir)
	}
	sort.SliceStable(files, func(i, j int) bool {
		ni, nj := extractNumber(files[i]), extractNumber(files[j])
		if ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})

	var vol *models.Volume
	for z, name := range files {
		img, err := loadPNG(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load slice %s: %w", name, err)
		}
		b := img.Bounds()
		if vol == nil {
			vol = models.NewVolume(b.Dx(), b.Dy(), len(files), spacing)
		} else if b.Dx() != vol.Width || b.Dy() != vol.Height {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d", name, b.Dx(), b.Dy(), vol.Width, vol.Height)
		}
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				vol.Set(x, y, z, float64(g.Y))
			}
		}
	}
	return vol, nil
}

// SaveLabelSlices writes a segmentation volume as 8-bit gray PNG z slices that
// LoadLabelSlices reads back. Labels must lie in [0, 255].
func SaveLabelSlices(vol *models.Volume, outputDir, prefix string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	for z := 0; z < vol.Depth; z++ {
		img := image.NewGray(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				v := vol.At(x, y, z)
				if v < 0 || v > 255 || v != float64(int(v)) {
					return fmt.Errorf("label %v at (%d, %d, %d) does not fit a gray level", v, x, y, z)
				}
				img.SetGray(x, y, color.Gray{Y: uint8(v)})
			}
		}
		name := fmt.Sprintf("%s_z_%03d.png", prefix, z)
		if err := SaveSlice(img, filepath.Join(outputDir, name), PNG); err != nil {
			return err
		}
	}
	return nil
}

func loadPNG(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return png.Decode(file)
}
