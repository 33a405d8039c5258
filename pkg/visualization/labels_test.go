package visualization

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"pavolume/internal/models"
)

// TestLabelSlicesRoundTrip verifies saved label slices load back unchanged
func TestLabelSlicesRoundTrip(t *testing.T) {
	vol := models.NewVolume(4, 3, 12, 0.25)
	for idx := range vol.Data {
		vol.Data[idx] = float64(idx % 7)
	}
	dir := t.TempDir()
	if err := SaveLabelSlices(vol, dir, "labels"); err != nil {
		t.Fatalf("SaveLabelSlices failed: %v", err)
	}

	got, err := LoadLabelSlices(dir, 0.25)
	if err != nil {
		t.Fatalf("LoadLabelSlices failed: %v", err)
	}
	if !got.SameShape(vol) || got.Spacing != 0.25 {
		t.Fatalf("Expected 4x3x12 of 0.25 mm, got %dx%dx%d of %v", got.Width, got.Height, got.Depth, got.Spacing)
	}
	for idx := range vol.Data {
		if got.Data[idx] != vol.Data[idx] {
			x, y, z := vol.Coords(idx)
			t.Fatalf("Expected label %v at (%d, %d, %d), got %v", vol.Data[idx], x, y, z, got.Data[idx])
		}
	}
}

// TestLoadLabelSlicesOrder verifies slices are ordered numerically
func TestLoadLabelSlicesOrder(t *testing.T) {
	dir := t.TempDir()
	for _, s := range []struct {
		name  string
		label uint8
	}{{"slice_10.png", 3}, {"slice_2.png", 1}, {"slice_9.png", 2}} {
		img := image.NewGray(image.Rect(0, 0, 1, 1))
		img.SetGray(0, 0, color.Gray{Y: s.label})
		if err := SaveSlice(img, filepath.Join(dir, s.name), PNG); err != nil {
			t.Fatalf("SaveSlice failed: %v", err)
		}
	}
	// ignored
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	vol, err := LoadLabelSlices(dir, 1)
	if err != nil {
		t.Fatalf("LoadLabelSlices failed: %v", err)
	}
	for z, want := range []float64{1, 2, 3} {
		if got := vol.At(0, 0, z); got != want {
			t.Errorf("Expected label %v in slice %d, got %v", want, z, got)
		}
	}
}

// TestLabelSlicesErrors verifies unusable inputs are rejected
func TestLabelSlicesErrors(t *testing.T) {
	if _, err := LoadLabelSlices(t.TempDir(), 1); err == nil {
		t.Error("Expected error for a directory without slices")
	}

	dir := t.TempDir()
	for name, size := range map[string]int{"a_0.png": 2, "a_1.png": 3} {
		if err := SaveSlice(image.NewGray(image.Rect(0, 0, size, size)), filepath.Join(dir, name), PNG); err != nil {
			t.Fatalf("SaveSlice failed: %v", err)
		}
	}
	if _, err := LoadLabelSlices(dir, 1); err == nil {
		t.Error("Expected error for slices of different sizes")
	}

	vol := models.NewVolume(1, 1, 1, 1)
	vol.Fill(-1)
	if err := SaveLabelSlices(vol, t.TempDir(), "neg"); err == nil {
		t.Error("Expected error for a negative label")
	}
}
