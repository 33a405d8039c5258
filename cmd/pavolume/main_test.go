package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pavolume/internal/models"
	"pavolume/pkg/config"
	"pavolume/pkg/visualization"
)

// TestLibraryCommand verifies every tissue is listed
func TestLibraryCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"library", "--wavelength", "750"})
	if err := root.Execute(); err != nil {
		t.Fatalf("library failed: %v", err)
	}
	for _, name := range []string{"blood", "epidermis", "ultrasound_gel"} {
		if !strings.Contains(out.String(), name) {
			t.Errorf("Expected %s in library listing", name)
		}
	}
}

// TestInitConfigAndBuild verifies a written default scene builds and exports slices
func TestInitConfigAndBuild(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping build in short mode")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")

	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"init-config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("init-config failed: %v", err)
	}

	slices := filepath.Join(dir, "slices")
	var out bytes.Buffer
	root = newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"build", "--config", path, "--slices", slices, "--format", "jpeg"})
	if err := root.Execute(); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !strings.Contains(out.String(), "absorption_per_cm") {
		t.Error("Expected property summary in output")
	}
	if _, err := os.Stat(filepath.Join(slices, "800nm", "segmentation_z_000.jpg")); err != nil {
		t.Errorf("Expected exported segmentation slice: %v", err)
	}
}

// TestBuildFromLabels verifies the labels flag builds from a label volume
func TestBuildFromLabels(t *testing.T) {
	dir := t.TempDir()
	labels := models.NewVolume(3, 3, 2, 1)
	labels.Set(1, 1, 1, 1)
	labelDir := filepath.Join(dir, "labels")
	if err := visualization.SaveLabelSlices(labels, labelDir, "seg"); err != nil {
		t.Fatalf("SaveLabelSlices failed: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Volume.Spacing = 1
	cfg.Volume.DimX, cfg.Volume.DimY, cfg.Volume.DimZ = 3, 3, 2
	cfg.Segmentation.Classes = []config.ClassConfig{
		{Label: 0, Composition: "ultrasound_gel"},
		{Label: 1, Composition: "blood"},
	}
	path := filepath.Join(dir, "scene.yaml")
	if err := config.SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"build", "--config", path, "--labels", labelDir})
	if err := root.Execute(); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !strings.Contains(out.String(), "3x3x2 voxels") {
		t.Errorf("Expected a 3x3x2 volume summary, got %q", out.String())
	}
}
