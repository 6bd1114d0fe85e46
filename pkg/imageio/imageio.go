// Package imageio reads image data from disk into a models.Volume.
//
// Supported inputs are DICOM series (a directory of single-frame files),
// NIfTI volumes and directories of PNG/JPEG slices. Format details stay in
// this package; the rest of the module only sees volumes.
package imageio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Format names an input format
type Format string

const (
	FormatAuto  Format = "auto"
	FormatDICOM Format = "dicom"
	FormatNIfTI Format = "nifti"
	FormatPNG   Format = "png"
)

// PixelType selects how pixel values are interpreted
type PixelType string

const (
	PixelCT  PixelType = "ct"
	PixelMRT PixelType = "mrt"
	// PixelRGB keeps three channels per voxel
	PixelRGB PixelType = "rgb"
)

// Channels returns the number of values per voxel for the pixel type.
func (p PixelType) Channels() int {
	if p == PixelRGB {
		return 3
	}
	return 1
}

// ParsePixelType accepts ct, mrt and rgb.
func ParsePixelType(s string) (PixelType, error) {
	switch p := PixelType(strings.ToLower(strings.TrimSpace(s))); p {
	case PixelCT, PixelMRT, PixelRGB:
		return p, nil
	case "":
		return PixelCT, nil
	}
	return "", fmt.Errorf("unknown pixel type %q", s)
}

// Options configure Read
type Options struct {
	Format    Format
	PixelType PixelType

	// Spacing and Origin place PNG stacks, which carry no geometry
	Spacing r3.Vec
	Origin  r3.Vec
}

// DetectFormat guesses the format of path: .nii/.nii.gz files are NIfTI,
// directories holding .dcm files (or files without extension) are DICOM,
// other directories are PNG/JPEG stacks.
func DetectFormat(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	lower := strings.ToLower(path)
	if !info.IsDir() {
		if strings.HasSuffix(lower, ".nii") || strings.HasSuffix(lower, ".nii.gz") {
			return FormatNIfTI, nil
		}
		return "", fmt.Errorf("cannot detect image format of file %s", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".dcm", "":
			return FormatDICOM, nil
		case ".png", ".jpg", ".jpeg":
			return FormatPNG, nil
		}
	}
	return "", fmt.Errorf("no image files in %s", path)
}
