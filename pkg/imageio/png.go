package imageio

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
)

// ReadImageStack loads the PNG/JPEG slices of dir as an axis-aligned volume.
// Slices are ordered by the number in their file name; slice k lies at
// origin + k*spacing.Z along z.
func ReadImageStack(dir string, pixelType PixelType, spacing, origin r3.Vec) (*models.Volume, error) {
	// Read input directory
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	// Filter and sort image files
	var imageFiles []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".png" || ext == ".jpg" || ext == ".jpeg") {
			imageFiles = append(imageFiles, e.Name())
		}
	}
	if len(imageFiles) == 0 {
		return nil, fmt.Errorf("no PNG or JPG images found in %s", dir)
	}

	sort.SliceStable(imageFiles, func(i, j int) bool {
		return extractNumber(imageFiles[i]) < extractNumber(imageFiles[j])
	})

	channels := pixelType.Channels()
	slices := make([]*models.Slice, 0, len(imageFiles))
	for k, name := range imageFiles {
		img, err := imaging.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", name, err)
		}
		b := img.Bounds()
		slices = append(slices, &models.Slice{
			Pixels:       imagePixels(img, channels),
			Rows:         b.Dy(),
			Cols:         b.Dx(),
			Channels:     channels,
			Index:        k,
			Filename:     name,
			Thickness:    spacing.Z,
			Position:     r3.Add(origin, r3.Vec{Z: float64(k) * spacing.Z}),
			RowCosine:    r3.Vec{X: 1},
			ColCosine:    r3.Vec{Y: 1},
			PixelSpacing: [2]float64{spacing.Y, spacing.X},
		})
	}

	return StackSlices(slices)
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

// imagePixels flattens img row by row. One channel yields gray values
// (16-bit images keep their full range), three yield R, G, B.
func imagePixels(img image.Image, channels int) []float64 {
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy()*channels)

	if g, ok := img.(*image.Gray16); ok && channels == 1 {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out = append(out, float64(g.Gray16At(x, y).Y))
			}
		}
		return out
	}

	var nrgba *image.NRGBA
	if channels == 1 {
		nrgba = imaging.Grayscale(img)
	} else {
		nrgba = imaging.Clone(img)
	}
	nb := nrgba.Bounds()
	for y := nb.Min.Y; y < nb.Max.Y; y++ {
		for x := nb.Min.X; x < nb.Max.X; x++ {
			off := nrgba.PixOffset(x, y)
			for c := 0; c < channels; c++ {
				out = append(out, float64(nrgba.Pix[off+c]))
			}
		}
	}
	return out
}
