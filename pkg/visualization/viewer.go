package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
	"img2physprop/pkg/field"
	"img2physprop/pkg/grid"
)

// MarkerRadius is the radius in pixels of the dots drawn for mesh entities.
const MarkerRadius = 1.5

// Viewer renders planar slices of a volume, optionally with the entities of
// a property field drawn on top.
type Viewer struct {
	vol    *models.Volume
	mapper *grid.Mapper

	// intensity window used for the gray levels
	lo, hi float64
}

// NewViewer creates a viewer windowed to the full intensity range of vol.
func NewViewer(vol *models.Volume) (*Viewer, error) {
	mapper, err := grid.NewMapper(vol)
	if err != nil {
		return nil, err
	}
	lo, hi := vol.Range()
	return &Viewer{vol: vol, mapper: mapper, lo: lo, hi: hi}, nil
}

// axisIndex maps x, y and z to index axes 0, 1 and 2.
func axisIndex(axis string) (int, error) {
	switch strings.ToLower(axis) {
	case "x":
		return 0, nil
	case "y":
		return 1, nil
	case "z":
		return 2, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// planeAxes returns the index axes drawn along the image columns and rows
// for a slice normal to axis: x slices show (z, y), y slices (x, z) and z
// slices (x, y).
func planeAxes(axis int) (col, row int) {
	switch axis {
	case 0:
		return 2, 1
	case 1:
		return 0, 2
	}
	return 0, 1
}

func (v *Viewer) gray(x float64) uint16 {
	if math.IsNaN(x) || v.hi <= v.lo {
		return 0
	}
	return uint16(math.Max(0, math.Min(65535, (x-v.lo)/(v.hi-v.lo)*65535)))
}

// ExtractSlice extracts the 2D slice at the given index position normal to
// axis. Single channel volumes give a Gray16 image, RGB volumes an NRGBA
// image of the first three channels.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= v.vol.Dims[a] {
		return nil, fmt.Errorf("position %d outside [0, %d)", position, v.vol.Dims[a])
	}

	col, row := planeAxes(a)
	w, h := v.vol.Dims[col], v.vol.Dims[row]
	var idx [3]int
	idx[a] = position

	if v.vol.Channels >= 3 {
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				idx[col], idx[row] = x, y
				px := v.vol.VoxelAt(idx[0], idx[1], idx[2])
				img.SetNRGBA(x, y, color.NRGBA{
					R: uint8(v.gray(px[0]) >> 8),
					G: uint8(v.gray(px[1]) >> 8),
					B: uint8(v.gray(px[2]) >> 8),
					A: 255,
				})
			}
		}
		return img, nil
	}

	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx[col], idx[row] = x, y
			img.SetGray16(x, y, color.Gray16{Y: v.gray(v.vol.IntensityAt(idx[0], idx[1], idx[2]))})
		}
	}
	return img, nil
}

// ExtractRegion extracts a 3D subregion from the volume
func (v *Viewer) ExtractRegion(start, size [3]int) (*models.Volume, error) {
	var end [3]int
	for a := range start {
		if start[a] < 0 {
			return nil, fmt.Errorf("start coordinates must be non-negative")
		}
		if size[a] <= 0 {
			return nil, fmt.Errorf("size dimensions must be positive")
		}
		end[a] = start[a] + size[a]
		if end[a] > v.vol.Dims[a] {
			return nil, fmt.Errorf("region extends beyond volume boundaries")
		}
	}
	return v.vol.Crop(start, end)
}

// marker is a field entity projected onto a slice
type marker struct {
	x, y  float64
	value float64
}

// markers projects the valued entities of f lying within half a voxel of
// the slice. Node fields use node coordinates, element fields centroids.
func (v *Viewer) markers(axis, position int, mesh *models.Mesh, f *field.PropertyField) []marker {
	col, row := planeAxes(axis)

	var out []marker
	add := func(id int, p r3.Vec) {
		value, ok := f.Scalar(id)
		if !ok {
			return
		}
		q := v.mapper.ToVoxelSpace(p)
		c := [3]float64{q.X, q.Y, q.Z}
		if math.Abs(c[axis]-float64(position)) > 0.5 {
			return
		}
		// voxel centres sit at pixel centres
		out = append(out, marker{x: c[col] + 0.5, y: c[row] + 0.5, value: value})
	}

	if f.Granularity() == field.Node {
		for _, n := range mesh.Nodes {
			add(n.ID, n.Coord)
		}
	} else {
		for _, e := range mesh.Elements {
			add(e.ID, mesh.Centroid(e))
		}
	}
	return out
}

// Overlay draws the entities of f near the slice on top of img, coloured
// from blue (lowest value) to red (highest).
func (v *Viewer) Overlay(img image.Image, axis string, position int, mesh *models.Mesh, f *field.PropertyField) (image.Image, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}
	ms := v.markers(a, position, mesh, f)

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, m := range ms {
		lo, hi = math.Min(lo, m.value), math.Max(hi, m.value)
	}

	dc := gg.NewContextForImage(img)
	for _, m := range ms {
		t := 0.5
		if hi > lo {
			t = (m.value - lo) / (hi - lo)
		}
		dc.SetRGB(t, 0, 1-t)
		dc.DrawCircle(m.x, m.y, MarkerRadius)
		dc.Fill()
	}
	return dc.Image(), nil
}

// SaveSlice saves an extracted slice; the format follows the file extension
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	return imaging.Save(img, filename, imaging.JPEGQuality(90))
}

// SaveSliceSequence extracts and saves every slice along the specified axis
// as PNG. When f is not nil its entities are drawn on each slice.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string, mesh *models.Mesh, f *field.PropertyField) error {
	a, err := axisIndex(axis)
	if err != nil {
		return err
	}
	if f != nil && mesh == nil {
		return fmt.Errorf("drawing a field needs the mesh")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.vol.Dims[a]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		if f != nil {
			if img, err = v.Overlay(img, axis, pos, mesh, f); err != nil {
				return err
			}
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", strings.ToLower(axis), pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
