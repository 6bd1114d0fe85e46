package imageio

import (
	"fmt"

	"github.com/carbocation/pfx"
	"github.com/henghuang/nifti"
	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
)

// SafelyNiftiParse consumes panics emitted by the nifti library, which must
// be captured in order to turn them into recoverable errors.
func SafelyNiftiParse(filename string, rdata bool) (parsedData nifti.Nifti1Image, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	parsedData.LoadImage(filename, rdata)

	return
}

// SafelyNiftiHeaderParse is SafelyNiftiParse for the header only.
func SafelyNiftiHeaderParse(filename string) (parsedData nifti.Nifti1Header, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	parsedData.LoadHeader(filename)

	return
}

// ReadNIfTI loads the first time point of a NIfTI volume. Spacing comes from
// pixdim; the volume is placed axis-aligned at origin.
func ReadNIfTI(path string, origin r3.Vec) (*models.Volume, error) {
	img, err := SafelyNiftiParse(path, true)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}
	header, err := SafelyNiftiHeaderParse(path)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	dims := img.GetDims()
	if len(dims) < 3 {
		return nil, pfx.Err(fmt.Errorf("%s: expected at least 3 dimensions, got %v", path, dims))
	}
	nx, ny, nz := dims[0], max(dims[1], 1), max(dims[2], 1)

	data := make([]float64, 0, nx*ny*nz)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				data = append(data, float64(img.GetAt(x, y, z, 0)))
			}
		}
	}

	spacing := r3.Vec{X: 1, Y: 1, Z: 1}
	if p := float64(header.Pixdim[1]); p > 0 {
		spacing.X = p
	}
	if p := float64(header.Pixdim[2]); p > 0 {
		spacing.Y = p
	}
	if p := float64(header.Pixdim[3]); p > 0 {
		spacing.Z = p
	}

	vol, err := models.NewVolume([3]int{nx, ny, nz}, spacing, origin, models.IdentityOrientation(), 1, data)
	if err != nil {
		return nil, pfx.Err(err)
	}
	return vol, nil
}
