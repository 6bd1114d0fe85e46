package imageio

import (
	"fmt"

	"img2physprop/internal/models"
)

// Read loads the volume at path according to opts. FormatAuto (or an empty
// format) detects the format from the path.
func Read(path string, opts Options) (*models.Volume, error) {
	format := opts.Format
	if format == "" || format == FormatAuto {
		detected, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}
	pixelType := opts.PixelType
	if pixelType == "" {
		pixelType = PixelCT
	}

	switch format {
	case FormatDICOM:
		return ReadDICOMSeries(path, pixelType)
	case FormatNIfTI:
		if pixelType == PixelRGB {
			return nil, fmt.Errorf("rgb pixels are not supported for NIfTI input")
		}
		return ReadNIfTI(path, opts.Origin)
	case FormatPNG:
		return ReadImageStack(path, pixelType, opts.Spacing, opts.Origin)
	}
	return nil, fmt.Errorf("unknown image format %q", format)
}
