package imageio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/dicomtag"
	"github.com/suyashkumar/dicom/element"
	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
)

// SafelyDicomParse consumes panics emitted by the dicom library and turns
// them into errors.
func SafelyDicomParse(p dicom.Parser, opts dicom.ParseOptions) (parsedData *element.DataSet, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	return p.Parse(opts)
}

// ReadDICOMSeries reads every DICOM file of dir and stacks the slices along
// their normal. Rescale slope and intercept are applied, so CT series come
// out in Hounsfield units.
func ReadDICOMSeries(dir string, pixelType PixelType) (*models.Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pfx.Err(err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".dcm" || ext == "" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, pfx.Err(fmt.Errorf("no DICOM files found in %s", dir))
	}
	sort.Strings(files)

	slices := make([]*models.Slice, 0, len(files))
	for i, path := range files {
		s, err := ReadDICOMSlice(path, pixelType)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %w", filepath.Base(path), err))
		}
		s.Index = i
		slices = append(slices, s)
	}

	return StackSlices(slices)
}

// ReadDICOMSlice decodes one single-frame DICOM file.
func ReadDICOMSlice(path string, pixelType PixelType) (*models.Slice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	p, err := dicom.NewParser(f, info.Size(), nil)
	if err != nil {
		return nil, err
	}

	parsedData, err := SafelyDicomParse(p, dicom.ParseOptions{
		DropPixelData: false,
	})
	if parsedData == nil || err != nil {
		return nil, fmt.Errorf("error reading dicom: %v", err)
	}

	s := &models.Slice{
		Filename:     filepath.Base(path),
		Channels:     pixelType.Channels(),
		RowCosine:    r3.Vec{X: 1},
		ColCosine:    r3.Vec{Y: 1},
		PixelSpacing: [2]float64{1, 1},
		Thickness:    1,
	}
	slope, intercept := 1.0, 0.0
	var raw []float64

	for _, elem := range parsedData.Elements {
		switch elem.Tag {
		case dicomtag.Rows:
			s.Rows = int(elem.Value[0].(uint16))
		case dicomtag.Columns:
			s.Cols = int(elem.Value[0].(uint16))
		case dicomtag.ImagePositionPatient:
			v, err := parseFloats(elem.Value, 3)
			if err != nil {
				return nil, fmt.Errorf("ImagePositionPatient: %w", err)
			}
			s.Position = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
		case dicomtag.ImageOrientationPatient:
			v, err := parseFloats(elem.Value, 6)
			if err != nil {
				return nil, fmt.Errorf("ImageOrientationPatient: %w", err)
			}
			s.RowCosine = r3.Unit(r3.Vec{X: v[0], Y: v[1], Z: v[2]})
			s.ColCosine = r3.Unit(r3.Vec{X: v[3], Y: v[4], Z: v[5]})
		case dicomtag.PixelSpacing:
			v, err := parseFloats(elem.Value, 2)
			if err != nil {
				return nil, fmt.Errorf("PixelSpacing: %w", err)
			}
			s.PixelSpacing = [2]float64{v[0], v[1]}
		case dicomtag.SliceThickness:
			if v, err := parseFloats(elem.Value, 1); err == nil {
				s.Thickness = v[0]
			}
		case dicomtag.RescaleSlope:
			if v, err := parseFloats(elem.Value, 1); err == nil {
				slope = v[0]
			}
		case dicomtag.RescaleIntercept:
			if v, err := parseFloats(elem.Value, 1); err == nil {
				intercept = v[0]
			}
		case dicomtag.PixelData:
			if raw, err = framePixels(elem.Value[0].(element.PixelDataInfo), s.Channels); err != nil {
				return nil, err
			}
		}
	}

	if want := s.Rows * s.Cols * s.Channels; len(raw) != want {
		return nil, fmt.Errorf("pixel data holds %d values, %dx%dx%d expected", len(raw), s.Cols, s.Rows, s.Channels)
	}
	for i, v := range raw {
		raw[i] = v*slope + intercept
	}
	s.Pixels = raw
	return s, nil
}

// framePixels flattens the first frame of the pixel data.
func framePixels(data element.PixelDataInfo, channels int) ([]float64, error) {
	if len(data.Frames) == 0 {
		return nil, fmt.Errorf("no pixel data frames")
	}
	frame := data.Frames[0]

	if frame.IsEncapsulated() {
		img, err := frame.GetImage()
		if err != nil {
			return nil, fmt.Errorf("frame is encapsulated and could not be decoded: %w", err)
		}
		return imagePixels(img, channels), nil
	}

	out := make([]float64, 0, len(frame.NativeData.Data)*channels)
	for j := 0; j < len(frame.NativeData.Data); j++ {
		sample := frame.NativeData.Data[j]
		for c := 0; c < channels; c++ {
			if c < len(sample) {
				out = append(out, float64(sample[c]))
			} else {
				out = append(out, float64(sample[0]))
			}
		}
	}
	return out, nil
}

// parseFloats parses the first n decimal-string values of a DICOM element.
func parseFloats(values []interface{}, n int) ([]float64, error) {
	if len(values) < n {
		return nil, fmt.Errorf("want %d values, got %d", n, len(values))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		str, ok := values[i].(string)
		if !ok {
			return nil, fmt.Errorf("value %d has type %T", i, values[i])
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
