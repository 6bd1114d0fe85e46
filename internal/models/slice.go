package models

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Slice represents a single decoded 2D image slice with its placement in
// physical space
type Slice struct {
	// Pixels holds Rows*Cols*Channels values, row-major
	Pixels []float64

	// Rows and Cols are the image dimensions in pixels
	Rows, Cols int

	// Channels is the number of values per pixel
	Channels int

	// Index is the position of this slice in the sequence as read
	Index int

	// Filename is the original filename of the slice
	Filename string

	// Thickness is the physical thickness of the slice in mm
	Thickness float64

	// Position is the physical coordinate of the centre of the first pixel
	Position r3.Vec

	// RowCosine is the direction in which the column index grows (along a row)
	RowCosine r3.Vec

	// ColCosine is the direction in which the row index grows (down a column)
	ColCosine r3.Vec

	// PixelSpacing is the physical distance between rows and between columns
	PixelSpacing [2]float64
}

// Normal is the unit slice normal, RowCosine x ColCosine.
func (s *Slice) Normal() r3.Vec {
	return r3.Unit(r3.Cross(s.RowCosine, s.ColCosine))
}

// Depth is the position of the slice along its own normal, used to order a
// stack of parallel slices.
func (s *Slice) Depth() float64 {
	return r3.Dot(s.Position, s.Normal())
}
