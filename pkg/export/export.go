// Package export writes a property field to disk in the formats downstream
// solvers and viewers read.
package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"

	"img2physprop/internal/models"
	"img2physprop/pkg/field"
)

// Format names an export file format
type Format string

const (
	FormatAuto Format = "auto"
	FormatJSON Format = "json"
	FormatTXT  Format = "txt"
	FormatCSV  Format = "csv"
	FormatVTK  Format = "vtk"
)

// ParseFormat accepts the format names; "vtu" is read as vtk.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatJSON, FormatTXT, FormatCSV, FormatVTK:
		return f, nil
	case "vtu":
		return FormatVTK, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// DetectFormat picks the format from the extension of path.
func DetectFormat(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	f, err := ParseFormat(ext)
	if err != nil || f == FormatAuto {
		return "", fmt.Errorf("cannot infer export format from %q", path)
	}
	return f, nil
}

// Options controls how values are written
type Options struct {
	Format       Format
	PropertyName string

	// OneBasedIDs adds one to every exported id
	OneBasedIDs bool

	// Normalize maps values from NormalizeRange onto [0,1]
	Normalize      bool
	NormalizeRange [2]float64
}

// row is one exported entity
type row struct {
	ID     int
	Status field.Status
	Value  []float64
}

// rows lists the entities of f in ascending id order with ids shifted and
// values normalized per opts. Entities without a value keep a nil Value.
func rows(f *field.PropertyField, opts Options) ([]row, error) {
	lo, hi := opts.NormalizeRange[0], opts.NormalizeRange[1]
	if opts.Normalize && !(hi > lo) {
		return nil, fmt.Errorf("normalization range [%g, %g] is empty", lo, hi)
	}

	ids := f.IDs()
	out := make([]row, 0, len(ids))
	for _, id := range ids {
		rec, _ := f.Record(id)
		r := row{ID: id, Status: rec.Status}
		if opts.OneBasedIDs {
			r.ID++
		}
		if rec.Value != nil {
			r.Value = append([]float64(nil), rec.Value...)
			if opts.Normalize {
				floats.AddConst(-lo, r.Value)
				floats.Scale(1/(hi-lo), r.Value)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (o Options) propertyName() string {
	if o.PropertyName == "" {
		return "property"
	}
	return o.PropertyName
}

// Write encodes f in opts.Format. The VTK format needs mesh for geometry;
// the others ignore it.
func Write(w io.Writer, f *field.PropertyField, mesh *models.Mesh, opts Options) error {
	switch opts.Format {
	case FormatJSON:
		return WriteJSON(w, f, opts)
	case FormatTXT:
		return WriteTXT(w, f, opts)
	case FormatCSV:
		return WriteCSV(w, f, opts)
	case FormatVTK:
		if mesh == nil {
			return fmt.Errorf("vtk export needs the mesh")
		}
		return WriteVTK(w, f, mesh, opts)
	}
	return fmt.Errorf("unknown export format %q", opts.Format)
}

// WriteFile writes f to path, creating missing parent directories. An auto
// format is picked from the path extension.
func WriteFile(path string, f *field.PropertyField, mesh *models.Mesh, opts Options) error {
	if opts.Format == "" || opts.Format == FormatAuto {
		format, err := DetectFormat(path)
		if err != nil {
			return err
		}
		opts.Format = format
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	bw := bufio.NewWriter(out)
	if err := Write(bw, f, mesh, opts); err != nil {
		out.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// finite reports whether every value can be written as a plain number.
func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
