package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"img2physprop/internal/models"
	"img2physprop/pkg/pipeline"
)

var (
	colorCyan   = lipgloss.Color("36")  // primary
	colorYellow = lipgloss.Color("220") // warnings
	colorRed    = lipgloss.Color("167") // errors
	colorGray   = lipgloss.Color("245") // labels
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleLabel   = lipgloss.NewStyle().Foreground(colorGray).Width(22)
	styleNumber  = lipgloss.NewStyle().Foreground(colorCyan)
	styleWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleError   = lipgloss.NewStyle().Foreground(colorRed)
)

func printRow(w io.Writer, label string, value string) {
	fmt.Fprintln(w, styleLabel.Render(label)+value)
}

// printReport writes the summary of a finished run
func printReport(w io.Writer, r pipeline.Report) {
	fmt.Fprintln(w, styleTitle.Render("Run "+r.RunID.String()))
	printRow(w, "Volume", styleNumber.Render(fmt.Sprintf("%dx%dx%d", r.VolumeDims[0], r.VolumeDims[1], r.VolumeDims[2]))+fmt.Sprintf(" (%d channel(s))", r.Channels))
	printRow(w, "Mesh", fmt.Sprintf("%s nodes, %s elements", styleNumber.Render(fmt.Sprint(r.Nodes)), styleNumber.Render(fmt.Sprint(r.Elements))))
	printRow(w, "Entities", styleNumber.Render(fmt.Sprint(r.Summary.Total)))
	printRow(w, "Regular samples", styleNumber.Render(fmt.Sprint(r.Summary.OK)))

	fallbacks := fmt.Sprintf("%d outside image, %d centroid", r.Summary.Fallback, r.Summary.FallbackToCentroid)
	if r.Summary.Fallbacks() > 0 {
		fallbacks = styleWarning.Render(fallbacks)
	}
	printRow(w, "Fallbacks", fallbacks)
	if n := r.Summary.Errors(); n > 0 {
		printRow(w, "Errors", styleError.Render(fmt.Sprint(n)))
	}

	if r.Values.Count > 0 {
		printRow(w, "Values", fmt.Sprintf("min %g, max %g, mean %g, std %g", r.Values.Min, r.Values.Max, r.Values.Mean, r.Values.StdDev))
	}
	printRow(w, "Output", r.OutputPath)
}

// printInputs describes a loaded volume and mesh
func printInputs(w io.Writer, vol *models.Volume, mesh *models.Mesh) {
	fmt.Fprintln(w, styleTitle.Render("Image"))
	printRow(w, "Dimensions", styleNumber.Render(fmt.Sprintf("%dx%dx%d", vol.Dims[0], vol.Dims[1], vol.Dims[2])))
	printRow(w, "Channels", fmt.Sprint(vol.Channels))
	printRow(w, "Spacing (mm)", fmt.Sprintf("%g x %g x %g", vol.Spacing.X, vol.Spacing.Y, vol.Spacing.Z))
	printRow(w, "Origin", fmt.Sprintf("(%g, %g, %g)", vol.Origin.X, vol.Origin.Y, vol.Origin.Z))
	lo, hi := vol.Range()
	printRow(w, "Intensity range", fmt.Sprintf("[%g, %g]", lo, hi))

	fmt.Fprintln(w, styleTitle.Render("Mesh"))
	printRow(w, "Nodes", styleNumber.Render(fmt.Sprint(len(mesh.Nodes))))
	printRow(w, "Elements", styleNumber.Render(fmt.Sprint(len(mesh.Elements))))

	types := make(map[models.ElementType]int)
	materials := make(map[int]int)
	for _, e := range mesh.Elements {
		types[e.Type]++
		materials[e.Material]++
	}
	keys := make([]models.ElementType, 0, len(types))
	for t := range types {
		keys = append(keys, t)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, t := range keys {
		printRow(w, "  "+t.String(), fmt.Sprint(types[t]))
	}
	printRow(w, "Materials", fmt.Sprint(len(materials)))
	min, max := mesh.Bounds()
	printRow(w, "Bounds", fmt.Sprintf("(%g, %g, %g) - (%g, %g, %g)", min.X, min.Y, min.Z, max.X, max.Y, max.Z))
}
