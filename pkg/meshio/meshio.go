// Package meshio reads finite-element meshes from disk.
//
// Two formats are understood, chosen by file extension:
//
//   - .mesh: Medit ASCII meshes; the element reference becomes the material
//   - .dat:  4C input files; the MAT option of a structure element becomes
//     the material
package meshio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"img2physprop/internal/models"
)

// ReadFile reads the mesh at path in the format named by its extension.
func ReadFile(path string) (*models.Mesh, error) {
	var read func(io.Reader) (*models.Mesh, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mesh":
		read = ReadMedit
	case ".dat":
		read = ReadDat
	default:
		return nil, fmt.Errorf("%s: unsupported mesh format (want .mesh or .dat)", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mesh, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mesh, nil
}
