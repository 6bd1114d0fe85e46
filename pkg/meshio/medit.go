package meshio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
)

// Volume element sections and the element type they hold
var meditElements = map[string]models.ElementType{
	"tetrahedra": models.Tet4,
	"hexahedra":  models.Hex8,
	"prisms":     models.Wedge6,
	"pyramids":   models.Pyramid5,
}

// Sections read and discarded, with the number of values per entry
var meditSkipped = map[string]int{
	"edges":             3,
	"triangles":         4,
	"quadrilaterals":    5,
	"corners":           1,
	"ridges":            1,
	"requiredvertices":  1,
	"requirededges":     1,
	"requiredtriangles": 1,
}

// ReadMedit parses a Medit ASCII mesh. Nodes are numbered from 1 in file
// order and volume elements from 1 across all element sections. The
// reference column of an element becomes its material id.
func ReadMedit(r io.Reader) (*models.Mesh, error) {
	tok := newTokenizer(r)

	var nodes []models.Node
	var elements []models.Element

	for {
		word, err := tok.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		keyword := strings.ToLower(word)
		switch {
		case keyword == "end":
			return models.NewMesh(nodes, elements)

		case keyword == "meshversionformatted":
			if _, err := tok.readInt(); err != nil {
				return nil, err
			}

		case keyword == "dimension":
			dim, err := tok.readInt()
			if err != nil {
				return nil, err
			}
			if dim != 3 {
				return nil, fmt.Errorf("line %d: only 3D meshes are supported, got dimension %d", tok.line, dim)
			}

		case keyword == "vertices":
			n, err := tok.count()
			if err != nil {
				return nil, err
			}
			for v := 0; v < n; v++ {
				var xyz [3]float64
				for c := range xyz {
					if xyz[c], err = tok.readFloat(); err != nil {
						return nil, err
					}
				}
				if _, err := tok.readInt(); err != nil {
					return nil, err
				}
				nodes = append(nodes, models.Node{
					ID:    len(nodes) + 1,
					Coord: r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]},
				})
			}

		default:
			if typ, ok := meditElements[keyword]; ok {
				n, err := tok.count()
				if err != nil {
					return nil, err
				}
				for e := 0; e < n; e++ {
					ids := make([]int, typ.NodeCount())
					for c := range ids {
						if ids[c], err = tok.readInt(); err != nil {
							return nil, err
						}
					}
					ref, err := tok.readInt()
					if err != nil {
						return nil, err
					}
					elements = append(elements, models.Element{
						ID:       len(elements) + 1,
						NodeIDs:  ids,
						Type:     typ,
						Material: ref,
					})
				}
				continue
			}

			width, ok := meditSkipped[keyword]
			if !ok {
				return nil, fmt.Errorf("line %d: unsupported section %q", tok.line, word)
			}
			n, err := tok.count()
			if err != nil {
				return nil, err
			}
			for i := 0; i < n*width; i++ {
				if _, err := tok.value(); err != nil {
					return nil, err
				}
			}
		}
	}

	return nil, fmt.Errorf("missing End keyword")
}

// tokenizer splits a Medit file into whitespace separated words, dropping
// '#' comments.
type tokenizer struct {
	sc    *bufio.Scanner
	words []string
	line  int
}

func newTokenizer(r io.Reader) *tokenizer {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &tokenizer{sc: sc}
}

func (t *tokenizer) next() (string, error) {
	for len(t.words) == 0 {
		if !t.sc.Scan() {
			if err := t.sc.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		t.line++
		text := t.sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		t.words = strings.Fields(text)
	}
	w := t.words[0]
	t.words = t.words[1:]
	return w, nil
}

func (t *tokenizer) value() (string, error) {
	w, err := t.next()
	if err == io.EOF {
		return "", fmt.Errorf("line %d: unexpected end of file", t.line)
	}
	return w, err
}

func (t *tokenizer) readInt() (int, error) {
	w, err := t.value()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(w)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid integer %q", t.line, w)
	}
	return n, nil
}

func (t *tokenizer) readFloat() (float64, error) {
	w, err := t.value()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid number %q", t.line, w)
	}
	return f, nil
}

func (t *tokenizer) count() (int, error) {
	n, err := t.readInt()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("line %d: negative entry count %d", t.line, n)
	}
	return n, nil
}
