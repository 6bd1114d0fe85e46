package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"img2physprop/pkg/field"
)

// WriteJSON writes {"<property>": {"<id>": value}} with ids in ascending
// numeric order. Scalar fields write plain numbers, vector fields arrays.
// Entities without a finite value are left out.
func WriteJSON(w io.Writer, f *field.PropertyField, opts Options) error {
	rs, err := rows(f, opts)
	if err != nil {
		return err
	}

	name, err := json.Marshal(opts.propertyName())
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "{\n    %s: {", name)
	first := true
	for _, r := range rs {
		if r.Value == nil || !finite(r.Value) {
			continue
		}
		var value []byte
		if len(r.Value) == 1 {
			value, err = json.Marshal(r.Value[0])
		} else {
			value, err = json.Marshal(r.Value)
		}
		if err != nil {
			return err
		}
		if !first {
			bw.WriteString(",")
		}
		first = false
		fmt.Fprintf(bw, "\n        \"%d\": %s", r.ID, value)
	}
	if !first {
		bw.WriteString("\n    ")
	}
	bw.WriteString("}\n}\n")
	return bw.Flush()
}

// WriteTXT writes one "id:v1,v2,..." line per entity with a value.
func WriteTXT(w io.Writer, f *field.PropertyField, opts Options) error {
	rs, err := rows(f, opts)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	for _, r := range rs {
		if r.Value == nil {
			continue
		}
		fmt.Fprintf(bw, "%d:%s\n", r.ID, joinValues(r.Value, ","))
	}
	return bw.Flush()
}

// csvRow is the record written by WriteCSV
type csvRow struct {
	ID     int    `csv:"id"`
	Status string `csv:"status"`
	Value  string `csv:"value"`
}

// WriteCSV writes an id,status,value table covering every entity. Vector
// values are joined with ';'; entities without a value have an empty value
// column.
func WriteCSV(w io.Writer, f *field.PropertyField, opts Options) error {
	rs, err := rows(f, opts)
	if err != nil {
		return err
	}

	records := make([]*csvRow, 0, len(rs))
	for _, r := range rs {
		records = append(records, &csvRow{
			ID:     r.ID,
			Status: r.Status.String(),
			Value:  joinValues(r.Value, ";"),
		})
	}
	return gocsv.Marshal(records, w)
}

func joinValues(v []float64, sep string) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, sep)
}
