// Package model defines the granule and shot data types exchanged between
// the enumeration client, the constraint systems, and the fetch pipeline.
package model

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/example/go-gedi/gedi/sphere"
)

// FullPowerBeams are the four GEDI beams operated at full power, the usual
// choice for vegetation-structure work.
var FullPowerBeams = []string{"BEAM0101", "BEAM0110", "BEAM1000", "BEAM1011"}

// Granule identifies one remote data file and its metadata document.
type Granule struct {
	ID          string
	DataURL     string
	MetadataURL string
}

// Shot is one measurement record within a granule's decoded content. The
// Metrics slice is parallel to the Columns of the Table holding the shot.
type Shot struct {
	GranuleID   string
	Beam        string
	Point       sphere.Point
	QualityFlag int
	DegradeFlag int
	Metrics     []float64
}

// Table is an ordered collection of shots sharing one metric column layout.
type Table struct {
	Columns []string
	Shots   []Shot
}

// NewTable returns an empty table with the given metric columns.
func NewTable(columns ...string) Table {
	return Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of shots in the table.
func (t Table) Len() int { return len(t.Shots) }

// Append adds shots to the table, preserving insertion order.
func (t *Table) Append(shots ...Shot) {
	t.Shots = append(t.Shots, shots...)
}

// Merge appends another table's shots. The column layouts must match.
func (t *Table) Merge(other Table) error {
	if len(t.Columns) == 0 && t.Len() == 0 {
		t.Columns = append([]string(nil), other.Columns...)
	}
	if len(t.Columns) != len(other.Columns) {
		return fmt.Errorf("model: column mismatch: %v vs %v", t.Columns, other.Columns)
	}
	for i, c := range t.Columns {
		if other.Columns[i] != c {
			return fmt.Errorf("model: column mismatch: %v vs %v", t.Columns, other.Columns)
		}
	}
	t.Shots = append(t.Shots, other.Shots...)
	return nil
}

// WriteCSV writes one row per shot: granule id, beam, the point used for
// filtering, and the metric columns.
func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"granule_id", "beam", "latitude", "longitude"}, t.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("model: write csv header: %w", err)
	}
	row := make([]string, 0, len(header))
	for _, s := range t.Shots {
		row = row[:0]
		row = append(row,
			s.GranuleID,
			s.Beam,
			strconv.FormatFloat(s.Point.Lat, 'f', -1, 64),
			strconv.FormatFloat(s.Point.Lon, 'f', -1, 64),
		)
		for _, m := range s.Metrics {
			row = append(row, strconv.FormatFloat(m, 'f', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("model: write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
