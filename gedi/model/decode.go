package model

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/example/go-gedi/gedi/sphere"
)

// Column names required of decoded granule content. Any remaining columns
// are carried through as measurement metrics.
const (
	colLatitude  = "latitude"
	colLongitude = "longitude"
	colQuality   = "quality_flag"
	colDegrade   = "degrade_flag"
	colBeam      = "beam"
)

// DecodeCSV decodes a delimited-text granule subset into a Table. The header
// must name latitude, longitude, quality_flag and degrade_flag columns; a
// beam column is optional; everything else becomes a metric column in header
// order. Row order is preserved.
func DecodeCSV(granuleID string, r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return Table{}, fmt.Errorf("model: read csv header: %w", err)
	}
	// ReuseRecord recycles the slice; keep a stable copy of the header.
	header = append([]string(nil), header...)

	idx := map[string]int{}
	var metricCols []string
	var metricIdx []int
	for i, name := range header {
		switch name {
		case colLatitude, colLongitude, colQuality, colDegrade, colBeam:
			idx[name] = i
		default:
			metricCols = append(metricCols, name)
			metricIdx = append(metricIdx, i)
		}
	}
	for _, required := range []string{colLatitude, colLongitude, colQuality, colDegrade} {
		if _, ok := idx[required]; !ok {
			return Table{}, fmt.Errorf("model: csv missing %q column", required)
		}
	}

	table := NewTable(metricCols...)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("model: read csv row: %w", err)
		}
		lat, err := strconv.ParseFloat(record[idx[colLatitude]], 64)
		if err != nil {
			return Table{}, fmt.Errorf("model: bad latitude %q: %w", record[idx[colLatitude]], err)
		}
		lon, err := strconv.ParseFloat(record[idx[colLongitude]], 64)
		if err != nil {
			return Table{}, fmt.Errorf("model: bad longitude %q: %w", record[idx[colLongitude]], err)
		}
		point, err := sphere.NewPoint(lat, lon)
		if err != nil {
			return Table{}, fmt.Errorf("model: %w", err)
		}
		quality, err := strconv.Atoi(record[idx[colQuality]])
		if err != nil {
			return Table{}, fmt.Errorf("model: bad quality_flag %q: %w", record[idx[colQuality]], err)
		}
		degrade, err := strconv.Atoi(record[idx[colDegrade]])
		if err != nil {
			return Table{}, fmt.Errorf("model: bad degrade_flag %q: %w", record[idx[colDegrade]], err)
		}
		shot := Shot{
			GranuleID:   granuleID,
			Point:       point,
			QualityFlag: quality,
			DegradeFlag: degrade,
			Metrics:     make([]float64, len(metricIdx)),
		}
		if i, ok := idx[colBeam]; ok {
			shot.Beam = record[i]
		}
		for j, col := range metricIdx {
			m, err := strconv.ParseFloat(record[col], 64)
			if err != nil {
				return Table{}, fmt.Errorf("model: bad metric %q: %w", header[col], err)
			}
			shot.Metrics[j] = m
		}
		table.Append(shot)
	}
	return table, nil
}
