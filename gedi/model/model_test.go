package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/go-gedi/gedi/sphere"
)

func point(t *testing.T, lat, lon float64) sphere.Point {
	t.Helper()
	p, err := sphere.NewPoint(lat, lon)
	require.NoError(t, err)
	return p
}

func TestDecodeCSV(t *testing.T) {
	input := strings.Join([]string{
		"beam,latitude,longitude,quality_flag,degrade_flag,rh98,sensitivity",
		"BEAM0101,1.5,-60.25,1,0,25.5,0.97",
		"BEAM1000,-1.5,-60.5,0,1,12,0.8",
	}, "\n")

	table, err := DecodeCSV("G1", strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"rh98", "sensitivity"}, table.Columns)
	require.Equal(t, 2, table.Len())

	first := table.Shots[0]
	require.Equal(t, "G1", first.GranuleID)
	require.Equal(t, "BEAM0101", first.Beam)
	require.Equal(t, point(t, 1.5, -60.25), first.Point)
	require.Equal(t, 1, first.QualityFlag)
	require.Equal(t, 0, first.DegradeFlag)
	require.Equal(t, []float64{25.5, 0.97}, first.Metrics)

	second := table.Shots[1]
	require.Equal(t, "BEAM1000", second.Beam)
	require.Equal(t, 0, second.QualityFlag)
	require.Equal(t, 1, second.DegradeFlag)
}

func TestDecodeCSVWithoutBeam(t *testing.T) {
	input := "latitude,longitude,quality_flag,degrade_flag\n0,0,1,0\n"
	table, err := DecodeCSV("G1", strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	require.Empty(t, table.Shots[0].Beam)
	require.Empty(t, table.Columns)
}

func TestDecodeCSVErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"missing quality_flag", "latitude,longitude,degrade_flag\n0,0,0\n"},
		{"missing coordinates", "quality_flag,degrade_flag\n1,0\n"},
		{"bad latitude", "latitude,longitude,quality_flag,degrade_flag\nnorth,0,1,0\n"},
		{"latitude out of range", "latitude,longitude,quality_flag,degrade_flag\n91,0,1,0\n"},
		{"bad flag", "latitude,longitude,quality_flag,degrade_flag\n0,0,yes,0\n"},
		{"bad metric", "latitude,longitude,quality_flag,degrade_flag,rh98\n0,0,1,0,tall\n"},
		{"ragged row", "latitude,longitude,quality_flag,degrade_flag\n0,0,1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeCSV("G1", strings.NewReader(tc.input))
			require.Error(t, err)
		})
	}
}

func TestMerge(t *testing.T) {
	a := NewTable("rh98")
	a.Append(Shot{GranuleID: "G1", Point: point(t, 1, 1), Metrics: []float64{10}})
	b := NewTable("rh98")
	b.Append(
		Shot{GranuleID: "G2", Point: point(t, 2, 2), Metrics: []float64{20}},
		Shot{GranuleID: "G2", Point: point(t, 3, 3), Metrics: []float64{30}},
	)

	require.NoError(t, a.Merge(b))
	require.Equal(t, 3, a.Len())
	require.Equal(t, "G1", a.Shots[0].GranuleID)
	require.Equal(t, "G2", a.Shots[2].GranuleID)
}

func TestMergeIntoEmptyAdoptsColumns(t *testing.T) {
	var a Table
	b := NewTable("rh98", "sensitivity")
	b.Append(Shot{GranuleID: "G1", Point: point(t, 0, 0), Metrics: []float64{1, 2}})

	require.NoError(t, a.Merge(b))
	require.Equal(t, []string{"rh98", "sensitivity"}, a.Columns)
	require.Equal(t, 1, a.Len())
}

func TestMergeColumnMismatch(t *testing.T) {
	a := NewTable("rh98")
	a.Append(Shot{GranuleID: "G1", Point: point(t, 0, 0), Metrics: []float64{1}})
	b := NewTable("rh100")

	require.Error(t, a.Merge(b))

	c := NewTable("rh98", "sensitivity")
	require.Error(t, a.Merge(c))
}

func TestWriteCSV(t *testing.T) {
	table := NewTable("rh98")
	table.Append(
		Shot{GranuleID: "G1", Beam: "BEAM0101", Point: point(t, 1.5, -60.25), Metrics: []float64{25.5}},
		Shot{GranuleID: "G2", Beam: "BEAM1011", Point: point(t, -2, 10), Metrics: []float64{12}},
	)

	var sb strings.Builder
	require.NoError(t, table.WriteCSV(&sb))

	want := strings.Join([]string{
		"granule_id,beam,latitude,longitude,rh98",
		"G1,BEAM0101,1.5,-60.25,25.5",
		"G2,BEAM1011,-2,10,12",
		"",
	}, "\n")
	require.Equal(t, want, sb.String())
}

func TestDecodeWriteRoundTrip(t *testing.T) {
	input := "beam,latitude,longitude,quality_flag,degrade_flag,rh98\nBEAM0101,1,2,1,0,10\n"
	table, err := DecodeCSV("G1", strings.NewReader(input))
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, table.WriteCSV(&sb))
	require.Contains(t, sb.String(), "G1,BEAM0101,1,2,10")
}
