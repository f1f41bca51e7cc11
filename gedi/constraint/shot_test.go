package constraint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/go-gedi/gedi/model"
	"github.com/example/go-gedi/gedi/sphere"
)

func shotAt(lat, lon float64) model.Shot {
	return model.Shot{
		Point:       sphere.Point{Lat: lat, Lon: sphere.NormalizeLon(lon)},
		QualityFlag: 1,
		DegradeFlag: 0,
	}
}

func TestQualityConstraint(t *testing.T) {
	c := Quality()
	require.True(t, c.Keep(shotAt(0, 0)))

	degraded := shotAt(0, 0)
	degraded.DegradeFlag = 1
	require.False(t, c.Keep(degraded))

	offNominal := shotAt(0, 0)
	offNominal.QualityFlag = 0
	require.False(t, c.Keep(offNominal))
}

func TestLatLonBoxInclusiveBounds(t *testing.T) {
	box, err := NewLatLonBox(-10, 10, -20, 20)
	require.NoError(t, err)

	require.True(t, box.Keep(shotAt(0, 0)))
	require.True(t, box.Keep(shotAt(10, 20)), "corner is inclusive")
	require.True(t, box.Keep(shotAt(-10, -20)), "corner is inclusive")
	require.False(t, box.Keep(shotAt(10.001, 0)))
	require.False(t, box.Keep(shotAt(0, 20.001)))

	bad := shotAt(0, 0)
	bad.QualityFlag = 0
	require.False(t, box.Keep(bad), "quality screen applies before the box")
}

func TestLatLonBoxAntimeridian(t *testing.T) {
	box, err := NewLatLonBox(-5, 5, 170, -170)
	require.NoError(t, err)

	require.True(t, box.Keep(shotAt(0, 175)))
	require.True(t, box.Keep(shotAt(0, -175)))
	require.True(t, box.Keep(shotAt(0, 180)))
	require.True(t, box.Keep(shotAt(0, 170)), "western edge inclusive")
	require.True(t, box.Keep(shotAt(0, -170)), "eastern edge inclusive")
	require.False(t, box.Keep(shotAt(0, 0)))
	require.False(t, box.Keep(shotAt(0, 169)))
	require.False(t, box.Keep(shotAt(6, 180)))
}

func TestLatLonBoxFullLongitudeCircle(t *testing.T) {
	box, err := NewLatLonBox(-90, 90, -180, 180)
	require.NoError(t, err)
	for _, lon := range []float64{-180, -90, 0, 90, 180} {
		require.True(t, box.Keep(shotAt(0, lon)), "lon %v", lon)
	}
}

func TestLatLonBoxValidation(t *testing.T) {
	_, err := NewLatLonBox(10, -10, 0, 20)
	require.Error(t, err)
	_, err = NewLatLonBox(-100, 10, 0, 20)
	require.Error(t, err)
}

func TestLatLonBoxMatchesCongruentBoundary(t *testing.T) {
	// A rectangle narrow in latitude near the equator, where the boundary's
	// geodesic sides hug the parallels. Grid points keep a margin from the
	// east-west sides, and meridian edges are sampled exactly: those are
	// true geodesics, so verdicts must agree there too.
	box, err := NewLatLonBox(-4, 4, -10, 10)
	require.NoError(t, err)
	b := boundary(t, 4, -10, 4, 10, -4, 10, -4, -10)

	for lat := -8.0; lat <= 8.0; lat += 1 {
		for lon := -16.0; lon <= 16.0; lon += 2 {
			if lat > 3 && lat < 5 || lat < -3 && lat > -5 {
				continue // within the geodesic sag band of the parallel sides
			}
			got := b.Contains(sphere.Point{Lat: lat, Lon: lon})
			want := box.Keep(shotAt(lat, lon))
			require.Equal(t, want, got, "point (%v, %v)", lat, lon)
		}
	}
	for _, p := range []sphere.Point{{Lat: 0, Lon: 10}, {Lat: 0, Lon: -10}, {Lat: 2, Lon: 10}, {Lat: -2, Lon: -10}} {
		require.True(t, b.Contains(p), "meridian edge point %+v", p)
		require.True(t, box.Keep(shotAt(p.Lat, p.Lon)), "meridian edge point %+v", p)
	}
}

func TestBufferAgainstKnownDistance(t *testing.T) {
	// One degree of latitude at the equator is just over 111 km.
	ref := sphere.Point{Lat: 0, Lon: 0}
	probe := shotAt(1, 0)

	tight, err := NewBuffer(100, []sphere.Point{ref})
	require.NoError(t, err)
	require.False(t, tight.Keep(probe))

	loose, err := NewBuffer(120, []sphere.Point{ref})
	require.NoError(t, err)
	require.True(t, loose.Keep(probe))

	d := sphere.Haversine(ref, probe.Point)
	require.Greater(t, d, 100.0)
	require.Less(t, d, 120.0)
}

func TestBufferNearestOfMany(t *testing.T) {
	refs := []sphere.Point{
		{Lat: 40, Lon: -100},
		{Lat: -33, Lon: 151},
		{Lat: 0.5, Lon: 0.5},
	}
	buf, err := NewBuffer(100, refs)
	require.NoError(t, err)

	require.True(t, buf.Keep(shotAt(0.6, 0.6)), "near the third reference")
	require.True(t, buf.Keep(shotAt(-33.1, 151.2)))
	require.False(t, buf.Keep(shotAt(20, 60)))

	bad := shotAt(0.5, 0.5)
	bad.DegradeFlag = 3
	require.False(t, buf.Keep(bad))
}

func TestBufferAcrossAntimeridian(t *testing.T) {
	buf, err := NewBuffer(150, []sphere.Point{{Lat: 0, Lon: 179.8}})
	require.NoError(t, err)
	require.True(t, buf.Keep(shotAt(0, -179.8)), "reference on the far side of the seam")
	require.False(t, buf.Keep(shotAt(0, -178)))
}

func TestBufferValidation(t *testing.T) {
	_, err := NewBuffer(0, []sphere.Point{{}})
	require.Error(t, err)
	_, err = NewBuffer(10, nil)
	require.Error(t, err)
}

func TestBeamSet(t *testing.T) {
	c, err := NewBeamSet(model.FullPowerBeams...)
	require.NoError(t, err)

	full := shotAt(0, 0)
	full.Beam = "BEAM0101"
	require.True(t, c.Keep(full))

	coverage := shotAt(0, 0)
	coverage.Beam = "BEAM0000"
	require.False(t, c.Keep(coverage))

	unnamed := shotAt(0, 0)
	require.False(t, c.Keep(unnamed))

	degraded := full
	degraded.DegradeFlag = 1
	require.False(t, c.Keep(degraded), "quality screen applies before beam membership")

	_, err = NewBeamSet()
	require.Error(t, err)
}

func TestFilterPreservesOrder(t *testing.T) {
	table := model.NewTable("rh98")
	for i, lat := range []float64{1, 2, 3, 4} {
		s := shotAt(lat, 0)
		s.Metrics = []float64{float64(i)}
		if i == 2 {
			s.QualityFlag = 0
		}
		table.Append(s)
	}
	got := Filter(table, Quality())
	require.Equal(t, 3, got.Len())
	require.Equal(t, []float64{0}, got.Shots[0].Metrics)
	require.Equal(t, []float64{1}, got.Shots[1].Metrics)
	require.Equal(t, []float64{3}, got.Shots[2].Metrics)
	require.Equal(t, 4, table.Len(), "input table is untouched")
}
