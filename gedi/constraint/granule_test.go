package constraint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/go-gedi/gedi/sphere"
)

func boundary(t *testing.T, latlon ...float64) *sphere.Boundary {
	t.Helper()
	pts := make([]sphere.Point, 0, len(latlon)/2)
	for i := 0; i < len(latlon); i += 2 {
		pts = append(pts, sphere.Point{Lat: latlon[i], Lon: latlon[i+1]})
	}
	b, err := sphere.NewBoundary(pts)
	require.NoError(t, err)
	return b
}

// stubGC records evaluations so short-circuiting can be observed.
type stubGC struct {
	verdict bool
	calls   int
}

func (s *stubGC) Evaluate(*sphere.Boundary) bool {
	s.calls++
	return s.verdict
}

func TestRegionGC(t *testing.T) {
	region := boundary(t, 10, -10, 10, 10, -10, 10, -10, -10)
	gc, err := NewRegionGC(region)
	require.NoError(t, err)

	overlapping := boundary(t, 15, 0, 15, 20, -5, 20, -5, 0)
	require.True(t, gc.Evaluate(overlapping))

	disjoint := boundary(t, 15, 50, 15, 70, -5, 70, -5, 50)
	require.False(t, gc.Evaluate(disjoint))

	require.False(t, gc.Evaluate(nil), "unparseable metadata is excluded")
}

func TestNewRegionGCRequiresRegion(t *testing.T) {
	_, err := NewRegionGC(nil)
	require.Error(t, err)
}

func TestCompositeGCTruthTable(t *testing.T) {
	region := boundary(t, 10, -10, 10, 10, -10, 10, -10, -10)
	for _, tc := range []struct {
		name     string
		mode     Mode
		verdicts []bool
		want     bool
	}{
		{"any true-false", ModeAny, []bool{true, false}, true},
		{"any false-true", ModeAny, []bool{false, true}, true},
		{"any false-false", ModeAny, []bool{false, false}, false},
		{"all true-true", ModeAll, []bool{true, true}, true},
		{"all true-false", ModeAll, []bool{true, false}, false},
		{"all false-false", ModeAll, []bool{false, false}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			children := make([]GranuleConstraint, len(tc.verdicts))
			for i, v := range tc.verdicts {
				children[i] = &stubGC{verdict: v}
			}
			gc, err := NewCompositeGC(tc.mode, children...)
			require.NoError(t, err)
			require.Equal(t, tc.want, gc.Evaluate(region))
		})
	}
}

func TestCompositeGCShortCircuits(t *testing.T) {
	region := boundary(t, 10, -10, 10, 10, -10, 10, -10, -10)

	first := &stubGC{verdict: true}
	second := &stubGC{verdict: true}
	any, err := NewCompositeGC(ModeAny, first, second)
	require.NoError(t, err)
	require.True(t, any.Evaluate(region))
	require.Equal(t, 1, first.calls)
	require.Zero(t, second.calls, "ModeAny stops at the first accepting child")

	first = &stubGC{verdict: false}
	second = &stubGC{verdict: false}
	all, err := NewCompositeGC(ModeAll, first, second)
	require.NoError(t, err)
	require.False(t, all.Evaluate(region))
	require.Equal(t, 1, first.calls)
	require.Zero(t, second.calls, "ModeAll stops at the first rejecting child")
}

func TestCompositeGCNesting(t *testing.T) {
	region := boundary(t, 10, -10, 10, 10, -10, 10, -10, -10)
	inner, err := NewCompositeGC(ModeAny, &stubGC{verdict: false}, &stubGC{verdict: true})
	require.NoError(t, err)
	outer, err := NewCompositeGC(ModeAll, inner, &stubGC{verdict: true})
	require.NoError(t, err)
	require.True(t, outer.Evaluate(region))
}

func TestNewCompositeGCRejectsEmpty(t *testing.T) {
	_, err := NewCompositeGC(ModeAny)
	require.ErrorIs(t, err, ErrEmptyComposite)

	_, err = NewCompositeGC(ModeAll, nil)
	require.Error(t, err)
}
