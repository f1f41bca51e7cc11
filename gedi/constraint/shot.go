package constraint

import (
	"fmt"
	"math"

	"github.com/example/go-gedi/gedi/model"
	"github.com/example/go-gedi/gedi/sphere"
)

// ShotConstraint decides whether one decoded shot survives filtering. Every
// implementation applies the baseline quality screen first: shots flagged
// degraded or off-nominal never survive. The spatial refinements (LatLonBox,
// Buffer) are independent variants of that baseline rather than freely
// composable predicates.
type ShotConstraint interface {
	Keep(s model.Shot) bool
}

// Filter returns a new table holding the shots of t that c keeps, in their
// original order. The input table is not modified.
func Filter(t model.Table, c ShotConstraint) model.Table {
	out := model.NewTable(t.Columns...)
	for _, s := range t.Shots {
		if c.Keep(s) {
			out.Append(s)
		}
	}
	return out
}

func qualityOK(s model.Shot) bool {
	return s.QualityFlag == 1 && s.DegradeFlag == 0
}

type qualityConstraint struct{}

func (qualityConstraint) Keep(s model.Shot) bool { return qualityOK(s) }

// Quality returns the baseline constraint: keep exactly the shots whose
// quality flag is nominal and degrade flag is clear.
func Quality() ShotConstraint { return qualityConstraint{} }

// LatLonBox keeps quality shots inside an inclusive latitude/longitude
// rectangle. Longitude wraps at 180 = -180: comparisons run on longitudes
// shifted into a [0, span] interval anchored at the western edge, so a box
// crossing the antimeridian behaves the same as any other.
type LatLonBox struct {
	minLat, maxLat float64
	minLon, span   float64
}

// NewLatLonBox builds a box from inclusive bounds. maxLon at or west of
// minLon means the box crosses the antimeridian; equal bounds after
// normalization span the full circle of longitudes.
func NewLatLonBox(minLat, maxLat, minLon, maxLon float64) (*LatLonBox, error) {
	if minLat < -90 || maxLat > 90 || minLat > maxLat {
		return nil, fmt.Errorf("constraint: invalid latitude bounds [%v, %v]", minLat, maxLat)
	}
	for maxLon <= minLon {
		maxLon += 360
	}
	span := maxLon - minLon
	if span > 360 {
		span = 360
	}
	return &LatLonBox{minLat: minLat, maxLat: maxLat, minLon: minLon, span: span}, nil
}

// Keep implements ShotConstraint.
func (b *LatLonBox) Keep(s model.Shot) bool {
	if !qualityOK(s) {
		return false
	}
	return b.contains(s.Point)
}

func (b *LatLonBox) contains(p sphere.Point) bool {
	shifted := math.Mod(p.Lon-b.minLon, 360)
	if shifted < 0 {
		shifted += 360
	}
	return shifted <= b.span && p.Lat >= b.minLat && p.Lat <= b.maxLat
}

// Buffer keeps quality shots within a fixed great-circle radius of at least
// one of a set of reference points. Reference sets from habitat rasters run
// to millions of points, so lookups go through a latitude/longitude grid
// index instead of a linear scan.
type Buffer struct {
	radiusKm float64
	index    *gridIndex
}

// NewBuffer builds a buffer constraint around the given reference points.
func NewBuffer(radiusKm float64, points []sphere.Point) (*Buffer, error) {
	if radiusKm <= 0 {
		return nil, fmt.Errorf("constraint: buffer radius must be positive, got %v", radiusKm)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("constraint: buffer requires at least one reference point")
	}
	return &Buffer{radiusKm: radiusKm, index: newGridIndex(radiusKm, points)}, nil
}

// Keep implements ShotConstraint.
func (b *Buffer) Keep(s model.Shot) bool {
	if !qualityOK(s) {
		return false
	}
	return b.index.withinRadius(s.Point, b.radiusKm)
}

// BeamSet keeps quality shots recorded by a named set of beams, typically
// model.FullPowerBeams.
type BeamSet struct {
	beams map[string]struct{}
}

// NewBeamSet builds a beam filter from the given beam names.
func NewBeamSet(beams ...string) (*BeamSet, error) {
	if len(beams) == 0 {
		return nil, fmt.Errorf("constraint: beam set requires at least one beam")
	}
	set := make(map[string]struct{}, len(beams))
	for _, beam := range beams {
		set[beam] = struct{}{}
	}
	return &BeamSet{beams: set}, nil
}

// Keep implements ShotConstraint.
func (b *BeamSet) Keep(s model.Shot) bool {
	if !qualityOK(s) {
		return false
	}
	_, ok := b.beams[s.Beam]
	return ok
}

// kmPerDegree is the length of one degree of arc on the working sphere.
const kmPerDegree = sphere.EarthRadiusKm * math.Pi / 180

// gridIndex buckets reference points into equal-angle cells so a radius
// query only needs to scan the cells overlapping the query disc. Cell size
// is one radius in degrees, clamped to keep the grid bounded.
type gridIndex struct {
	cellDeg float64
	rows    int
	cols    int
	cells   map[int][]sphere.Point
}

func newGridIndex(radiusKm float64, points []sphere.Point) *gridIndex {
	cellDeg := radiusKm / kmPerDegree
	if cellDeg < 0.01 {
		cellDeg = 0.01
	}
	if cellDeg > 45 {
		cellDeg = 45
	}
	g := &gridIndex{
		cellDeg: cellDeg,
		rows:    int(math.Ceil(180/cellDeg)) + 1,
		cols:    int(math.Ceil(360 / cellDeg)),
		cells:   make(map[int][]sphere.Point),
	}
	for _, p := range points {
		key := g.key(g.rowOf(p.Lat), g.colOf(p.Lon))
		g.cells[key] = append(g.cells[key], p)
	}
	return g
}

func (g *gridIndex) rowOf(lat float64) int {
	r := int((lat + 90) / g.cellDeg)
	if r < 0 {
		r = 0
	}
	if r >= g.rows {
		r = g.rows - 1
	}
	return r
}

func (g *gridIndex) colOf(lon float64) int {
	c := int((sphere.NormalizeLon(lon) + 180) / g.cellDeg)
	return ((c % g.cols) + g.cols) % g.cols
}

func (g *gridIndex) key(row, col int) int { return row*g.cols + col }

// withinRadius reports whether any reference point lies within radiusKm of
// p. The scan covers as many cells as the radius subtends at the query
// latitude, widening in longitude toward the poles.
func (g *gridIndex) withinRadius(p sphere.Point, radiusKm float64) bool {
	row := g.rowOf(p.Lat)
	latHalo := int(radiusKm/kmPerDegree/g.cellDeg) + 1
	lonHalo := g.cols
	if cos := math.Cos(p.Lat * math.Pi / 180); cos > 1e-3 {
		lonRadiusDeg := radiusKm / (kmPerDegree * cos)
		lonHalo = int(lonRadiusDeg/g.cellDeg) + 1
		if lonHalo > g.cols {
			lonHalo = g.cols
		}
	}
	col := g.colOf(p.Lon)
	for dr := -latHalo; dr <= latHalo; dr++ {
		r := row + dr
		if r < 0 || r >= g.rows {
			continue
		}
		for dc := -lonHalo; dc <= lonHalo; dc++ {
			c := ((col+dc)%g.cols + g.cols) % g.cols
			for _, ref := range g.cells[g.key(r, c)] {
				if sphere.Haversine(p, ref) <= radiusKm {
					return true
				}
			}
		}
	}
	return false
}
