package sphere

import "fmt"

// maxRefAttempts bounds the number of perturbed reference targets tried when
// a containment ray grazes a boundary vertex.
const maxRefAttempts = 8

// Boundary is a closed, non-self-intersecting loop of geodesic arcs
// enclosing a single region, such as a granule ground footprint or a region
// of interest. The enclosed region is assumed to be smaller than a
// hemisphere, which holds for granule footprints and habitat polygons alike.
// Points on the boundary itself belong to the closed region.
type Boundary struct {
	vertices []Point
	sides    []Geodesic
	centroid vec3 // unit mean of the vertices, interior for such regions
}

// NewBoundary builds a closed boundary from an ordered vertex loop. The
// closing arc from the last vertex back to the first is implied; a trailing
// repeat of the first vertex is accepted and dropped. At least three
// distinct vertices are required.
func NewBoundary(vertices []Point) (*Boundary, error) {
	vs := make([]Point, 0, len(vertices))
	for _, v := range vertices {
		p, err := NewPoint(v.Lat, v.Lon)
		if err != nil {
			return nil, err
		}
		vs = append(vs, p)
	}
	if n := len(vs); n > 1 && AngularDistance(vs[0], vs[n-1]) < Epsilon {
		vs = vs[:n-1]
	}
	if len(vs) < 3 {
		return nil, fmt.Errorf("%w: boundary needs at least 3 distinct vertices, got %d", ErrDegenerate, len(vs))
	}

	sides := make([]Geodesic, 0, len(vs))
	sum := vec3{}
	for i, v := range vs {
		next := vs[(i+1)%len(vs)]
		side, err := NewGeodesic(v, next)
		if err != nil {
			return nil, fmt.Errorf("boundary side %d: %w", i, err)
		}
		sides = append(sides, side)
		sum = sum.add(v.vec())
	}
	if err := checkSimple(sides); err != nil {
		return nil, err
	}
	centroid, ok := sum.unit()
	if !ok {
		return nil, fmt.Errorf("%w: vertices have no well-defined centroid", ErrDegenerate)
	}
	return &Boundary{vertices: vs, sides: sides, centroid: centroid}, nil
}

// checkSimple rejects self-intersecting loops. Non-adjacent sides share no
// endpoints, so any contact between them pinches the loop; adjacent sides
// meet at their common vertex and must not overlap past it. Parity counting
// in Contains is meaningless on a non-simple loop.
func checkSimple(sides []Geodesic) error {
	n := len(sides)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				g, h := sides[i], sides[j]
				if i == 0 && j == n-1 {
					g, h = h, g // the closing side precedes side 0
				}
				// g ends at h's start. Minor arcs meeting there can only
				// touch again by doubling back along the same great circle,
				// putting a far endpoint of one inside the other.
				if g.axis.cross(h.axis).norm() < planeTol &&
					(g.containsVec(h.bv) || h.containsVec(g.av)) {
					return fmt.Errorf("%w: boundary side %d doubles back over its neighbor", ErrDegenerate, j)
				}
				continue
			}
			if sides[i].Intersects(sides[j]) {
				return fmt.Errorf("%w: boundary sides %d and %d intersect", ErrDegenerate, i, j)
			}
		}
	}
	return nil
}

// Vertices returns the boundary's vertex loop, without the closing repeat.
func (b *Boundary) Vertices() []Point {
	out := make([]Point, len(b.vertices))
	copy(out, b.vertices)
	return out
}

// Sides returns the boundary's arcs in order.
func (b *Boundary) Sides() []Geodesic {
	out := make([]Geodesic, len(b.sides))
	copy(out, b.sides)
	return out
}

// Centroid returns the normalized vertex mean, an interior point for convex
// boundaries.
func (b *Boundary) Centroid() Point { return pointFromVec(b.centroid) }

// Contains reports whether p lies in the closed interior of the boundary.
// A reference geodesic is cast from p toward the antipode of the centroid,
// a point exterior to any sub-hemispherical region, and crossings with the
// boundary's arcs are counted; odd parity means inside. Working in Cartesian
// coordinates makes boundaries straddling the antimeridian or enclosing a
// pole fall out of the same arithmetic.
func (b *Boundary) Contains(p Point) bool {
	pv := p.vec()
	if b.onEdge(pv) {
		return true
	}
	for attempt := 0; attempt < maxRefAttempts; attempt++ {
		ref := b.refTarget(attempt)
		if angleBetween(pv, ref) >= 180-1e-6 {
			continue // ray to the reference would be antipodal
		}
		crossings, ok := b.countCrossings(pv, ref)
		if !ok {
			continue // ray grazed a vertex, retry with a nudged target
		}
		return crossings%2 == 1
	}
	return false
}

func (b *Boundary) onEdge(pv vec3) bool {
	for _, side := range b.sides {
		if absf(pv.dot(side.axis)) <= planeTol && side.containsVec(pv) {
			return true
		}
	}
	return false
}

// refTarget returns the exterior reference point for the given retry
// attempt: the centroid's antipode, nudged off-axis on retries.
func (b *Boundary) refTarget(attempt int) vec3 {
	base := b.centroid.neg()
	if attempt == 0 {
		return base
	}
	perp, ok := base.cross(vec3{x: 0.48, y: 0.62, z: 0.62}).unit()
	if !ok {
		perp = vec3{x: 1}
	}
	nudged, _ := base.add(perp.scale(1e-4 * float64(attempt))).unit()
	return nudged
}

// countCrossings counts proper crossings between segment (pv, ref) and the
// boundary's sides. ok is false when any endpoint sits too close to a
// separating plane for the sign tests to be trustworthy.
func (b *Boundary) countCrossings(pv, ref vec3) (int, bool) {
	rayAxis, ok := pv.cross(ref).unit()
	if !ok {
		return 0, false
	}
	raySpan := angleBetween(pv, ref)
	rayContains := func(v vec3) bool {
		return angleBetween(pv, v)+angleBetween(v, ref) <= raySpan+Epsilon
	}
	crossings := 0
	for _, side := range b.sides {
		da := side.av.dot(rayAxis)
		db := side.bv.dot(rayAxis)
		if absf(da) < planeTol || absf(db) < planeTol {
			return 0, false
		}
		if da*db > 0 {
			continue // both side endpoints on the same side of the ray plane
		}
		dp := pv.dot(side.axis)
		dr := ref.dot(side.axis)
		if absf(dp) < planeTol || absf(dr) < planeTol {
			return 0, false
		}
		if dp*dr > 0 {
			continue
		}
		// Sign tests passed on both planes; confirm the two arcs meet at
		// the same one of the two great-circle intersection candidates.
		cand, ok := rayAxis.cross(side.axis).unit()
		if !ok {
			return 0, false
		}
		if (side.containsVec(cand) && rayContains(cand)) ||
			(side.containsVec(cand.neg()) && rayContains(cand.neg())) {
			crossings++
		}
	}
	return crossings, true
}

// RegionsIntersect reports whether two closed boundaries share any point:
// a vertex of either contained in the other, or any pair of sides crossing.
// The vertex tests alone would miss partial overlaps whose vertices are all
// mutually exterior; the arc tests alone would miss full containment.
func RegionsIntersect(a, b *Boundary) bool {
	for _, v := range a.vertices {
		if b.Contains(v) {
			return true
		}
	}
	for _, v := range b.vertices {
		if a.Contains(v) {
			return true
		}
	}
	for _, sa := range a.sides {
		for _, sb := range b.sides {
			if sa.Intersects(sb) {
				return true
			}
		}
	}
	return false
}
