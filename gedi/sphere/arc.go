package sphere

import "fmt"

// Geodesic is the minor great-circle arc between two points. Arcs of 180
// degrees or more are rejected at construction since their plane is not
// determined by the endpoints.
type Geodesic struct {
	a, b   Point
	av, bv vec3
	axis   vec3 // unit normal of the great-circle plane, a x b
	span   float64
}

// NewGeodesic constructs the minor arc from a to b.
func NewGeodesic(a, b Point) (Geodesic, error) {
	av, bv := a.vec(), b.vec()
	span := angleBetween(av, bv)
	if span >= 180-Epsilon {
		return Geodesic{}, fmt.Errorf("%w: near-antipodal endpoints (%v, %v)", ErrDegenerate, a, b)
	}
	axis, ok := av.cross(bv).unit()
	if !ok || span < Epsilon {
		return Geodesic{}, fmt.Errorf("%w: coincident endpoints (%v, %v)", ErrDegenerate, a, b)
	}
	return Geodesic{a: a, b: b, av: av, bv: bv, axis: axis, span: span}, nil
}

// Start returns the initial point of the arc.
func (g Geodesic) Start() Point { return g.a }

// End returns the terminal point of the arc.
func (g Geodesic) End() Point { return g.b }

// Length returns the angular length of the arc in degrees.
func (g Geodesic) Length() float64 { return g.span }

// Midpoint returns the point halfway along the arc.
func (g Geodesic) Midpoint() Point {
	m, _ := g.av.add(g.bv).unit()
	return pointFromVec(m)
}

// containsVec reports whether a unit vector known to lie on the arc's great
// circle falls within the arc's angular span, endpoints included.
func (g Geodesic) containsVec(v vec3) bool {
	return angleBetween(g.av, v)+angleBetween(v, g.bv) <= g.span+Epsilon
}

// ContainsPoint reports whether p lies on the arc within Epsilon.
func (g Geodesic) ContainsPoint(p Point) bool {
	v := p.vec()
	if absf(v.dot(g.axis)) > planeTol {
		return false
	}
	return g.containsVec(v)
}

// Intersects reports whether two geodesic segments cross or touch. The
// candidate crossing points are the two intersections of the arcs' great
// circles; each is tested for membership in both angular spans. Arcs lying
// on the same great circle intersect iff their spans overlap.
func (g Geodesic) Intersects(h Geodesic) bool {
	cross := g.axis.cross(h.axis)
	if cross.norm() < planeTol {
		// Same or opposite plane: overlap reduces to endpoint containment.
		return g.sameCircleOverlap(h)
	}
	n, _ := cross.unit()
	if g.containsVec(n) && h.containsVec(n) {
		return true
	}
	m := n.neg()
	return g.containsVec(m) && h.containsVec(m)
}

func (g Geodesic) sameCircleOverlap(h Geodesic) bool {
	return g.containsVec(h.av) || g.containsVec(h.bv) ||
		h.containsVec(g.av) || h.containsVec(g.bv)
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
