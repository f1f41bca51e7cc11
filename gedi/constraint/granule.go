// Package constraint implements the two predicate systems that decide which
// granules are worth downloading and which shots within a granule are kept.
// Constraints are immutable after construction and safe for concurrent use.
package constraint

import (
	"errors"
	"fmt"

	"github.com/example/go-gedi/gedi/sphere"
)

// ErrEmptyComposite is returned when a composite constraint is built with no
// children; the boolean identity of an empty AND/OR is deliberately not
// defined.
var ErrEmptyComposite = errors.New("constraint: composite requires at least one child")

// GranuleConstraint decides, from a granule's bounding footprint alone,
// whether the granule is of interest.
type GranuleConstraint interface {
	Evaluate(footprint *sphere.Boundary) bool
}

// RegionGC accepts granules whose footprint shares any point with a region
// of interest.
type RegionGC struct {
	region *sphere.Boundary
}

// NewRegionGC builds a region constraint from a closed boundary.
func NewRegionGC(region *sphere.Boundary) (*RegionGC, error) {
	if region == nil {
		return nil, fmt.Errorf("constraint: region is required")
	}
	return &RegionGC{region: region}, nil
}

// Evaluate reports whether the footprint intersects the region. A nil
// footprint, the result of unparseable granule metadata, is excluded.
func (g *RegionGC) Evaluate(footprint *sphere.Boundary) bool {
	if footprint == nil {
		return false
	}
	return sphere.RegionsIntersect(g.region, footprint)
}

// Mode selects how a composite combines its children.
type Mode int

const (
	// ModeAll accepts a granule only if every child does.
	ModeAll Mode = iota
	// ModeAny accepts a granule if at least one child does.
	ModeAny
)

// CompositeGC combines child constraints with AND or OR semantics. Children
// may themselves be composites, so arbitrary boolean trees can be built; a
// habitat scattered across many disjoint polygons becomes one ModeAny
// composite of RegionGCs.
type CompositeGC struct {
	children []GranuleConstraint
	mode     Mode
}

// NewCompositeGC builds a composite over one or more children.
func NewCompositeGC(mode Mode, children ...GranuleConstraint) (*CompositeGC, error) {
	if len(children) == 0 {
		return nil, ErrEmptyComposite
	}
	for i, c := range children {
		if c == nil {
			return nil, fmt.Errorf("constraint: composite child %d is nil", i)
		}
	}
	return &CompositeGC{children: append([]GranuleConstraint(nil), children...), mode: mode}, nil
}

// Evaluate short-circuits: the first rejecting child settles ModeAll, the
// first accepting child settles ModeAny. Geometry work on the remaining
// children is skipped.
func (g *CompositeGC) Evaluate(footprint *sphere.Boundary) bool {
	match := g.mode == ModeAny
	for _, child := range g.children {
		if child.Evaluate(footprint) == match {
			return match
		}
	}
	return !match
}
