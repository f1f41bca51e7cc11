// Package sphere implements the spherical geometry used to decide whether
// GEDI granule footprints and individual shots fall inside a region of
// interest. All angles are in degrees and all distances in kilometres on a
// sphere of fixed equatorial radius.
package sphere

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the equatorial Earth radius shared by every distance
// computation in this module, so that granule-level and shot-level filtering
// agree with each other.
const EarthRadiusKm = 6378.1

// Epsilon is the angular tolerance, in degrees, below which two points or
// arcs are considered coincident. Comparable to the square root of machine
// precision, which keeps floating-point boundary cases from producing false
// negatives.
const Epsilon = 1.5e-8

// planeTol bounds the dot product of a unit vector with a unit plane normal
// under which the vector is treated as lying on the plane.
const planeTol = Epsilon * math.Pi / 180

// ErrDegenerate is returned when arcs or boundaries cannot be constructed
// from the given points.
var ErrDegenerate = errors.New("sphere: degenerate geometry")

// Point is a location on the sphere in degrees. Longitude is normalized to
// (-180, 180].
type Point struct {
	Lat float64
	Lon float64
}

// NewPoint validates latitude and normalizes longitude.
func NewPoint(lat, lon float64) (Point, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 {
		return Point{}, fmt.Errorf("sphere: invalid coordinates (%v, %v)", lat, lon)
	}
	return Point{Lat: lat, Lon: NormalizeLon(lon)}, nil
}

// NormalizeLon maps a longitude in degrees into (-180, 180].
func NormalizeLon(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon <= -180 {
		lon += 360
	} else if lon > 180 {
		lon -= 360
	}
	return lon
}

func sind(deg float64) float64 { return math.Sin(deg * math.Pi / 180) }
func cosd(deg float64) float64 { return math.Cos(deg * math.Pi / 180) }

// vec3 is a point on the unit sphere in Cartesian coordinates.
type vec3 struct {
	x, y, z float64
}

func (p Point) vec() vec3 {
	return vec3{
		x: cosd(p.Lat) * cosd(p.Lon),
		y: cosd(p.Lat) * sind(p.Lon),
		z: sind(p.Lat),
	}
}

func pointFromVec(v vec3) Point {
	lon := math.Atan2(v.y, v.x) * 180 / math.Pi
	lat := math.Asin(clamp(v.z/v.norm(), -1, 1)) * 180 / math.Pi
	return Point{Lat: lat, Lon: NormalizeLon(lon)}
}

func (v vec3) dot(o vec3) float64 { return v.x*o.x + v.y*o.y + v.z*o.z }

func (v vec3) cross(o vec3) vec3 {
	return vec3{
		x: v.y*o.z - v.z*o.y,
		y: v.z*o.x - v.x*o.z,
		z: v.x*o.y - v.y*o.x,
	}
}

func (v vec3) norm() float64 { return math.Sqrt(v.dot(v)) }

func (v vec3) unit() (vec3, bool) {
	n := v.norm()
	if n == 0 {
		return vec3{}, false
	}
	return vec3{x: v.x / n, y: v.y / n, z: v.z / n}, true
}

func (v vec3) neg() vec3 { return vec3{x: -v.x, y: -v.y, z: -v.z} }

func (v vec3) add(o vec3) vec3 { return vec3{x: v.x + o.x, y: v.y + o.y, z: v.z + o.z} }

func (v vec3) scale(s float64) vec3 { return vec3{x: v.x * s, y: v.y * s, z: v.z * s} }

// angleBetween returns the angle between two unit vectors in degrees.
func angleBetween(a, b vec3) float64 {
	return math.Acos(clamp(a.dot(b), -1, 1)) * 180 / math.Pi
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// AngularDistance returns the central angle between two points in degrees.
func AngularDistance(p, q Point) float64 {
	return angleBetween(p.vec(), q.vec())
}

// Haversine returns the great-circle distance between two points in
// kilometres on a sphere of radius EarthRadiusKm.
func Haversine(p, q Point) float64 {
	dLat := (q.Lat - p.Lat) * math.Pi / 180
	dLon := (q.Lon - p.Lon) * math.Pi / 180
	sLat := math.Sin(dLat / 2)
	sLon := math.Sin(dLon / 2)
	a := sLat*sLat + cosd(p.Lat)*cosd(q.Lat)*sLon*sLon
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(clamp(a, 0, 1)))
}
