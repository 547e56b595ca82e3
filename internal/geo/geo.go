// Package geo computes travel distances between geographic coordinates.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Coord is a latitude/longitude pair in decimal degrees.
type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coord) String() string { return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lng) }

// Point converts c to an orb point (lng, lat order).
func (c Coord) Point() orb.Point { return orb.Point{c.Lng, c.Lat} }

// FromPoint converts an orb point back to a Coord.
func FromPoint(p orb.Point) Coord { return Coord{Lat: p.Lat(), Lng: p.Lon()} }

// Metric returns the travel distance between two coordinates.
type Metric func(a, b Coord) float64

// Distance is the great-circle distance in kilometres on a sphere of radius
// orb.EarthRadius. It is symmetric and zero only for identical points.
func Distance(a, b Coord) float64 {
	if a == b {
		return 0
	}
	return orbgeo.DistanceHaversine(a.Point(), b.Point()) / 1000
}

// Planar is a flat Euclidean metric over raw degrees. It is only meant for
// small-area sanity checks where curvature must not interfere.
func Planar(a, b Coord) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
}
