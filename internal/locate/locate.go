// Package locate places a consolidation facility by minimising the weighted
// sum of travel distances to a set of anchor points (the Weber problem).
//
// The search starts from a spherical centroid in which every anchor counts
// with the square of its weight, then refines that seed with a Nelder–Mead simplex
// against the true distance metric. The result is a local optimum; under the
// great-circle metric the objective is only approximately convex.
package locate

import (
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/htangden/lastbil-optimering/internal/geo"
	"github.com/htangden/lastbil-optimering/internal/network"
)

// WeightedPoint is an anchor pulling the facility towards Coord.
type WeightedPoint struct {
	Coord  geo.Coord
	Weight float64
}

// Location is the outcome of one facility placement.
type Location struct {
	Coord      geo.Coord
	Seed       geo.Coord
	Objective  float64
	Converged  bool
	Iterations int
}

// Locator is safe for concurrent use; it holds configuration only.
type Locator struct {
	Metric        geo.Metric
	MaxIterations int
	Tolerance     float64
	SimplexSize   float64
}

type Option func(*Locator)

func WithMetric(m geo.Metric) Option { return func(l *Locator) { l.Metric = m } }
func WithMaxIterations(n int) Option { return func(l *Locator) { l.MaxIterations = n } }
func WithTolerance(tol float64) Option { return func(l *Locator) { l.Tolerance = tol } }
func WithSimplexSize(size float64) Option { return func(l *Locator) { l.SimplexSize = size } }

func New(opts ...Option) *Locator {
	l := &Locator{Metric: geo.Distance, MaxIterations: 2000, Tolerance: 1e-10, SimplexSize: 0.05}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Seed returns the squared-weight centroid of points, taken over unit
// vectors on the sphere and projected back to latitude/longitude. For two
// anchors of equal weight this is their great-circle midpoint. When the
// vectors cancel out (antipodal anchors), or every weighted anchor sits on
// the same coordinate, the heaviest anchor is returned.
func Seed(points []WeightedPoint) (geo.Coord, error) {
	if len(points) == 0 {
		return geo.Coord{}, network.Configf("locate", "no anchor points")
	}
	var sum, x, y, z float64
	heaviest := points[0]
	var first *geo.Coord
	coincident := true
	for _, p := range points {
		if p.Weight < 0 || math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
			return geo.Coord{}, network.Configf("locate", "invalid weight %v at %s", p.Weight, p.Coord)
		}
		if p.Weight > heaviest.Weight {
			heaviest = p
		}
		if p.Weight > 0 {
			if first == nil {
				first = &p.Coord
			} else if p.Coord != *first {
				coincident = false
			}
		}
		w := p.Weight * p.Weight
		sum += w
		px, py, pz := unitVector(p.Coord)
		x += w * px
		y += w * py
		z += w * pz
	}
	if sum == 0 {
		return geo.Coord{}, network.Configf("locate", "all anchor weights are zero")
	}
	if coincident || math.Sqrt(x*x+y*y+z*z) < 1e-12*sum {
		return heaviest.Coord, nil
	}
	return geo.Coord{
		Lat: math.Atan2(z, math.Hypot(x, y)) * 180 / math.Pi,
		Lng: math.Atan2(y, x) * 180 / math.Pi,
	}, nil
}

func unitVector(c geo.Coord) (x, y, z float64) {
	lat, lng := c.Lat*math.Pi/180, c.Lng*math.Pi/180
	return math.Cos(lat) * math.Cos(lng), math.Cos(lat) * math.Sin(lng), math.Sin(lat)
}

// Objective is the weighted distance sum the locator minimises.
func (l *Locator) Objective(at geo.Coord, points []WeightedPoint) float64 {
	total := 0.0
	for _, p := range points {
		if p.Weight == 0 {
			continue
		}
		total += p.Weight * l.Metric(at, p.Coord)
	}
	return total
}

// Locate returns the facility coordinate for points. When the minimiser
// stops without converging the seed is returned with Converged unset.
func (l *Locator) Locate(points []WeightedPoint) (Location, error) {
	seed, err := Seed(points)
	if err != nil {
		return Location{}, err
	}
	seedF := l.Objective(seed, points)
	out := Location{Coord: seed, Seed: seed, Objective: seedF}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return l.Objective(geo.Coord{Lat: x[0], Lng: x[1]}, points)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: l.MaxIterations,
		Converger:       &optimize.FunctionConverge{Absolute: l.Tolerance, Iterations: 50},
	}
	res, err := optimize.Minimize(problem, []float64{seed.Lat, seed.Lng}, settings, &optimize.NelderMead{SimplexSize: l.SimplexSize})
	if err != nil || res == nil || !converged(res.Status) {
		if res != nil {
			out.Iterations = res.MajorIterations
		}
		return out, nil
	}
	out.Converged = true
	out.Iterations = res.MajorIterations

	// equal-cost plateaus (two anchors of equal weight) keep the seed
	if res.F < seedF-1e-9*math.Max(1, math.Abs(seedF)) {
		out.Coord = normalize(geo.Coord{Lat: res.X[0], Lng: res.X[1]})
		out.Objective = l.Objective(out.Coord, points)
	}
	return out, nil
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.FunctionThreshold:
		return true
	}
	return false
}

func normalize(c geo.Coord) geo.Coord {
	c.Lat = math.Max(-90, math.Min(90, c.Lat))
	for c.Lng > 180 {
		c.Lng -= 360
	}
	for c.Lng < -180 {
		c.Lng += 360
	}
	return c
}
