package locate

import (
	"math"
	"testing"

	orbgeo "github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htangden/lastbil-optimering/internal/geo"
	"github.com/htangden/lastbil-optimering/internal/network"
)

func TestSeedSquaresWeights(t *testing.T) {
	seed, err := Seed([]WeightedPoint{
		{Coord: geo.Coord{Lat: 0, Lng: 0}, Weight: 1},
		{Coord: geo.Coord{Lat: 0, Lng: 10}, Weight: 3},
	})
	require.NoError(t, err)
	// squared weights 1 and 9 on the equator: atan2(9 sin 10°, 1 + 9 cos 10°)
	rad := 10 * math.Pi / 180
	want := math.Atan2(9*math.Sin(rad), 1+9*math.Cos(rad)) * 180 / math.Pi
	assert.InDelta(t, want, seed.Lng, 1e-12)
	assert.InDelta(t, 0.0, seed.Lat, 1e-12)
	assert.Greater(t, seed.Lng, 8.9)
}

func TestSeedFollowsTheSphere(t *testing.T) {
	a := geo.Coord{Lat: 60, Lng: 0}
	b := geo.Coord{Lat: 60, Lng: 90}
	seed, err := Seed([]WeightedPoint{{Coord: a, Weight: 2}, {Coord: b, Weight: 2}})
	require.NoError(t, err)
	mid := geo.FromPoint(orbgeo.Midpoint(a.Point(), b.Point()))
	assert.InDelta(t, mid.Lat, seed.Lat, 1e-9)
	assert.InDelta(t, mid.Lng, seed.Lng, 1e-9)
	// the plain coordinate average (60, 45) is not on the great circle
	assert.Greater(t, seed.Lat, 67.0)
}

func TestSeedEdgeCases(t *testing.T) {
	p := geo.Coord{Lat: 59.3, Lng: 18.1}
	seed, err := Seed([]WeightedPoint{{Coord: p, Weight: 4}, {Coord: geo.Coord{Lat: 1, Lng: 1}}, {Coord: p, Weight: 1}})
	require.NoError(t, err)
	assert.Equal(t, p, seed, "coincident anchors keep their exact coordinate")

	heavy := geo.Coord{Lat: 0, Lng: 0}
	seed, err = Seed([]WeightedPoint{{Coord: geo.Coord{Lat: 0, Lng: 180}, Weight: 1}, {Coord: heavy, Weight: 1}})
	require.NoError(t, err)
	assert.Equal(t, geo.Coord{Lat: 0, Lng: 180}, seed, "antipodal anchors fall back to an anchor")
}

func TestLocateRejectsDegenerateWeights(t *testing.T) {
	l := New()
	cases := map[string][]WeightedPoint{
		"empty":    nil,
		"all zero": {{Coord: geo.Coord{Lat: 1, Lng: 1}}, {Coord: geo.Coord{Lat: 2, Lng: 2}}},
		"negative": {{Coord: geo.Coord{Lat: 1, Lng: 1}, Weight: -1}, {Coord: geo.Coord{Lat: 2, Lng: 2}, Weight: 3}},
		"nan":      {{Coord: geo.Coord{Lat: 1, Lng: 1}, Weight: math.NaN()}},
	}
	for name, pts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := l.Locate(pts)
			require.ErrorIs(t, err, network.ErrConfiguration)
		})
	}
}

func TestLocateTwoEqualWeightsReturnsMidpoint(t *testing.T) {
	cases := map[string][2]geo.Coord{
		"same meridian": {{Lat: 10, Lng: 0}, {Lat: 20, Lng: 0}},
		"equator":       {{Lat: 0, Lng: 0}, {Lat: 0, Lng: 10}},
		"same parallel": {{Lat: 60, Lng: 0}, {Lat: 60, Lng: 90}},
		"oblique":       {{Lat: 55.6, Lng: 13.0}, {Lat: 59.33, Lng: 18.07}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			a, b := c[0], c[1]
			loc, err := New().Locate([]WeightedPoint{{Coord: a, Weight: 5}, {Coord: b, Weight: 5}})
			require.NoError(t, err)

			mid := geo.FromPoint(orbgeo.Midpoint(a.Point(), b.Point()))
			assert.InDelta(t, mid.Lat, loc.Coord.Lat, 1e-7)
			assert.InDelta(t, mid.Lng, loc.Coord.Lng, 1e-7)
			assert.Less(t, geo.Distance(mid, loc.Coord), 1e-3, "km from the great-circle midpoint")
			assert.InDelta(t, geo.Distance(a, b)*5, loc.Objective, 1e-6)
		})
	}
}

func TestLocateSingleAnchor(t *testing.T) {
	p := geo.Coord{Lat: 59.3, Lng: 18.1}
	loc, err := New().Locate([]WeightedPoint{{Coord: p, Weight: 7}})
	require.NoError(t, err)
	assert.Equal(t, p, loc.Coord)
	assert.Zero(t, loc.Objective)
}

func TestLocateTranslationConsistentOnPlane(t *testing.T) {
	l := New(WithMetric(geo.Planar))
	base := []WeightedPoint{
		{Coord: geo.Coord{Lat: 0, Lng: 0}, Weight: 1},
		{Coord: geo.Coord{Lat: 4, Lng: 0}, Weight: 2},
		{Coord: geo.Coord{Lat: 2, Lng: 3}, Weight: 1.5},
	}
	shift := geo.Coord{Lat: 1.5, Lng: -2.25}
	moved := make([]WeightedPoint, len(base))
	for i, p := range base {
		moved[i] = WeightedPoint{Coord: geo.Coord{Lat: p.Coord.Lat + shift.Lat, Lng: p.Coord.Lng + shift.Lng}, Weight: p.Weight}
	}

	got, err := l.Locate(base)
	require.NoError(t, err)
	gotMoved, err := l.Locate(moved)
	require.NoError(t, err)

	assert.InDelta(t, got.Coord.Lat+shift.Lat, gotMoved.Coord.Lat, 1e-3)
	assert.InDelta(t, got.Coord.Lng+shift.Lng, gotMoved.Coord.Lng, 1e-3)
	assert.LessOrEqual(t, got.Objective, l.Objective(got.Seed, base))

	// first-order optimality: weighted unit vectors cancel at the Weber point
	var gx, gy float64
	for _, p := range base {
		d := geo.Planar(got.Coord, p.Coord)
		gx += p.Weight * (got.Coord.Lat - p.Coord.Lat) / d
		gy += p.Weight * (got.Coord.Lng - p.Coord.Lng) / d
	}
	assert.Less(t, math.Hypot(gx, gy), 1e-2)
}

func TestLocateFallsBackToSeedWhenNotConverged(t *testing.T) {
	l := New(WithMaxIterations(1))
	pts := []WeightedPoint{
		{Coord: geo.Coord{Lat: 57.7, Lng: 11.9}, Weight: 100},
		{Coord: geo.Coord{Lat: 59.3, Lng: 18.1}, Weight: 40},
		{Coord: geo.Coord{Lat: 55.6, Lng: 13.0}, Weight: 60},
	}
	loc, err := l.Locate(pts)
	require.NoError(t, err)
	assert.False(t, loc.Converged)
	assert.Equal(t, loc.Seed, loc.Coord)
}
