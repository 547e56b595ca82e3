package network

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htangden/lastbil-optimering/internal/geo"
)

func TestConstructors(t *testing.T) {
	s := NewSource("F1", geo.Coord{Lat: 1, Lng: 2}, 40)
	k := NewSink("G1", geo.Coord{Lat: 3, Lng: 4}, 25)
	f := NewTransshipment(geo.Coord{Lat: 5, Lng: 6})

	assert.Equal(t, Source, s.Role)
	assert.Equal(t, Sink, k.Role)
	assert.Equal(t, Transshipment, f.Role)
	assert.Zero(t, f.Quantity)
	assert.Equal(t, int64(65), TotalQuantity([]Node{s, k, f}))
	assert.Equal(t, "sink", k.Role.String())
}

func TestConfigErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Configf("locate", "total weight is %d", 0))
	require.True(t, errors.Is(err, ErrConfiguration))

	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "locate", ce.Op)
	assert.Contains(t, err.Error(), "total weight is 0")
}
