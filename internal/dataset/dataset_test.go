package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htangden/lastbil-optimering/internal/network"
)

const sample = `FABRIKER
Goteborg 57.70 11.97 120
Stockholm 59.33 18.07 80

GROSSISTER
# south
Malmo 55.60 13.00 50
Linkoping 58.41 15.62 60
Gavle 60.67 17.14 40
`

func TestParse(t *testing.T) {
	inst, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, inst.Sources, 2)
	require.Len(t, inst.Sinks, 3)

	assert.Equal(t, "Goteborg", inst.Sources[0].Name)
	assert.Equal(t, network.Source, inst.Sources[0].Role)
	assert.Equal(t, int64(120), inst.Sources[0].Quantity)
	assert.Equal(t, 57.70, inst.Sources[0].Coord.Lat)
	assert.Equal(t, 11.97, inst.Sources[0].Coord.Lng)
	assert.Equal(t, network.Sink, inst.Sinks[2].Role)
	assert.Equal(t, int64(150), network.TotalQuantity(inst.Sinks))
}

func TestParseEnglishHeaders(t *testing.T) {
	inst, err := Parse(strings.NewReader("sources\nA 0 0 10\nsinks\nB 0 1 10\n"))
	require.NoError(t, err)
	assert.Len(t, inst.Sources, 1)
	assert.Len(t, inst.Sinks, 1)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]struct {
		in   string
		line int
	}{
		"no section":     {"A 0 0 1\n", 1},
		"missing field":  {"FABRIKER\nA 0 0\n", 2},
		"bad latitude":   {"FABRIKER\nA 91 0 1\n", 2},
		"bad longitude":  {"FABRIKER\nA 0 x 1\n", 2},
		"bad quantity":   {"FABRIKER\n\nA 0 0 -1\n", 3},
		"float quantity": {"GROSSISTER\nA 0 0 1.5\n", 2},
		"duplicate":      {"GROSSISTER\nA 0 0 1\nA 1 1 1\n", 3},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.in))
			var se *SyntaxError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tc.line, se.Line)
		})
	}
}

func TestParseAllowsSameNameAcrossRoles(t *testing.T) {
	inst, err := Parse(strings.NewReader("FABRIKER\nA 0 0 1\nGROSSISTER\nA 0 0 1\n"))
	require.NoError(t, err)
	assert.Len(t, inst.Sources, 1)
	assert.Len(t, inst.Sinks, 1)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	inst, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, inst.Sinks, 3)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
