package machine

import (
	"errors"
	"testing"

	"github.com/mastercactapus/parkcal/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePosition(t *testing.T) {
	pos, err := ParsePosition("X:-1.500 Y:200.000 Z:12.250 U:0.000 E0:0.0 Count 0 0 0 0")
	require.NoError(t, err)
	assert.Equal(t, Position{"X": -1.5, "Y": 200, "Z": 12.25, "U": 0, "E0": 0}, pos)
	assert.Equal(t, coord.Point{X: -1.5, Y: 200, Z: 12.25}, pos.Point())

	y, err := pos.Axis("y")
	require.NoError(t, err)
	assert.Equal(t, 200.0, y)

	_, err = pos.Axis("V")
	assert.True(t, errors.Is(err, ErrMissingAxis))
}

func TestParsePosition_Malformed(t *testing.T) {
	for _, reply := range []string{
		"",
		"Error: G0/G1: insufficient axes homed",
		"X:abc Y:1",
		":1.0",
	} {
		_, err := ParsePosition(reply)
		assert.True(t, errors.Is(err, ErrMalformedPosition), reply)
	}
}

func TestPosition_String(t *testing.T) {
	assert.Equal(t, "X:283.300 Y:310.000", Position{"Y": 310, "X": 283.3}.String())
}
