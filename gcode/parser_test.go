package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	blocks, err := Parse(`
; tfree2.g
G90                          ; absolute
g0 y200 F10000
M98 P"/macros/tool_unlock.g" ; unlock
G0 Y{200-60} (retract)
T-1
G28 X
`)
	require.NoError(t, err)
	require.Len(t, blocks, 6)

	assert.Equal(t, "G90", blocks[0].String())
	assert.Equal(t, "G0 Y200 F10000", blocks[1].String())

	p, ok := blocks[2].Word('P')
	require.True(t, ok)
	name, ok := p.Quoted()
	assert.True(t, ok)
	assert.Equal(t, "/macros/tool_unlock.g", name)

	y, ok := blocks[3].Word('Y')
	require.True(t, ok)
	assert.True(t, y.IsExpr())
	assert.Equal(t, "G0 Y{200-60}", blocks[3].String())

	assert.Equal(t, "T-1", blocks[4].String())

	x, ok := blocks[5].Word('X')
	require.True(t, ok)
	assert.True(t, x.Bare)
	assert.Equal(t, "G28 X", blocks[5].String())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("G0 X1\nG1 Y=4\n")
	assert.EqualError(t, err, "line 2: invalid or unhandled line: G1 Y=4")

	_, err = Parse(`M98 P"/macros/tool_lock.g`)
	assert.Error(t, err)

	_, err = Parse("G0 Y{200-60\n")
	assert.Error(t, err)

	_, err = Parse("var offset = 60\n")
	assert.Error(t, err)
}

func TestParse_SemicolonInString(t *testing.T) {
	blocks, err := Parse(`M291 P"park; then lock" ; prompt`)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	p, _ := blocks[0].Word('P')
	s, _ := p.Quoted()
	assert.Equal(t, "park; then lock", s)
}
