package gcode

import (
	"testing"

	"github.com/mastercactapus/parkcal/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVM_Run(t *testing.T) {
	vm := NewVM()
	var locked bool
	vm.Macros["/macros/tool_lock.g"] = func(*VM) error { locked = true; return nil }

	err := vm.RunAll(MustParse(`
G28
G90
G0 X283.3 Y200 F10000
G1 Y310 F3000
M98 P"/macros/tool_lock.g"
G91
G1 Y-110
G90
T2
`))
	require.NoError(t, err)

	assert.True(t, locked)
	assert.Equal(t, coord.Point{X: 283.3, Y: 200}, vm.Pos())
	assert.Equal(t, 3000.0, vm.Feed())
	assert.Equal(t, 2, vm.Tool())
	assert.False(t, vm.RelativeMotion())
	assert.Equal(t, []coord.Point{
		{X: 283.3, Y: 200},
		{X: 283.3, Y: 310},
		{X: 283.3, Y: 200},
	}, vm.Moves())
}

func TestVM_Expressions(t *testing.T) {
	vm := NewVM()
	err := vm.RunAll(MustParse("G0 Y{200-60} X{2*3+1.5}\n"))
	require.NoError(t, err)
	assert.Equal(t, coord.Point{X: 7.5, Y: 140}, vm.Pos())

	assert.Error(t, NewVM().RunAll(MustParse("G0 Y{200-}\n")))
}

func TestVM_Errors(t *testing.T) {
	vm := NewVM()
	assert.Error(t, vm.RunAll(MustParse(`M98 P"/macros/missing.g"`)))
	assert.Error(t, vm.RunAll(MustParse("G2 X1 Y1 I1 J1")))
	assert.Error(t, vm.RunAll(MustParse("X10")))
}

func TestEvalExpr(t *testing.T) {
	for expr, want := range map[string]float64{
		"200-60":    140,
		"-5+3":      -2,
		"10/4":      2.5,
		"1+2*3-4/2": 5,
		"283.3":     283.3,
	} {
		got, err := evalExpr(expr)
		assert.NoError(t, err, expr)
		assert.InDelta(t, want, got, 1e-9, expr)
	}
}
