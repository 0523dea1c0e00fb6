package calibration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/parkcal/coord"
	"github.com/mastercactapus/parkcal/machine"
)

func TestNew(t *testing.T) {
	cal := New(2, "Side Camera")
	assert.Equal(t, 2, cal.ToolNumber)
	assert.Equal(t, "Side Camera", cal.ToolName)
	assert.Equal(t, 60.0, cal.ManhattanOffset)
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Side Camera", CleanName("Side Camera"))
	assert.Equal(t, "Cam G28 ;", CleanName("Cam\nG28 ;"))
	assert.Equal(t, "a  b", CleanName("a\r\tb\n"))
	assert.Equal(t, "Cam  G28", New(1, "Cam\r\nG28").ToolName)
}

func TestCapturePosition(t *testing.T) {
	ctx := context.Background()
	c := &fakeClient{pos: coord.Point{X: 283.3, Y: 310}}

	pos, err := CapturePosition(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, machine.Position{"X": 283.3, "Y": 310, "Z": 0, "U": 0}, pos)
	assert.Equal(t, []string{"wait", "position"}, c.calls)

	c.posErr = machine.ErrNotConnected
	_, err = CapturePosition(ctx, c)
	assert.ErrorIs(t, err, machine.ErrNotConnected)
}

func TestCaptureParkPosition(t *testing.T) {
	ctx := context.Background()
	c := &fakeClient{pos: coord.Point{X: 283.3, Y: 310}}
	in := New(2, "Side Camera")

	out, err := CaptureParkPosition(ctx, c, in)
	require.NoError(t, err)
	assert.Equal(t, 283.3, out.XPark)
	assert.Equal(t, 310.0, out.YPark)
	assert.True(t, c.locked)
	assert.Equal(t, []string{"lock", "wait", "position"}, c.calls)

	// input is left untouched
	assert.Zero(t, in.XPark)
	assert.Zero(t, in.YPark)
}

func TestCaptureClearPosition(t *testing.T) {
	ctx := context.Background()
	c := &fakeClient{pos: coord.Point{X: 283.3, Y: 200}}
	in := New(2, "")
	in.XPark, in.YPark = 283.3, 310

	out, err := CaptureClearPosition(ctx, c, in)
	require.NoError(t, err)
	assert.Equal(t, 200.0, out.YClear)
	assert.Equal(t, 283.3, out.XPark)
	assert.Equal(t, 310.0, out.YPark)
	assert.Zero(t, in.YClear)

	c.posErr = machine.ErrMalformedPosition
	_, err = CaptureClearPosition(ctx, c, in)
	assert.ErrorIs(t, err, machine.ErrMalformedPosition)
}

func TestApproachPost(t *testing.T) {
	ctx := context.Background()
	c := &fakeClient{locked: true}

	_, err := ApproachPost(ctx, c, New(0, ""), 100, 250)
	require.NoError(t, err)
	assert.False(t, c.locked)
	assert.Equal(t, []string{"unlock", "moveto 100,250"}, c.calls)
}

func TestTestToolChange(t *testing.T) {
	c := &fakeClient{}
	err := TestToolChange(context.Background(), c, New(3, ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"T3", "T-1"}, c.calls)
}

func TestValidateCalibration(t *testing.T) {
	cal := New(1, "")
	assert.ErrorIs(t, ValidateCalibration(cal, false, true), ErrNotCaptured)
	assert.ErrorIs(t, ValidateCalibration(cal, true, false), ErrNotCaptured)
	assert.NoError(t, ValidateCalibration(cal, true, true))

	// out of range values are accepted
	cal.XPark = -5000
	assert.NoError(t, ValidateCalibration(cal, true, true))
}
