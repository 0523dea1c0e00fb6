// Package calibration captures the parking position of a Jubilee tool.
//
// Each step takes the ToolCalibration measured so far and returns an
// updated copy, so steps can run one at a time from the command line or
// in sequence from the wizard.
package calibration

import (
	"context"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mastercactapus/parkcal/machine"
)

// DefaultManhattanOffset is the distance in mm the carriage retracts along
// Y before travelling along X to a tool.
const DefaultManhattanOffset = 60

// ToolCalibration holds the measured parking values of one tool.
type ToolCalibration struct {
	ToolNumber      int     `yaml:"tool_number" json:"toolNumber"`
	ToolName        string  `yaml:"tool_name" json:"toolName"`
	XPark           float64 `yaml:"x_park" json:"xPark"`
	YPark           float64 `yaml:"y_park" json:"yPark"`
	YClear          float64 `yaml:"y_clear" json:"yClear"`
	ManhattanOffset float64 `yaml:"manhattan_offset" json:"manhattanOffset"`
}

// New starts a calibration for a tool with the default Manhattan offset.
func New(tool int, name string) ToolCalibration {
	return ToolCalibration{
		ToolNumber:      tool,
		ToolName:        CleanName(name),
		ManhattanOffset: DefaultManhattanOffset,
	}
}

// CleanName folds line breaks and other control characters in a tool name
// to spaces, since the name is written into G-code comments.
func CleanName(name string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, name))
}

// Fields returns the calibration as log fields.
func (c ToolCalibration) Fields() logrus.Fields {
	return logrus.Fields{
		"tool":      c.ToolNumber,
		"name":      c.ToolName,
		"xPark":     c.XPark,
		"yPark":     c.YPark,
		"yClear":    c.YClear,
		"manhattan": c.ManhattanOffset,
	}
}

// CapturePosition waits for queued moves to finish and returns the
// reported position of every axis.
func CapturePosition(ctx context.Context, c machine.Client) (machine.Position, error) {
	err := c.WaitForMoves(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "wait for moves")
	}
	pos, err := c.Position(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read position")
	}
	return pos, nil
}

// ApproachPost releases the tool lock and moves the carriage to an
// approximate park position, so the operator only needs to fine tune it.
func ApproachPost(ctx context.Context, c machine.Client, cal ToolCalibration, x, y float64) (ToolCalibration, error) {
	err := c.ToolUnlock(ctx)
	if err != nil {
		return cal, errors.Wrap(err, "unlock")
	}
	err = c.MoveTo(ctx, machine.Move{X: machine.Coord(x), Y: machine.Coord(y)})
	if err != nil {
		return cal, errors.Wrap(err, "move to post")
	}
	return cal, nil
}

// CaptureParkPosition locks the tool held in its post and records the
// carriage X and Y as the park position.
func CaptureParkPosition(ctx context.Context, c machine.Client, cal ToolCalibration) (ToolCalibration, error) {
	err := c.ToolLock(ctx)
	if err != nil {
		return cal, errors.Wrap(err, "lock")
	}
	pos, err := CapturePosition(ctx, c)
	if err != nil {
		return cal, err
	}
	x, err := pos.Axis("X")
	if err != nil {
		return cal, err
	}
	y, err := pos.Axis("Y")
	if err != nil {
		return cal, err
	}

	cal.XPark, cal.YPark = x, y
	logrus.WithFields(cal.Fields()).Info("captured park position")
	return cal, nil
}

// ReleaseTool unlocks the tool so it stays in its post when the carriage
// moves away.
func ReleaseTool(ctx context.Context, c machine.Client, cal ToolCalibration) (ToolCalibration, error) {
	err := c.ToolUnlock(ctx)
	if err != nil {
		return cal, errors.Wrap(err, "unlock")
	}
	return cal, nil
}

// CaptureClearPosition records the carriage Y as the tool clearance limit.
func CaptureClearPosition(ctx context.Context, c machine.Client, cal ToolCalibration) (ToolCalibration, error) {
	pos, err := CapturePosition(ctx, c)
	if err != nil {
		return cal, err
	}
	y, err := pos.Axis("Y")
	if err != nil {
		return cal, err
	}

	cal.YClear = y
	logrus.WithFields(cal.Fields()).Info("captured clearance position")
	return cal, nil
}

// TestToolChange picks up the calibrated tool and parks it again using the
// installed macros.
func TestToolChange(ctx context.Context, c machine.Client, cal ToolCalibration) error {
	err := c.ToolChange(ctx, cal.ToolNumber)
	if err != nil {
		return errors.Wrapf(err, "pick up tool %d", cal.ToolNumber)
	}
	err = c.ToolChange(ctx, -1)
	if err != nil {
		return errors.Wrapf(err, "park tool %d", cal.ToolNumber)
	}
	return nil
}
