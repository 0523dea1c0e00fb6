package calibration

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mastercactapus/parkcal/coord"
	"github.com/mastercactapus/parkcal/machine"
)

// Operator is the person at the machine.
type Operator interface {
	// Prompt shows msg and waits for a line of input.
	Prompt(msg string) (string, error)
	Info(msg string)
}

// Wizard runs the calibration steps in order, pausing for the operator
// between them.
type Wizard struct {
	Client   machine.Client
	Operator Operator

	// Home homes all axes before starting.
	Home bool

	// Approach is an approximate park position to move to before the
	// operator fine tunes it. Nil leaves the carriage where it is.
	Approach *coord.Point

	// Saved is called after each capture so progress survives an abort.
	Saved func(*Session) error
}

func (w *Wizard) confirm(msg string) error {
	_, err := w.Operator.Prompt(msg + " [enter]")
	return err
}

func (w *Wizard) save(s *Session) error {
	if w.Saved == nil {
		return nil
	}
	return w.Saved(s)
}

// Run captures the park and clearance positions of the session's tool.
func (w *Wizard) Run(ctx context.Context, s *Session) error {
	cal := s.Tool
	var err error

	if w.Home {
		err = w.confirm("Remove any tool from the carriage, then home all axes")
		if err != nil {
			return err
		}
		err = w.Client.HomeAll(ctx)
		if err != nil {
			return errors.Wrap(err, "home")
		}
	}

	err = w.confirm(fmt.Sprintf("Place tool %d (%s) in its parking post by hand", cal.ToolNumber, cal.ToolName))
	if err != nil {
		return err
	}

	if w.Approach != nil {
		cal, err = ApproachPost(ctx, w.Client, cal, w.Approach.X, w.Approach.Y)
	} else {
		cal, err = ReleaseTool(ctx, w.Client, cal)
	}
	if err != nil {
		return err
	}

	err = w.jog(ctx, "Jog until the lock is lined up with the tool plate")
	if err != nil {
		return err
	}
	cal, err = CaptureParkPosition(ctx, w.Client, cal)
	if err != nil {
		return err
	}
	s.Park(cal)
	err = w.save(s)
	if err != nil {
		return err
	}
	w.Operator.Info(fmt.Sprintf("Park position X%s Y%s", formatMM(cal.XPark), formatMM(cal.YPark)))
	if w.Approach != nil {
		w.Operator.Info(w.approachOffset(coord.Point{X: cal.XPark, Y: cal.YPark}))
	}

	err = w.confirm("The tool is locked. Unlock it to leave it in the post")
	if err != nil {
		return err
	}
	cal, err = ReleaseTool(ctx, w.Client, cal)
	if err != nil {
		return err
	}

	err = w.jog(ctx, "Jog Y until the carriage is clear of the tool")
	if err != nil {
		return err
	}
	cal, err = CaptureClearPosition(ctx, w.Client, cal)
	if err != nil {
		return err
	}
	s.Clear(cal)
	err = w.save(s)
	if err != nil {
		return err
	}
	w.Operator.Info(fmt.Sprintf("Clearance position Y%s", formatMM(cal.YClear)))

	return s.Validate()
}

// approachOffset describes how far p is from the approach point in XY.
func (w *Wizard) approachOffset(p coord.Point) string {
	off := p.Sub(*w.Approach)
	return fmt.Sprintf("X%+.2f Y%+.2f from the approach point (%.2fmm)", off.X, off.Y, p.DistanceXY(w.Approach.X, w.Approach.Y))
}

func (w *Wizard) jog(ctx context.Context, msg string) error {
	w.Operator.Info(msg + ". Enter moves like \"x+1 y-0.5\", \"p\" for the position, empty when done.")
	for {
		line, err := w.Operator.Prompt("jog>")
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			return nil
		case "p", "pos":
			pos, err := CapturePosition(ctx, w.Client)
			if err != nil {
				return err
			}
			w.Operator.Info(pos.String())
			if w.Approach != nil {
				w.Operator.Info(w.approachOffset(pos.Point()))
			}
			continue
		}

		mv, err := ParseJog(line)
		if err != nil {
			w.Operator.Info(err.Error())
			continue
		}
		err = w.Client.MoveBy(ctx, mv)
		if err != nil {
			return errors.Wrap(err, "jog")
		}
	}
}

// ParseJog parses relative moves like "x+1 y-0.25". Each axis may appear
// once.
func ParseJog(s string) (machine.Move, error) {
	var mv machine.Move
	for _, f := range strings.Fields(strings.ToUpper(s)) {
		if len(f) < 2 {
			return mv, errors.Errorf("invalid jog %q", f)
		}
		v, err := strconv.ParseFloat(f[1:], 64)
		if err != nil {
			return mv, errors.Errorf("invalid jog distance %q", f)
		}

		var dst **float64
		switch f[0] {
		case 'X':
			dst = &mv.X
		case 'Y':
			dst = &mv.Y
		case 'Z':
			dst = &mv.Z
		default:
			return mv, errors.Errorf("unknown jog axis %q", f[:1])
		}
		if *dst != nil {
			return mv, errors.Errorf("axis %s given twice", f[:1])
		}
		*dst = machine.Coord(v)
	}
	if mv.Empty() {
		return mv, errors.New("empty jog")
	}
	return mv, nil
}

func formatMM(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
