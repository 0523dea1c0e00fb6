package calibration

import (
	"context"
	"fmt"

	"github.com/mastercactapus/parkcal/coord"
	"github.com/mastercactapus/parkcal/machine"
)

type fakeClient struct {
	pos    coord.Point
	locked bool
	calls  []string

	posErr error
}

var _ machine.Client = &fakeClient{}

func (f *fakeClient) HomeAll(ctx context.Context) error {
	f.calls = append(f.calls, "home")
	f.pos = coord.Point{}
	return nil
}

func apply(p coord.Point, mv machine.Move, rel bool) coord.Point {
	set := func(dst *float64, v *float64) {
		if v == nil {
			return
		}
		if rel {
			*dst += *v
		} else {
			*dst = *v
		}
	}
	set(&p.X, mv.X)
	set(&p.Y, mv.Y)
	set(&p.Z, mv.Z)
	set(&p.U, mv.U)
	return p
}

func (f *fakeClient) MoveTo(ctx context.Context, mv machine.Move) error {
	f.pos = apply(f.pos, mv, false)
	f.calls = append(f.calls, fmt.Sprintf("moveto %g,%g", f.pos.X, f.pos.Y))
	return nil
}

func (f *fakeClient) MoveBy(ctx context.Context, mv machine.Move) error {
	f.pos = apply(f.pos, mv, true)
	f.calls = append(f.calls, fmt.Sprintf("moveby %g,%g", f.pos.X, f.pos.Y))
	return nil
}

func (f *fakeClient) WaitForMoves(ctx context.Context) error {
	f.calls = append(f.calls, "wait")
	return nil
}

func (f *fakeClient) Position(ctx context.Context) (machine.Position, error) {
	f.calls = append(f.calls, "position")
	if f.posErr != nil {
		return nil, f.posErr
	}
	return machine.Position{"X": f.pos.X, "Y": f.pos.Y, "Z": f.pos.Z, "U": f.pos.U}, nil
}

func (f *fakeClient) ToolLock(ctx context.Context) error {
	f.calls = append(f.calls, "lock")
	f.locked = true
	return nil
}

func (f *fakeClient) ToolUnlock(ctx context.Context) error {
	f.calls = append(f.calls, "unlock")
	f.locked = false
	return nil
}

func (f *fakeClient) ToolChange(ctx context.Context, tool int) error {
	f.calls = append(f.calls, fmt.Sprintf("T%d", tool))
	return nil
}

func (f *fakeClient) Gcode(ctx context.Context, line string) (string, error) {
	f.calls = append(f.calls, line)
	return "", nil
}

func (f *fakeClient) Close() error { return nil }
