package machine

import (
	"context"

	"github.com/mastercactapus/parkcal/gcode"
)

// ToolLock engages the tool lock by running the lock macro.
func (m *Machine) ToolLock(ctx context.Context) error {
	_, err := m.runBlocks(ctx, []gcode.Block{
		{{W: 'M', Arg: 98}, gcode.Str('P', m.opt.LockMacro)},
	})
	return err
}

// ToolUnlock releases the tool lock by running the unlock macro.
func (m *Machine) ToolUnlock(ctx context.Context) error {
	_, err := m.runBlocks(ctx, []gcode.Block{
		{{W: 'M', Arg: 98}, gcode.Str('P', m.opt.UnlockMacro)},
	})
	return err
}

// ToolChange selects a tool, running the controller's tfree/tpre/tpost
// macros. A tool of -1 parks the current tool without picking up another.
//
// Tool numbers are not checked against the machine configuration.
func (m *Machine) ToolChange(ctx context.Context, tool int) error {
	_, err := m.runBlocks(ctx, []gcode.Block{
		{{W: 'T', Arg: float64(tool)}},
		{{W: 'M', Arg: 400}},
	})
	return err
}
