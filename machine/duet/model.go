package duet

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/mastercactapus/parkcal/machine"
)

// axesPosition reads user positions from a complete move.axes array.
func axesPosition(axes gjson.Result) machine.Position {
	pos := make(machine.Position)
	axes.ForEach(func(_, axis gjson.Result) bool {
		letter := axis.Get("letter").String()
		if letter != "" {
			pos[letter] = axis.Get("userPosition").Float()
		}
		return true
	})
	return pos
}

// State polls the object model for the current machine state.
func (a *HTTPAdapter) State(ctx context.Context) (machine.State, error) {
	axes, err := a.Model(ctx, "move.axes")
	if err != nil {
		return machine.State{}, err
	}
	st, err := a.Model(ctx, "state")
	if err != nil {
		return machine.State{}, err
	}
	return machine.State{
		Status:   st.Get("status").String(),
		Tool:     int(st.Get("currentTool").Int()),
		Position: axesPosition(axes),
	}, nil
}
