package machine

import "github.com/mastercactapus/parkcal/gcode"

// Move describes a linear move. Nil axes are left out of the command.
type Move struct {
	X, Y, Z, U *float64

	// Feed is the feed rate in mm/min, zero for the default.
	Feed float64
}

// Coord is a helper for filling in a Move.
func Coord(v float64) *float64 { return &v }

func (mv Move) Empty() bool {
	return mv.X == nil && mv.Y == nil && mv.Z == nil && mv.U == nil
}

func (mv Move) block(defaultFeed float64) gcode.Block {
	b := gcode.Block{{W: 'G', Arg: 0}}
	add := func(w byte, v *float64) {
		if v != nil {
			b = append(b, gcode.Word{W: w, Arg: *v})
		}
	}
	add('X', mv.X)
	add('Y', mv.Y)
	add('Z', mv.Z)
	add('U', mv.U)

	feed := mv.Feed
	if feed == 0 {
		feed = defaultFeed
	}
	if feed > 0 {
		b = append(b, gcode.Word{W: 'F', Arg: feed})
	}
	return b
}
