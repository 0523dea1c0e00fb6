package machine

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mastercactapus/parkcal/coord"
)

// Position is the reported location of each axis, keyed by axis letter.
type Position map[string]float64

// Axis returns the value for the named axis.
func (p Position) Axis(name string) (float64, error) {
	v, ok := p[strings.ToUpper(name)]
	if !ok {
		return 0, errors.Wrapf(ErrMissingAxis, "axis %s", name)
	}
	return v, nil
}

// Point converts the position to machine coordinates, ignoring extra axes.
func (p Position) Point() coord.Point {
	var pt coord.Point
	for _, letter := range []byte("XYZU") {
		if v, ok := p[string(letter)]; ok {
			pt = pt.WithAxis(letter, v)
		}
	}
	return pt
}

func (p Position) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + strconv.FormatFloat(p[k], 'f', 3, 64)
	}
	return strings.Join(parts, " ")
}

// ParsePosition parses an M114 reply such as:
//
//	X:283.300 Y:310.000 Z:0.000 U:0.000 E:0.000 Count 28330 31000 0 0 Machine 283.300 ...
//
// Only the user position fields before "Count" are read.
func ParsePosition(reply string) (Position, error) {
	fields := strings.Fields(reply)
	pos := make(Position, len(fields))
	for _, f := range fields {
		if f == "Count" || f == "Machine" {
			break
		}
		parts := strings.SplitN(f, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, errors.Wrapf(ErrMalformedPosition, "field %q", f)
		}
		v, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedPosition, "field %q", f)
		}
		pos[strings.ToUpper(parts[0])] = v
	}
	if len(pos) == 0 {
		return nil, errors.Wrapf(ErrMalformedPosition, "reply %q", reply)
	}
	return pos, nil
}
