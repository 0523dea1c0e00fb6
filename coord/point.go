package coord

import (
	"math"
)

// Point is a carriage location in machine coordinates.
//
// U is the Jubilee tool-lock axis.
type Point struct{ X, Y, Z, U float64 }

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	p.U -= target.U
	return p
}

// Axis returns the value for the named axis letter.
func (p Point) Axis(letter byte) (float64, bool) {
	switch letter {
	case 'X':
		return p.X, true
	case 'Y':
		return p.Y, true
	case 'Z':
		return p.Z, true
	case 'U':
		return p.U, true
	}
	return 0, false
}

// WithAxis returns a copy of p with the named axis set to val.
// Unknown letters leave p unchanged.
func (p Point) WithAxis(letter byte, val float64) Point {
	switch letter {
	case 'X':
		p.X = val
	case 'Y':
		p.Y = val
	case 'Z':
		p.Z = val
	case 'U':
		p.U = val
	}
	return p
}

// DistanceXY will return the 2D distance to p from (x,y).
func (p Point) DistanceXY(x, y float64) float64 {
	return math.Sqrt(math.Pow(x-p.X, 2) + math.Pow(y-p.Y, 2))
}
