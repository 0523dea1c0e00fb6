package gcode

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mastercactapus/parkcal/coord"
)

// VM will track state and interpret the subset of RepRapFirmware
// G-code used by tool change macros.
type VM struct {
	pos coord.Point

	relative bool
	feed     float64
	tool     int

	// Macros handles M98 calls by path.
	Macros map[string]func(*VM) error

	moves []coord.Point
}

// NewVM constructs a new VM with default state (absolute moves, no tool).
func NewVM() *VM {
	return &VM{
		tool:   -1,
		Macros: make(map[string]func(*VM) error),
	}
}

func (vm VM) RelativeMotion() bool { return vm.relative }
func (vm VM) Pos() coord.Point     { return vm.pos }
func (vm VM) Feed() float64        { return vm.feed }
func (vm VM) Tool() int            { return vm.tool }

// Moves returns every position reached by a G0/G1, in order.
func (vm VM) Moves() []coord.Point { return vm.moves }

func (vm *VM) SetPos(p coord.Point) { vm.pos = p }

// RunAll will run each block in order, stopping at the first error.
func (vm *VM) RunAll(blocks []Block) error {
	for _, b := range blocks {
		if err := vm.Run(b); err != nil {
			return errors.New(b.String() + ": " + err.Error())
		}
	}
	return nil
}

func (vm *VM) Run(b Block) error {
	err := b.Validate()
	if err != nil {
		return err
	}
	cmd, ok := b.Command()
	if !ok {
		return errors.New("no command in block")
	}

	switch cmd.W {
	case 'T':
		vm.tool = int(cmd.Arg)
		return nil
	case 'M':
		switch cmd.Arg {
		case 400, 114:
			return nil
		case 98:
			return vm.callMacro(b)
		}
	case 'G':
		switch cmd.Arg {
		case 4, 21, 60:
			return nil
		case 90:
			vm.relative = false
			return nil
		case 91:
			vm.relative = true
			return nil
		case 0, 1:
			return vm.move(b.Args())
		case 28:
			vm.home(b.Args())
			return nil
		}
	}

	return errors.New("unsupported code: " + cmd.String())
}

func (vm *VM) callMacro(b Block) error {
	p, ok := b.Word('P')
	if !ok {
		return errors.New("M98 without P parameter")
	}
	name, ok := p.Quoted()
	if !ok {
		return errors.New("M98 P parameter must be a string")
	}
	fn := vm.Macros[name]
	if fn == nil {
		return errors.New("unknown macro: " + name)
	}
	return fn(vm)
}

func (vm *VM) home(args Block) {
	var named bool
	for _, g := range args {
		if g.IsAxis() {
			vm.pos = vm.pos.WithAxis(g.W, 0)
			named = true
		}
	}
	if !named {
		vm.pos = coord.Point{}
	}
}

func (vm *VM) move(args Block) error {
	next := vm.pos
	for _, g := range args {
		val, err := wordValue(g)
		if err != nil {
			return err
		}
		switch {
		case g.W == 'F':
			vm.feed = val
		case g.IsAxis():
			if vm.relative {
				cur, _ := next.Axis(g.W)
				val += cur
			}
			next = next.WithAxis(g.W, val)
		}
	}
	vm.pos = next
	vm.moves = append(vm.moves, next)
	return nil
}

func wordValue(g Word) (float64, error) {
	switch {
	case g.Bare:
		return 0, errors.New("missing value for " + string(g.W))
	case g.IsExpr():
		return evalExpr(strings.TrimSuffix(strings.TrimPrefix(g.Raw, "{"), "}"))
	case g.Raw != "":
		return 0, errors.New("non-numeric value for " + string(g.W))
	}
	return g.Arg, nil
}

// evalExpr evaluates a numeric expression of +, -, * and / with the
// usual precedence. It is enough for the offsets used in tool macros.
func evalExpr(s string) (float64, error) {
	s = strings.Replace(s, " ", "", -1)
	if s == "" {
		return 0, errors.New("empty expression")
	}

	var sum, term float64
	sumOp, termOp := byte('+'), byte('*')
	term = 1
	for i := 0; i <= len(s); {
		j := i
		if j < len(s) && (s[j] == '-' || s[j] == '+') {
			j++
		}
		for j < len(s) && strings.IndexByte("0123456789.", s[j]) >= 0 {
			j++
		}
		val, err := strconv.ParseFloat(s[i:j], 64)
		if err != nil {
			return 0, errors.New("invalid expression: {" + s + "}")
		}
		if termOp == '*' {
			term *= val
		} else {
			term /= val
		}

		var op byte
		if j < len(s) {
			op = s[j]
		}
		switch op {
		case '*', '/':
			termOp = op
		case '+', '-', 0:
			if sumOp == '+' {
				sum += term
			} else {
				sum -= term
			}
			sumOp, termOp, term = op, '*', 1
		default:
			return 0, errors.New("invalid expression: {" + s + "}")
		}
		if op == 0 {
			return sum, nil
		}
		i = j + 1
	}
	return sum, nil
}
