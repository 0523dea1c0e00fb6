package gcode

import (
	"strconv"
	"strings"
)

// Word is a single letter/parameter pair.
//
// Raw holds the literal parameter text when it is not a plain number:
// a quoted string such as `"/macros/tool_lock.g"` or an expression
// such as `{200-60}`. Bare is set for a letter without any parameter
// (e.g. the X in `G28 X`).
type Word struct {
	W    byte
	Arg  float64
	Raw  string
	Bare bool
}

func (w Word) IsAxis() bool {
	switch w.W {
	case 'X', 'Y', 'Z', 'U':
		return true
	}
	return false
}

// IsCommand returns true for words that start a command (G, M and T).
func (w Word) IsCommand() bool {
	switch w.W {
	case 'G', 'M', 'T':
		return true
	}
	return false
}

func (w Word) IsValid() bool {
	return w.W >= 'A' && w.W <= 'Z'
}

func (w Word) IsExpr() bool { return strings.HasPrefix(w.Raw, "{") }

// Quoted returns the unquoted string parameter, if w has one.
func (w Word) Quoted() (string, bool) {
	if len(w.Raw) < 2 || w.Raw[0] != '"' || w.Raw[len(w.Raw)-1] != '"' {
		return "", false
	}
	return strings.Replace(w.Raw[1:len(w.Raw)-1], `""`, `"`, -1), true
}

func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

func (w Word) String() string {
	switch {
	case w.Bare:
		return string(w.W)
	case w.Raw != "":
		return string(w.W) + w.Raw
	case w.W == 'T' && w.Arg < 0:
		return "T-1"
	}
	return string(w.W) + formatFloat(w.Arg, 3)
}

// Str is a convenience for building a word with a quoted string parameter.
func Str(w byte, val string) Word {
	return Word{W: w, Raw: `"` + strings.Replace(val, `"`, `""`, -1) + `"`}
}
