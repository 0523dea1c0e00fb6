package gcode

import (
	"errors"
	"strings"
)

// Block is a single line of G-code.
type Block []Word

// Word returns the first word with the given letter.
func (b Block) Word(w byte) (Word, bool) {
	for _, g := range b {
		if g.W == w {
			return g, true
		}
	}
	return Word{}, false
}

// Command returns the command word of the block (G, M or T).
func (b Block) Command() (Word, bool) {
	for _, g := range b {
		if g.IsCommand() {
			return g, true
		}
	}
	return Word{}, false
}

// Args returns the parameter words of the block.
func (b Block) Args() Block {
	res := make(Block, 0, len(b))
	for _, g := range b {
		if !g.IsCommand() {
			res = append(res, g)
		}
	}
	return res
}

func (b Block) String() string {
	parts := make([]string, len(b))
	for i, g := range b {
		parts[i] = g.String()
	}
	return strings.Join(parts, " ")
}

// Validate checks the block can be executed by RepRapFirmware, which only
// accepts a single command per line.
func (b Block) Validate() error {
	var checkWord [256]bool

	var commands int
	for _, g := range b {
		if !g.IsValid() {
			return errors.New("invalid word in block")
		}
		if g.IsCommand() {
			commands++
			if commands > 1 {
				return errors.New("multiple commands in a block")
			}
			continue
		}
		if checkWord[g.W] {
			return errors.New("word was repeated in a block")
		}
		checkWord[g.W] = true
	}

	return nil
}
