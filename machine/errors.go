package machine

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotConnected is returned by adapters after Close or before a
	// connection has been established.
	ErrNotConnected = errors.New("machine not connected")

	// ErrMalformedPosition is returned when a position report can't be parsed.
	ErrMalformedPosition = errors.New("malformed position report")

	// ErrMissingAxis is returned when a position report lacks a requested axis.
	ErrMissingAxis = errors.New("axis missing from position report")
)

// CommandError is returned when the controller rejects a command.
type CommandError struct {
	Line  string
	Reply string
}

func (e *CommandError) Error() string {
	return "controller rejected " + e.Line + ": " + e.Reply
}

// CheckReply returns a CommandError if reply reports a firmware error.
func CheckReply(line, reply string) error {
	for _, ln := range strings.Split(reply, "\n") {
		if strings.HasPrefix(strings.TrimSpace(ln), "Error:") {
			return &CommandError{Line: line, Reply: strings.TrimSpace(reply)}
		}
	}
	return nil
}
