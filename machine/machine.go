package machine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mastercactapus/parkcal/gcode"
)

// Client is the set of machine operations used by the calibration workflow.
type Client interface {
	HomeAll(ctx context.Context) error
	MoveTo(ctx context.Context, mv Move) error
	MoveBy(ctx context.Context, mv Move) error
	WaitForMoves(ctx context.Context) error
	Position(ctx context.Context) (Position, error)
	ToolLock(ctx context.Context) error
	ToolUnlock(ctx context.Context) error
	ToolChange(ctx context.Context, tool int) error
	Gcode(ctx context.Context, line string) (string, error)
	Close() error
}

// State is a snapshot of the machine published by a monitor.
type State struct {
	Status   string   `json:"status"`
	Position Position `json:"position"`
	Tool     int      `json:"tool"`
}

// Options configure the commands a Machine generates.
type Options struct {
	// LockMacro and UnlockMacro are the controller paths of the
	// tool lock macros.
	LockMacro   string
	UnlockMacro string

	// TravelFeed is used for moves that don't specify a feed rate.
	// Zero leaves the controller's current feed rate in place.
	TravelFeed float64
}

// DefaultOptions match the stock Jubilee configuration.
var DefaultOptions = Options{
	LockMacro:   "/macros/tool_lock.g",
	UnlockMacro: "/macros/tool_unlock.g",
}

// Machine implements Client on top of an Adapter.
//
// Commands are serialized so a Machine can be shared between goroutines.
type Machine struct {
	Adapter

	opt Options
	mx  sync.Mutex
}

var _ Client = &Machine{}

func NewMachine(a Adapter, opt Options) *Machine {
	if opt.LockMacro == "" {
		opt.LockMacro = DefaultOptions.LockMacro
	}
	if opt.UnlockMacro == "" {
		opt.UnlockMacro = DefaultOptions.UnlockMacro
	}
	return &Machine{
		Adapter: a,
		opt:     opt,
	}
}

// Options returns the options the machine was created with.
func (m *Machine) Options() Options { return m.opt }

func (m *Machine) runBlocks(ctx context.Context, b []gcode.Block) (string, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	var replies []string
	for _, block := range b {
		if err := block.Validate(); err != nil {
			return "", errors.Wrapf(err, "invalid block %q", block.String())
		}
		line := block.String()
		logrus.WithField("gcode", line).Debug("send")
		reply, err := m.Adapter.Send(ctx, line)
		if err != nil {
			return "", errors.Wrapf(err, "send %q", line)
		}
		if reply = strings.TrimSpace(reply); reply != "" {
			logrus.WithField("gcode", line).Debugf("reply: %s", reply)
			replies = append(replies, reply)
		}
	}
	return strings.Join(replies, "\n"), nil
}

// HomeAll homes every axis.
func (m *Machine) HomeAll(ctx context.Context) error {
	_, err := m.runBlocks(ctx, []gcode.Block{{{W: 'G', Arg: 28}}})
	return err
}

// MoveTo moves to an absolute position. Axes left unset in mv keep
// their current value; a move without axes does nothing.
func (m *Machine) MoveTo(ctx context.Context, mv Move) error {
	if mv.Empty() {
		return nil
	}
	_, err := m.runBlocks(ctx, []gcode.Block{
		{{W: 'G', Arg: 90}},
		mv.block(m.opt.TravelFeed),
	})
	return err
}

// MoveBy moves relative to the current position. Absolute mode is
// restored even when the move is rejected.
func (m *Machine) MoveBy(ctx context.Context, mv Move) (err error) {
	if mv.Empty() {
		return nil
	}
	defer func() {
		restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_, rerr := m.runBlocks(restoreCtx, []gcode.Block{{{W: 'G', Arg: 90}}})
		if rerr == nil {
			return
		}
		if err != nil {
			logrus.WithError(rerr).Error("restore absolute mode")
			return
		}
		err = rerr
	}()

	_, err = m.runBlocks(ctx, []gcode.Block{
		{{W: 'G', Arg: 91}},
		mv.block(m.opt.TravelFeed),
	})
	return err
}

// WaitForMoves blocks until all queued moves have finished.
func (m *Machine) WaitForMoves(ctx context.Context) error {
	_, err := m.runBlocks(ctx, []gcode.Block{{{W: 'M', Arg: 400}}})
	return err
}

// Position returns the reported position of every axis.
func (m *Machine) Position(ctx context.Context) (Position, error) {
	reply, err := m.runBlocks(ctx, []gcode.Block{{{W: 'M', Arg: 114}}})
	if err != nil {
		return nil, err
	}
	return ParsePosition(reply)
}

// Gcode sends a raw line and returns the controller's reply.
func (m *Machine) Gcode(ctx context.Context, line string) (string, error) {
	blocks, err := gcode.Parse(line)
	if err != nil {
		return "", errors.Wrap(err, "parse gcode")
	}
	return m.runBlocks(ctx, blocks)
}
