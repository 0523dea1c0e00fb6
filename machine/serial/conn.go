// Package serial talks to a Duet controller over its USB serial port.
package serial

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	tarm "github.com/tarm/serial"

	"github.com/mastercactapus/parkcal/machine"
)

// Conn represents a direct connection to a RepRapFirmware controller.
//
// Every line sent is answered by zero or more reply lines followed
// by "ok".
type Conn struct {
	rw io.ReadWriter

	lines   chan string
	readErr error

	// done is closed by Close; stopped is closed when readLoop returns.
	done    chan struct{}
	stopped chan struct{}

	mx     sync.Mutex
	closed bool
}

var _ machine.Adapter = &Conn{}

// Open opens the serial port at name (e.g. /dev/ttyACM0).
func Open(name string, baud int) (*Conn, error) {
	port, err := tarm.OpenPort(&tarm.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	logrus.WithFields(logrus.Fields{"port": name, "baud": baud}).Info("connected to controller")
	return NewConn(port), nil
}

// NewConn creates a new Conn using the provided ReadWriter for data.
func NewConn(rw io.ReadWriter) *Conn {
	c := &Conn{
		rw:      rw,
		lines:   make(chan string, 100),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	defer close(c.stopped)
	defer close(c.lines)

	scan := bufio.NewScanner(c.rw)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		select {
		case c.lines <- line:
		case <-c.done:
			c.readErr = machine.ErrNotConnected
			return
		}
	}
	c.readErr = scan.Err()
	if c.readErr == nil {
		c.readErr = io.EOF
	}
}

// drain discards output that arrived outside of a command, such as
// the boot banner.
func (c *Conn) drain() {
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return
			}
			logrus.WithField("line", line).Debug("serial: unsolicited output")
		default:
			return
		}
	}
}

// Send writes line and returns the reply once it has been acknowledged.
func (c *Conn) Send(ctx context.Context, line string) (string, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.closed {
		return "", machine.ErrNotConnected
	}

	c.drain()
	_, err := io.WriteString(c.rw, line+"\n")
	if err != nil {
		return "", errors.Wrap(err, "write")
	}

	var reply []string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ln, ok := <-c.lines:
			if !ok {
				return "", errors.Wrap(machine.ErrNotConnected, c.readErr.Error())
			}
			if ln == "ok" || strings.HasPrefix(ln, "ok ") {
				text := strings.Join(reply, "\n")
				return text, machine.CheckReply(line, text)
			}
			reply = append(reply, ln)
		}
	}
}

// Close closes the underlying ReadWriter, if it implements io.Closer.
func (c *Conn) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
