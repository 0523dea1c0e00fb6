package duet

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/mastercactapus/parkcal/machine"
)

// Monitor follows the DSF object model over a websocket and publishes
// machine state as it changes.
//
// DSF sends the full model first and then patches, each one only after the
// client has acknowledged the previous message with "OK\n".
type Monitor struct {
	url   string
	retry time.Duration

	mx      sync.Mutex
	last    machine.State
	letters []string
	state   chan machine.State
}

// NewMonitor creates a monitor for the controller at addr
// (e.g. "http://jubilee.local").
func NewMonitor(addr string) *Monitor {
	u := addr
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	case !strings.Contains(u, "://"):
		u = "ws://" + u
	}
	return &Monitor{
		url:   strings.TrimSuffix(u, "/") + "/machine",
		retry: 3 * time.Second,
		state: make(chan machine.State, 1),
		last:  machine.State{Tool: -1, Position: machine.Position{}},
	}
}

// State returns the channel updates are published on. Only the latest
// update is kept when nobody is receiving.
func (m *Monitor) State() chan machine.State { return m.state }

func (m *Monitor) CurrentState() machine.State {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.last
}

// Run connects and follows the object model until ctx is done,
// reconnecting after failures.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		logrus.WithField("url", m.url).Info("connecting to object model")
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, m.url, nil)
		if err != nil {
			logrus.WithError(err).Error("monitor connect")
		} else {
			logrus.Info("monitor connected")
			done := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					ws.Close()
				case <-done:
				}
			}()
			err = m.readLoop(ws)
			close(done)
			ws.Close()
			if ctx.Err() == nil {
				logrus.WithError(err).Error("monitor read")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.retry):
		}
	}
}

func (m *Monitor) readLoop(ws *websocket.Conn) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
			// PONG and other keep-alive messages
			continue
		}
		if !gjson.ValidBytes(data) {
			logrus.Warn("monitor: ignoring invalid object model message")
		} else {
			m.apply(gjson.ParseBytes(data))
		}
		err = ws.WriteMessage(websocket.TextMessage, []byte("OK\n"))
		if err != nil {
			return err
		}
	}
}

func (m *Monitor) apply(model gjson.Result) {
	m.mx.Lock()
	defer m.mx.Unlock()

	st := m.last
	pos := make(machine.Position, len(st.Position))
	for k, v := range st.Position {
		pos[k] = v
	}

	i := 0
	model.Get("move.axes").ForEach(func(_, axis gjson.Result) bool {
		for len(m.letters) <= i {
			m.letters = append(m.letters, "")
		}
		if l := axis.Get("letter"); l.Exists() {
			m.letters[i] = l.String()
		}
		if p := axis.Get("userPosition"); p.Exists() && m.letters[i] != "" {
			pos[m.letters[i]] = p.Float()
		}
		i++
		return true
	})
	if s := model.Get("state.status"); s.Exists() {
		st.Status = s.String()
	}
	if t := model.Get("state.currentTool"); t.Exists() {
		st.Tool = int(t.Int())
	}
	st.Position = pos
	m.last = st

	select {
	case m.state <- st:
	default:
		// replace the stale update
		select {
		case <-m.state:
		default:
		}
		select {
		case m.state <- st:
		default:
		}
	}
}
