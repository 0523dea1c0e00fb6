package duet

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/parkcal/machine"
)

// fakeBoard emulates the rr_* API of a standalone Duet.
type fakeBoard struct {
	mx           sync.Mutex
	password     string
	seq          int
	reply        string
	codes        []string
	replies      map[string]string
	disconnected bool
}

func (b *fakeBoard) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	b.mx.Lock()
	defer b.mx.Unlock()

	switch req.URL.Path {
	case "/rr_connect":
		if req.FormValue("password") != b.password {
			fmt.Fprint(w, `{"err":1}`)
			return
		}
		fmt.Fprint(w, `{"err":0,"sessionTimeout":8000,"boardType":"mb6hc"}`)
	case "/rr_model":
		switch req.FormValue("key") {
		case "seqs":
			fmt.Fprintf(w, `{"key":"seqs","flags":"d99v","result":{"reply":%d}}`, b.seq)
		case "move.axes":
			fmt.Fprint(w, `{"key":"move.axes","result":[{"letter":"X","userPosition":283.3},{"letter":"Y","userPosition":310},{"letter":"Z","userPosition":0},{"letter":"U","userPosition":0}]}`)
		case "state":
			fmt.Fprint(w, `{"key":"state","result":{"status":"idle","currentTool":2}}`)
		default:
			http.NotFound(w, req)
		}
	case "/rr_gcode":
		code := req.FormValue("gcode")
		b.codes = append(b.codes, code)
		b.reply = b.replies[code]
		b.seq++
		fmt.Fprint(w, `{"buff":255}`)
	case "/rr_reply":
		fmt.Fprint(w, b.reply)
	case "/rr_disconnect":
		b.disconnected = true
		fmt.Fprint(w, `{"err":0}`)
	default:
		http.NotFound(w, req)
	}
}

func testOptions() HTTPOptions {
	return HTTPOptions{PollInterval: time.Millisecond, ReplyTimeout: time.Second}
}

func TestHTTPAdapter_Standalone(t *testing.T) {
	board := &fakeBoard{replies: map[string]string{
		"M114": "X:283.300 Y:310.000 Z:0.000 U:0.000 E:0.000 Count 0 0 0 0\n",
		"G0 X1": "Error: G0/G1: insufficient axes homed\n",
	}}
	srv := httptest.NewServer(board)
	defer srv.Close()

	a, err := Dial(context.Background(), srv.URL, testOptions())
	require.NoError(t, err)
	assert.Equal(t, ModeStandalone, a.Mode())

	m := machine.NewMachine(a, machine.DefaultOptions)
	require.NoError(t, m.HomeAll(context.Background()))

	pos, err := m.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 283.3, pos["X"])
	assert.Equal(t, 310.0, pos["Y"])

	_, err = a.Send(context.Background(), "G0 X1")
	var cmdErr *machine.CommandError
	assert.True(t, errors.As(err, &cmdErr))

	st, err := a.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "idle", st.Status)
	assert.Equal(t, 2, st.Tool)
	assert.Equal(t, machine.Position{"X": 283.3, "Y": 310, "Z": 0, "U": 0}, st.Position)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.True(t, board.disconnected)
	assert.Equal(t, []string{"G28", "M114", "G0 X1"}, board.codes)

	_, err = a.Send(context.Background(), "G28")
	assert.True(t, errors.Is(err, machine.ErrNotConnected))
}

func TestHTTPAdapter_BadPassword(t *testing.T) {
	srv := httptest.NewServer(&fakeBoard{password: "secret"})
	defer srv.Close()

	opt := testOptions()
	opt.Mode = ModeStandalone
	_, err := Dial(context.Background(), srv.URL, opt)
	assert.Error(t, err)

	opt.Password = "secret"
	a, err := Dial(context.Background(), srv.URL, opt)
	require.NoError(t, err)
	a.Close()
}

func TestHTTPAdapter_ReplyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/rr_connect":
			fmt.Fprint(w, `{"err":0}`)
		case "/rr_model":
			fmt.Fprint(w, `{"key":"seqs","result":{"reply":7}}`)
		default:
			fmt.Fprint(w, `{"buff":255}`)
		}
	}))
	defer srv.Close()

	opt := testOptions()
	opt.ReplyTimeout = 20 * time.Millisecond
	a, err := Dial(context.Background(), srv.URL, opt)
	require.NoError(t, err)

	_, err = a.Send(context.Background(), "M400")
	assert.Error(t, err)
}

func TestHTTPAdapter_DSF(t *testing.T) {
	var codes []string
	mux := http.NewServeMux()
	mux.HandleFunc("/machine/status", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"move":{"axes":[{"letter":"X","userPosition":1.5},{"letter":"Y","userPosition":200}]},"state":{"status":"idle","currentTool":-1}}`)
	})
	mux.HandleFunc("/machine/code", func(w http.ResponseWriter, req *http.Request) {
		data, _ := ioutil.ReadAll(req.Body)
		codes = append(codes, string(data))
		if string(data) == "M114" {
			fmt.Fprint(w, "X:1.500 Y:200.000 Z:0.000 U:0.000 E:0.000 Count 0 0 0 0")
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, err := Dial(context.Background(), srv.URL, testOptions())
	require.NoError(t, err)
	assert.Equal(t, ModeDSF, a.Mode())

	m := machine.NewMachine(a, machine.DefaultOptions)
	require.NoError(t, m.ToolLock(context.Background()))
	pos, err := m.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200.0, pos["Y"])

	st, err := a.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -1, st.Tool)
	assert.Equal(t, machine.Position{"X": 1.5, "Y": 200}, st.Position)

	require.NoError(t, m.Close())
	assert.Equal(t, []string{`M98 P"/macros/tool_lock.g"`, "M114"}, codes)
}

func TestHTTPAdapter_DSFLongCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/machine/status", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"state":{"status":"idle"}}`)
	})
	mux.HandleFunc("/machine/code", func(w http.ResponseWriter, req *http.Request) {
		// DSF answers once the code has finished
		time.Sleep(100 * time.Millisecond)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	opt := testOptions()
	opt.Mode = ModeDSF
	opt.RequestTimeout = 20 * time.Millisecond
	opt.ReplyTimeout = 5 * time.Second
	a, err := Dial(context.Background(), srv.URL, opt)
	require.NoError(t, err)

	_, err = a.Send(context.Background(), "G28")
	assert.NoError(t, err)

	opt.ReplyTimeout = 20 * time.Millisecond
	opt.RequestTimeout = time.Second
	a, err = Dial(context.Background(), srv.URL, opt)
	require.NoError(t, err)

	_, err = a.Send(context.Background(), "G28")
	assert.Error(t, err)
}

func TestDial_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Dial(context.Background(), srv.URL, testOptions())
	assert.Error(t, err)
}
