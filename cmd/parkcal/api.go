package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mastercactapus/parkcal/calibration"
	"github.com/mastercactapus/parkcal/config"
	"github.com/mastercactapus/parkcal/macro"
	"github.com/mastercactapus/parkcal/machine"
)

type api struct {
	http.Handler
	m      machine.Client
	sse    *sse.Server
	states stateSource

	mx  sync.RWMutex
	cfg *config.Config
}

func newAPI(m machine.Client, c *config.Config) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		m:       m,
		cfg:     c,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(logrus.StandardLogger().WriterLevel(logrus.DebugLevel), "sse: ", 0),
		}),
	}

	r.HandleFunc("/api/home", a.home).Methods("POST")
	r.HandleFunc("/api/move", a.move).Methods("POST")
	r.HandleFunc("/api/lock", a.lock).Methods("POST")
	r.HandleFunc("/api/unlock", a.unlock).Methods("POST")
	r.HandleFunc("/api/tool", a.tool).Methods("POST")
	r.HandleFunc("/api/gcode", a.gcode).Methods("POST")
	r.HandleFunc("/api/position", a.position).Methods("GET")
	r.HandleFunc("/api/state", a.state).Methods("GET")
	r.HandleFunc("/api/capture/{step:park|clear}", a.capture).Methods("POST")
	r.HandleFunc("/api/session", a.session).Methods("GET")
	r.HandleFunc("/api/macros", a.listMacros).Methods("GET")
	r.HandleFunc("/api/macros", a.writeMacros).Methods("POST")

	r.HandleFunc("/macros/{name}", a.getFile).Methods("GET")
	r.HandleFunc("/macros/{name}", a.putFile).Methods("PUT")
	r.HandleFunc("/macros/{name}", a.deleteFile).Methods("DELETE")

	r.PathPrefix("/events/").Handler(a.sse)

	return a
}

func (a *api) config() *config.Config {
	a.mx.RLock()
	defer a.mx.RUnlock()
	return a.cfg
}

func (a *api) setConfig(c *config.Config) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.cfg = c
}

// publish forwards machine state to /events/state until ctx is done.
func (a *api) publish(ctx context.Context, states <-chan machine.State) {
	for {
		var state machine.State
		select {
		case <-ctx.Done():
			return
		case state = <-states:
		}
		data, err := json.Marshal(state)
		if err != nil {
			logrus.WithError(err).Error("marshal state")
			continue
		}
		a.sse.SendMessage("/events/state", sse.SimpleMessage(string(data)))
	}
}

func (a *api) Close() { a.sse.Shutdown() }

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logrus.WithError(err).Error("encode response")
	}
}

func serverError(w http.ResponseWriter, req *http.Request, err error) {
	logrus.WithError(err).WithField("path", req.URL.Path).Error("request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (a *api) home(w http.ResponseWriter, req *http.Request) {
	if err := a.m.HomeAll(req.Context()); err != nil {
		serverError(w, req, err)
	}
}

type moveRequest struct {
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
	Z        *float64 `json:"z"`
	Feed     float64  `json:"feed"`
	Relative bool     `json:"relative"`
}

func (a *api) move(w http.ResponseWriter, req *http.Request) {
	var body moveRequest
	err := json.NewDecoder(req.Body).Decode(&body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mv := machine.Move{X: body.X, Y: body.Y, Z: body.Z, Feed: body.Feed}
	if mv.Empty() {
		http.Error(w, "no axes to move", http.StatusBadRequest)
		return
	}

	if body.Relative {
		err = a.m.MoveBy(req.Context(), mv)
	} else {
		err = a.m.MoveTo(req.Context(), mv)
	}
	if err != nil {
		serverError(w, req, err)
	}
}

func (a *api) lock(w http.ResponseWriter, req *http.Request) {
	if err := a.m.ToolLock(req.Context()); err != nil {
		serverError(w, req, err)
	}
}

func (a *api) unlock(w http.ResponseWriter, req *http.Request) {
	if err := a.m.ToolUnlock(req.Context()); err != nil {
		serverError(w, req, err)
	}
}

func (a *api) tool(w http.ResponseWriter, req *http.Request) {
	tool, err := strconv.Atoi(req.FormValue("tool"))
	if err != nil || tool < -1 {
		http.Error(w, "invalid tool", http.StatusBadRequest)
		return
	}
	if err = a.m.ToolChange(req.Context(), tool); err != nil {
		serverError(w, req, err)
	}
}

func (a *api) gcode(w http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return
	}

	parts := strings.Split(string(data), "\n")
	p := parts[:0]
	for _, str := range parts {
		str = strings.TrimSpace(str)
		if str == "" {
			continue
		}
		p = append(p, str)
	}
	reply, err := a.m.Gcode(req.Context(), strings.Join(p, "\n"))
	if err != nil {
		serverError(w, req, err)
		return
	}
	io.WriteString(w, reply)
}

func (a *api) position(w http.ResponseWriter, req *http.Request) {
	pos, err := calibration.CapturePosition(req.Context(), a.m)
	if err != nil {
		serverError(w, req, err)
		return
	}
	writeJSON(w, pos)
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	if a.states == nil {
		http.Error(w, "no state source", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, a.states.CurrentState())
}

func (a *api) capture(w http.ResponseWriter, req *http.Request) {
	c := a.config()
	tool := -1
	if t := req.FormValue("tool"); t != "" {
		var err error
		tool, err = strconv.Atoi(t)
		if err != nil || tool < 0 {
			http.Error(w, "invalid tool", http.StatusBadRequest)
			return
		}
	}
	s, err := openSession(c, tool)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var cal calibration.ToolCalibration
	switch mux.Vars(req)["step"] {
	case "park":
		cal, err = calibration.CaptureParkPosition(req.Context(), a.m, s.Tool)
		if err == nil {
			s.Park(cal)
		}
	case "clear":
		cal, err = calibration.CaptureClearPosition(req.Context(), a.m, s.Tool)
		if err == nil {
			s.Clear(cal)
		}
	}
	if err == nil {
		err = saveSession(c, s)
	}
	if err != nil {
		serverError(w, req, err)
		return
	}
	writeJSON(w, s)
}

func (a *api) session(w http.ResponseWriter, req *http.Request) {
	s, err := openSession(a.config(), -1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, s)
}

func (a *api) renderSession(w http.ResponseWriter, req *http.Request) ([]macro.GeneratedMacro, bool) {
	c := a.config()
	s, err := openSession(c, -1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	if err = s.Validate(); err != nil && req.FormValue("force") != "1" {
		http.Error(w, err.Error(), http.StatusConflict)
		return nil, false
	}
	macros, err := renderMacros(c, s, req.FormValue("kind"))
	if err != nil {
		serverError(w, req, err)
		return nil, false
	}
	return macros, true
}

func (a *api) listMacros(w http.ResponseWriter, req *http.Request) {
	macros, ok := a.renderSession(w, req)
	if !ok {
		return
	}
	writeJSON(w, macros)
}

func (a *api) writeMacros(w http.ResponseWriter, req *http.Request) {
	macros, ok := a.renderSession(w, req)
	if !ok {
		return
	}
	paths, err := macro.WriteAll(a.config().Macros.OutputDir, macros)
	if err != nil {
		serverError(w, req, err)
		return
	}
	writeJSON(w, paths)
}

func safePath(base, name string) (bool, string) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		logrus.WithField("name", name).Warn("invalid path")
		return false, ""
	}
	dir := base
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	return true, fullName
}

func (a *api) getFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.config().Macros.OutputDir, mux.Vars(req)["name"])
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	http.ServeFile(w, req, name)
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.config().Macros.OutputDir, mux.Vars(req)["name"])
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	os.MkdirAll(filepath.Dir(name), 0o755)
	f, err := os.Create(name)
	if err != nil {
		serverError(w, req, err)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		serverError(w, req, err)
		return
	}
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.config().Macros.OutputDir, mux.Vars(req)["name"])
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.Remove(name)
	if os.IsNotExist(err) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		serverError(w, req, err)
		return
	}
}
