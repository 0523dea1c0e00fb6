// Package duet talks to a Duet controller running RepRapFirmware, either
// directly (standalone mode) or through DuetSoftwareFramework on an SBC.
package duet

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/mastercactapus/parkcal/machine"
)

// Mode selects the HTTP API used to reach the controller.
type Mode string

const (
	// ModeAuto probes for a standalone board and falls back to DSF.
	ModeAuto Mode = ""

	// ModeStandalone uses the rr_* requests served by RepRapFirmware.
	ModeStandalone Mode = "standalone"

	// ModeDSF uses the REST API of DuetSoftwareFramework.
	ModeDSF Mode = "dsf"
)

// HTTPOptions configure an HTTPAdapter.
type HTTPOptions struct {
	Mode     Mode
	Password string

	// PollInterval is the delay between reply checks in standalone mode.
	PollInterval time.Duration

	// RequestTimeout bounds connect, status and model requests.
	RequestTimeout time.Duration

	// ReplyTimeout bounds how long a command may take to produce its
	// reply. DSF holds the code request open until the code finishes, so
	// homing, tool changes and M400 after long moves need a generous value.
	ReplyTimeout time.Duration

	Client *http.Client
}

// HTTPAdapter implements machine.Adapter over HTTP.
type HTTPAdapter struct {
	base *url.URL
	opt  HTTPOptions
	mode Mode

	mx     sync.Mutex
	closed bool
}

var _ machine.Adapter = &HTTPAdapter{}

// Dial connects to the controller at addr (e.g. "http://jubilee.local").
func Dial(ctx context.Context, addr string, opt HTTPOptions) (*HTTPAdapter, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "parse address %q", addr)
	}
	if opt.Client == nil {
		opt.Client = &http.Client{}
	}
	if opt.RequestTimeout == 0 {
		opt.RequestTimeout = 10 * time.Second
	}
	if opt.PollInterval == 0 {
		opt.PollInterval = 100 * time.Millisecond
	}
	if opt.ReplyTimeout == 0 {
		opt.ReplyTimeout = 2 * time.Minute
	}

	a := &HTTPAdapter{base: u, opt: opt, mode: opt.Mode}
	switch a.mode {
	case ModeDSF:
		err = a.checkDSF(ctx)
	case ModeStandalone:
		err = a.connect(ctx)
	default:
		err = a.connect(ctx)
		if err == nil {
			a.mode = ModeStandalone
			break
		}
		logrus.WithError(err).Debug("standalone connect failed, trying DSF")
		if dsfErr := a.checkDSF(ctx); dsfErr != nil {
			return nil, errors.Wrapf(err, "connect %s (dsf: %v)", u.Host, dsfErr)
		}
		a.mode, err = ModeDSF, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", u.Host)
	}

	logrus.WithFields(logrus.Fields{"addr": u.String(), "mode": a.mode}).Info("connected to controller")
	return a, nil
}

// Mode returns the API in use after Dial.
func (a *HTTPAdapter) Mode() Mode { return a.mode }

// Address returns the base address of the controller.
func (a *HTTPAdapter) Address() *url.URL { return a.base }

func (a *HTTPAdapter) url(path string, query url.Values) string {
	u := *a.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

func (a *HTTPAdapter) do(ctx context.Context, method, path string, query url.Values, body io.Reader) ([]byte, error) {
	req, err := http.NewRequest(method, a.url(path, query), body)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	if body != nil {
		req.Header.Set("Content-Type", "text/plain")
	}
	resp, err := a.opt.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return data, nil
}

func (a *HTTPAdapter) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opt.RequestTimeout)
	defer cancel()
	return a.do(ctx, "GET", path, query, nil)
}

func (a *HTTPAdapter) connect(ctx context.Context) error {
	data, err := a.get(ctx, "/rr_connect", url.Values{
		"password": {a.opt.Password},
		"time":     {time.Now().Format("2006-01-02T15:04:05")},
	})
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		return errors.New("rr_connect: invalid response")
	}
	switch code := gjson.GetBytes(data, "err").Int(); code {
	case 0:
		return nil
	case 1:
		return errors.New("rr_connect: invalid password")
	case 2:
		return errors.New("rr_connect: no more sessions available")
	default:
		return errors.Errorf("rr_connect: error %d", code)
	}
}

func (a *HTTPAdapter) checkDSF(ctx context.Context) error {
	data, err := a.get(ctx, "/machine/status", nil)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		return errors.New("machine/status: invalid response")
	}
	return nil
}

// Model fetches part of the object model, e.g. "move.axes".
func (a *HTTPAdapter) Model(ctx context.Context, key string) (gjson.Result, error) {
	if a.mode == ModeDSF {
		data, err := a.get(ctx, "/machine/status", nil)
		if err != nil {
			return gjson.Result{}, err
		}
		return gjson.GetBytes(data, key), nil
	}

	data, err := a.get(ctx, "/rr_model", url.Values{"key": {key}, "flags": {"d99v"}})
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.GetBytes(data, "result"), nil
}

func (a *HTTPAdapter) replySeq(ctx context.Context) (int64, error) {
	res, err := a.Model(ctx, "seqs")
	if err != nil {
		return 0, err
	}
	return res.Get("reply").Int(), nil
}

// Send implements machine.Adapter.
//
// In standalone mode the command is queued with rr_gcode and the reply is
// collected from rr_reply once seqs.reply changes.
func (a *HTTPAdapter) Send(ctx context.Context, line string) (string, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.closed {
		return "", machine.ErrNotConnected
	}

	var reply string
	var err error
	if a.mode == ModeDSF {
		reply, err = a.sendDSF(ctx, line)
	} else {
		reply, err = a.sendStandalone(ctx, line)
	}
	if err != nil {
		return "", err
	}
	return reply, machine.CheckReply(line, reply)
}

func (a *HTTPAdapter) sendDSF(ctx context.Context, line string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opt.ReplyTimeout)
	defer cancel()
	data, err := a.do(ctx, "POST", "/machine/code", nil, strings.NewReader(line))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (a *HTTPAdapter) sendStandalone(ctx context.Context, line string) (string, error) {
	seq, err := a.replySeq(ctx)
	if err != nil {
		return "", errors.Wrap(err, "read reply sequence")
	}

	data, err := a.get(ctx, "/rr_gcode", url.Values{"gcode": {line}})
	if err != nil {
		return "", err
	}
	if code := gjson.GetBytes(data, "err").Int(); code != 0 {
		return "", errors.Errorf("rr_gcode: error %d", code)
	}

	t := time.NewTicker(a.opt.PollInterval)
	defer t.Stop()
	timeout := time.NewTimer(a.opt.ReplyTimeout)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timeout.C:
			return "", errors.Errorf("no reply within %s", a.opt.ReplyTimeout)
		case <-t.C:
		}

		next, err := a.replySeq(ctx)
		if err != nil {
			return "", errors.Wrap(err, "read reply sequence")
		}
		if next == seq {
			continue
		}
		data, err := a.get(ctx, "/rr_reply", nil)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// Close ends the session. It is safe to call more than once.
func (a *HTTPAdapter) Close() error {
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.mode != ModeStandalone {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := a.get(ctx, "/rr_disconnect", nil)
	return err
}
