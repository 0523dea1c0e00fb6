package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mastercactapus/parkcal/config"
	"github.com/mastercactapus/parkcal/machine"
	"github.com/mastercactapus/parkcal/machine/duet"
)

// stateSource publishes machine state and remembers the latest one.
type stateSource interface {
	State() chan machine.State
	CurrentState() machine.State
}

// poller is a stateSource for controllers that can't push updates.
type poller struct {
	interval time.Duration
	fetch    func(context.Context) (machine.State, error)
	state    chan machine.State

	mx   sync.Mutex
	last machine.State
}

func newPoller(interval time.Duration, fetch func(context.Context) (machine.State, error)) *poller {
	return &poller{
		interval: interval,
		fetch:    fetch,
		state:    make(chan machine.State, 1),
		last:     machine.State{Tool: -1, Position: machine.Position{}},
	}
}

func (p *poller) State() chan machine.State { return p.state }

func (p *poller) CurrentState() machine.State {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.last
}

// Run publishes the result of fetch every interval until ctx is done.
func (p *poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		state, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logrus.WithError(err).Warn("poll state")
			continue
		}
		p.mx.Lock()
		p.last = state
		p.mx.Unlock()
		select {
		case p.state <- state:
		default:
		}
	}
}

// watchState starts the best state source for the adapter.
func watchState(ctx context.Context, g *errgroup.Group, a machine.Adapter, m machine.Client, interval time.Duration) stateSource {
	if h, ok := a.(*duet.HTTPAdapter); ok && h.Mode() == duet.ModeDSF {
		mon := duet.NewMonitor(h.Address().String())
		g.Go(func() error { return mon.Run(ctx) })
		return mon
	}

	fetch := func(ctx context.Context) (machine.State, error) {
		pos, err := m.Position(ctx)
		return machine.State{Position: pos, Tool: -1}, err
	}
	if h, ok := a.(*duet.HTTPAdapter); ok {
		fetch = h.State
	}
	p := newPoller(interval, fetch)
	g.Go(func() error { return p.Run(ctx) })
	return p
}

func NewServeCommand() *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the calibration steps over HTTP",
		Long:    "Serve the calibration steps over HTTP, with live machine state on /events/state.",
		GroupID: gCalibration,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := cfg.Connect(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer m.Close()

			a := newAPI(m, cfg)
			defer a.Close()
			config.Watch(v, func(c *config.Config) {
				if c.Machine != cfg.Machine {
					logrus.Warn("machine settings changed, restart serve to apply them")
				}
				a.setConfig(c)
			})

			g, ctx := errgroup.WithContext(cmd.Context())
			a.states = watchState(ctx, g, m.Adapter, m, interval)
			go a.publish(ctx, a.states.State())

			srv := &http.Server{
				Addr: addr,
				Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					w.Header().Set("Access-Control-Allow-Origin", "*")
					w.Header().Set("Access-Control-Allow-Methods", "*")
					logrus.WithField("remote", req.RemoteAddr).Debugf("%s %s", req.Method, req.URL.Path)
					a.ServeHTTP(w, req)
				}),
			}
			g.Go(func() error {
				logrus.WithField("addr", addr).Info("listening")
				err := srv.ListenAndServe()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", ":9091", "address to listen on")
	flags.DurationVar(&interval, "poll", time.Second, "state poll interval when the controller can't push updates")
	return cmd
}
