// Package lb wires the registry, selector, prober, evictor, the four
// listeners, and the admin interpreter into a single process: the
// background tasks run as cooperative goroutines, and a single Shutdown
// flips a draining flag and closes every listening socket.
package lb

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/meshlb/lb/admin"
	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/errors"
	"github.com/meshlb/lb/evictor"
	"github.com/meshlb/lb/listener"
	"github.com/meshlb/lb/prober"
	"github.com/meshlb/lb/registry"
	"github.com/meshlb/lb/selector"
)

// LB is the assembled load balancer process: four listeners plus two
// background tasks (prober, evictor) sharing one registry and one
// runtime configuration record.
type LB struct {
	log *zap.SugaredLogger
	reg *registry.Registry
	rt  *config.Runtime
	sel *selector.Selector
	pr  *prober.Prober
	ev  *evictor.Evictor

	terp *admin.Interpreter

	clientLn net.Listener
	regLn    net.Listener
	statusLn net.Listener
	adminLn  net.Listener

	upSince time.Time
	state   atomic.Int32

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// New binds all four listening ports and assembles the LB's components.
// A bind failure on any port is fatal: the caller should abort the
// process rather than run in a partially-bound state.
func New(cfg *config.StartConfig, rt *config.Runtime, log *zap.SugaredLogger) (*LB, error) {
	l := &LB{rt: rt, log: log}

	var err error
	if l.clientLn, err = bind(cfg.ClientPort); err != nil {
		return nil, errors.Wrapf(err, "bind client port %d", cfg.ClientPort)
	}
	if l.regLn, err = bind(cfg.RegPort); err != nil {
		l.clientLn.Close()
		return nil, errors.Wrapf(err, "bind registration port %d", cfg.RegPort)
	}
	if l.statusLn, err = bind(cfg.StatusPort); err != nil {
		l.clientLn.Close()
		l.regLn.Close()
		return nil, errors.Wrapf(err, "bind status port %d", cfg.StatusPort)
	}
	if l.adminLn, err = bind(cfg.AdminPort); err != nil {
		l.clientLn.Close()
		l.regLn.Close()
		l.statusLn.Close()
		return nil, errors.Wrapf(err, "bind admin port %d", cfg.AdminPort)
	}

	l.reg = registry.New(namedOrNil(log, "registry"))
	l.sel = selector.New(l.reg, rt, namedOrNil(log, "selector"))
	l.pr = prober.New(l.reg, rt, namedOrNil(log, "prober"))
	l.ev = evictor.New(l.reg, rt, namedOrNil(log, "evictor"))
	l.terp = admin.New(l.reg, rt, l.pr.Restart)

	return l, nil
}

func bind(port int) (net.Listener, error) {
	return net.Listen("tcp", fmt.Sprintf(":%d", port))
}

func namedOrNil(log *zap.SugaredLogger, name string) *zap.SugaredLogger {
	if log == nil {
		return nil
	}
	return log.Named(name)
}

// ClientAddr, RegAddr, StatusAddr, and AdminAddr report the bound address
// of each listener, useful when a port of 0 was requested (tests, ad hoc
// startup) and the OS assigned an ephemeral one.
func (l *LB) ClientAddr() net.Addr { return l.clientLn.Addr() }
func (l *LB) RegAddr() net.Addr    { return l.regLn.Addr() }
func (l *LB) StatusAddr() net.Addr { return l.statusLn.Addr() }
func (l *LB) AdminAddr() net.Addr  { return l.adminLn.Addr() }

// Interpreter exposes the shared AdminInterpreter so a console (stdin)
// front-end can run the same grammar the ADMIN_PORT listener serves.
func (l *LB) Interpreter() *admin.Interpreter { return l.terp }

// Registry exposes the registry for callers that need read-only
// introspection outside the admin grammar.
func (l *LB) Registry() *registry.Registry { return l.reg }

// Start launches all four accept loops plus the prober and evictor on
// their own goroutines and returns immediately.
func (l *LB) Start() {
	l.upSince = time.Now()
	l.state.Store(int32(StateRunning))
	l.done = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	cl := listener.NewClientListener(l.clientLn, l.reg, l.rt, l.sel, namedOrNil(l.log, "client-listener"))
	sc := listener.NewServerChannelListener(l.regLn, l.reg, namedOrNil(l.log, "server-listener"))
	st := listener.NewStatusListener(l.statusLn, l.reg, l.rt, namedOrNil(l.log, "status-listener"), l.upSince)
	ad := listener.NewAdminListener(l.adminLn, l.terp, namedOrNil(l.log, "admin-listener"))

	l.wg.Add(6)
	go func() { defer l.wg.Done(); cl.Serve(l.done) }()
	go func() { defer l.wg.Done(); sc.Serve(l.done) }()
	go func() { defer l.wg.Done(); st.Serve(l.done) }()
	go func() { defer l.wg.Done(); ad.Serve(l.done) }()
	go func() { defer l.wg.Done(); l.pr.Run(ctx) }()
	go func() { defer l.wg.Done(); l.ev.Run(ctx) }()

	if l.log != nil {
		l.log.Infow("load balancer started",
			"client_port", l.clientLn.Addr().String(),
			"reg_port", l.regLn.Addr().String(),
			"status_port", l.statusLn.Addr().String(),
			"admin_port", l.adminLn.Addr().String(),
		)
	}
}

// Shutdown flips the draining flag, closes every listening socket (which
// unblocks each accept loop immediately), cancels the prober/evictor
// context, and waits up to ShutdownTimeout for everything to stop.
func (l *LB) Shutdown() {
	l.state.Store(int32(StateDraining))
	close(l.done)
	l.clientLn.Close()
	l.regLn.Close()
	l.statusLn.Close()
	l.adminLn.Close()
	if l.cancel != nil {
		l.cancel()
	}

	stopped := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		if l.log != nil {
			l.log.Infow("load balancer shutdown complete")
		}
	case <-time.After(ShutdownTimeout):
		if l.log != nil {
			l.log.Warnw("load balancer shutdown timed out, forcing exit", "timeout", ShutdownTimeout)
		}
	}

	l.state.Store(int32(StateStopped))
}

// State reports the current lifecycle state.
func (l *LB) State() State { return State(l.state.Load()) }
