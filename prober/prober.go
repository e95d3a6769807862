// Package prober implements the RTT probe subsystem: a periodic task
// that, each tick, pings every registered server in parallel and records
// round-trip time and ping history.
package prober

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/registry"
)

// maxConcurrentProbes bounds the per-tick fan-out with a semaphore.Weighted
// rather than an unbounded goroutine-per-server burst.
const maxConcurrentProbes = 32

// Prober periodically pings every registered server and records the
// outcome. Changing the configured interval (via Restart) tears down the
// current schedule and starts a new one; in-flight probes are allowed to
// complete.
type Prober struct {
	reg *registry.Registry
	rt  *config.Runtime
	log *zap.SugaredLogger

	restart chan struct{}
}

func New(reg *registry.Registry, rt *config.Runtime, log *zap.SugaredLogger) *Prober {
	return &Prober{
		reg:     reg,
		rt:      rt,
		log:     log,
		restart: make(chan struct{}, 1),
	}
}

// Restart interrupts the current sleep so a changed pingIntervalMs takes
// effect on the next tick rather than after the old interval elapses.
func (p *Prober) Restart() {
	select {
	case p.restart <- struct{}{}:
	default:
	}
}

// Run drives the probe loop until ctx is cancelled. Intended to be run on
// its own goroutine.
func (p *Prober) Run(ctx context.Context) {
	for {
		interval := time.Duration(p.rt.PingIntervalMs()) * time.Millisecond
		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.restart:
			timer.Stop()
			continue
		case <-timer.C:
		}

		p.tick(ctx)
	}
}

// tick pings every registered endpoint in parallel, bounded by
// maxConcurrentProbes in-flight at once.
func (p *Prober) tick(ctx context.Context) {
	endpoints := p.reg.Endpoints()
	if len(endpoints) == 0 {
		return
	}

	sem := semaphore.NewWeighted(maxConcurrentProbes)
	var wg sync.WaitGroup
	intervalMs := p.rt.PingIntervalMs()
	timeout := time.Duration(intervalMs/2) * time.Millisecond
	if timeout < 200*time.Millisecond {
		timeout = 200 * time.Millisecond
	}

	for _, e := range endpoints {
		if err := sem.Acquire(ctx, 1); err != nil {
			return // context cancelled mid fan-out
		}
		wg.Add(1)
		go func(e registry.Endpoint) {
			defer wg.Done()
			defer sem.Release(1)
			p.probeOne(e, timeout)
		}(e)
	}
	wg.Wait()
}

// probeOne opens a TCP connection, sends "ping\n", and checks for a
// trimmed, case-insensitive "pong" response.
func (p *Prober) probeOne(e registry.Endpoint, timeout time.Duration) {
	start := time.Now()
	conn, err := net.DialTimeout("tcp", e.String(), timeout)
	if err != nil {
		p.fail(e, err)
		return
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte("ping\n")); err != nil {
		p.fail(e, err)
		return
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		p.fail(e, err)
		return
	}

	elapsed := time.Since(start)
	if !strings.EqualFold(strings.TrimSpace(line), "pong") {
		p.fail(e, nil)
		return
	}

	rttMs := elapsed.Nanoseconds() / 1_000_000
	p.reg.SetRTT(e, rttMs)
	p.reg.PushPingOutcome(e, true)
}

func (p *Prober) fail(e registry.Endpoint, err error) {
	p.reg.PushPingOutcome(e, false)
	if p.log != nil {
		p.log.Debugw("probe failed", "endpoint", e.String(), "error", err)
	}
}
