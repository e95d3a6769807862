// Package evictor implements the periodic liveness sweep: every 5
// seconds, remove any registered server whose last-seen timestamp is
// older than the configured eviction threshold.
package evictor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/registry"
)

// SweepInterval is the fixed period between eviction sweeps.
const SweepInterval = 5 * time.Second

type Evictor struct {
	reg *registry.Registry
	rt  *config.Runtime
	log *zap.SugaredLogger
}

func New(reg *registry.Registry, rt *config.Runtime, log *zap.SugaredLogger) *Evictor {
	return &Evictor{reg: reg, rt: rt, log: log}
}

// Run sweeps every SweepInterval until ctx is cancelled. Eviction is
// idempotent: a concurrent !join simply re-creates the entry.
func (ev *Evictor) Run(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev.sweep()
		}
	}
}

func (ev *Evictor) sweep() {
	cutoff := time.Now().Add(-time.Duration(ev.rt.EvictionTimeoutMs()) * time.Millisecond)
	for _, e := range ev.reg.Endpoints() {
		lastSeen, ok := ev.reg.LastSeen(e)
		if !ok {
			continue
		}
		if lastSeen.Before(cutoff) {
			ev.reg.Remove(e)
			if ev.log != nil {
				ev.log.Infow("evicted stale server", "endpoint", e.String(), "last_seen", lastSeen)
			}
		}
	}
}
