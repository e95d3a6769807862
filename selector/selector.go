// Package selector implements the three server-selection policies over a
// schedulable subset of the registry: static weighted round-robin,
// dynamic lowest-RTT with tiebreaker, and sticky-with-fallback.
package selector

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/registry"
)

// dynamicRTTTieMs is the tiebreaker window for dynamic selection.
const dynamicRTTTieMs = 10

// Selector selects a target endpoint per request and records the
// resulting assignment: request counter, sticky memory, assignment
// rings.
type Selector struct {
	reg *registry.Registry
	rt  *config.Runtime
	log *zap.SugaredLogger
}

func New(reg *registry.Registry, rt *config.Runtime, log *zap.SugaredLogger) *Selector {
	return &Selector{reg: reg, rt: rt, log: log}
}

// Select resolves clientName + mode to a target endpoint under the named
// policy, and on success records the side effects a successful selection
// always has: request counter increment, sticky memory update for every
// mode, and appending to both assignment rings.
func (s *Selector) Select(clientName string, mode config.Mode, observedRemote string) (registry.Endpoint, bool) {
	var target registry.Endpoint
	var ok bool

	switch mode {
	case config.ModeDynamic:
		target, ok = s.selectDynamic()
	case config.ModeSticky:
		target, ok = s.selectSticky(clientName)
	default:
		target, ok = s.selectStatic()
	}
	if !ok {
		return registry.Endpoint{}, false
	}

	s.reg.IncrementRequestCount(target)
	s.reg.SetSticky(clientName, target)
	s.reg.RecordAssignment(registry.Assignment{
		ID:                   uuid.New(),
		ClientName:           clientName,
		Mode:                 string(mode),
		AssignedAt:           time.Now(),
		Server:               target,
		ObservedClientRemote: observedRemote,
	})
	return target, true
}

// isSchedulable reports whether e is registered, not drained, and under
// the configured maxPerServer cap.
func (s *Selector) isSchedulable(e registry.Endpoint) bool {
	if !s.reg.IsRegistered(e) {
		return false
	}
	if s.reg.IsDrained(e) {
		return false
	}
	max := s.rt.MaxPerServer()
	if max == config.Unbounded {
		return true
	}
	return s.reg.LiveCount(e) < max
}

func (s *Selector) schedulableEndpoints() []registry.Endpoint {
	all := s.reg.Endpoints()
	out := make([]registry.Endpoint, 0, len(all))
	for _, e := range all {
		if s.isSchedulable(e) {
			out = append(out, e)
		}
	}
	return out
}

func nonNegMod(i int64, n int) int {
	if n == 0 {
		return 0
	}
	m := int(i % int64(n))
	if m < 0 {
		m += n
	}
	return m
}

// selectStatic implements weighted round-robin over the weighted ring,
// skipping unschedulable slots, with a linear-scan fallback.
func (s *Selector) selectStatic() (registry.Endpoint, bool) {
	ring := s.reg.WeightedRing()
	useRing := ring.Len() > 0

	var fallbackList []registry.Endpoint
	n := ring.Len()
	if !useRing {
		fallbackList = s.schedulableEndpoints()
		n = len(fallbackList)
	}
	if n == 0 {
		return registry.Endpoint{}, false
	}

	walk := 2*n + 1
	for i := 0; i < walk; i++ {
		idx := s.reg.NextCursor()
		var candidate registry.Endpoint
		if useRing {
			candidate = ring.At(int(nonNegMod(idx, ring.Len())))
		} else {
			candidate = fallbackList[nonNegMod(idx, len(fallbackList))]
		}
		if s.isSchedulable(candidate) {
			return candidate, true
		}
	}

	for _, e := range s.schedulableEndpoints() {
		return e, true
	}
	return registry.Endpoint{}, false
}

// selectDynamic picks the minimum-RTT schedulable endpoint, preferring
// fewer live clients within a 10ms tie window, falling back to Static
// when no schedulable endpoint has a known RTT yet.
func (s *Selector) selectDynamic() (registry.Endpoint, bool) {
	type candidate struct {
		e         registry.Endpoint
		rtt       int64
		liveCount int
	}

	var candidates []candidate
	for _, e := range s.schedulableEndpoints() {
		rtt, known := s.reg.RTT(e)
		if !known {
			continue
		}
		candidates = append(candidates, candidate{e: e, rtt: rtt, liveCount: s.reg.LiveCount(e)})
	}

	if len(candidates) == 0 {
		if s.log != nil {
			s.log.Infow("dynamic selection has no RTT data yet, falling back to static")
		}
		return s.selectStatic()
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case c.rtt < best.rtt-dynamicRTTTieMs:
			best = c
		case c.rtt <= best.rtt+dynamicRTTTieMs:
			if c.liveCount < best.liveCount || (c.liveCount == best.liveCount && c.rtt < best.rtt) {
				best = c
			}
		}
	}
	return best.e, true
}

// selectSticky returns the client's sticky endpoint if still schedulable,
// otherwise delegates to Dynamic.
func (s *Selector) selectSticky(clientName string) (registry.Endpoint, bool) {
	if target, ok := s.reg.GetSticky(clientName); ok && s.isSchedulable(target) {
		return target, true
	}
	return s.selectDynamic()
}
