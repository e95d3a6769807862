package registry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/meshlb/lb/errors"
)

// ErrUnknownEndpoint is returned by mutating operations addressed at an
// endpoint that isn't currently registered: a no-op paired with a
// user-visible error rather than an implicit registration.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// Registry is the authoritative set of registered servers plus their
// derived state. A single coarse mutex guards the registered set; finer
// per-attribute maps are each independently thread-safe; the ping history
// deque for each endpoint has its own lock; the weighted ring is published
// by atomic copy-on-write replacement.
type Registry struct {
	log *zap.SugaredLogger

	mu      sync.RWMutex
	servers map[Endpoint]struct{}

	weightsMu sync.RWMutex
	weights   map[Endpoint]int

	drainedMu sync.RWMutex
	drained   map[Endpoint]bool

	lastSeenMu sync.RWMutex
	lastSeen   map[Endpoint]time.Time

	rttMu sync.RWMutex
	rtt   map[Endpoint]*rttState

	pingMu    sync.RWMutex
	pingHist  map[Endpoint]*pingRing

	liveMu sync.RWMutex
	live   map[Endpoint][]ClientRef

	reqMu   sync.RWMutex
	reqCnt  map[Endpoint]*atomic.Uint64

	assignMu         sync.Mutex
	assignedByServer map[Endpoint]*boundedRing
	recentAssignments *boundedRing

	stickyMu sync.RWMutex
	sticky   map[string]Endpoint

	ring   atomic.Pointer[WeightedRing]
	cursor atomic.Int64
}

// New creates an empty Registry.
func New(log *zap.SugaredLogger) *Registry {
	r := &Registry{
		log:               log,
		servers:           make(map[Endpoint]struct{}),
		weights:           make(map[Endpoint]int),
		drained:           make(map[Endpoint]bool),
		lastSeen:          make(map[Endpoint]time.Time),
		rtt:               make(map[Endpoint]*rttState),
		pingHist:          make(map[Endpoint]*pingRing),
		live:              make(map[Endpoint][]ClientRef),
		reqCnt:            make(map[Endpoint]*atomic.Uint64),
		assignedByServer:  make(map[Endpoint]*boundedRing),
		recentAssignments: newBoundedRing(AssignmentMaxGlobal),
		sticky:            make(map[string]Endpoint),
	}
	r.ring.Store(&WeightedRing{})
	return r
}

// Register inserts endpoint with default weight 1 if not already present,
// rebuilding the weighted ring; a re-join only refreshes lastSeenAt.
// Returns true if a new entry was created.
func (r *Registry) Register(e Endpoint) bool {
	r.mu.Lock()
	_, existed := r.servers[e]
	if !existed {
		r.servers[e] = struct{}{}
	}
	r.mu.Unlock()

	now := time.Now()
	r.lastSeenMu.Lock()
	r.lastSeen[e] = now
	r.lastSeenMu.Unlock()

	if existed {
		return false
	}

	r.weightsMu.Lock()
	r.weights[e] = 1
	r.weightsMu.Unlock()

	r.drainedMu.Lock()
	r.drained[e] = false
	r.drainedMu.Unlock()

	r.pingMu.Lock()
	r.pingHist[e] = newPingRing()
	r.pingMu.Unlock()

	r.reqMu.Lock()
	r.reqCnt[e] = &atomic.Uint64{}
	r.reqMu.Unlock()

	r.assignMu.Lock()
	r.assignedByServer[e] = newBoundedRing(AssignmentMaxPerServer)
	r.assignMu.Unlock()

	r.rebuildRing()
	if r.log != nil {
		r.log.Infow("server registered", "endpoint", e.String())
	}
	return true
}

// Touch refreshes lastSeenAt for an already-registered endpoint without
// otherwise mutating it (used by !report and, implicitly, by Register).
func (r *Registry) Touch(e Endpoint) bool {
	r.mu.RLock()
	_, ok := r.servers[e]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	r.lastSeenMu.Lock()
	r.lastSeen[e] = time.Now()
	r.lastSeenMu.Unlock()
	return true
}

// Remove purges endpoint and all derived state, and purges sticky entries
// pointing to it, then rebuilds the ring. Idempotent.
func (r *Registry) Remove(e Endpoint) {
	r.mu.Lock()
	_, existed := r.servers[e]
	delete(r.servers, e)
	r.mu.Unlock()

	r.weightsMu.Lock()
	delete(r.weights, e)
	r.weightsMu.Unlock()

	r.drainedMu.Lock()
	delete(r.drained, e)
	r.drainedMu.Unlock()

	r.lastSeenMu.Lock()
	delete(r.lastSeen, e)
	r.lastSeenMu.Unlock()

	r.rttMu.Lock()
	delete(r.rtt, e)
	r.rttMu.Unlock()

	r.pingMu.Lock()
	delete(r.pingHist, e)
	r.pingMu.Unlock()

	r.liveMu.Lock()
	delete(r.live, e)
	r.liveMu.Unlock()

	r.reqMu.Lock()
	delete(r.reqCnt, e)
	r.reqMu.Unlock()

	r.assignMu.Lock()
	delete(r.assignedByServer, e)
	r.assignMu.Unlock()

	r.stickyMu.Lock()
	for name, target := range r.sticky {
		if target == e {
			delete(r.sticky, name)
		}
	}
	r.stickyMu.Unlock()

	if existed {
		r.rebuildRing()
		if r.log != nil {
			r.log.Infow("server removed", "endpoint", e.String())
		}
	}
}

// Leave is the !leave/admin-remove alias for Remove: identical effect.
func (r *Registry) Leave(e Endpoint) { r.Remove(e) }

// IsRegistered reports whether e is currently in the registry.
func (r *Registry) IsRegistered(e Endpoint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.servers[e]
	return ok
}

// Endpoints returns a stable-ordered snapshot of registered endpoints.
func (r *Registry) Endpoints() []Endpoint {
	r.mu.RLock()
	out := make([]Endpoint, 0, len(r.servers))
	for e := range r.servers {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Addr != out[j].Addr {
			return out[i].Addr < out[j].Addr
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// RecordReport refreshes lastSeenAt and replaces liveClients wholesale for
// a known endpoint. Reports for an unregistered endpoint are swallowed
// rather than implicitly registering it.
func (r *Registry) RecordReport(e Endpoint, clients []ClientRef) {
	if !r.Touch(e) {
		return
	}
	r.liveMu.Lock()
	r.live[e] = clients
	r.liveMu.Unlock()
}

// SetWeight clamps w to >= 1 and rebuilds the ring; returns
// ErrUnknownEndpoint for an unregistered endpoint, leaving state
// unchanged.
func (r *Registry) SetWeight(e Endpoint, w int) error {
	if w < 1 {
		w = 1
	}
	r.mu.RLock()
	_, ok := r.servers[e]
	r.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrUnknownEndpoint, "%s", e.String())
	}
	r.weightsMu.Lock()
	r.weights[e] = w
	r.weightsMu.Unlock()
	r.rebuildRing()
	return nil
}

func (r *Registry) Weight(e Endpoint) int {
	r.weightsMu.RLock()
	defer r.weightsMu.RUnlock()
	if w, ok := r.weights[e]; ok {
		return w
	}
	return 1
}

// Drain/Undrain toggle the drained flag; the server stays registered and
// pinged/reported but is never selected.
func (r *Registry) Drain(e Endpoint) error   { return r.setDrained(e, true) }
func (r *Registry) Undrain(e Endpoint) error { return r.setDrained(e, false) }

func (r *Registry) setDrained(e Endpoint, drained bool) error {
	r.mu.RLock()
	_, ok := r.servers[e]
	r.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrUnknownEndpoint, "%s", e.String())
	}
	r.drainedMu.Lock()
	r.drained[e] = drained
	r.drainedMu.Unlock()
	return nil
}

func (r *Registry) IsDrained(e Endpoint) bool {
	r.drainedMu.RLock()
	defer r.drainedMu.RUnlock()
	return r.drained[e]
}

func (r *Registry) LastSeen(e Endpoint) (time.Time, bool) {
	r.lastSeenMu.RLock()
	defer r.lastSeenMu.RUnlock()
	t, ok := r.lastSeen[e]
	return t, ok
}

// SetRTT records a successful probe's round trip in milliseconds.
func (r *Registry) SetRTT(e Endpoint, ms int64) {
	r.rttMu.Lock()
	r.rtt[e] = &rttState{ms: ms, known: true}
	r.rttMu.Unlock()
}

// RTT returns the most recent known RTT in ms, or (0, false) if unknown.
func (r *Registry) RTT(e Endpoint) (int64, bool) {
	r.rttMu.RLock()
	defer r.rttMu.RUnlock()
	s, ok := r.rtt[e]
	if !ok || !s.known {
		return 0, false
	}
	return s.ms, true
}

// PushPingOutcome appends a probe outcome to e's bounded ping history.
// No-op for an unregistered endpoint.
func (r *Registry) PushPingOutcome(e Endpoint, ok bool) {
	r.pingMu.RLock()
	ring, exists := r.pingHist[e]
	r.pingMu.RUnlock()
	if !exists {
		return
	}
	ring.push(ok)
}

// HealthScore returns 100 * successes / size over the last <=10 probes, or
// 100 if unregistered or no history yet.
func (r *Registry) HealthScore(e Endpoint) int {
	r.pingMu.RLock()
	ring, ok := r.pingHist[e]
	r.pingMu.RUnlock()
	if !ok {
		return 100
	}
	return ring.healthScore()
}

func (r *Registry) LiveClients(e Endpoint) []ClientRef {
	r.liveMu.RLock()
	defer r.liveMu.RUnlock()
	out := make([]ClientRef, len(r.live[e]))
	copy(out, r.live[e])
	return out
}

func (r *Registry) LiveCount(e Endpoint) int {
	r.liveMu.RLock()
	defer r.liveMu.RUnlock()
	return len(r.live[e])
}

func (r *Registry) RequestCount(e Endpoint) uint64 {
	r.reqMu.RLock()
	defer r.reqMu.RUnlock()
	if c, ok := r.reqCnt[e]; ok {
		return c.Load()
	}
	return 0
}

// IncrementRequestCount bumps e's assignment counter. No-op if e was
// removed concurrently.
func (r *Registry) IncrementRequestCount(e Endpoint) {
	r.reqMu.RLock()
	c, ok := r.reqCnt[e]
	r.reqMu.RUnlock()
	if ok {
		c.Add(1)
	}
}

// SetSticky unconditionally records the most recent successful assignment
// for clientName, regardless of which policy produced it.
func (r *Registry) SetSticky(clientName string, target Endpoint) {
	r.stickyMu.Lock()
	r.sticky[clientName] = target
	r.stickyMu.Unlock()
}

// GetSticky returns the endpoint last assigned to clientName, if any.
func (r *Registry) GetSticky(clientName string) (Endpoint, bool) {
	r.stickyMu.RLock()
	defer r.stickyMu.RUnlock()
	e, ok := r.sticky[clientName]
	return e, ok
}

// RecordAssignment appends a to both the global and e's per-server
// bounded rings, evicting the oldest entry past the cap. It does not
// mutate sticky memory or the request counter — callers (the Selector)
// are responsible for those as part of a single selection.
func (r *Registry) RecordAssignment(a Assignment) {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.recentAssignments.push(a)
	if ring, ok := r.assignedByServer[a.Server]; ok {
		ring.push(a)
	}
}

// RecentAssignments returns up to n of the most recent global assignment
// records, most recent last. n<=0 returns all retained (up to 500).
func (r *Registry) RecentAssignments(n int) []Assignment {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	if n <= 0 {
		return r.recentAssignments.snapshot()
	}
	return r.recentAssignments.recent(n)
}

// AssignmentsForServer returns e's per-server assignment history.
func (r *Registry) AssignmentsForServer(e Endpoint) []Assignment {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	ring, ok := r.assignedByServer[e]
	if !ok {
		return nil
	}
	return ring.snapshot()
}

// ClearAssignments empties the global assignment ring and every
// per-server assignment ring, without otherwise touching registered
// state.
func (r *Registry) ClearAssignments() {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.recentAssignments = newBoundedRing(AssignmentMaxGlobal)
	for e := range r.assignedByServer {
		r.assignedByServer[e] = newBoundedRing(AssignmentMaxPerServer)
	}
}

// WeightedRing returns the currently published ring (atomic load; never
// observed partially built).
func (r *Registry) WeightedRing() *WeightedRing {
	return r.ring.Load()
}

// NextCursor atomically advances and returns the shared round-robin
// cursor. Concurrent callers never see a lost increment.
func (r *Registry) NextCursor() int64 {
	return r.cursor.Add(1) - 1
}

// rebuildRing recomputes the weighted ring from the current registered
// set and weights, publishing it via atomic replacement and resetting the
// cursor to 0.
func (r *Registry) rebuildRing() {
	endpoints := r.Endpoints()
	r.weightsMu.RLock()
	entries := make([]weightedEntry, 0, len(endpoints))
	for _, e := range endpoints {
		w := r.weights[e]
		if w < 1 {
			w = 1
		}
		entries = append(entries, weightedEntry{endpoint: e, weight: w})
	}
	r.weightsMu.RUnlock()

	r.ring.Store(buildWeightedRing(entries))
	r.cursor.Store(0)
}
