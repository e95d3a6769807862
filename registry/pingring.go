package registry

import "sync"

// pingHistoryCap is the bounded ring size for per-server ping outcomes:
// the last 10 probes, health score = 100 * successes / size, 100 when
// empty.
const pingHistoryCap = 10

// pingRing is a compound read-modify-write structure and so gets its own
// lock, independent of the coarser registry-wide maps.
type pingRing struct {
	mu      sync.Mutex
	history []bool // oldest first, newest (young end) last
}

func newPingRing() *pingRing {
	return &pingRing{history: make([]bool, 0, pingHistoryCap)}
}

// push appends an outcome to the young end, evicting the oldest once the
// ring is full.
func (p *pingRing) push(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, ok)
	if len(p.history) > pingHistoryCap {
		p.history = p.history[len(p.history)-pingHistoryCap:]
	}
}

// healthScore returns 100 * successes / size, or 100 when the ring is
// empty.
func (p *pingRing) healthScore() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) == 0 {
		return 100
	}
	successes := 0
	for _, ok := range p.history {
		if ok {
			successes++
		}
	}
	return successes * 100 / len(p.history)
}

func (p *pingRing) snapshot() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bool, len(p.history))
	copy(out, p.history)
	return out
}

// rttState holds the most recent RTT sample for an endpoint. known is
// false until the first successful probe.
type rttState struct {
	ms    int64
	known bool
}
