package registry

import "time"

// ServerSnapshot is a point-in-time copy of one registered server's
// derived state, sufficient for the status document and the Selector.
type ServerSnapshot struct {
	Endpoint     Endpoint
	RTTMs        int64 // -1 if unknown
	Weight       int
	Drained      bool
	LiveCount    int
	RequestCount uint64
	HealthScore  int
	LastSeenAt   time.Time
	LiveClients  []ClientRef
}

// Snapshot copies the whole registry: one brief lock to copy the endpoint
// set, then each attribute read under its own lock. The copy is not
// atomic across attributes: a mutation that runs while Snapshot is in
// progress can show up in some fields of the result and not in others.
func (r *Registry) Snapshot() []ServerSnapshot {
	endpoints := r.Endpoints()
	out := make([]ServerSnapshot, 0, len(endpoints))
	for _, e := range endpoints {
		rttMs, known := r.RTT(e)
		if !known {
			rttMs = -1
		}
		lastSeen, _ := r.LastSeen(e)
		out = append(out, ServerSnapshot{
			Endpoint:     e,
			RTTMs:        rttMs,
			Weight:       r.Weight(e),
			Drained:      r.IsDrained(e),
			LiveCount:    r.LiveCount(e),
			RequestCount: r.RequestCount(e),
			HealthScore:  r.HealthScore(e),
			LastSeenAt:   lastSeen,
			LiveClients:  r.LiveClients(e),
		})
	}
	return out
}
