// Package registry owns the load balancer's authoritative server registry:
// the set of registered servers and their per-server derived state (weight,
// drained flag, last-seen timestamp, request counter, live-client list,
// ping history, RTT), the weighted round-robin ring, and sticky-session
// memory.
package registry

import "fmt"

// Endpoint identifies a server by (address, port). Identity is structural
// equality of both fields; it is immutable once constructed.
type Endpoint struct {
	Addr string
	Port int
}

// String renders "host:port", the exact wire form used in client replies
// and the admin/status surfaces.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Addr, e.Port)
}

// ClientRef is a (name, ip) pair reported by a server in !report.
type ClientRef struct {
	Name string
	IP   string
}
