package registry

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentMaxPerServer and AssignmentMaxGlobal are the bounded-ring
// caps: per-server history caps at 200, the global ring at 500.
const (
	AssignmentMaxPerServer = 200
	AssignmentMaxGlobal    = 500
)

// Assignment is a record of one client-to-server selection: immutable
// once created, dropped only when it falls off a bounded ring. ID is a
// random UUID set by the Selector; it is kept on the record only and is
// not emitted in the status feed's recentAssignments array.
type Assignment struct {
	ID                   uuid.UUID
	ClientName           string
	Mode                 string
	AssignedAt           time.Time
	Server               Endpoint
	ObservedClientRemote string
}

// boundedRing is an append-only, oldest-evicting fixed-capacity buffer.
// Not safe for concurrent use on its own; callers hold the registry's
// assignment mutex around push.
type boundedRing struct {
	cap   int
	items []Assignment
}

func newBoundedRing(cap int) *boundedRing {
	return &boundedRing{cap: cap, items: make([]Assignment, 0, cap)}
}

func (r *boundedRing) push(a Assignment) {
	r.items = append(r.items, a)
	if len(r.items) > r.cap {
		r.items = r.items[len(r.items)-r.cap:]
	}
}

// snapshot returns the items oldest-first, most recent last.
func (r *boundedRing) snapshot() []Assignment {
	out := make([]Assignment, len(r.items))
	copy(out, r.items)
	return out
}

// recent returns the n most recent items, most recent last.
func (r *boundedRing) recent(n int) []Assignment {
	if n >= len(r.items) {
		return r.snapshot()
	}
	out := make([]Assignment, n)
	copy(out, r.items[len(r.items)-n:])
	return out
}
