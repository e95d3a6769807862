package listener

import (
	"encoding/json"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/registry"
)

// StatusListener implements STATUS_PORT: on each accepted connection,
// serialize one JSON snapshot and close. The snapshot is assembled from
// data already copied out from under the locks by
// Registry.Snapshot/Runtime.Snapshot, then serialized outside any lock.
// Registry.Snapshot reads each attribute under its own lock, so the
// document is not atomic with respect to concurrent registry mutations.
type StatusListener struct {
	ln      net.Listener
	reg     *registry.Registry
	rt      *config.Runtime
	log     *zap.SugaredLogger
	upSince time.Time
}

func NewStatusListener(ln net.Listener, reg *registry.Registry, rt *config.Runtime, log *zap.SugaredLogger, upSince time.Time) *StatusListener {
	return &StatusListener{ln: ln, reg: reg, rt: rt, log: log, upSince: upSince}
}

func (s *StatusListener) Serve(done <-chan struct{}) {
	acceptLoop(done, s.ln, s.log, s.handle)
}

func (s *StatusListener) handle(conn net.Conn) {
	defer conn.Close()
	doc := s.buildDoc()
	body, err := json.Marshal(doc)
	if err != nil {
		if s.log != nil {
			s.log.Errorw("status encode failed", "error", err)
		}
		return
	}
	_, _ = conn.Write(body)
	_, _ = conn.Write([]byte("\n"))
}

// recentAssignmentsCap bounds the status document's recentAssignments
// array.
const recentAssignmentsCap = 20

func (s *StatusListener) buildDoc() statusDoc {
	rtSnap := s.rt.Snapshot()
	servers := s.reg.Snapshot()
	assignments := s.reg.RecentAssignments(recentAssignmentsCap)

	doc := statusDoc{
		UpSinceMs:         s.upSince.UnixMilli(),
		DefaultMode:       string(rtSnap.DefaultMode),
		MaxPerServer:      rtSnap.MaxPerServer,
		PingIntervalMs:    rtSnap.PingIntervalMs,
		EvictionTimeoutMs: rtSnap.EvictionTimeoutMs,
		BannedIPs:         nonNilStrings(rtSnap.BannedIPs),
		BannedNames:       nonNilStrings(rtSnap.BannedNames),
		Servers:           make([]serverDoc, 0, len(servers)),
		RecentAssignments: make([]assignmentDoc, 0, len(assignments)),
	}
	for _, sv := range servers {
		doc.Servers = append(doc.Servers, serverDoc{
			Addr:         sv.Endpoint.Addr,
			Port:         sv.Endpoint.Port,
			RTTMs:        sv.RTTMs,
			Weight:       sv.Weight,
			Drained:      sv.Drained,
			LiveCount:    sv.LiveCount,
			RequestCount: sv.RequestCount,
			HealthScore:  sv.HealthScore,
			LastSeenMs:   sv.LastSeenAt.UnixMilli(),
			LiveClients:  toClientDocs(sv.LiveClients),
		})
	}
	for _, a := range assignments {
		doc.RecentAssignments = append(doc.RecentAssignments, assignmentDoc{
			ClientName: a.ClientName,
			Mode:       a.Mode,
			Server:     a.Server.String(),
			AssignedAt: a.AssignedAt.UnixMilli(),
		})
	}
	return doc
}

func toClientDocs(refs []registry.ClientRef) []clientDoc {
	out := make([]clientDoc, 0, len(refs))
	for _, c := range refs {
		out = append(out, clientDoc{Name: c.Name, IP: c.IP})
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type statusDoc struct {
	UpSinceMs         int64           `json:"upSince"`
	DefaultMode       string          `json:"defaultMode"`
	MaxPerServer      int             `json:"maxPerServer"`
	PingIntervalMs    int             `json:"pingIntervalMs"`
	EvictionTimeoutMs int             `json:"evictionTimeoutMs"`
	BannedIPs         []string        `json:"bannedIps"`
	BannedNames       []string        `json:"bannedNames"`
	Servers           []serverDoc     `json:"servers"`
	RecentAssignments []assignmentDoc `json:"recentAssignments"`
}

type serverDoc struct {
	Addr         string      `json:"addr"`
	Port         int         `json:"port"`
	RTTMs        int64       `json:"rttMs"`
	Weight       int         `json:"weight"`
	Drained      bool        `json:"drained"`
	LiveCount    int         `json:"liveCount"`
	RequestCount uint64      `json:"requestCount"`
	HealthScore  int         `json:"healthScore"`
	LastSeenMs   int64       `json:"lastSeenMs"`
	LiveClients  []clientDoc `json:"liveClients"`
}

type clientDoc struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
}

type assignmentDoc struct {
	ClientName string `json:"clientName"`
	Mode       string `json:"mode"`
	Server     string `json:"server"`
	AssignedAt int64  `json:"assignedAt"`
}
