// Package admin implements the admin command interpreter: a single line
// in, zero or more response lines out, shared verbatim by the ADMIN_PORT
// listener and the stdin console.
package admin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/registry"
)

// Interpreter holds the dependencies every admin verb needs: the
// registry, the mutable runtime record, and a hook to restart the
// prober's schedule when pingIntervalMs changes.
type Interpreter struct {
	reg           *registry.Registry
	rt            *config.Runtime
	restartProber func()
}

func New(reg *registry.Registry, rt *config.Runtime, restartProber func()) *Interpreter {
	if restartProber == nil {
		restartProber = func() {}
	}
	return &Interpreter{reg: reg, rt: rt, restartProber: restartProber}
}

// Execute parses and runs one admin line, returning its response lines
// (not including the trailing "END" the listener/console append).
func (i *Interpreter) Execute(line string) []string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return []string{"Unknown: "}
	}

	switch strings.ToLower(fields[0]) {
	case "servers":
		return i.servers()
	case "live":
		return i.live()
	case "status":
		return append(i.servers(), i.live()...)
	case "weights":
		return i.weights()
	case "drained":
		return i.drained()
	case "bans":
		return i.bans()
	case "drain":
		return i.toggleDrain(fields, true)
	case "undrain":
		return i.toggleDrain(fields, false)
	case "setweight":
		return i.setWeight(fields)
	case "remove":
		return i.remove(fields)
	case "ban":
		return i.banOrUnban(fields, true)
	case "unban":
		return i.banOrUnban(fields, false)
	case "set":
		return i.set(fields)
	case "mode":
		return i.mode(fields)
	case "clear":
		i.reg.ClearAssignments()
		return []string{"OK"}
	default:
		return []string{"Unknown: " + line}
	}
}

func (i *Interpreter) servers() []string {
	var out []string
	for _, s := range i.reg.Snapshot() {
		rtt := "?"
		if s.RTTMs >= 0 {
			rtt = strconv.FormatInt(s.RTTMs, 10) + "ms"
		}
		out = append(out, fmt.Sprintf(
			"%s rtt=%s weight=%d live=%d requests=%d health=%d%% drained=%t",
			s.Endpoint.String(), rtt, s.Weight, s.LiveCount, s.RequestCount, s.HealthScore, s.Drained))
	}
	return out
}

func (i *Interpreter) live() []string {
	var out []string
	for _, s := range i.reg.Snapshot() {
		if len(s.LiveClients) == 0 {
			out = append(out, fmt.Sprintf("%s: (none)", s.Endpoint.String()))
			continue
		}
		refs := make([]string, 0, len(s.LiveClients))
		for _, c := range s.LiveClients {
			refs = append(refs, c.Name+"@"+c.IP)
		}
		out = append(out, fmt.Sprintf("%s: %s", s.Endpoint.String(), strings.Join(refs, " ")))
	}
	return out
}

func (i *Interpreter) weights() []string {
	var out []string
	for _, s := range i.reg.Snapshot() {
		if s.Weight != 1 {
			out = append(out, fmt.Sprintf("%s weight=%d", s.Endpoint.String(), s.Weight))
		}
	}
	return out
}

func (i *Interpreter) drained() []string {
	var out []string
	for _, s := range i.reg.Snapshot() {
		if s.Drained {
			out = append(out, s.Endpoint.String())
		}
	}
	return out
}

func (i *Interpreter) bans() []string {
	snap := i.rt.Snapshot()
	out := make([]string, 0, len(snap.BannedIPs)+len(snap.BannedNames))
	for _, ip := range snap.BannedIPs {
		out = append(out, "ip "+ip)
	}
	for _, name := range snap.BannedNames {
		out = append(out, "name "+name)
	}
	return out
}

func (i *Interpreter) toggleDrain(fields []string, drain bool) []string {
	if len(fields) < 2 {
		return []string{"ERROR: missing host:port"}
	}
	verb := i.reg.Undrain
	if drain {
		verb = i.reg.Drain
	}

	if strings.EqualFold(fields[1], "all") {
		for _, e := range i.reg.Endpoints() {
			_ = verb(e)
		}
		return []string{"OK"}
	}

	e, err := parseEndpoint(fields[1])
	if err != nil {
		return []string{"ERROR: " + err.Error()}
	}
	if err := verb(e); err != nil {
		return []string{"ERROR: " + err.Error()}
	}
	return []string{"OK"}
}

func (i *Interpreter) setWeight(fields []string) []string {
	if len(fields) < 3 {
		return []string{"ERROR: usage: setweight <host:port> <N>"}
	}
	e, err := parseEndpoint(fields[1])
	if err != nil {
		return []string{"ERROR: " + err.Error()}
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil {
		return []string{"ERROR: invalid weight " + fields[2]}
	}
	if err := i.reg.SetWeight(e, n); err != nil {
		return []string{"ERROR: " + err.Error()}
	}
	return []string{"OK"}
}

func (i *Interpreter) remove(fields []string) []string {
	if len(fields) < 2 {
		return []string{"ERROR: missing host:port"}
	}
	e, err := parseEndpoint(fields[1])
	if err != nil {
		return []string{"ERROR: " + err.Error()}
	}
	i.reg.Remove(e)
	return []string{"OK"}
}

func (i *Interpreter) banOrUnban(fields []string, ban bool) []string {
	if len(fields) < 3 {
		return []string{"ERROR: usage: ban|unban ip|name <value>"}
	}
	value := fields[2]
	switch strings.ToLower(fields[1]) {
	case "ip":
		if ban {
			i.rt.BanIP(value)
		} else {
			i.rt.UnbanIP(value)
		}
	case "name":
		if ban {
			i.rt.BanName(value)
		} else {
			i.rt.UnbanName(value)
		}
	default:
		return []string{"ERROR: unknown ban target " + fields[1]}
	}
	return []string{"OK"}
}

func (i *Interpreter) set(fields []string) []string {
	if len(fields) < 3 {
		return []string{"ERROR: usage: set ping|maxconn|evict <N>"}
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil {
		return []string{"ERROR: invalid number " + fields[2]}
	}
	switch strings.ToLower(fields[1]) {
	case "ping":
		i.rt.SetPingIntervalMs(n)
		i.restartProber()
	case "maxconn":
		i.rt.SetMaxPerServer(n)
	case "evict":
		i.rt.SetEvictionTimeoutMs(n)
	default:
		return []string{"ERROR: unknown set target " + fields[1]}
	}
	return []string{"OK"}
}

func (i *Interpreter) mode(fields []string) []string {
	if len(fields) < 3 || !strings.EqualFold(fields[1], "default") {
		return []string{"ERROR: usage: mode default <static|dynamic>"}
	}
	m, ok := config.ParseMode(fields[2])
	if !ok {
		return []string{"ERROR: unknown mode " + fields[2]}
	}
	if !i.rt.SetDefaultMode(m) {
		return []string{"ERROR: sticky is not a valid default mode"}
	}
	return []string{"OK"}
}

// parseEndpoint splits on the LAST colon so bracketed/numeric IPv6
// addresses don't split prematurely.
func parseEndpoint(s string) (registry.Endpoint, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return registry.Endpoint{}, fmt.Errorf("invalid host:port %q", s)
	}
	host, portStr := s[:idx], s[idx+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil || host == "" {
		return registry.Endpoint{}, fmt.Errorf("invalid host:port %q", s)
	}
	return registry.Endpoint{Addr: host, Port: port}, nil
}
