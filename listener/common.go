// Package listener implements the load balancer's four TCP front doors:
// client handshake, server registration channel, status snapshot, and
// admin command endpoints. Each runs its own accept loop on its own
// goroutine; each accepted connection is handled on its own goroutine.
package listener

import (
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// acceptLoop runs ln.Accept() until done is closed, at which point the
// caller has already closed ln, unblocking Accept immediately instead of
// polling a shutdown flag. Each accepted connection is dispatched to
// handle on its own goroutine, recovering from any panic so one bad
// connection can never bring down the listener's accept loop.
func acceptLoop(done <-chan struct{}, ln net.Listener, log *zap.SugaredLogger, handle func(net.Conn)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-done:
				return
			default:
				if log != nil {
					log.Warnw("accept error", "error", err)
				}
				continue
			}
		}
		go func(c net.Conn) {
			defer func() {
				if r := recover(); r != nil && log != nil {
					log.Errorw("connection handler panic recovered", "panic", r)
				}
			}()
			handle(c)
		}(conn)
	}
}

// hostOf extracts the bare IP from a net.Addr, falling back to its full
// string form if it isn't a host:port pair.
func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// stripSlashes removes forward slashes from s, applied to the LB's own
// reply line before it's written to the client.
func stripSlashes(s string) string {
	if !strings.ContainsRune(s, '/') {
		return s
	}
	return strings.ReplaceAll(s, "/", "")
}

// ipLimiter hands out a token-bucket rate.Limiter per remote IP, bounding
// how fast a single source can open handshake/registration connections.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newIPLimiter(r rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{limiters: make(map[string]*rate.Limiter), r: r, burst: burst}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// defaultConnRate and defaultConnBurst bound per-IP connection admission
// on the client and registration listeners.
const (
	defaultConnRate  = 20
	defaultConnBurst = 40
)
