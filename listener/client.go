package listener

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/registry"
	"github.com/meshlb/lb/selector"
)

// helloReadTimeout bounds how long a handshake connection may take to
// send its request line.
const helloReadTimeout = time.Second

// ClientListener implements the CLIENT_PORT handshake protocol: one line
// in, one line out, close.
type ClientListener struct {
	ln      net.Listener
	reg     *registry.Registry
	rt      *config.Runtime
	sel     *selector.Selector
	log     *zap.SugaredLogger
	limiter *ipLimiter

	anonSeq atomic.Uint64
}

func NewClientListener(ln net.Listener, reg *registry.Registry, rt *config.Runtime, sel *selector.Selector, log *zap.SugaredLogger) *ClientListener {
	return &ClientListener{
		ln:      ln,
		reg:     reg,
		rt:      rt,
		sel:     sel,
		log:     log,
		limiter: newIPLimiter(defaultConnRate, defaultConnBurst),
	}
}

// Serve runs the accept loop until done is closed.
func (c *ClientListener) Serve(done <-chan struct{}) {
	acceptLoop(done, c.ln, c.log, c.handle)
}

func (c *ClientListener) handle(conn net.Conn) {
	defer conn.Close()

	remoteIP := hostOf(conn.RemoteAddr())
	if !c.limiter.allow(remoteIP) {
		c.reject(conn)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(helloReadTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		// No usable request, nothing to reply to.
		return
	}

	name, mode, recognized := c.parseHello(line)
	if !recognized {
		c.reject(conn)
		return
	}
	if name == "" {
		name = fmt.Sprintf("Client-%d", c.anonSeq.Add(1))
	}

	if c.rt.IsNameBanned(name) || c.rt.IsIPBanned(remoteIP) {
		if c.log != nil {
			c.log.Infow("rejected banned client", "client", name, "remote", remoteIP)
		}
		c.reject(conn)
		return
	}

	target, ok := c.sel.Select(name, mode, remoteIP)
	if !ok {
		c.reject(conn)
		return
	}
	c.reply(conn, stripSlashes(target.String()))
}

// parseHello recognizes "HELLO <name> [mode]", case-insensitive on the
// verb and the mode token; an unrecognized or absent mode falls back to
// the configured default.
func (c *ClientListener) parseHello(line string) (name string, mode config.Mode, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "HELLO") {
		return "", "", false
	}
	if len(fields) >= 2 {
		name = fields[1]
	}
	modeToken := ""
	if len(fields) >= 3 {
		modeToken = fields[2]
	}
	parsed, recognized := config.ParseMode(modeToken)
	if !recognized {
		parsed = c.rt.DefaultMode()
	}
	return name, parsed, true
}

func (c *ClientListener) reply(conn net.Conn, line string) {
	_, _ = conn.Write([]byte(line + "\n"))
}

func (c *ClientListener) reject(conn net.Conn) {
	c.reply(conn, "NO_SERVER_AVAILABLE")
}
