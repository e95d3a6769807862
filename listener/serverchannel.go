package listener

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meshlb/lb/registry"
)

// reportReadTimeout bounds how long a REG_PORT connection may take to
// send its request line.
const reportReadTimeout = time.Second

// ServerChannelListener implements the REG_PORT !join/!leave/!report
// protocol.
type ServerChannelListener struct {
	ln      net.Listener
	reg     *registry.Registry
	log     *zap.SugaredLogger
	limiter *ipLimiter
}

func NewServerChannelListener(ln net.Listener, reg *registry.Registry, log *zap.SugaredLogger) *ServerChannelListener {
	return &ServerChannelListener{
		ln:      ln,
		reg:     reg,
		log:     log,
		limiter: newIPLimiter(defaultConnRate, defaultConnBurst),
	}
}

func (s *ServerChannelListener) Serve(done <-chan struct{}) {
	acceptLoop(done, s.ln, s.log, s.handle)
}

func (s *ServerChannelListener) handle(conn net.Conn) {
	defer conn.Close()

	remoteIP := hostOf(conn.RemoteAddr())
	if !s.limiter.allow(remoteIP) {
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(reportReadTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		s.reply(conn, "!err")
		return
	}

	switch strings.ToLower(fields[0]) {
	case "!join":
		s.handleJoin(conn, remoteIP, fields)
	case "!leave":
		s.handleLeave(conn, remoteIP, fields)
	case "!report":
		s.handleReport(conn, remoteIP, fields)
	default:
		s.reply(conn, "!err")
	}
}

// handleJoin requires the last whitespace-separated token to parse as an
// integer port ("!join ... <tcpPort>").
func (s *ServerChannelListener) handleJoin(conn net.Conn, remoteIP string, fields []string) {
	port, ok := lastToken(fields)
	if !ok {
		s.reply(conn, "!err")
		return
	}
	e := registry.Endpoint{Addr: remoteIP, Port: port}
	s.reg.Register(e)
	s.reply(conn, "!ack")
}

func (s *ServerChannelListener) handleLeave(conn net.Conn, remoteIP string, fields []string) {
	port, ok := lastToken(fields)
	if !ok {
		s.reply(conn, "!err")
		return
	}
	s.reg.Leave(registry.Endpoint{Addr: remoteIP, Port: port})
	s.reply(conn, "!bye")
}

// handleReport parses "!report <port> clients <n> <name>@<ip> ...": the
// port is fields[1] specifically (unlike !join/!leave, which use the
// last token). A well-formed report gets no response; a malformed one
// (missing "clients" keyword, non-numeric port or count) gets "!err".
func (s *ServerChannelListener) handleReport(conn net.Conn, remoteIP string, fields []string) {
	if len(fields) < 4 || !strings.EqualFold(fields[2], "clients") {
		s.reply(conn, "!err")
		return
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil {
		s.reply(conn, "!err")
		return
	}
	n, err := strconv.Atoi(fields[3])
	if err != nil || n < 0 {
		s.reply(conn, "!err")
		return
	}

	tokens := fields[4:]
	if n < len(tokens) {
		tokens = tokens[:n]
	}
	clients := make([]registry.ClientRef, 0, len(tokens))
	for _, tok := range tokens {
		clients = append(clients, parseClientRef(tok))
	}

	e := registry.Endpoint{Addr: remoteIP, Port: port}
	s.reg.RecordReport(e, clients)
}

// parseClientRef splits a "<name>@<ip>" token on its last '@'; a token
// without '@' becomes (token, "unknown").
func parseClientRef(tok string) registry.ClientRef {
	idx := strings.LastIndex(tok, "@")
	if idx < 0 {
		return registry.ClientRef{Name: tok, IP: "unknown"}
	}
	return registry.ClientRef{Name: tok[:idx], IP: tok[idx+1:]}
}

// lastToken parses the final whitespace-separated field as a port number.
func lastToken(fields []string) (int, bool) {
	if len(fields) < 2 {
		return 0, false
	}
	port, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, false
	}
	return port, true
}

func (s *ServerChannelListener) reply(conn net.Conn, line string) {
	_, _ = conn.Write([]byte(line + "\n"))
}
