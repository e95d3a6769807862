package listener

import (
	"bufio"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/meshlb/lb/admin"
)

const adminReadTimeout = time.Second

// AdminListener implements ADMIN_PORT: one line in, the interpreter's
// response lines out, then a literal "END", then close.
type AdminListener struct {
	ln   net.Listener
	terp *admin.Interpreter
	log  *zap.SugaredLogger
}

func NewAdminListener(ln net.Listener, terp *admin.Interpreter, log *zap.SugaredLogger) *AdminListener {
	return &AdminListener{ln: ln, terp: terp, log: log}
}

func (a *AdminListener) Serve(done <-chan struct{}) {
	acceptLoop(done, a.ln, a.log, a.handle)
}

func (a *AdminListener) handle(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(adminReadTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}

	for _, l := range a.terp.Execute(line) {
		_, _ = conn.Write([]byte(l + "\n"))
	}
	_, _ = conn.Write([]byte("END\n"))
}
