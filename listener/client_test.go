package listener

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/registry"
	"github.com/meshlb/lb/selector"
)

func dialAndReadLine(t *testing.T, addr string, request string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(request))
	require.NoError(t, err)
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	return line
}

func startClientListener(t *testing.T, reg *registry.Registry, rt *config.Runtime) (string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	sel := selector.New(reg, rt, nil)
	cl := NewClientListener(ln, reg, rt, sel, nil)
	done := make(chan struct{})
	go cl.Serve(done)
	return ln.Addr().String(), func() { close(done); ln.Close() }
}

func TestClientListenerEmptyClusterRepliesNoServerAvailable(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeDynamic, config.Unbounded, 1000, config.DefaultEvictionTimeoutMs)
	addr, stop := startClientListener(t, reg, rt)
	defer stop()

	line := dialAndReadLine(t, addr, "HELLO Alice dynamic\n")
	require.Equal(t, "NO_SERVER_AVAILABLE\n", line)
}

func TestClientListenerAssignsRegisteredServer(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, config.DefaultEvictionTimeoutMs)
	a := registry.Endpoint{Addr: "10.0.0.1", Port: 9001}
	reg.Register(a)
	addr, stop := startClientListener(t, reg, rt)
	defer stop()

	line := dialAndReadLine(t, addr, "HELLO Bob static\n")
	require.Equal(t, "10.0.0.1:9001\n", line)
}

func TestClientListenerAssignsAnonymousMonotonicName(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, config.DefaultEvictionTimeoutMs)
	a := registry.Endpoint{Addr: "10.0.0.1", Port: 9001}
	reg.Register(a)
	addr, stop := startClientListener(t, reg, rt)
	defer stop()

	line := dialAndReadLine(t, addr, "HELLO\n")
	require.Equal(t, "10.0.0.1:9001\n", line)
	line = dialAndReadLine(t, addr, "HELLO\n")
	require.Equal(t, "10.0.0.1:9001\n", line)

	recent := reg.RecentAssignments(0)
	require.Len(t, recent, 2)
	require.Equal(t, "Client-1", recent[0].ClientName)
	require.Equal(t, "Client-2", recent[1].ClientName)
}

func TestClientListenerRejectsBannedName(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, config.DefaultEvictionTimeoutMs)
	a := registry.Endpoint{Addr: "10.0.0.1", Port: 9001}
	reg.Register(a)
	rt.BanName("Mallory")
	addr, stop := startClientListener(t, reg, rt)
	defer stop()

	line := dialAndReadLine(t, addr, "HELLO Mallory static\n")
	require.Equal(t, "NO_SERVER_AVAILABLE\n", line)
}

func TestClientListenerMalformedRequestGetsNoServerAvailable(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, config.DefaultEvictionTimeoutMs)
	addr, stop := startClientListener(t, reg, rt)
	defer stop()

	line := dialAndReadLine(t, addr, "BOGUS\n")
	require.Equal(t, "NO_SERVER_AVAILABLE\n", line)
}

func TestClientListenerUnrecognizedModeFallsBackToDefault(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, config.DefaultEvictionTimeoutMs)
	a := registry.Endpoint{Addr: "10.0.0.1", Port: 9001}
	reg.Register(a)
	addr, stop := startClientListener(t, reg, rt)
	defer stop()

	line := dialAndReadLine(t, addr, "HELLO Eve bogusmode\n")
	require.Equal(t, "10.0.0.1:9001\n", line)
}
