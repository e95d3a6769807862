package listener

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshlb/lb/registry"
)

func startServerChannelListener(t *testing.T, reg *registry.Registry) (string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	sc := NewServerChannelListener(ln, reg, nil)
	done := make(chan struct{})
	go sc.Serve(done)
	return ln.Addr().String(), func() { close(done); ln.Close() }
}

func TestServerChannelJoinRegistersAndAcks(t *testing.T) {
	reg := registry.New(nil)
	addr, stop := startServerChannelListener(t, reg)
	defer stop()

	line := dialAndReadLine(t, addr, "!join -v dynamic 9001\n")
	require.Equal(t, "!ack\n", line)

	host, _, _ := net.SplitHostPort(addr)
	require.True(t, reg.IsRegistered(registry.Endpoint{Addr: host, Port: 9001}))
}

func TestServerChannelJoinTwiceIsOneEntry(t *testing.T) {
	reg := registry.New(nil)
	addr, stop := startServerChannelListener(t, reg)
	defer stop()

	dialAndReadLine(t, addr, "!join 9001\n")
	dialAndReadLine(t, addr, "!join 9001\n")

	host, _, _ := net.SplitHostPort(addr)
	require.Len(t, reg.Endpoints(), 1)
	require.True(t, reg.IsRegistered(registry.Endpoint{Addr: host, Port: 9001}))
}

func TestServerChannelLeaveRemovesAndRepliesBye(t *testing.T) {
	reg := registry.New(nil)
	addr, stop := startServerChannelListener(t, reg)
	defer stop()

	host, _, _ := net.SplitHostPort(addr)
	reg.Register(registry.Endpoint{Addr: host, Port: 9001})

	line := dialAndReadLine(t, addr, "!leave 9001\n")
	require.Equal(t, "!bye\n", line)
	require.False(t, reg.IsRegistered(registry.Endpoint{Addr: host, Port: 9001}))
}

func TestServerChannelJoinRejectsNonNumericPort(t *testing.T) {
	reg := registry.New(nil)
	addr, stop := startServerChannelListener(t, reg)
	defer stop()

	line := dialAndReadLine(t, addr, "!join abc\n")
	require.Equal(t, "!err\n", line)
}

func TestServerChannelUnknownVerbRepliesErr(t *testing.T) {
	reg := registry.New(nil)
	addr, stop := startServerChannelListener(t, reg)
	defer stop()

	line := dialAndReadLine(t, addr, "!bogus\n")
	require.Equal(t, "!err\n", line)
}

func TestServerChannelReportUpdatesLiveClientsWithNoReply(t *testing.T) {
	reg := registry.New(nil)
	addr, stop := startServerChannelListener(t, reg)
	defer stop()

	host, _, _ := net.SplitHostPort(addr)
	e := registry.Endpoint{Addr: host, Port: 9001}
	reg.Register(e)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	_, err = conn.Write([]byte("!report 9001 clients 2 alice@1.1.1.1 bob@2.2.2.2\n"))
	require.NoError(t, err)
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 16)
	n, _ := conn.Read(buf)
	require.Equal(t, 0, n) // no response expected
	conn.Close()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 2, reg.LiveCount(e))
}

func TestServerChannelReportTokenWithoutAtUsesUnknownIP(t *testing.T) {
	ref := parseClientRef("lonely")
	require.Equal(t, "lonely", ref.Name)
	require.Equal(t, "unknown", ref.IP)
}
