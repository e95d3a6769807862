package listener

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshlb/lb/admin"
	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/registry"
)

func TestAdminListenerRespondsWithLinesThenEnd(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, config.DefaultEvictionTimeoutMs)
	reg.Register(registry.Endpoint{Addr: "10.0.0.1", Port: 9001})
	terp := admin.New(reg, rt, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	al := NewAdminListener(ln, terp, nil)
	done := make(chan struct{})
	go al.Serve(done)
	defer func() { close(done); ln.Close() }()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("servers\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = line[:len(line)-1]
		if line == "END" {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "10.0.0.1:9001")
}

func TestAdminListenerUnknownVerbIsReportedThenEnd(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, config.DefaultEvictionTimeoutMs)
	terp := admin.New(reg, rt, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	al := NewAdminListener(ln, terp, nil)
	done := make(chan struct{})
	go al.Serve(done)
	defer func() { close(done); ln.Close() }()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("frobnicate\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "Unknown:")
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "END\n", line)
}
