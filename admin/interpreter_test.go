package admin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/registry"
)

func newFixture() (*Interpreter, *registry.Registry, *config.Runtime) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, config.DefaultEvictionTimeoutMs)
	return New(reg, rt, nil), reg, rt
}

func TestServersListsEndpointSummary(t *testing.T) {
	terp, reg, _ := newFixture()
	reg.Register(registry.Endpoint{Addr: "10.0.0.1", Port: 9001})

	lines := terp.Execute("servers")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "10.0.0.1:9001")
	assert.Contains(t, lines[0], "weight=1")
}

func TestDrainAllAppliesToEveryEndpoint(t *testing.T) {
	terp, reg, _ := newFixture()
	a := registry.Endpoint{Addr: "10.0.0.1", Port: 9001}
	b := registry.Endpoint{Addr: "10.0.0.2", Port: 9002}
	reg.Register(a)
	reg.Register(b)

	lines := terp.Execute("drain all")
	assert.Equal(t, []string{"OK"}, lines)
	assert.True(t, reg.IsDrained(a))
	assert.True(t, reg.IsDrained(b))
}

func TestSetWeightUnknownEndpointReturnsError(t *testing.T) {
	terp, _, _ := newFixture()
	lines := terp.Execute("setweight 10.0.0.1:9001 3")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "ERROR:")
}

func TestSetWeightClampsBelowOneViaRegistry(t *testing.T) {
	terp, reg, _ := newFixture()
	a := registry.Endpoint{Addr: "10.0.0.1", Port: 9001}
	reg.Register(a)

	lines := terp.Execute("setweight 10.0.0.1:9001 0")
	assert.Equal(t, []string{"OK"}, lines)
	assert.Equal(t, 1, reg.Weight(a))
}

func TestModeDefaultRejectsSticky(t *testing.T) {
	terp, _, rt := newFixture()
	lines := terp.Execute("mode default sticky")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "ERROR:")
	assert.Equal(t, config.ModeStatic, rt.DefaultMode())
}

func TestModeDefaultAcceptsDynamic(t *testing.T) {
	terp, _, rt := newFixture()
	lines := terp.Execute("mode default dynamic")
	assert.Equal(t, []string{"OK"}, lines)
	assert.Equal(t, config.ModeDynamic, rt.DefaultMode())
}

func TestSetPingFloorsAtTwoHundredAndRestartsProber(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, config.DefaultEvictionTimeoutMs)
	restarted := false
	terp := New(reg, rt, func() { restarted = true })

	lines := terp.Execute("set ping 10")
	assert.Equal(t, []string{"OK"}, lines)
	assert.Equal(t, config.MinPingIntervalMs, rt.PingIntervalMs())
	assert.True(t, restarted)
}

func TestBanNameThenUnbanRoundTrips(t *testing.T) {
	terp, _, rt := newFixture()
	terp.Execute("ban name Mallory")
	assert.True(t, rt.IsNameBanned("Mallory"))

	terp.Execute("unban name Mallory")
	assert.False(t, rt.IsNameBanned("Mallory"))
}

func TestRemoveIsForcePurgeEvenIfNeverRegistered(t *testing.T) {
	terp, _, _ := newFixture()
	lines := terp.Execute("remove 10.0.0.1:9001")
	assert.Equal(t, []string{"OK"}, lines)
}

func TestUnknownVerbReturnsUnknownLine(t *testing.T) {
	terp, _, _ := newFixture()
	lines := terp.Execute("frobnicate now")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Unknown:")
}

func TestClearEmptiesAssignmentHistory(t *testing.T) {
	terp, reg, _ := newFixture()
	a := registry.Endpoint{Addr: "10.0.0.1", Port: 9001}
	reg.Register(a)
	reg.RecordAssignment(registry.Assignment{ClientName: "c", Mode: "static", Server: a})

	require.Len(t, reg.RecentAssignments(0), 1)
	lines := terp.Execute("clear")
	assert.Equal(t, []string{"OK"}, lines)
	assert.Len(t, reg.RecentAssignments(0), 0)
}

func TestHostPortParsingUsesLastColon(t *testing.T) {
	e, err := parseEndpoint("::1:9001")
	require.NoError(t, err)
	assert.Equal(t, "::1", e.Addr)
	assert.Equal(t, 9001, e.Port)
}

func TestBansListsIPsAndNames(t *testing.T) {
	terp, _, rt := newFixture()
	rt.BanIP("1.2.3.4")
	rt.BanName("Mallory")

	lines := terp.Execute("bans")
	assert.Len(t, lines, 2)
}
