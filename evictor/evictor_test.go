package evictor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/registry"
)

func TestSweepRemovesStaleServers(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, 0)
	rt.SetEvictionTimeoutMs(50)
	ev := New(reg, rt, nil)

	a := registry.Endpoint{Addr: "10.0.0.1", Port: 9001}
	reg.Register(a)

	time.Sleep(100 * time.Millisecond)
	ev.sweep()

	assert.False(t, reg.IsRegistered(a))
}

func TestSweepKeepsFreshServers(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, config.DefaultEvictionTimeoutMs)
	ev := New(reg, rt, nil)

	a := registry.Endpoint{Addr: "10.0.0.1", Port: 9001}
	reg.Register(a)

	ev.sweep()
	assert.True(t, reg.IsRegistered(a))
}

func TestSweepPurgesStickyPointingAtEvictedServer(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, 0)
	rt.SetEvictionTimeoutMs(10)
	ev := New(reg, rt, nil)

	a := registry.Endpoint{Addr: "10.0.0.1", Port: 9001}
	reg.Register(a)
	reg.SetSticky("carol", a)

	time.Sleep(50 * time.Millisecond)
	ev.sweep()

	_, ok := reg.GetSticky("carol")
	assert.False(t, ok)
}

func TestSweepIsIdempotent(t *testing.T) {
	reg := registry.New(nil)
	rt := config.NewRuntime(config.ModeStatic, config.Unbounded, 1000, 0)
	rt.SetEvictionTimeoutMs(10)
	ev := New(reg, rt, nil)

	a := registry.Endpoint{Addr: "10.0.0.1", Port: 9001}
	reg.Register(a)
	time.Sleep(30 * time.Millisecond)

	ev.sweep()
	require.False(t, reg.IsRegistered(a))
	ev.sweep()
	assert.False(t, reg.IsRegistered(a))
}
