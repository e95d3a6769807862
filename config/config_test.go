package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"static", ModeStatic, true},
		{"STATIC", ModeStatic, true},
		{"Dynamic", ModeDynamic, true},
		{"sticky", ModeSticky, true},
		{"bogus", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := ParseMode(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.Equal(t, c.want, got, c.in)
		}
	}
}

func TestRuntimePingIntervalFloor(t *testing.T) {
	r := NewRuntime(ModeStatic, Unbounded, 50, DefaultEvictionTimeoutMs)
	require.Equal(t, MinPingIntervalMs, r.PingIntervalMs())

	got := r.SetPingIntervalMs(10)
	assert.Equal(t, MinPingIntervalMs, got)
	assert.Equal(t, MinPingIntervalMs, r.PingIntervalMs())

	got = r.SetPingIntervalMs(5000)
	assert.Equal(t, 5000, got)
}

func TestRuntimeDefaultModeRejectsSticky(t *testing.T) {
	r := NewRuntime(ModeStatic, Unbounded, 1000, DefaultEvictionTimeoutMs)
	ok := r.SetDefaultMode(ModeSticky)
	assert.False(t, ok)
	assert.Equal(t, ModeStatic, r.DefaultMode())

	ok = r.SetDefaultMode(ModeDynamic)
	assert.True(t, ok)
	assert.Equal(t, ModeDynamic, r.DefaultMode())
}

func TestRuntimeBans(t *testing.T) {
	r := NewRuntime(ModeStatic, Unbounded, 1000, DefaultEvictionTimeoutMs)
	assert.False(t, r.IsIPBanned("10.0.0.1"))
	r.BanIP("10.0.0.1")
	assert.True(t, r.IsIPBanned("10.0.0.1"))
	r.UnbanIP("10.0.0.1")
	assert.False(t, r.IsIPBanned("10.0.0.1"))

	r.BanName("Mallory")
	assert.True(t, r.IsNameBanned("Mallory"))
	snap := r.Snapshot()
	assert.Contains(t, snap.BannedNames, "Mallory")
}

func TestRuntimeMaxPerServerClamp(t *testing.T) {
	r := NewRuntime(ModeStatic, Unbounded, 1000, DefaultEvictionTimeoutMs)
	r.SetMaxPerServer(-5)
	assert.Equal(t, 0, r.MaxPerServer())
}
