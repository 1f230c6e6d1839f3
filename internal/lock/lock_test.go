package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockExpiry(t *testing.T) {
	now := time.Now()
	l := newLock("/repo", "alice", time.Hour, now)

	require.False(t, l.IsExpired(now))
	require.False(t, l.IsExpired(now.Add(59*time.Minute)))
	require.True(t, l.IsExpired(now.Add(61*time.Minute)))
	require.Equal(t, time.Hour, l.RemainingTime(now))
}

func TestLockStaleness(t *testing.T) {
	now := time.Now()
	l := newLock("/repo", "alice", 3*time.Hour, now)

	require.False(t, l.IsStale(now.Add(30*time.Minute)), "fresh heartbeat is not stale")
	require.True(t, l.IsStale(now.Add(90*time.Minute)), "silent for over an hour, still within the lease")
	require.False(t, l.IsExpired(now.Add(90*time.Minute)))
}

func TestLockOwnedBy(t *testing.T) {
	l := newLock("/repo", "alice", time.Hour, time.Now())
	require.True(t, l.OwnedBy("alice"))
	require.False(t, l.OwnedBy("bob"))
}
