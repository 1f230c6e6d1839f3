// Package lock implements the remote-coordinated exclusive lock: a
// distributed mutual-exclusion protocol layered on the VCS backend's own
// push linearization. Grounded in Auxin-CLI-Wrapper's remote-lock handling
// (src/lock_integration.rs) and generalized from a Oxen-specific CLI
// adapter into a backend-agnostic coordinator over vcs.Backend.
package lock

import (
	"time"

	"github.com/google/uuid"
)

// lockRecordPath is the well-known path the lock record is committed to,
// per spec §6.
const lockRecordPath = ".control/locks/active.lock"

// staleAfter is the duration after which a lock with no heartbeat is
// considered stale (but not necessarily expired).
const staleAfter = time.Hour

// Lock is the value type describing an active lease.
type Lock struct {
	LockID        string    `json:"lock_id"`
	HolderID      string    `json:"holder_id"`
	RepoPath      string    `json:"repo_path"`
	AcquiredAt    time.Time `json:"acquired_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// newLock builds a fresh lease for holderID at repoPath, valid for
// timeout from now.
func newLock(repoPath, holderID string, timeout time.Duration, now time.Time) Lock {
	return Lock{
		LockID:        uuid.NewString(),
		HolderID:      holderID,
		RepoPath:      repoPath,
		AcquiredAt:    now,
		ExpiresAt:     now.Add(timeout),
		LastHeartbeat: now,
	}
}

// IsExpired reports whether the lease is void as of now: expires-at has
// passed. An expired lock's file may be silently overwritten.
func (l Lock) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// IsStale reports whether the holder has not heartbeat in over an hour
// while the lease is still legally valid. Stale hints the holder crashed;
// it does not by itself permit overwriting the lock.
func (l Lock) IsStale(now time.Time) bool {
	return !l.IsExpired(now) && now.Sub(l.LastHeartbeat) > staleAfter
}

// RemainingTime reports how long until the lease expires. Negative once
// expired.
func (l Lock) RemainingTime(now time.Time) time.Duration {
	return l.ExpiresAt.Sub(now)
}

// OwnedBy reports whether holderID matches the lease's holder.
func (l Lock) OwnedBy(holderID string) bool {
	return l.HolderID == holderID
}
