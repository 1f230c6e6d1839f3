package queue

import (
	"context"
	"time"

	"github.com/oxlock/oxlock/internal/errs"
	"github.com/oxlock/oxlock/internal/lock"
	"github.com/oxlock/oxlock/internal/vcs"
)

// ComponentExecutor routes each OperationTag to the LockCoordinator or
// VCSBackend that can actually perform it, per spec §4.6 ("execute each
// via the relevant component"). SyncComments is delegated entirely outside
// the core, per spec §2.
type ComponentExecutor struct {
	Backend vcs.Backend
	// Coordinators resolves the LockCoordinator for a given repo path;
	// the queue may hold entries for several repositories.
	Coordinators func(repoPath string) *lock.Coordinator
	// SyncComments, if set, handles the opaque SyncComments operation.
	// If nil, SyncComments entries succeed trivially (no-op).
	SyncComments func(ctx context.Context, repoPath string) error
}

func (c *ComponentExecutor) Execute(ctx context.Context, e Entry) error {
	switch e.Operation {
	case AcquireLock:
		coord := c.Coordinators(e.Payload.ProjectPath)
		_, err := coord.Acquire(ctx, e.Payload.UserID, time.Duration(e.Payload.TimeoutHours)*time.Hour)
		return err
	case ReleaseLock:
		coord := c.Coordinators(e.Payload.ProjectPath)
		return coord.Release(ctx, e.Payload.LockID, e.Payload.UserID)
	case RenewLock:
		coord := c.Coordinators(e.Payload.ProjectPath)
		_, err := coord.Renew(ctx, e.Payload.LockID, e.Payload.UserID, time.Duration(e.Payload.AdditionalHours)*time.Hour)
		return err
	case PushCommits:
		return c.Backend.Push(ctx, e.Payload.RepoPath, "", e.Payload.Branch)
	case PullCommits:
		return c.Backend.Pull(ctx, e.Payload.RepoPath)
	case SyncComments:
		if c.SyncComments == nil {
			return nil
		}
		return c.SyncComments(ctx, e.Payload.RepoPath)
	default:
		return errs.New(errs.Internal, "unknown operation tag: "+string(e.Operation))
	}
}
