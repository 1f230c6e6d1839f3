package lock

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/oxlock/oxlock/internal/errs"
	"github.com/oxlock/oxlock/internal/vcs"
)

// maxAcquireRetries bounds the pull-and-retry loop on a non-fast-forward
// push during acquire, per spec §4.2 ("tolerate at most one wasted
// push-round-trip per concurrent acquirer").
const maxAcquireRetries = 1

// Coordinator gives collaborators exclusive edit rights to a repository
// through an advisory lease committed to the VCS at a well-known path.
// It holds no in-memory mutex: every call re-reads truth from the backend,
// and correctness rests entirely on the backend's push linearization, per
// spec §4.2 and §5.
type Coordinator struct {
	backend  vcs.Backend
	repoPath string
	logger   *zap.SugaredLogger
	nowFunc  func() time.Time
}

// New builds a Coordinator over backend for the repository at repoPath.
func New(backend vcs.Backend, repoPath string) *Coordinator {
	return &Coordinator{
		backend:  backend,
		repoPath: repoPath,
		logger:   zap.NewNop().Sugar(),
		nowFunc:  time.Now,
	}
}

// WithLogger attaches a structured logger.
func (c *Coordinator) WithLogger(logger *zap.SugaredLogger) *Coordinator {
	if logger != nil {
		c.logger = logger
	}
	return c
}

func (c *Coordinator) now() time.Time { return c.nowFunc() }

// readLock reads the lock record committed at lockRecordPath, if any.
// A missing file is not an error: it means no lock is held.
func (c *Coordinator) readLock(ctx context.Context) (*Lock, error) {
	data, err := vcs.ReadCommittedFile(c.repoPath, lockRecordPath)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, errs.Wrap(errs.Protocol, "decode lock record", err)
	}
	return &l, nil
}

func (c *Coordinator) writeAndPush(ctx context.Context, l *Lock, commitMessage string) error {
	var data []byte
	var err error
	if l != nil {
		data, err = json.MarshalIndent(l, "", "  ")
		if err != nil {
			return errs.Wrap(errs.Internal, "encode lock record", err)
		}
		if err := vcs.WriteCommittedFile(c.repoPath, lockRecordPath, data); err != nil {
			return err
		}
	} else {
		if err := vcs.RemoveCommittedFile(c.repoPath, lockRecordPath); err != nil {
			return err
		}
	}
	if err := c.backend.AddAll(ctx, c.repoPath); err != nil {
		return err
	}
	if _, err := c.backend.Commit(ctx, c.repoPath, commitMessage); err != nil {
		return err
	}
	return c.backend.Push(ctx, c.repoPath, "", "")
}

// Acquire attempts to claim the lock for holderID for timeout. On a
// non-fast-forward push it pulls and re-evaluates once before giving up,
// per spec §4.2 step 5.
func (c *Coordinator) Acquire(ctx context.Context, holderID string, timeout time.Duration) (Lock, error) {
	var lastErr error
	for attempt := 0; attempt <= maxAcquireRetries; attempt++ {
		if err := c.backend.Pull(ctx, c.repoPath); err != nil {
			return Lock{}, err
		}
		existing, err := c.readLock(ctx)
		if err != nil {
			return Lock{}, err
		}
		if existing != nil && !existing.IsExpired(c.now()) && !existing.OwnedBy(holderID) {
			return Lock{}, errs.New(errs.Conflict, "lock already held by "+existing.HolderID)
		}
		fresh := newLock(c.repoPath, holderID, timeout, c.now())
		if err := c.writeAndPush(ctx, &fresh, "lock: acquire by "+holderID); err != nil {
			if errs.Is(err, errs.Conflict) {
				lastErr = err
				continue
			}
			return Lock{}, err
		}
		c.logger.Infow("lock acquired", "repo", c.repoPath, "holder", holderID, "lock_id", fresh.LockID)
		return fresh, nil
	}
	return Lock{}, lastErr
}

// Renew extends an existing lease. lockID and holderID must match the
// current record.
func (c *Coordinator) Renew(ctx context.Context, lockID, holderID string, additional time.Duration) (Lock, error) {
	if err := c.backend.Pull(ctx, c.repoPath); err != nil {
		return Lock{}, err
	}
	existing, err := c.readLock(ctx)
	if err != nil {
		return Lock{}, err
	}
	if existing == nil {
		return Lock{}, errs.New(errs.NotFound, "no active lock")
	}
	if existing.LockID != lockID || !existing.OwnedBy(holderID) {
		return Lock{}, errs.New(errs.NotAuthorized, "lock not owned by "+holderID)
	}
	existing.ExpiresAt = existing.ExpiresAt.Add(additional)
	existing.LastHeartbeat = c.now()
	if err := c.writeAndPush(ctx, existing, "lock: renew by "+holderID); err != nil {
		return Lock{}, err
	}
	return *existing, nil
}

// Release relinquishes the lease. lockID and holderID must match the
// current record, or NotAuthorized is returned.
func (c *Coordinator) Release(ctx context.Context, lockID, holderID string) error {
	if err := c.backend.Pull(ctx, c.repoPath); err != nil {
		return err
	}
	existing, err := c.readLock(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		return errs.New(errs.NotFound, "no active lock")
	}
	if existing.LockID != lockID || !existing.OwnedBy(holderID) {
		return errs.New(errs.NotAuthorized, "lock not owned by "+holderID)
	}
	return c.writeAndPush(ctx, nil, "lock: release by "+holderID)
}

// Status returns the current lock record, or nil if none is held.
func (c *Coordinator) Status(ctx context.Context) (*Lock, error) {
	if err := c.backend.Pull(ctx, c.repoPath); err != nil {
		return nil, err
	}
	return c.readLock(ctx)
}

// ForceBreak deletes the lock record regardless of holder. Irrevocable:
// callers must confirm intent before invoking it.
func (c *Coordinator) ForceBreak(ctx context.Context) error {
	if err := c.backend.Pull(ctx, c.repoPath); err != nil {
		return err
	}
	existing, err := c.readLock(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	c.logger.Warnw("force-breaking lock", "repo", c.repoPath, "previous_holder", existing.HolderID)
	return c.writeAndPush(ctx, nil, "lock: force break")
}
