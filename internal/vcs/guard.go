package vcs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/oxlock/oxlock/internal/errs"
)

// Guarded wraps any Backend so that no two calls for the same repository
// path run concurrently, per spec §5 ("No two VCSBackend calls for the
// same repo should run concurrently; callers serialize per-repo"). It uses
// a gofrs/flock advisory file lock rooted at the repo path, which also
// serializes across separate processes on the same machine, not just
// goroutines within one.
type Guarded struct {
	inner Backend
}

// NewGuarded wraps inner with per-repo-path file locking.
func NewGuarded(inner Backend) *Guarded {
	return &Guarded{inner: inner}
}

func (g *Guarded) Type() BackendType { return g.inner.Type() }

func lockPathFor(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".oxlock")
}

func (g *Guarded) withLock(path string, fn func() error) error {
	if path == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(lockPathFor(path)), 0o755); err != nil {
		// Destination directory may not exist yet (Init/Clone); fall back
		// to running unguarded rather than failing setup operations.
		return fn()
	}
	fl := flock.New(lockPathFor(path))
	if err := fl.Lock(); err != nil {
		return errs.Wrap(errs.Filesystem, "acquire local repo guard", err)
	}
	defer fl.Unlock()
	return fn()
}

func (g *Guarded) Init(ctx context.Context, path string) error {
	var err error
	lockErr := g.withLock(path, func() error { err = g.inner.Init(ctx, path); return nil })
	if lockErr != nil {
		return lockErr
	}
	return err
}

func (g *Guarded) Clone(ctx context.Context, url, dest string) error {
	return g.inner.Clone(ctx, url, dest)
}

func (g *Guarded) Add(ctx context.Context, path string, files []string) error {
	var err error
	if lockErr := g.withLock(path, func() error { err = g.inner.Add(ctx, path, files); return nil }); lockErr != nil {
		return lockErr
	}
	return err
}

func (g *Guarded) AddAll(ctx context.Context, path string) error {
	var err error
	if lockErr := g.withLock(path, func() error { err = g.inner.AddAll(ctx, path); return nil }); lockErr != nil {
		return lockErr
	}
	return err
}

func (g *Guarded) Commit(ctx context.Context, path, message string) (string, error) {
	var id string
	var err error
	if lockErr := g.withLock(path, func() error { id, err = g.inner.Commit(ctx, path, message); return nil }); lockErr != nil {
		return "", lockErr
	}
	return id, err
}

func (g *Guarded) Log(ctx context.Context, path string, limit int) ([]Commit, error) {
	var commits []Commit
	var err error
	if lockErr := g.withLock(path, func() error { commits, err = g.inner.Log(ctx, path, limit); return nil }); lockErr != nil {
		return nil, lockErr
	}
	return commits, err
}

func (g *Guarded) Status(ctx context.Context, path string) (Status, error) {
	var st Status
	var err error
	if lockErr := g.withLock(path, func() error { st, err = g.inner.Status(ctx, path); return nil }); lockErr != nil {
		return Status{}, lockErr
	}
	return st, err
}

func (g *Guarded) Checkout(ctx context.Context, path, target string) error {
	var err error
	if lockErr := g.withLock(path, func() error { err = g.inner.Checkout(ctx, path, target); return nil }); lockErr != nil {
		return lockErr
	}
	return err
}

func (g *Guarded) CreateBranch(ctx context.Context, path, name string) error {
	var err error
	if lockErr := g.withLock(path, func() error { err = g.inner.CreateBranch(ctx, path, name); return nil }); lockErr != nil {
		return lockErr
	}
	return err
}

func (g *Guarded) ListBranches(ctx context.Context, path string) ([]Branch, error) {
	var branches []Branch
	var err error
	if lockErr := g.withLock(path, func() error { branches, err = g.inner.ListBranches(ctx, path); return nil }); lockErr != nil {
		return nil, lockErr
	}
	return branches, err
}

func (g *Guarded) CurrentBranch(ctx context.Context, path string) (string, error) {
	var name string
	var err error
	if lockErr := g.withLock(path, func() error { name, err = g.inner.CurrentBranch(ctx, path); return nil }); lockErr != nil {
		return "", lockErr
	}
	return name, err
}

func (g *Guarded) DeleteBranch(ctx context.Context, path, name string) error {
	var err error
	if lockErr := g.withLock(path, func() error { err = g.inner.DeleteBranch(ctx, path, name); return nil }); lockErr != nil {
		return lockErr
	}
	return err
}

func (g *Guarded) Push(ctx context.Context, path, remote, branch string) error {
	var err error
	if lockErr := g.withLock(path, func() error { err = g.inner.Push(ctx, path, remote, branch); return nil }); lockErr != nil {
		return lockErr
	}
	return err
}

func (g *Guarded) Pull(ctx context.Context, path string) error {
	var err error
	if lockErr := g.withLock(path, func() error { err = g.inner.Pull(ctx, path); return nil }); lockErr != nil {
		return lockErr
	}
	return err
}

func (g *Guarded) Fetch(ctx context.Context, path, remote string) error {
	var err error
	if lockErr := g.withLock(path, func() error { err = g.inner.Fetch(ctx, path, remote); return nil }); lockErr != nil {
		return lockErr
	}
	return err
}

// SquashBefore passes through to the wrapped Backend if it implements
// HistoryPruner, guarded by the same per-repo-path file lock as every
// other operation.
func (g *Guarded) SquashBefore(ctx context.Context, path, boundaryCommitID, message string) error {
	pruner, ok := g.inner.(HistoryPruner)
	if !ok {
		return errs.New(errs.Internal, "backend does not support history pruning")
	}
	var err error
	if lockErr := g.withLock(path, func() error { err = pruner.SquashBefore(ctx, path, boundaryCommitID, message); return nil }); lockErr != nil {
		return lockErr
	}
	return err
}

// MergeSnapshot passes through to the wrapped Backend if it implements
// BranchMerger, guarded by the same per-repo-path file lock as every
// other operation.
func (g *Guarded) MergeSnapshot(ctx context.Context, path, source, target, message string) (string, error) {
	merger, ok := g.inner.(BranchMerger)
	if !ok {
		return "", errs.New(errs.Internal, "backend does not support branch merge")
	}
	var id string
	var err error
	if lockErr := g.withLock(path, func() error { id, err = merger.MergeSnapshot(ctx, path, source, target, message); return nil }); lockErr != nil {
		return "", lockErr
	}
	return id, err
}

// SetDefaultRemote passes through to the wrapped Backend if it implements
// RemoteConfigurer.
func (g *Guarded) SetDefaultRemote(path, remote string) error {
	configurer, ok := g.inner.(RemoteConfigurer)
	if !ok {
		return errs.New(errs.Internal, "backend does not support configuring a default remote")
	}
	var err error
	if lockErr := g.withLock(path, func() error { err = configurer.SetDefaultRemote(path, remote); return nil }); lockErr != nil {
		return lockErr
	}
	return err
}
