// Package vcs provides the pluggable VCS backend abstraction: a single
// contract over two interchangeable implementations (subprocess, wrapping
// an external CLI, and native, an in-process content-addressed store),
// selected at runtime with identical semantics.
//
// Design: spec.md §4.1 (this package adapts gastown's git/jj abstraction
// in internal/vcs/vcs.go to a single content-addressed backend with a
// pluggable transport instead of a pluggable VCS family).
package vcs

import (
	"context"
	"time"
)

// BackendType identifies which Backend implementation to use.
type BackendType string

const (
	// SubprocessBackend wraps an external VCS CLI.
	SubprocessBackend BackendType = "subprocess"
	// NativeBackend uses in-process content-addressed store bindings.
	NativeBackend BackendType = "native"
)

// Commit is a single point in history. ID is a hex string, 7-64 chars;
// Parents is empty only for the root commit.
type Commit struct {
	ID      string
	Message string
	Parents []string
	Author  string
	At      time.Time
}

// Branch describes one named ref.
type Branch struct {
	Name      string
	Head      string
	IsCurrent bool
}

// Status is the three disjoint sets of relative paths describing the
// working tree.
type Status struct {
	Staged    []string
	Modified  []string
	Untracked []string
}

// Backend is the uniform operation set every VCS implementation exposes.
// Every operation accepts a repository path (or, for Init/Clone, a
// destination path) and returns either a typed success value or an
// *errs.Error classified per spec §7. Operations are synchronous from the
// caller's perspective: the subprocess implementation awaits child-process
// completion; the native implementation blocks the calling goroutine on
// its own I/O.
type Backend interface {
	// Type reports which implementation this is.
	Type() BackendType

	// Init creates a fresh control directory at path. Fails (AlreadyExists)
	// if one already exists.
	Init(ctx context.Context, path string) error

	// Clone clones url into dest, creating a fresh repository.
	Clone(ctx context.Context, url, dest string) error

	// Add stages the listed relative paths. A missing file fails the
	// whole call (NotFound).
	Add(ctx context.Context, path string, files []string) error

	// AddAll stages every non-ignored change under path.
	AddAll(ctx context.Context, path string) error

	// Commit records staged state and returns the new commit's identifier.
	// message must be non-empty. No-op commits may succeed or fail;
	// callers must tolerate both.
	Commit(ctx context.Context, path, message string) (string, error)

	// Log returns commits newest-first. If limit > 0, returns at most that
	// many. An empty repository returns an empty (not nil) slice.
	Log(ctx context.Context, path string, limit int) ([]Commit, error)

	// Status returns the three disjoint path sets.
	Status(ctx context.Context, path string) (Status, error)

	// Checkout updates the working tree to target: a commit id, an
	// unambiguous prefix of at least 4 chars, or a branch name. An
	// ambiguous prefix fails with AmbiguousReference.
	Checkout(ctx context.Context, path, target string) error

	// CreateBranch branches from current head. Fails (AlreadyExists) if
	// name already exists.
	CreateBranch(ctx context.Context, path, name string) error

	// ListBranches returns all branches; exactly one has IsCurrent set.
	ListBranches(ctx context.Context, path string) ([]Branch, error)

	// CurrentBranch returns the current branch's name.
	CurrentBranch(ctx context.Context, path string) (string, error)

	// DeleteBranch fails (Protected) if name is the current branch, or
	// "main"/"master".
	DeleteBranch(ctx context.Context, path, name string) error

	// Push uploads branch to remote. Empty remote/branch use the
	// backend's default. Network-adjacent: errors surface raw (Network,
	// RateLimit, ServerError, or Conflict for non-fast-forward) so the
	// caller's RetryPolicy can classify them.
	Push(ctx context.Context, path, remote, branch string) error

	// Pull fetches and integrates. May leave a merge-conflict state that
	// a subsequent Status call surfaces.
	Pull(ctx context.Context, path string) error

	// Fetch retrieves remote refs without integrating them.
	Fetch(ctx context.Context, path, remote string) error
}

// HistoryPruner is an optional capability a Backend may implement to
// squash a branch's history older than a boundary commit into a synthetic
// checkpoint. Not every implementation can do this (an external CLI may
// have no squash primitive); callers type-assert for it and degrade
// gracefully when absent.
type HistoryPruner interface {
	// SquashBefore rewrites the current branch so that
	// boundaryCommitID's parent and everything reachable only from it is
	// replaced by one synthetic commit carrying message, with an
	// identical snapshot. Everything from boundaryCommitID forward is
	// preserved verbatim.
	SquashBefore(ctx context.Context, path, boundaryCommitID, message string) error
}

// BranchMerger is an optional capability to fold one branch's current
// snapshot onto another as a single new commit.
type BranchMerger interface {
	// MergeSnapshot records target's new head as a commit whose snapshot
	// equals source's current snapshot, parented on target's previous
	// head, carrying message. The working tree and current branch end on
	// target.
	MergeSnapshot(ctx context.Context, path, source, target, message string) (string, error)
}

// RemoteConfigurer is an optional capability to record a default remote
// a backend consults whenever Push/Fetch are called with an empty remote
// argument. The subprocess backend needs no such thing (the wrapped CLI
// already tracks its own default, e.g. "origin"); the native backend does,
// since it has no equivalent concept of its own.
type RemoteConfigurer interface {
	SetDefaultRemote(path, remote string) error
}
