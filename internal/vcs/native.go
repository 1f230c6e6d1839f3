package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oxlock/oxlock/internal/errs"
)

// NativeVCS is the in-process content-addressed implementation of Backend.
// It stands in for the native library bindings the distilled spec's
// upstream Rust source calls "liboxen" and treats as not-yet-available;
// here it is fully implemented rather than stubbed, per SPEC_FULL.md.
//
// Repositories are rooted at a working directory containing a ".vault"
// control directory: content-addressed blobs under objects/, one JSON
// file per commit under commits/, and one file per branch ref under
// refs/heads/ holding the branch's head commit id.
type NativeVCS struct{}

// NewNativeVCS constructs the native backend. It is stateless: every
// operation re-reads truth from the repository's control directory.
func NewNativeVCS() *NativeVCS { return &NativeVCS{} }

func (n *NativeVCS) Type() BackendType { return NativeBackend }

const (
	mainBranch   = "main"
	masterBranch = "master"
)

func (n *NativeVCS) Init(_ context.Context, path string) error {
	s := newStore(path)
	if s.exists() {
		return errs.New(errs.AlreadyExists, "repository already initialized at "+path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errs.Wrap(errs.Filesystem, "create repository root", err)
	}
	if err := s.init(); err != nil {
		return errs.Wrap(errs.Filesystem, "initialize control directory", err)
	}
	return nil
}

func (n *NativeVCS) Clone(_ context.Context, url, dest string) error {
	src := newStore(url)
	if !src.exists() {
		return errs.New(errs.NotFound, "source repository not found: "+url)
	}
	if err := copyTree(url, dest); err != nil {
		return errs.Wrap(errs.Filesystem, "clone repository tree", err)
	}
	if err := newStore(dest).writeDefaultRemote(url); err != nil {
		return errs.Wrap(errs.Filesystem, "record default remote", err)
	}
	return nil
}

// SetDefaultRemote records remote as path's default, consulted by Push
// and Fetch whenever their own remote argument is empty. Clone sets this
// automatically; a repository created with Init has none until this is
// called once.
func (n *NativeVCS) SetDefaultRemote(path, remote string) error {
	return newStore(path).writeDefaultRemote(remote)
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}

func (n *NativeVCS) Add(_ context.Context, path string, files []string) error {
	s := newStore(path)
	staged, err := s.readStaging()
	if err != nil {
		return errs.Wrap(errs.Filesystem, "read staging state", err)
	}
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(path, f)); err != nil {
			return errs.New(errs.NotFound, "no such file: "+f)
		}
		staged[filepath.ToSlash(f)] = true
	}
	if err := s.writeStaging(staged); err != nil {
		return errs.Wrap(errs.Filesystem, "write staging state", err)
	}
	return nil
}

func (n *NativeVCS) AddAll(_ context.Context, path string) error {
	s := newStore(path)
	paths, err := s.snapshotWorkdir()
	if err != nil {
		return errs.Wrap(errs.Filesystem, "walk working directory", err)
	}
	staged := map[string]bool{}
	for _, p := range paths {
		staged[p] = true
	}
	if err := s.writeStaging(staged); err != nil {
		return errs.Wrap(errs.Filesystem, "write staging state", err)
	}
	return nil
}

func (n *NativeVCS) Commit(_ context.Context, path, message string) (string, error) {
	if message == "" {
		return "", errs.New(errs.Internal, "commit message must not be empty")
	}
	s := newStore(path)
	staged, err := s.readStaging()
	if err != nil {
		return "", errs.Wrap(errs.Filesystem, "read staging state", err)
	}

	branch, err := s.readHead()
	if err != nil {
		return "", errs.Wrap(errs.Filesystem, "read HEAD", err)
	}

	var parents []string
	snapshot := map[string]string{}
	if s.refExists(branch) {
		parentID, err := s.readRef(branch)
		if err != nil {
			return "", errs.Wrap(errs.Filesystem, "read branch ref", err)
		}
		parents = []string{parentID}
		parent, err := s.readCommit(parentID)
		if err != nil {
			return "", errs.Wrap(errs.Filesystem, "read parent commit", err)
		}
		for k, v := range parent.Snapshot {
			snapshot[k] = v
		}
	}

	for relPath := range staged {
		content, err := os.ReadFile(filepath.Join(path, relPath))
		if err != nil {
			return "", errs.New(errs.NotFound, "staged file missing: "+relPath)
		}
		hash, err := s.writeBlob(content)
		if err != nil {
			return "", errs.Wrap(errs.Filesystem, "write blob", err)
		}
		snapshot[relPath] = hash
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	c := objectCommit{
		ID:       id,
		Message:  message,
		Parents:  parents,
		Author:   "native",
		At:       time.Now().UTC(),
		Snapshot: snapshot,
	}
	if err := s.writeCommit(c); err != nil {
		return "", errs.Wrap(errs.Filesystem, "write commit", err)
	}
	if err := s.writeRef(branch, id); err != nil {
		return "", errs.Wrap(errs.Filesystem, "update branch ref", err)
	}
	if err := s.clearStaging(); err != nil && !os.IsNotExist(err) {
		return "", errs.Wrap(errs.Filesystem, "clear staging state", err)
	}
	return id, nil
}

func (n *NativeVCS) Log(_ context.Context, path string, limit int) ([]Commit, error) {
	s := newStore(path)
	branch, err := s.readHead()
	if err != nil {
		return nil, errs.Wrap(errs.Filesystem, "read HEAD", err)
	}
	if !s.refExists(branch) {
		return []Commit{}, nil
	}
	head, err := s.readRef(branch)
	if err != nil {
		return nil, errs.Wrap(errs.Filesystem, "read branch ref", err)
	}

	var out []Commit
	id := head
	for id != "" {
		c, err := s.readCommit(id)
		if err != nil {
			return nil, errs.Wrap(errs.Filesystem, "read commit "+id, err)
		}
		out = append(out, Commit{ID: c.ID, Message: c.Message, Parents: c.Parents, Author: c.Author, At: c.At})
		if limit > 0 && len(out) >= limit {
			break
		}
		if len(c.Parents) == 0 {
			break
		}
		id = c.Parents[0]
	}
	return out, nil
}

func (n *NativeVCS) Status(_ context.Context, path string) (Status, error) {
	s := newStore(path)
	staged, err := s.readStaging()
	if err != nil {
		return Status{}, errs.Wrap(errs.Filesystem, "read staging state", err)
	}
	branch, err := s.readHead()
	if err != nil {
		return Status{}, errs.Wrap(errs.Filesystem, "read HEAD", err)
	}

	headSnapshot := map[string]string{}
	if s.refExists(branch) {
		headID, err := s.readRef(branch)
		if err != nil {
			return Status{}, errs.Wrap(errs.Filesystem, "read branch ref", err)
		}
		c, err := s.readCommit(headID)
		if err != nil {
			return Status{}, errs.Wrap(errs.Filesystem, "read head commit", err)
		}
		headSnapshot = c.Snapshot
	}

	workdir, err := s.snapshotWorkdir()
	if err != nil {
		return Status{}, errs.Wrap(errs.Filesystem, "walk working directory", err)
	}

	result := Status{}
	for _, p := range workdir {
		if staged[p] {
			result.Staged = append(result.Staged, p)
			continue
		}
		if _, tracked := headSnapshot[p]; tracked {
			content, err := os.ReadFile(filepath.Join(path, p))
			if err != nil {
				continue
			}
			if hashBytes(content) != headSnapshot[p] {
				result.Modified = append(result.Modified, p)
			}
			continue
		}
		result.Untracked = append(result.Untracked, p)
	}
	sort.Strings(result.Staged)
	sort.Strings(result.Modified)
	sort.Strings(result.Untracked)
	return result, nil
}

// resolveTarget resolves target to a single commit id: an exact commit id,
// an unambiguous prefix of >= 4 chars, or a branch name.
func (n *NativeVCS) resolveTarget(s *store, target string) (string, error) {
	if s.refExists(target) {
		return s.readRef(target)
	}
	ids, err := s.allCommitIDs()
	if err != nil {
		return "", errs.Wrap(errs.Filesystem, "enumerate commits", err)
	}
	if len(target) < 4 {
		for _, id := range ids {
			if id == target {
				return id, nil
			}
		}
		return "", errs.New(errs.NotFound, "no such commit or branch: "+target)
	}
	var matches []string
	for _, id := range ids {
		if len(id) >= len(target) && id[:len(target)] == target {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", errs.New(errs.NotFound, "no such commit or branch: "+target)
	case 1:
		return matches[0], nil
	default:
		return "", errs.New(errs.AmbiguousReference, fmt.Sprintf("prefix %q matches %d commits", target, len(matches)))
	}
}

func (n *NativeVCS) Checkout(_ context.Context, path, target string) error {
	s := newStore(path)
	commitID, err := n.resolveTarget(s, target)
	if err != nil {
		return err
	}
	c, err := s.readCommit(commitID)
	if err != nil {
		return errs.Wrap(errs.Filesystem, "read target commit", err)
	}

	// Materialize the target snapshot into the working directory.
	for relPath, hash := range c.Snapshot {
		content, err := s.readBlob(hash)
		if err != nil {
			return errs.Wrap(errs.Filesystem, "read blob for "+relPath, err)
		}
		full := filepath.Join(path, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return errs.Wrap(errs.Filesystem, "create parent dir", err)
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			return errs.Wrap(errs.Filesystem, "write file", err)
		}
	}

	if s.refExists(target) {
		if err := s.writeHead(target); err != nil {
			return errs.Wrap(errs.Filesystem, "update HEAD", err)
		}
	}
	if err := s.clearStaging(); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.Filesystem, "clear staging state", err)
	}
	return nil
}

func (n *NativeVCS) CreateBranch(_ context.Context, path, name string) error {
	s := newStore(path)
	if s.refExists(name) {
		return errs.New(errs.AlreadyExists, "branch already exists: "+name)
	}
	branch, err := s.readHead()
	if err != nil {
		return errs.Wrap(errs.Filesystem, "read HEAD", err)
	}
	head := ""
	if s.refExists(branch) {
		head, err = s.readRef(branch)
		if err != nil {
			return errs.Wrap(errs.Filesystem, "read branch ref", err)
		}
	}
	if err := s.writeRef(name, head); err != nil {
		return errs.Wrap(errs.Filesystem, "write new branch ref", err)
	}
	return nil
}

func (n *NativeVCS) ListBranches(_ context.Context, path string) ([]Branch, error) {
	s := newStore(path)
	names, err := s.listRefs()
	if err != nil {
		return nil, errs.Wrap(errs.Filesystem, "list refs", err)
	}
	current, err := s.readHead()
	if err != nil {
		return nil, errs.Wrap(errs.Filesystem, "read HEAD", err)
	}
	out := make([]Branch, 0, len(names))
	for _, name := range names {
		head, err := s.readRef(name)
		if err != nil {
			return nil, errs.Wrap(errs.Filesystem, "read ref "+name, err)
		}
		out = append(out, Branch{Name: name, Head: head, IsCurrent: name == current})
	}
	return out, nil
}

func (n *NativeVCS) CurrentBranch(_ context.Context, path string) (string, error) {
	s := newStore(path)
	branch, err := s.readHead()
	if err != nil {
		return "", errs.Wrap(errs.Filesystem, "read HEAD", err)
	}
	return branch, nil
}

func (n *NativeVCS) DeleteBranch(_ context.Context, path, name string) error {
	s := newStore(path)
	current, err := s.readHead()
	if err != nil {
		return errs.Wrap(errs.Filesystem, "read HEAD", err)
	}
	if name == current {
		return errs.New(errs.Protected, "cannot delete the current branch: "+name)
	}
	if name == mainBranch || name == masterBranch {
		return errs.New(errs.Protected, "cannot delete protected branch: "+name)
	}
	if !s.refExists(name) {
		return errs.New(errs.NotFound, "no such branch: "+name)
	}
	if err := s.deleteRef(name); err != nil {
		return errs.Wrap(errs.Filesystem, "delete ref", err)
	}
	return nil
}

// Push/Pull/Fetch treat another NativeVCS-rooted directory as the remote.
// Non-fast-forward pushes (the remote's branch head is not an ancestor of
// the caller's) surface Conflict so LockCoordinator/RetryPolicy can react.

func (n *NativeVCS) Push(_ context.Context, path, remote, branch string) error {
	local := newStore(path)
	if remote == "" {
		configured, err := local.readDefaultRemote()
		if err != nil {
			return errs.Wrap(errs.Filesystem, "read default remote", err)
		}
		if configured == "" {
			return errs.New(errs.Internal, "no remote given and no default remote configured; call SetDefaultRemote first")
		}
		remote = configured
	}
	if branch == "" {
		var err error
		branch, err = n.CurrentBranch(context.Background(), path)
		if err != nil {
			return err
		}
	}
	remoteStore := newStore(remote)
	if !remoteStore.exists() {
		if err := remoteStore.init(); err != nil {
			return errs.Wrap(errs.Filesystem, "initialize remote", err)
		}
	}

	localHead := ""
	if local.refExists(branch) {
		var err error
		localHead, err = local.readRef(branch)
		if err != nil {
			return errs.Wrap(errs.Filesystem, "read local ref", err)
		}
	}

	if remoteStore.refExists(branch) {
		remoteHead, err := remoteStore.readRef(branch)
		if err != nil {
			return errs.Wrap(errs.Filesystem, "read remote ref", err)
		}
		if remoteHead != localHead {
			isAncestor, err := n.isAncestor(local, remoteHead, localHead)
			if err != nil {
				return err
			}
			if !isAncestor {
				return errs.New(errs.Conflict, "non-fast-forward: remote has diverged")
			}
		}
	}

	if err := n.copyCommitChain(local, remoteStore, localHead); err != nil {
		return err
	}
	if err := remoteStore.writeRef(branch, localHead); err != nil {
		return errs.Wrap(errs.Filesystem, "update remote ref", err)
	}
	return nil
}

func (n *NativeVCS) Pull(ctx context.Context, path string) error {
	if err := n.Fetch(ctx, path, ""); err != nil {
		return err
	}
	return nil
}

func (n *NativeVCS) Fetch(_ context.Context, path, remote string) error {
	local := newStore(path)
	if remote == "" {
		configured, err := local.readDefaultRemote()
		if err != nil {
			return errs.Wrap(errs.Filesystem, "read default remote", err)
		}
		if configured == "" {
			return nil // no remote configured: nothing to fetch, treated as a no-op
		}
		remote = configured
	}
	remoteStore := newStore(remote)
	if !remoteStore.exists() {
		return errs.New(errs.NotFound, "remote not found: "+remote)
	}
	names, err := remoteStore.listRefs()
	if err != nil {
		return errs.Wrap(errs.Filesystem, "list remote refs", err)
	}
	for _, name := range names {
		head, err := remoteStore.readRef(name)
		if err != nil {
			return errs.Wrap(errs.Filesystem, "read remote ref "+name, err)
		}
		if err := n.copyCommitChain(remoteStore, local, head); err != nil {
			return err
		}
		if err := local.writeRef(name, head); err != nil {
			return errs.Wrap(errs.Filesystem, "update local ref "+name, err)
		}
	}
	return nil
}

// copyCommitChain copies commit id and all its ancestors (and the blobs
// they reference) from src to dst, skipping any dst already has.
func (n *NativeVCS) copyCommitChain(src, dst *store, id string) error {
	for id != "" {
		if _, err := os.Stat(dst.controlPath("commits", id)); err == nil {
			return nil // dst already has this commit and its ancestors
		}
		c, err := src.readCommit(id)
		if err != nil {
			return errs.Wrap(errs.Filesystem, "read commit "+id, err)
		}
		for _, hash := range c.Snapshot {
			content, err := src.readBlob(hash)
			if err != nil {
				return errs.Wrap(errs.Filesystem, "read blob "+hash, err)
			}
			if _, err := dst.writeBlob(content); err != nil {
				return errs.Wrap(errs.Filesystem, "write blob "+hash, err)
			}
		}
		if err := dst.writeCommit(c); err != nil {
			return errs.Wrap(errs.Filesystem, "write commit "+id, err)
		}
		if len(c.Parents) == 0 {
			return nil
		}
		id = c.Parents[0]
	}
	return nil
}

// SquashBefore implements HistoryPruner. It walks the current branch's
// first-parent chain back to boundaryCommitID, then rewrites
// boundaryCommitID's parent list to point at one freshly synthesized
// "checkpoint base" commit whose snapshot equals boundaryCommitID's own
// parent's snapshot (or an empty snapshot, if boundaryCommitID was the
// root). Everything at or after boundaryCommitID is untouched, so tree
// state at every kept commit is preserved exactly.
func (n *NativeVCS) SquashBefore(_ context.Context, path, boundaryCommitID, message string) error {
	s := newStore(path)
	boundary, err := s.readCommit(boundaryCommitID)
	if err != nil {
		return errs.Wrap(errs.NotFound, "boundary commit not found: "+boundaryCommitID, err)
	}
	if len(boundary.Parents) == 0 {
		return nil // already the root; nothing older to squash
	}

	oldParent, err := s.readCommit(boundary.Parents[0])
	if err != nil {
		return errs.Wrap(errs.Filesystem, "read boundary parent", err)
	}

	checkpoint := objectCommit{
		ID:       strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Message:  message,
		Parents:  nil,
		Author:   "native",
		At:       time.Now().UTC(),
		Snapshot: oldParent.Snapshot,
	}
	if err := s.writeCommit(checkpoint); err != nil {
		return errs.Wrap(errs.Filesystem, "write checkpoint commit", err)
	}

	boundary.Parents = []string{checkpoint.ID}
	if err := s.writeCommit(boundary); err != nil {
		return errs.Wrap(errs.Filesystem, "rewrite boundary commit", err)
	}
	return nil
}

// MergeSnapshot implements BranchMerger. It records a new commit on target
// whose snapshot equals source's current head snapshot, parented on
// target's previous head, and leaves HEAD on target.
func (n *NativeVCS) MergeSnapshot(_ context.Context, path, source, target, message string) (string, error) {
	s := newStore(path)
	if !s.refExists(source) {
		return "", errs.New(errs.NotFound, "no such branch: "+source)
	}
	sourceHeadID, err := s.readRef(source)
	if err != nil {
		return "", errs.Wrap(errs.Filesystem, "read source ref", err)
	}
	sourceHead, err := s.readCommit(sourceHeadID)
	if err != nil {
		return "", errs.Wrap(errs.Filesystem, "read source head commit", err)
	}

	var parents []string
	if s.refExists(target) {
		targetHeadID, err := s.readRef(target)
		if err != nil {
			return "", errs.Wrap(errs.Filesystem, "read target ref", err)
		}
		parents = []string{targetHeadID}
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	c := objectCommit{
		ID:       id,
		Message:  message,
		Parents:  parents,
		Author:   "native",
		At:       time.Now().UTC(),
		Snapshot: sourceHead.Snapshot,
	}
	if err := s.writeCommit(c); err != nil {
		return "", errs.Wrap(errs.Filesystem, "write merge commit", err)
	}
	if err := s.writeRef(target, id); err != nil {
		return "", errs.Wrap(errs.Filesystem, "update target ref", err)
	}
	if err := s.writeHead(target); err != nil {
		return "", errs.Wrap(errs.Filesystem, "update HEAD", err)
	}

	for relPath, hash := range sourceHead.Snapshot {
		content, err := s.readBlob(hash)
		if err != nil {
			return "", errs.Wrap(errs.Filesystem, "read blob for "+relPath, err)
		}
		full := filepath.Join(path, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", errs.Wrap(errs.Filesystem, "create parent dir", err)
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			return "", errs.Wrap(errs.Filesystem, "write file", err)
		}
	}
	if err := s.clearStaging(); err != nil && !os.IsNotExist(err) {
		return "", errs.Wrap(errs.Filesystem, "clear staging state", err)
	}
	return id, nil
}

// isAncestor reports whether ancestor is reachable by walking first-parent
// links from descendant within s.
func (n *NativeVCS) isAncestor(s *store, ancestor, descendant string) (bool, error) {
	if ancestor == "" {
		return true, nil
	}
	id := descendant
	for id != "" {
		if id == ancestor {
			return true, nil
		}
		c, err := s.readCommit(id)
		if err != nil {
			return false, errs.Wrap(errs.Filesystem, "read commit "+id, err)
		}
		if len(c.Parents) == 0 {
			return false, nil
		}
		id = c.Parents[0]
	}
	return false, nil
}
