package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oxlock/oxlock/internal/errs"
)

// SubprocessVCS wraps an external VCS CLI, executing commands via
// os/exec.CommandContext and parsing their output. Grounded directly in
// oxen_subprocess.rs: full-output capture (no streaming parse), key-prefix
// line parsing for log/status/branch output, hex-token scanning for
// commit-id extraction.
type SubprocessVCS struct {
	binary  string
	verbose bool
	logger  *zap.SugaredLogger
}

// NewSubprocessVCS builds a wrapper around the named external CLI
// (defaults to "oxen" in PATH when binary is empty).
func NewSubprocessVCS(binary string) *SubprocessVCS {
	if binary == "" {
		binary = "oxen"
	}
	return &SubprocessVCS{binary: binary, logger: zap.NewNop().Sugar()}
}

// WithLogger attaches a structured logger.
func (s *SubprocessVCS) WithLogger(logger *zap.SugaredLogger) *SubprocessVCS {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithVerbose enables verbose command-echo logging.
func (s *SubprocessVCS) WithVerbose(v bool) *SubprocessVCS {
	s.verbose = v
	return s
}

func (s *SubprocessVCS) Type() BackendType { return SubprocessBackend }

// run executes the external CLI with args in cwd, capturing stdout/stderr
// in full before classification — no streaming parse, per spec §9.
func (s *SubprocessVCS) run(ctx context.Context, cwd string, args ...string) (string, error) {
	if s.verbose {
		s.logger.Debugw("running external VCS command", "binary", s.binary, "args", args)
	}
	cmd := exec.CommandContext(ctx, s.binary, args...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", errs.Wrap(errs.Internal, "command cancelled", ctx.Err())
	}
	if err != nil {
		return "", classifyCommandError(args, stderr.String(), err)
	}
	return stdout.String(), nil
}

// classifyCommandError maps a failed subprocess invocation to a §7 kind by
// inspecting stderr. This is deliberately robust to minor format drift:
// it locates phrases by substring, never by column offset.
func classifyCommandError(args []string, stderr string, cause error) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "already exists"):
		return errs.Wrap(errs.AlreadyExists, describeCommand(args), cause)
	case strings.Contains(lower, "not found"), strings.Contains(lower, "no such"):
		return errs.Wrap(errs.NotFound, describeCommand(args), cause)
	case strings.Contains(lower, "non-fast-forward"), strings.Contains(lower, "conflict"), strings.Contains(lower, "diverged"):
		return errs.Wrap(errs.Conflict, describeCommand(args), cause)
	case strings.Contains(lower, "authentication"), strings.Contains(lower, "unauthorized"), strings.Contains(lower, "permission denied"):
		return errs.Wrap(errs.NotAuthorized, describeCommand(args), cause)
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"), strings.Contains(lower, "network"),
		strings.Contains(lower, "broken pipe"), strings.Contains(lower, "no route to host"):
		return errs.Wrap(errs.Network, describeCommand(args), cause)
	case strings.Contains(lower, "too many requests"):
		return errs.Wrap(errs.RateLimit, describeCommand(args), cause)
	case strings.Contains(lower, "service unavailable"), strings.Contains(lower, "gateway timeout"), strings.Contains(lower, "internal server error"):
		return errs.Wrap(errs.ServerError, describeCommand(args), cause)
	default:
		return errs.Wrap(errs.Protocol, describeCommand(args)+": "+strings.TrimSpace(stderr), cause)
	}
}

func describeCommand(args []string) string {
	return "command failed: " + strings.Join(args, " ")
}

func (s *SubprocessVCS) Init(ctx context.Context, path string) error {
	_, err := s.run(ctx, path, "init")
	if err != nil {
		return err
	}
	s.logger.Infow("initialized repository", "path", path)
	return nil
}

func (s *SubprocessVCS) Clone(ctx context.Context, url, dest string) error {
	_, err := s.run(ctx, "", "clone", url, dest)
	return err
}

func (s *SubprocessVCS) Add(ctx context.Context, path string, files []string) error {
	if len(files) == 0 {
		return errs.New(errs.Internal, "no files specified to add")
	}
	args := append([]string{"add"}, files...)
	_, err := s.run(ctx, path, args...)
	return err
}

func (s *SubprocessVCS) AddAll(ctx context.Context, path string) error {
	_, err := s.run(ctx, path, "add", ".")
	return err
}

func (s *SubprocessVCS) Commit(ctx context.Context, path, message string) (string, error) {
	if message == "" {
		return "", errs.New(errs.Internal, "commit message must not be empty")
	}
	out, err := s.run(ctx, path, "commit", "-m", message)
	if err != nil {
		return "", err
	}
	id := parseCommitID(out)
	if id == "" {
		return "", errs.New(errs.Protocol, "could not parse commit id from output")
	}
	return id, nil
}

// parseCommitID extracts a hex token 7-40 chars long from free-form
// command output, matching whatever phrasing the CLI uses around it.
func parseCommitID(output string) string {
	for _, line := range strings.Split(output, "\n") {
		for _, word := range strings.Fields(line) {
			cleaned := strings.Trim(word, ".,:;[]()")
			if len(cleaned) >= 7 && len(cleaned) <= 40 && isHex(cleaned) {
				return cleaned
			}
		}
	}
	return ""
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

func (s *SubprocessVCS) Log(ctx context.Context, path string, limit int) ([]Commit, error) {
	args := []string{"log"}
	if limit > 0 {
		args = append(args, fmt.Sprintf("-n=%d", limit))
	}
	out, err := s.run(ctx, path, args...)
	if err != nil {
		return nil, err
	}
	return parseLog(out), nil
}

// parseLog locates commit boundaries by the "commit " key prefix, robust
// to everything else drifting, per spec §4.1/§9.
func parseLog(output string) []Commit {
	commits := []Commit{}
	var current *Commit
	var message []string

	flush := func() {
		if current != nil {
			current.Message = strings.TrimSpace(strings.Join(message, "\n"))
			commits = append(commits, *current)
		}
		message = nil
	}

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "commit "):
			flush()
			id := strings.TrimSpace(strings.TrimPrefix(trimmed, "commit "))
			current = &Commit{ID: id}
		case strings.HasPrefix(trimmed, "Author:"):
			if current != nil {
				current.Author = strings.TrimSpace(strings.TrimPrefix(trimmed, "Author:"))
			}
		case strings.HasPrefix(trimmed, "Date:"):
			// Parsed on a best-effort basis; format varies by CLI version.
			raw := strings.TrimSpace(strings.TrimPrefix(trimmed, "Date:"))
			if t, err := time.Parse(time.RFC3339, raw); err == nil && current != nil {
				current.At = t
			}
		case trimmed != "":
			message = append(message, trimmed)
		}
	}
	flush()
	return commits
}

func (s *SubprocessVCS) Status(ctx context.Context, path string) (Status, error) {
	out, err := s.run(ctx, path, "status")
	if err != nil {
		return Status{}, err
	}
	return parseStatus(out), nil
}

func parseStatus(output string) Status {
	var st Status
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "M ") || strings.HasPrefix(trimmed, "modified:"):
			st.Modified = append(st.Modified, extractStatusPath(trimmed))
		case strings.HasPrefix(trimmed, "? ") || strings.HasPrefix(trimmed, "untracked:"):
			st.Untracked = append(st.Untracked, extractStatusPath(trimmed))
		case strings.HasPrefix(trimmed, "A ") || strings.HasPrefix(trimmed, "new file:"):
			st.Staged = append(st.Staged, extractStatusPath(trimmed))
		}
	}
	return st
}

func extractStatusPath(line string) string {
	idx := strings.IndexAny(line, " :")
	if idx < 0 {
		return strings.TrimSpace(line)
	}
	return strings.TrimSpace(line[idx+1:])
}

func (s *SubprocessVCS) Checkout(ctx context.Context, path, target string) error {
	_, err := s.run(ctx, path, "checkout", target)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "ambiguous") {
		return errs.WrapKeepKind("ambiguous checkout target", errs.Wrap(errs.AmbiguousReference, target, err))
	}
	return err
}

func (s *SubprocessVCS) CreateBranch(ctx context.Context, path, name string) error {
	_, err := s.run(ctx, path, "checkout", "-b", name)
	return err
}

func (s *SubprocessVCS) ListBranches(ctx context.Context, path string) ([]Branch, error) {
	out, err := s.run(ctx, path, "branch", "--list")
	if err != nil {
		return nil, err
	}
	var branches []Branch
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		isCurrent := strings.HasPrefix(trimmed, "*")
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, "*"))
		branches = append(branches, Branch{Name: name, IsCurrent: isCurrent})
	}
	return branches, nil
}

func (s *SubprocessVCS) CurrentBranch(ctx context.Context, path string) (string, error) {
	out, err := s.run(ctx, path, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (s *SubprocessVCS) DeleteBranch(ctx context.Context, path, name string) error {
	if name == mainBranch || name == masterBranch {
		return errs.New(errs.Protected, "cannot delete protected branch: "+name)
	}
	current, err := s.CurrentBranch(ctx, path)
	if err == nil && current == name {
		return errs.New(errs.Protected, "cannot delete the current branch: "+name)
	}
	_, err = s.run(ctx, path, "branch", "-D", name)
	return err
}

func (s *SubprocessVCS) Push(ctx context.Context, path, remote, branch string) error {
	args := []string{"push"}
	if remote != "" {
		args = append(args, remote)
	}
	if branch != "" {
		args = append(args, branch)
	}
	_, err := s.run(ctx, path, args...)
	return err
}

func (s *SubprocessVCS) Pull(ctx context.Context, path string) error {
	_, err := s.run(ctx, path, "pull")
	return err
}

// MergeSnapshot implements BranchMerger by delegating to the external
// CLI's own merge command: checkout target, then merge source into it.
// Unlike NativeVCS's snapshot-copy approach, this relies on the CLI's
// merge semantics and may itself produce a merge commit with two parents
// rather than a single consolidated one; callers that need an exact
// single-parent squash should prefer the native backend for this step.
func (s *SubprocessVCS) MergeSnapshot(ctx context.Context, path, source, target, message string) (string, error) {
	if err := s.Checkout(ctx, path, target); err != nil {
		return "", err
	}
	out, err := s.run(ctx, path, "merge", source, "-m", message)
	if err != nil {
		return "", err
	}
	id := parseCommitID(out)
	if id == "" {
		head, err := s.run(ctx, path, "log", "-n=1")
		if err != nil {
			return "", err
		}
		id = parseCommitID(head)
	}
	if id == "" {
		return "", errs.New(errs.Protocol, "could not parse merge commit id from output")
	}
	return id, nil
}

func (s *SubprocessVCS) Fetch(ctx context.Context, path, remote string) error {
	args := []string{"fetch"}
	if remote != "" {
		args = append(args, remote)
	}
	_, err := s.run(ctx, path, args...)
	return err
}
