package vcs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxlock/oxlock/internal/errs"
)

// These tests exercise SubprocessVCS's output-parsing and error-
// classification helpers directly. The methods that shell out via
// os/exec.CommandContext are not covered here: doing so would require a
// real external binary on PATH, which this parsing logic is deliberately
// written to be independent of.

func TestParseCommitID(t *testing.T) {
	require.Equal(t, "a1b2c3d", parseCommitID("Created commit a1b2c3d on branch main"))
	require.Equal(t, "", parseCommitID("no hex token of sufficient length here"))
	require.Equal(t, "deadbeef", parseCommitID("commit: [deadbeef].\nsome other text"))
}

func TestIsHex(t *testing.T) {
	require.True(t, isHex("deadBEEF0123"))
	require.False(t, isHex("not-hex"))
	require.False(t, isHex(""))
}

func TestParseLogProducesNewestFirstWithMessages(t *testing.T) {
	output := `commit abc123
Author: alice
Date: 2024-01-02T15:04:05Z
    second commit message

commit def456
Author: bob
    first commit message
`
	commits := parseLog(output)
	require.Len(t, commits, 2)
	require.Equal(t, "abc123", commits[0].ID)
	require.Equal(t, "alice", commits[0].Author)
	require.Equal(t, "second commit message", commits[0].Message)
	require.Equal(t, "def456", commits[1].ID)
	require.Equal(t, "first commit message", commits[1].Message)
}

func TestParseStatusClassifiesLines(t *testing.T) {
	output := `M  modified.bin
A  staged.bin
?  untracked.bin
`
	st := parseStatus(output)
	require.Equal(t, []string{"modified.bin"}, st.Modified)
	require.Equal(t, []string{"staged.bin"}, st.Staged)
	require.Equal(t, []string{"untracked.bin"}, st.Untracked)
}

func TestExtractStatusPath(t *testing.T) {
	require.Equal(t, "file.bin", extractStatusPath("M file.bin"))
	require.Equal(t, "file.bin", extractStatusPath("modified: file.bin"))
	require.Equal(t, "bare.bin", extractStatusPath("bare.bin"))
}

func TestClassifyCommandErrorMapsStderrToKind(t *testing.T) {
	cases := []struct {
		stderr string
		kind   errs.Kind
	}{
		{"branch already exists", errs.AlreadyExists},
		{"remote not found", errs.NotFound},
		{"non-fast-forward update rejected", errs.Conflict},
		{"authentication failed", errs.NotAuthorized},
		{"connection refused", errs.Network},
		{"too many requests", errs.RateLimit},
		{"internal server error", errs.ServerError},
		{"some unrecognized failure", errs.Protocol},
	}
	for _, c := range cases {
		err := classifyCommandError([]string{"push"}, c.stderr, errs.New(errs.Internal, "boom"))
		require.True(t, errs.Is(err, c.kind), "stderr %q should classify as %v", c.stderr, c.kind)
	}
}
