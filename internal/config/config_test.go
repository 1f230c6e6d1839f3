package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxlock/oxlock/internal/errs"
	"github.com/oxlock/oxlock/internal/vcs"
)

func TestDefaultsAreComplete(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, "draft", cfg.Draft.BranchName)
	require.Equal(t, 100, cfg.Draft.MaxCommits)
	require.Equal(t, 4, cfg.Retry.MaxAttempts)
	require.Equal(t, 2000, cfg.Retry.BaseDelayMs)
	require.Equal(t, 5, cfg.Breaker.FailureThreshold)
	require.Equal(t, int64(100*1024*1024), cfg.Upload.ChunkSizeBytes)
}

func TestRepoConfigBackendTypeMapping(t *testing.T) {
	require.Equal(t, vcs.SubprocessBackend, RepoConfig{Backend: "subprocess"}.BackendType())
	require.Equal(t, vcs.NativeBackend, RepoConfig{Backend: "native"}.BackendType())
	require.Equal(t, vcs.BackendType(""), RepoConfig{Backend: "bogus"}.BackendType())
	require.Equal(t, vcs.BackendType(""), RepoConfig{}.BackendType())
}

func TestRetryAndBreakerDurationConversions(t *testing.T) {
	r := RetryConfig{BaseDelayMs: 500, MaxDelayMs: 8000}
	require.Equal(t, 500_000_000, int(r.BaseDelay()))
	require.Equal(t, 8_000_000_000, int(r.MaxDelay()))

	b := BreakerConfig{OpenTimeoutSec: 30}
	require.Equal(t, 30_000_000_000, int(b.OpenTimeout()))
}

func TestLoadFillsDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oxlock.toml")
	contents := `
[repo]
path = "/projects/session"
backend = "native"

[draft]
max_commits = 25
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/projects/session", cfg.Repo.Path)
	require.Equal(t, vcs.NativeBackend, cfg.Repo.BackendType())
	require.Equal(t, 25, cfg.Draft.MaxCommits)
	require.Equal(t, "draft", cfg.Draft.BranchName, "omitted field keeps the default")
	require.Equal(t, 4, cfg.Retry.MaxAttempts, "entire [retry] table omitted, default applies")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.True(t, errs.Is(err, errs.Filesystem))
}

func TestLoadToleratesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oxlock.toml")
	contents := `
[repo]
path = "/x"
future_field = "ignored"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/x", cfg.Repo.Path)
}
