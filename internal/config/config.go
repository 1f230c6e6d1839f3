// Package config loads the adapter-level TOML configuration: repository
// location, backend selection, draft and retry tuning, the queue
// directory, and upload chunking sizes. None of this is read by the core components themselves —
// per spec §9 ("no process-wide singleton in the core"), every core
// constructor takes its parameters explicitly; this package exists only
// so a CLI or service adapter has one place to declare them.
//
// Uses github.com/BurntSushi/toml, declared in the teacher's own go.mod
// but previously unwired to any concrete consumer there.
package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/oxlock/oxlock/internal/errs"
	"github.com/oxlock/oxlock/internal/vcs"
)

// Config is the full adapter-level configuration tree.
type Config struct {
	Repo    RepoConfig    `toml:"repo"`
	Draft   DraftConfig   `toml:"draft"`
	Retry   RetryConfig   `toml:"retry"`
	Breaker BreakerConfig `toml:"circuit_breaker"`
	Queue   QueueConfig   `toml:"queue"`
	Upload  UploadConfig  `toml:"upload"`
}

// RepoConfig identifies the repository and how to reach it.
type RepoConfig struct {
	Path           string            `toml:"path"`
	Backend        string            `toml:"backend"` // "subprocess" or "native"
	ExternalBinary string            `toml:"external_binary"`
	Remotes        map[string]string `toml:"remotes"`
}

// BackendType maps the configured string onto vcs.BackendType. An empty
// or unrecognized value returns "" so callers fall back to
// vcs.New's auto-detection.
func (r RepoConfig) BackendType() vcs.BackendType {
	switch r.Backend {
	case string(vcs.SubprocessBackend):
		return vcs.SubprocessBackend
	case string(vcs.NativeBackend):
		return vcs.NativeBackend
	default:
		return ""
	}
}

// DraftConfig tunes the draft-branch workflow.
type DraftConfig struct {
	BranchName string `toml:"branch_name"`
	MaxCommits int    `toml:"max_commits"`
}

// RetryConfig tunes RetryPolicy construction.
type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	BaseDelayMs int `toml:"base_delay_ms"`
	MaxDelayMs  int `toml:"max_delay_ms"`
}

// BaseDelay and MaxDelay convert the millisecond fields to time.Duration.
func (r RetryConfig) BaseDelay() time.Duration { return time.Duration(r.BaseDelayMs) * time.Millisecond }
func (r RetryConfig) MaxDelay() time.Duration  { return time.Duration(r.MaxDelayMs) * time.Millisecond }

// BreakerConfig tunes CircuitBreaker construction.
type BreakerConfig struct {
	FailureThreshold int `toml:"failure_threshold"`
	SuccessThreshold int `toml:"success_threshold"`
	OpenTimeoutSec   int `toml:"open_timeout_seconds"`
}

// OpenTimeout converts OpenTimeoutSec to a time.Duration.
func (b BreakerConfig) OpenTimeout() time.Duration {
	return time.Duration(b.OpenTimeoutSec) * time.Second
}

// QueueConfig locates the durable operation queue.
type QueueConfig struct {
	Dir string `toml:"dir"`
}

// UploadConfig tunes ChunkedUploader construction.
type UploadConfig struct {
	ChunkSizeBytes int64 `toml:"chunk_size_bytes"`
	ThresholdBytes int64 `toml:"threshold_bytes"`
}

// Defaults returns the documented default configuration.
func Defaults() Config {
	return Config{
		Draft: DraftConfig{BranchName: "draft", MaxCommits: 100},
		Retry: RetryConfig{MaxAttempts: 4, BaseDelayMs: 2000, MaxDelayMs: 16000},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			OpenTimeoutSec:   60,
		},
		Upload: UploadConfig{
			ChunkSizeBytes: 100 * 1024 * 1024,
			ThresholdBytes: 50 * 1024 * 1024,
		},
	}
}

// Load reads and decodes the TOML file at path, filling any field the
// file omits with Defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errs.Wrap(errs.Filesystem, "load config file", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		// Unknown keys are tolerated (forward-compatible config files);
		// nothing to do here beyond having called Undecoded for the
		// side-effect-free check.
		_ = undecoded
	}
	return cfg, nil
}
