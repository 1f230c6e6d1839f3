package main

import (
	"github.com/spf13/cobra"

	"github.com/oxlock/oxlock/internal/config"
	"github.com/oxlock/oxlock/internal/logging"
	"github.com/oxlock/oxlock/internal/vcs"

	"go.uber.org/zap"
)

// globalOptions mirrors restic's GlobalOptions: one struct threaded into
// every subcommand constructor, populated from persistent flags rather
// than package-level state.
type globalOptions struct {
	repoPath   string
	configPath string
	holderID   string
	devLog     bool

	cfg    config.Config
	logger *zap.SugaredLogger
}

// backend constructs the VCS backend for the current invocation,
// honoring an explicit config.Repo.Backend override before falling back
// to vcs.New's directory auto-detection.
func (g *globalOptions) backend() (vcs.Backend, error) {
	if bt := g.cfg.Repo.BackendType(); bt != "" {
		return vcs.NewFromConfig(g.repoPath, bt, g.cfg.Repo.ExternalBinary)
	}
	return vcs.New(g.repoPath, g.cfg.Repo.ExternalBinary)
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:               "oxlock",
		Short:             "Collaborative lock and version control for binary project files",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Defaults()
			if opts.configPath != "" {
				loaded, err := config.Load(opts.configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if opts.repoPath == "" {
				opts.repoPath = cfg.Repo.Path
			}
			if opts.repoPath == "" {
				opts.repoPath = "."
			}
			opts.cfg = cfg

			logger, err := logging.New(opts.devLog)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.repoPath, "repo", "", "repository path (default: config's repo.path, or the current directory)")
	flags.StringVar(&opts.configPath, "config", "", "path to an oxlock.toml configuration file")
	flags.StringVar(&opts.holderID, "holder", "", "identity used for lock acquire/renew/release (default: $USER@hostname)")
	flags.BoolVar(&opts.devLog, "dev-log", false, "use human-readable development logging instead of JSON")

	cmd.AddCommand(
		newLockCommand(opts),
		newDraftCommand(opts),
		newQueueCommand(opts),
		newUploadCommand(opts),
		newWatchCommand(opts),
	)
	return cmd
}
