package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oxlock/oxlock/internal/draft"
)

func (g *globalOptions) draftWorkflow() (*draft.Workflow, error) {
	backend, err := g.backend()
	if err != nil {
		return nil, err
	}
	cfg := draft.Config{
		BranchName: g.cfg.Draft.BranchName,
		MaxCommits: g.cfg.Draft.MaxCommits,
	}
	return draft.New(backend, g.repoPath, cfg).WithLogger(g.logger), nil
}

func newDraftCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Manage the background auto-commit draft branch",
	}
	cmd.AddCommand(
		newDraftInitCommand(opts),
		newDraftCommitCommand(opts),
		newDraftStatusCommand(opts),
		newDraftMergeCommand(opts),
		newDraftResetCommand(opts),
	)
	return cmd
}

func newDraftInitCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the draft branch if absent and switch to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := opts.draftWorkflow()
			if err != nil {
				return err
			}
			return w.Initialize(cmd.Context())
		},
	}
}

func newDraftCommitCommand(opts *globalOptions) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Stage and commit every change onto the draft branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := opts.draftWorkflow()
			if err != nil {
				return err
			}
			id, err := w.AutoCommit(cmd.Context(), message)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&message, "message", "draft checkpoint", "commit message")
	return cmd
}

func newDraftStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the draft branch's current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := opts.draftWorkflow()
			if err != nil {
				return err
			}
			stats, err := w.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "branch: %s (draft: %s)\non draft: %v\ncommits: %d/%d\n",
				stats.CurrentBranch, stats.DraftBranch, stats.IsOnDraft, stats.CommitCount, stats.MaxCommits)
			return nil
		},
	}
}

func newDraftMergeCommand(opts *globalOptions) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Squash the draft branch onto main as one commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := opts.draftWorkflow()
			if err != nil {
				return err
			}
			id, err := w.MergeToMain(cmd.Context(), message)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&message, "message", "merge draft", "message for the consolidated commit")
	return cmd
}

func newDraftResetCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard draft history and recreate it from main's head",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := opts.draftWorkflow()
			if err != nil {
				return err
			}
			return w.ResetToMain(cmd.Context())
		},
	}
}
