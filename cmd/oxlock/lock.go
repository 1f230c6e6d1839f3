package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxlock/oxlock/internal/lock"
)

func (g *globalOptions) holder() string {
	if g.holderID != "" {
		return g.holderID
	}
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	if user == "" {
		user = "unknown"
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return user + "@" + host
}

func (g *globalOptions) lockCoordinator() (*lock.Coordinator, error) {
	backend, err := g.backend()
	if err != nil {
		return nil, err
	}
	return lock.New(backend, g.repoPath).WithLogger(g.logger), nil
}

func newLockCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Acquire, renew, release, or inspect the repository's edit lock",
	}
	cmd.AddCommand(
		newLockAcquireCommand(opts),
		newLockRenewCommand(opts),
		newLockReleaseCommand(opts),
		newLockStatusCommand(opts),
		newLockBreakCommand(opts),
	)
	return cmd
}

func newLockAcquireCommand(opts *globalOptions) *cobra.Command {
	var timeoutHours int
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Claim the exclusive edit lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := opts.lockCoordinator()
			if err != nil {
				return err
			}
			l, err := coord.Acquire(cmd.Context(), opts.holder(), time.Duration(timeoutHours)*time.Hour)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lock acquired: %s (expires %s)\n", l.LockID, l.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().IntVar(&timeoutHours, "timeout-hours", 4, "lock lease duration in hours")
	return cmd
}

func newLockRenewCommand(opts *globalOptions) *cobra.Command {
	var lockID string
	var additionalHours int
	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Extend an active lease",
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := opts.lockCoordinator()
			if err != nil {
				return err
			}
			l, err := coord.Renew(cmd.Context(), lockID, opts.holder(), time.Duration(additionalHours)*time.Hour)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lock renewed: %s (expires %s)\n", l.LockID, l.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&lockID, "lock-id", "", "id of the lock to renew (required)")
	cmd.Flags().IntVar(&additionalHours, "additional-hours", 4, "hours to extend the lease by")
	cmd.MarkFlagRequired("lock-id")
	return cmd
}

func newLockReleaseCommand(opts *globalOptions) *cobra.Command {
	var lockID string
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Give up the lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := opts.lockCoordinator()
			if err != nil {
				return err
			}
			if err := coord.Release(cmd.Context(), lockID, opts.holder()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "lock released")
			return nil
		},
	}
	cmd.Flags().StringVar(&lockID, "lock-id", "", "id of the lock to release (required)")
	cmd.MarkFlagRequired("lock-id")
	return cmd
}

func newLockStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current lock holder, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := opts.lockCoordinator()
			if err != nil {
				return err
			}
			l, err := coord.Status(cmd.Context())
			if err != nil {
				return err
			}
			if l == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no active lock")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "held by %s, expires %s (lock %s)\n", l.HolderID, l.ExpiresAt.Format(time.RFC3339), l.LockID)
			return nil
		},
	}
}

func newLockBreakCommand(opts *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "break",
		Short: "Forcibly clear the lock regardless of holder",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to break the lock without --yes")
			}
			coord, err := opts.lockCoordinator()
			if err != nil {
				return err
			}
			if err := coord.ForceBreak(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "lock force-broken")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the forced break")
	return cmd
}
