package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oxlock/oxlock/internal/lock"
	"github.com/oxlock/oxlock/internal/queue"
	"github.com/oxlock/oxlock/internal/resilience"
)

func (g *globalOptions) openQueue() (*queue.Queue, error) {
	dir := g.cfg.Queue.Dir
	if dir == "" {
		dir = g.repoPath + "/.oxlock-queue"
	}
	return queue.New(dir)
}

func (g *globalOptions) queueExecutor() (*queue.ComponentExecutor, error) {
	backend, err := g.backend()
	if err != nil {
		return nil, err
	}
	return &queue.ComponentExecutor{
		Backend: backend,
		Coordinators: func(repoPath string) *lock.Coordinator {
			return lock.New(backend, repoPath).WithLogger(g.logger)
		},
	}, nil
}

func newQueueCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay the durable offline operation queue",
	}
	cmd.AddCommand(
		newQueueStatusCommand(opts),
		newQueueDrainCommand(opts),
		newQueueClearCommand(opts),
	)
	return cmd
}

func newQueueStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.openQueue()
			if err != nil {
				return err
			}
			stats, err := q.StatsOf()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total: %d  pending: %d  completed: %d  failed: %d\n",
				stats.Total, stats.Pending, stats.Completed, stats.Failed)
			return nil
		},
	}
}

func newQueueDrainCommand(opts *globalOptions) *cobra.Command {
	var probeAddr string
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Execute every pending queue entry once, in priority then FIFO order",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.openQueue()
			if err != nil {
				return err
			}
			if probeAddr != "" {
				q = q.WithConnectivityProbe(resilience.NewConnectivityProbe(probeAddr))
			}
			q = q.WithLogger(opts.logger)
			exec, err := opts.queueExecutor()
			if err != nil {
				return err
			}
			report, err := q.Drain(cmd.Context(), exec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "succeeded: %d  failed: %d\n", len(report.Succeeded), len(report.Failed))
			for _, f := range report.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s): %v\n", f.Entry.ID, f.Entry.Operation, f.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&probeAddr, "probe-addr", "", "host:port to probe for connectivity before draining (skipped if empty)")
	return cmd
}

func newQueueClearCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove every completed entry from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.openQueue()
			if err != nil {
				return err
			}
			return q.ClearCompleted()
		},
	}
}
