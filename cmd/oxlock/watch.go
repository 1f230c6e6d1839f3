package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/oxlock/oxlock/internal/draft"
	"github.com/oxlock/oxlock/internal/lock"
	"github.com/oxlock/oxlock/internal/queue"
)

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	watchLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	watchOkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	watchWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func newWatchCommand(opts *globalOptions) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of lock, draft, and queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newWatchModel(opts, interval)
			if err != nil {
				return err
			}
			_, err = tea.NewProgram(m).Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}

// watchSnapshot is one poll's worth of dashboard state.
type watchSnapshot struct {
	lockStatus  *lock.Lock
	draftStats  draft.Stats
	queueStats  queue.Stats
	err         error
	asOf        time.Time
}

type watchTickMsg time.Time
type watchDataMsg watchSnapshot

type watchModel struct {
	opts     *globalOptions
	coord    *lock.Coordinator
	workflow *draft.Workflow
	q        *queue.Queue
	interval time.Duration
	spin     spinner.Model
	latest   watchSnapshot
	loading  bool
}

func newWatchModel(opts *globalOptions, interval time.Duration) (*watchModel, error) {
	coord, err := opts.lockCoordinator()
	if err != nil {
		return nil, err
	}
	workflow, err := opts.draftWorkflow()
	if err != nil {
		return nil, err
	}
	q, err := opts.openQueue()
	if err != nil {
		return nil, err
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &watchModel{
		opts:     opts,
		coord:    coord,
		workflow: workflow,
		q:        q,
		interval: interval,
		spin:     sp,
		loading:  true,
	}, nil
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.poll())
}

func (m *watchModel) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		snap := watchSnapshot{asOf: time.Now()}
		snap.lockStatus, snap.err = m.coord.Status(ctx)
		if snap.err == nil {
			snap.draftStats, snap.err = m.workflow.GetStats(ctx)
		}
		if snap.err == nil {
			snap.queueStats, snap.err = m.q.StatsOf()
		}
		return watchDataMsg(snap)
	}
}

func (m *watchModel) tickAfterInterval() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return watchTickMsg(t) })
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil
	case watchTickMsg:
		m.loading = true
		return m, m.poll()
	case watchDataMsg:
		m.latest = watchSnapshot(msg)
		m.loading = false
		return m, m.tickAfterInterval()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *watchModel) View() string {
	header := watchTitleStyle.Render("oxlock watch") + "  " + watchLabelStyle.Render(m.opts.repoPath)
	if m.loading {
		header += "  " + m.spin.View()
	}

	if m.latest.err != nil {
		return header + "\n\n" + watchWarnStyle.Render("error: "+m.latest.err.Error()) + "\n\n(q to quit)\n"
	}

	lockLine := watchOkStyle.Render("no active lock")
	if m.latest.lockStatus != nil {
		l := m.latest.lockStatus
		lockLine = watchWarnStyle.Render(fmt.Sprintf("held by %s, expires %s", l.HolderID, l.ExpiresAt.Format(time.Kitchen)))
	}

	draftLine := fmt.Sprintf("%s  (on draft: %v, %d/%d commits)",
		m.latest.draftStats.CurrentBranch, m.latest.draftStats.IsOnDraft,
		m.latest.draftStats.CommitCount, m.latest.draftStats.MaxCommits)

	queueLine := fmt.Sprintf("%d pending, %d completed, %d failed (of %d)",
		m.latest.queueStats.Pending, m.latest.queueStats.Completed,
		m.latest.queueStats.Failed, m.latest.queueStats.Total)

	return fmt.Sprintf(
		"%s\n\n%s %s\n%s %s\n%s %s\n\n%s\n",
		header,
		watchLabelStyle.Render("lock:  "), lockLine,
		watchLabelStyle.Render("draft: "), draftLine,
		watchLabelStyle.Render("queue: "), queueLine,
		watchLabelStyle.Render("(q to quit)"),
	)
}
