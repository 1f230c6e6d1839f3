package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxlock/oxlock/internal/errs"
)

type fakeExecutor struct {
	fail map[string]error
	ran  []Entry
}

func (f *fakeExecutor) Execute(ctx context.Context, e Entry) error {
	f.ran = append(f.ran, e)
	if err, ok := f.fail[e.ID]; ok {
		return err
	}
	return nil
}

func TestQueueEnqueueAndStats(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = q.Enqueue(AcquireLock, Payload{ProjectPath: "p"}, 0)
	require.NoError(t, err)
	_, err = q.Enqueue(PushCommits, Payload{RepoPath: "r"}, 1)
	require.NoError(t, err)

	stats, err := q.StatsOf()
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 2, stats.Pending)
	require.Equal(t, 0, stats.Completed)
}

func TestQueueDrainRunsPriorityThenFIFO(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)

	idLow, err := q.Enqueue(PullCommits, Payload{}, 0)
	require.NoError(t, err)
	idHigh, err := q.Enqueue(AcquireLock, Payload{}, 5)
	require.NoError(t, err)
	idLow2, err := q.Enqueue(RenewLock, Payload{}, 0)
	require.NoError(t, err)

	exec := &fakeExecutor{}
	report, err := q.Drain(context.Background(), exec)
	require.NoError(t, err)
	require.Len(t, report.Succeeded, 3)
	require.Empty(t, report.Failed)

	require.Equal(t, idHigh, exec.ran[0].ID, "higher priority runs first")
	require.Equal(t, idLow, exec.ran[1].ID, "equal priority runs FIFO")
	require.Equal(t, idLow2, exec.ran[2].ID)
}

func TestQueueDrainRecordsFailuresAndLeavesThemPending(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)

	id, err := q.Enqueue(SyncComments, Payload{RepoPath: "r"}, 0)
	require.NoError(t, err)

	exec := &fakeExecutor{fail: map[string]error{id: errs.New(errs.Network, "no route")}}
	report, err := q.Drain(context.Background(), exec)
	require.NoError(t, err)
	require.Empty(t, report.Succeeded)
	require.Len(t, report.Failed, 1)
	require.Equal(t, id, report.Failed[0].Entry.ID)

	stats, err := q.StatsOf()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Pending)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, 0, stats.Completed)
}

func TestQueueDrainSkipsAlreadyCompletedEntries(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = q.Enqueue(AcquireLock, Payload{}, 0)
	require.NoError(t, err)

	exec := &fakeExecutor{}
	_, err = q.Drain(context.Background(), exec)
	require.NoError(t, err)
	require.Len(t, exec.ran, 1)

	// second drain: the entry is now completed, so it is not re-executed.
	_, err = q.Drain(context.Background(), exec)
	require.NoError(t, err)
	require.Len(t, exec.ran, 1)
}

func TestQueueClearCompletedRemovesOnlyCompletedEntries(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = q.Enqueue(AcquireLock, Payload{}, 0)
	require.NoError(t, err)
	idFailing, err := q.Enqueue(ReleaseLock, Payload{}, 0)
	require.NoError(t, err)

	exec := &fakeExecutor{fail: map[string]error{idFailing: errs.New(errs.Network, "offline")}}
	_, err = q.Drain(context.Background(), exec)
	require.NoError(t, err)

	require.NoError(t, q.ClearCompleted())
	stats, err := q.StatsOf()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total)
	require.Equal(t, 1, stats.Pending, "the still-failing entry survives ClearCompleted")
}

func TestQueueRemoveIsIdempotent(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)
	id, err := q.Enqueue(AcquireLock, Payload{}, 0)
	require.NoError(t, err)

	require.NoError(t, q.Remove(id))
	require.NoError(t, q.Remove(id), "removing an already-removed entry is not an error")
}
