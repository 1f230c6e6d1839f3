package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxlock/oxlock/internal/errs"
	"github.com/oxlock/oxlock/internal/lock"
	"github.com/oxlock/oxlock/internal/vcs"
)

// fakeVCSBackend is a minimal vcs.Backend test double covering only the
// operations ComponentExecutor and lock.Coordinator actually call.
type fakeVCSBackend struct {
	vcs.Backend

	pushedBranch string
	pulled       bool
	pushFail     error
}

func (f *fakeVCSBackend) Pull(ctx context.Context, path string) error {
	f.pulled = true
	return nil
}

func (f *fakeVCSBackend) AddAll(ctx context.Context, path string) error { return nil }

func (f *fakeVCSBackend) Commit(ctx context.Context, path, message string) (string, error) {
	return "abc123", nil
}

func (f *fakeVCSBackend) Push(ctx context.Context, path, remote, branch string) error {
	if f.pushFail != nil {
		return f.pushFail
	}
	f.pushedBranch = branch
	return nil
}

func TestComponentExecutorRoutesPushAndPull(t *testing.T) {
	backend := &fakeVCSBackend{}
	exec := &ComponentExecutor{Backend: backend}
	ctx := context.Background()

	err := exec.Execute(ctx, Entry{Operation: PushCommits, Payload: Payload{RepoPath: "/r", Branch: "main"}})
	require.NoError(t, err)
	require.Equal(t, "main", backend.pushedBranch)

	err = exec.Execute(ctx, Entry{Operation: PullCommits, Payload: Payload{RepoPath: "/r"}})
	require.NoError(t, err)
	require.True(t, backend.pulled)
}

func TestComponentExecutorRoutesLockOperations(t *testing.T) {
	backend := &fakeVCSBackend{}
	coordinators := map[string]*lock.Coordinator{
		"/proj": lock.New(backend, "/proj"),
	}
	exec := &ComponentExecutor{
		Backend:      backend,
		Coordinators: func(repoPath string) *lock.Coordinator { return coordinators[repoPath] },
	}
	ctx := context.Background()

	err := exec.Execute(ctx, Entry{
		Operation: AcquireLock,
		Payload:   Payload{ProjectPath: "/proj", UserID: "alice", TimeoutHours: 1},
	})
	require.NoError(t, err)

	status, err := coordinators["/proj"].Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status)
	require.True(t, status.OwnedBy("alice"))

	err = exec.Execute(ctx, Entry{
		Operation: RenewLock,
		Payload:   Payload{ProjectPath: "/proj", UserID: "alice", LockID: status.LockID, AdditionalHours: 2},
	})
	require.NoError(t, err)

	err = exec.Execute(ctx, Entry{
		Operation: ReleaseLock,
		Payload:   Payload{ProjectPath: "/proj", UserID: "alice", LockID: status.LockID},
	})
	require.NoError(t, err)

	status, err = coordinators["/proj"].Status(ctx)
	require.NoError(t, err)
	require.Nil(t, status)
}

func TestComponentExecutorSyncCommentsDefaultsToNoop(t *testing.T) {
	exec := &ComponentExecutor{Backend: &fakeVCSBackend{}}
	err := exec.Execute(context.Background(), Entry{Operation: SyncComments, Payload: Payload{RepoPath: "/r"}})
	require.NoError(t, err)
}

func TestComponentExecutorSyncCommentsDelegatesWhenSet(t *testing.T) {
	var called string
	exec := &ComponentExecutor{
		Backend: &fakeVCSBackend{},
		SyncComments: func(ctx context.Context, repoPath string) error {
			called = repoPath
			return nil
		},
	}
	err := exec.Execute(context.Background(), Entry{Operation: SyncComments, Payload: Payload{RepoPath: "/r"}})
	require.NoError(t, err)
	require.Equal(t, "/r", called)
}

func TestComponentExecutorUnknownOperationFails(t *testing.T) {
	exec := &ComponentExecutor{Backend: &fakeVCSBackend{}}
	err := exec.Execute(context.Background(), Entry{Operation: "bogus"})
	require.True(t, errs.Is(err, errs.Internal))
}

func TestComponentExecutorPropagatesPushFailure(t *testing.T) {
	backend := &fakeVCSBackend{pushFail: errs.New(errs.Network, "timeout")}
	exec := &ComponentExecutor{Backend: backend}
	err := exec.Execute(context.Background(), Entry{Operation: PushCommits, Payload: Payload{RepoPath: "/r"}})
	require.True(t, errs.Is(err, errs.Network))
}
