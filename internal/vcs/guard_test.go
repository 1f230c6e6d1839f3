package vcs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxlock/oxlock/internal/errs"
)

func TestGuardedDelegatesToInner(t *testing.T) {
	dir := t.TempDir()
	g := NewGuarded(NewNativeVCS())
	ctx := context.Background()

	require.NoError(t, g.Init(ctx, dir))
	require.Equal(t, NativeBackend, g.Type())

	writeFile(t, dir, "f.bin", "v1")
	require.NoError(t, g.AddAll(ctx, dir))
	id, err := g.Commit(ctx, dir, "first")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	commits, err := g.Log(ctx, dir, 0)
	require.NoError(t, err)
	require.Len(t, commits, 1)
}

func TestGuardedSquashAndMergeCapabilityPassthrough(t *testing.T) {
	dir := t.TempDir()
	g := NewGuarded(NewNativeVCS())
	ctx := context.Background()
	require.NoError(t, g.Init(ctx, dir))

	writeFile(t, dir, "f.bin", "main")
	require.NoError(t, g.AddAll(ctx, dir))
	_, err := g.Commit(ctx, dir, "on main")
	require.NoError(t, err)
	require.NoError(t, g.CreateBranch(ctx, dir, "draft"))
	require.NoError(t, g.Checkout(ctx, dir, "draft"))
	writeFile(t, dir, "f.bin", "draft")
	require.NoError(t, g.AddAll(ctx, dir))
	_, err = g.Commit(ctx, dir, "on draft")
	require.NoError(t, err)

	id, err := g.MergeSnapshot(ctx, dir, "draft", "main", "publish")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, g.SquashBefore(ctx, dir, id, "checkpoint"))
}

// stubBackend implements only the bare Backend interface, with none of
// the optional capabilities, to exercise Guarded's graceful degradation.
type stubBackend struct{ Backend }

func TestGuardedReportsInternalWhenCapabilityUnsupported(t *testing.T) {
	g := NewGuarded(stubBackend{})
	err := g.SquashBefore(context.Background(), "", "boundary", "msg")
	require.True(t, errs.Is(err, errs.Internal))

	_, err = g.MergeSnapshot(context.Background(), "", "a", "b", "msg")
	require.True(t, errs.Is(err, errs.Internal))

	err = g.SetDefaultRemote("", "remote")
	require.True(t, errs.Is(err, errs.Internal))
}
