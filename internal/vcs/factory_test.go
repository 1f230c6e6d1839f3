package vcs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxlock/oxlock/internal/errs"
)

func TestNewDetectsNativeRepo(t *testing.T) {
	dir := t.TempDir()
	native := NewNativeVCS()
	require.NoError(t, native.Init(context.Background(), dir))

	backend, err := New(dir, "")
	require.NoError(t, err)
	require.Equal(t, NativeBackend, backend.Type())
}

func TestNewDefaultsToNativeForFreshDirectory(t *testing.T) {
	dir := t.TempDir()
	backend, err := New(dir, "")
	require.NoError(t, err)
	require.Equal(t, NativeBackend, backend.Type())
}

func TestNewFromConfigHonorsExplicitBackendType(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFromConfig(dir, SubprocessBackend, "some-vcs-binary")
	require.NoError(t, err)
	require.Equal(t, SubprocessBackend, backend.Type())
}

func TestDetectBackendType(t *testing.T) {
	dir := t.TempDir()
	_, err := DetectBackendType(dir)
	require.True(t, errs.Is(err, errs.NotFound), "an undetectable directory reports NotFound")

	native := NewNativeVCS()
	require.NoError(t, native.Init(context.Background(), dir))
	bt, err := DetectBackendType(dir)
	require.NoError(t, err)
	require.Equal(t, NativeBackend, bt)
}
