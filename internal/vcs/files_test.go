package vcs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxlock/oxlock/internal/errs"
)

func TestCommittedFileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadCommittedFile(dir, "nope.json")
	require.True(t, errs.Is(err, errs.NotFound))

	require.NoError(t, WriteCommittedFile(dir, "nested/lock.json", []byte(`{"a":1}`)))
	data, err := ReadCommittedFile(dir, "nested/lock.json")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(data))

	require.NoError(t, RemoveCommittedFile(dir, "nested/lock.json"))
	_, err = ReadCommittedFile(dir, "nested/lock.json")
	require.True(t, errs.Is(err, errs.NotFound))

	require.NoError(t, RemoveCommittedFile(dir, "nested/lock.json"), "removing an absent file is not an error")
}
