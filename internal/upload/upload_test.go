package upload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxlock/oxlock/internal/errs"
)

type fakeReader struct {
	data []byte
	fail map[int]bool
}

func (r *fakeReader) ReadChunk(ctx context.Context, s Session, c Chunk) ([]byte, error) {
	if r.fail[c.Index] {
		return nil, errs.New(errs.Filesystem, "simulated read failure")
	}
	return r.data[c.Offset : c.Offset+c.Length], nil
}

type fakeTransport struct {
	uploaded map[int][]byte
	fail     map[int]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{uploaded: map[int][]byte{}}
}

func (tr *fakeTransport) UploadChunk(ctx context.Context, s Session, c Chunk, data []byte) (string, error) {
	if tr.fail[c.Index] {
		return "", errs.New(errs.Network, "simulated upload failure")
	}
	tr.uploaded[c.Index] = data
	return "hash", nil
}

func TestUploaderChunkPlanSplitsEvenlyWithRemainder(t *testing.T) {
	chunks := chunkPlan(25, 10)
	require.Len(t, chunks, 3)
	require.Equal(t, int64(10), chunks[0].Length)
	require.Equal(t, int64(10), chunks[1].Length)
	require.Equal(t, int64(5), chunks[2].Length)
	require.Equal(t, int64(20), chunks[2].Offset)
}

func TestUploaderGetOrCreateSessionIsIdempotent(t *testing.T) {
	data := make([]byte, 25)
	u, err := New(t.TempDir(), 10, &fakeReader{data: data}, newFakeTransport())
	require.NoError(t, err)

	s1, err := u.GetOrCreateSession("/repo", "remote", "main", 25)
	require.NoError(t, err)
	require.Len(t, s1.Chunks, 3)
	require.Equal(t, Pending, s1.Status)

	s2, err := u.GetOrCreateSession("/repo", "remote", "main", 25)
	require.NoError(t, err)
	require.Equal(t, s1.ID, s2.ID)
}

func TestUploaderUploadNextChunkDrivesSessionToCompletion(t *testing.T) {
	data := []byte("0123456789abcdefghij") // 20 bytes
	transport := newFakeTransport()
	u, err := New(t.TempDir(), 10, &fakeReader{data: data}, transport)
	require.NoError(t, err)

	s, err := u.GetOrCreateSession("/repo", "remote", "main", 20)
	require.NoError(t, err)
	require.Len(t, s.Chunks, 2)

	s, err = u.UploadNextChunk(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, InProgress, s.Status)
	require.Equal(t, int64(10), s.BytesUploaded)

	s, err = u.UploadNextChunk(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, Completed, s.Status)
	require.Equal(t, int64(20), s.BytesUploaded)
	require.Equal(t, 100.0, s.Percentage())

	require.Equal(t, []byte("0123456789"), transport.uploaded[0])
	require.Equal(t, []byte("abcdefghij"), transport.uploaded[1])
}

func TestUploaderUploadNextChunkMarksFailedOnTransportError(t *testing.T) {
	data := []byte("0123456789abcdefghij")
	transport := newFakeTransport()
	transport.fail = map[int]bool{0: true}
	u, err := New(t.TempDir(), 10, &fakeReader{data: data}, transport)
	require.NoError(t, err)

	s, err := u.GetOrCreateSession("/repo", "remote", "main", 20)
	require.NoError(t, err)

	s, err = u.UploadNextChunk(context.Background(), s)
	require.Error(t, err)
	require.Equal(t, Failed, s.Status)
	require.Equal(t, ChunkFailed, s.Chunks[0].Status)
	require.Equal(t, 1, s.Chunks[0].RetryCount)
}

func TestUploaderResumeAfterFailureContinues(t *testing.T) {
	data := []byte("0123456789abcdefghij")
	transport := newFakeTransport()
	transport.fail = map[int]bool{0: true}
	u, err := New(t.TempDir(), 10, &fakeReader{data: data}, transport)
	require.NoError(t, err)

	s, err := u.GetOrCreateSession("/repo", "remote", "main", 20)
	require.NoError(t, err)
	s, err = u.UploadNextChunk(context.Background(), s)
	require.Error(t, err)
	require.Equal(t, Failed, s.Status)

	transport.fail = nil
	s, err = u.Resume(s)
	require.NoError(t, err)
	require.Equal(t, InProgress, s.Status)

	s, err = u.UploadNextChunk(context.Background(), s)
	require.NoError(t, err)
	s, err = u.UploadNextChunk(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, Completed, s.Status)
}

func TestUploaderAbortPreventsResume(t *testing.T) {
	data := make([]byte, 10)
	u, err := New(t.TempDir(), 10, &fakeReader{data: data}, newFakeTransport())
	require.NoError(t, err)

	s, err := u.GetOrCreateSession("/repo", "remote", "main", 10)
	require.NoError(t, err)
	require.NoError(t, u.Abort("/repo", "remote", "main"))

	_, err = u.UploadNextChunk(context.Background(), s)
	require.True(t, errs.Is(err, errs.Internal))

	_, err = u.Resume(s)
	require.True(t, errs.Is(err, errs.Internal))
}

func TestSessionPercentageAndAverageBandwidth(t *testing.T) {
	var empty Session
	require.Equal(t, 100.0, empty.Percentage())
	require.Equal(t, 0.0, empty.AverageBandwidth())

	s := Session{TotalBytes: 200, BytesUploaded: 50}
	require.Equal(t, 25.0, s.Percentage())

	s.BandwidthSamples = []BandwidthSample{{BytesPerSec: 10}, {BytesPerSec: 30}}
	require.Equal(t, 20.0, s.AverageBandwidth())
}
