// Package upload implements ChunkedUploader: resumable, chunked uploads
// with per-chunk retry and bandwidth telemetry. The uploader chunks any
// payload it is given; it does not compare the size against
// DefaultThresholdBytes. Grounded in rclone's Box backend multipart upload
// (other_examples/d224e3f0_rclone-rclone__backend-box-upload.go.go):
// create-session / upload-part / commit / abort maps directly onto
// get_or_create_session / upload_next_chunk / (implicit commit on the
// final chunk) / abort, generalized from Box's HTTP-specific session API
// to a backend-agnostic Transport the adapter supplies.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/oxlock/oxlock/internal/errs"
)

// DefaultThresholdBytes is the default minimum payload size for chunked
// upload, per spec §4.8. Nothing in this package reads it: Uploader
// chunks every payload regardless of size.
const DefaultThresholdBytes = 50 * 1024 * 1024

// DefaultChunkSizeBytes is the per-chunk size; the last chunk may be
// smaller.
const DefaultChunkSizeBytes = 100 * 1024 * 1024

// Status is a session's lifecycle state.
type Status string

const (
	Pending    Status = "Pending"
	InProgress Status = "InProgress"
	Completed  Status = "Completed"
	Failed     Status = "Failed"
	Aborted    Status = "Aborted"
)

// ChunkStatus is one chunk's lifecycle state.
type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "Pending"
	ChunkCompleted ChunkStatus = "Completed"
	ChunkFailed    ChunkStatus = "Failed"
)

// Chunk is one fixed-size segment of a session. Index, Offset and Length
// are immutable after session creation; only Status, RetryCount and Hash
// mutate, per spec §4.8's invariant.
type Chunk struct {
	Index      int         `json:"index"`
	Offset     int64       `json:"offset"`
	Length     int64       `json:"length"`
	Status     ChunkStatus `json:"status"`
	RetryCount int         `json:"retry_count"`
	Hash       string      `json:"hash,omitempty"`
}

// BandwidthSample is one upload_next_chunk measurement, bytes per second.
type BandwidthSample struct {
	At          time.Time `json:"at"`
	BytesPerSec float64   `json:"bytes_per_sec"`
}

// Session is the durable state of one chunked upload, uniquely keyed by
// (RepoPath, Remote, Branch).
type Session struct {
	ID               string            `json:"id"`
	RepoPath         string            `json:"repo_path"`
	Remote           string            `json:"remote"`
	Branch           string            `json:"branch"`
	ChunkSize        int64             `json:"chunk_size"`
	Chunks           []Chunk           `json:"chunks"`
	BytesUploaded    int64             `json:"bytes_uploaded"`
	TotalBytes       int64             `json:"total_bytes"`
	BandwidthSamples []BandwidthSample `json:"bandwidth_samples"`
	Status           Status            `json:"status"`
}

// Percentage reports upload progress; an empty session reports 100%.
func (s Session) Percentage() float64 {
	if s.TotalBytes <= 0 {
		return 100.0
	}
	return 100.0 * float64(s.BytesUploaded) / float64(s.TotalBytes)
}

// AverageBandwidth is the mean of every recorded bandwidth sample, or 0
// if none have been recorded yet.
func (s Session) AverageBandwidth() float64 {
	if len(s.BandwidthSamples) == 0 {
		return 0
	}
	var sum float64
	for _, b := range s.BandwidthSamples {
		sum += b.BytesPerSec
	}
	return sum / float64(len(s.BandwidthSamples))
}

// nextPendingChunk returns the lowest-indexed chunk whose status is not
// Completed, or -1 if none remain.
func (s Session) nextPendingChunk() int {
	for i, c := range s.Chunks {
		if c.Status != ChunkCompleted {
			return i
		}
	}
	return -1
}

// chunkPlan splits totalBytes into fixed-size chunks of chunkSize, with
// the last chunk carrying the remainder.
func chunkPlan(totalBytes, chunkSize int64) []Chunk {
	if totalBytes <= 0 {
		return nil
	}
	var chunks []Chunk
	var offset int64
	for i := 0; offset < totalBytes; i++ {
		length := chunkSize
		if offset+length > totalBytes {
			length = totalBytes - offset
		}
		chunks = append(chunks, Chunk{Index: i, Offset: offset, Length: length, Status: ChunkPending})
		offset += length
	}
	return chunks
}

// ChunkReader supplies the bytes for one chunk of a session's payload.
type ChunkReader interface {
	ReadChunk(ctx context.Context, s Session, c Chunk) ([]byte, error)
}

// Transport uploads one chunk's bytes to the remote and returns a content
// hash for it, analogous to rclone's Box uploadPart.
type Transport interface {
	UploadChunk(ctx context.Context, s Session, c Chunk, data []byte) (hash string, err error)
}

// Uploader manages chunked upload sessions persisted under dir
// (conventionally <queue-root>/uploads).
type Uploader struct {
	dir       string
	chunkSize int64
	reader    ChunkReader
	transport Transport
}

// New builds an Uploader rooted at dir using reader to source chunk bytes
// and transport to upload them. chunkSize defaults to
// DefaultChunkSizeBytes if <= 0.
func New(dir string, chunkSize int64, reader ChunkReader, transport Transport) (*Uploader, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSizeBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Filesystem, "create upload directory", err)
	}
	return &Uploader{dir: dir, chunkSize: chunkSize, reader: reader, transport: transport}, nil
}

func sessionKey(repoPath, remote, branch string) string {
	sum := sha256.Sum256([]byte(repoPath + "\x00" + remote + "\x00" + branch))
	return hex.EncodeToString(sum[:])[:16]
}

func (u *Uploader) sessionDir(id string) string {
	return filepath.Join(u.dir, id)
}

func (u *Uploader) statePath(id string) string {
	return filepath.Join(u.sessionDir(id), "state.json")
}

func (u *Uploader) save(s Session) error {
	if err := os.MkdirAll(u.sessionDir(s.ID), 0o755); err != nil {
		return errs.Wrap(errs.Filesystem, "create session directory", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Internal, "encode session state", err)
	}
	if err := os.WriteFile(u.statePath(s.ID), data, 0o644); err != nil {
		return errs.Wrap(errs.Filesystem, "write session state", err)
	}
	return nil
}

func (u *Uploader) load(id string) (Session, error) {
	var s Session
	data, err := os.ReadFile(u.statePath(id))
	if err != nil {
		return s, errs.Wrap(errs.NotFound, "session state not found", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, errs.Wrap(errs.Protocol, "decode session state", err)
	}
	return s, nil
}

// GetOrCreateSession returns the existing session for (repoPath, remote,
// branch), or creates one over totalBytes.
func (u *Uploader) GetOrCreateSession(repoPath, remote, branch string, totalBytes int64) (Session, error) {
	id := sessionKey(repoPath, remote, branch)
	existing, err := u.load(id)
	if err == nil {
		return existing, nil
	}
	if !errs.Is(err, errs.NotFound) {
		return Session{}, err
	}

	// Keyed by (repoPath, remote, branch) rather than a random id so a
	// second call with the same triple finds this session.
	s := Session{
		ID:         id,
		RepoPath:   repoPath,
		Remote:     remote,
		Branch:     branch,
		ChunkSize:  u.chunkSize,
		Chunks:     chunkPlan(totalBytes, u.chunkSize),
		TotalBytes: totalBytes,
		Status:     Pending,
	}
	if err := u.save(s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// UploadNextChunk uploads the lowest-indexed incomplete chunk of session,
// reloading current state first.
func (u *Uploader) UploadNextChunk(ctx context.Context, session Session) (Session, error) {
	s, err := u.load(session.ID)
	if err != nil {
		return session, err
	}
	if s.Status == Aborted {
		return s, errs.New(errs.Internal, "session is aborted")
	}

	idx := s.nextPendingChunk()
	if idx < 0 {
		s.Status = Completed
		if err := u.save(s); err != nil {
			return s, err
		}
		return s, nil
	}

	s.Status = InProgress
	chunk := s.Chunks[idx]

	data, err := u.reader.ReadChunk(ctx, s, chunk)
	if err != nil {
		chunk.RetryCount++
		chunk.Status = ChunkFailed
		s.Chunks[idx] = chunk
		s.Status = Failed
		_ = u.save(s)
		return s, errs.Wrap(errs.Filesystem, "read chunk", err)
	}

	start := time.Now()
	hash, err := u.transport.UploadChunk(ctx, s, chunk, data)
	elapsed := time.Since(start)
	if err != nil {
		chunk.RetryCount++
		chunk.Status = ChunkFailed
		s.Chunks[idx] = chunk
		s.Status = Failed
		_ = u.save(s)
		return s, err
	}

	chunk.Status = ChunkCompleted
	chunk.Hash = hash
	s.Chunks[idx] = chunk
	s.BytesUploaded += chunk.Length
	if elapsed > 0 {
		s.BandwidthSamples = append(s.BandwidthSamples, BandwidthSample{
			At:          time.Now().UTC(),
			BytesPerSec: float64(chunk.Length) / elapsed.Seconds(),
		})
	}
	if s.nextPendingChunk() < 0 {
		s.Status = Completed
	}
	if err := u.save(s); err != nil {
		return s, err
	}
	return s, nil
}

// Abort marks the session for repoPath/remote/branch as Aborted,
// retaining its state for audit.
func (u *Uploader) Abort(repoPath, remote, branch string) error {
	id := sessionKey(repoPath, remote, branch)
	s, err := u.load(id)
	if err != nil {
		return err
	}
	s.Status = Aborted
	return u.save(s)
}

// Resume re-enters InProgress on a Failed session so
// UploadNextChunk can continue.
func (u *Uploader) Resume(session Session) (Session, error) {
	s, err := u.load(session.ID)
	if err != nil {
		return session, err
	}
	if s.Status == Aborted {
		return s, errs.New(errs.Internal, "cannot resume an aborted session")
	}
	s.Status = InProgress
	if err := u.save(s); err != nil {
		return s, err
	}
	return s, nil
}
