// Package queue implements the durable offline operation queue: mutating
// operations that cannot currently complete are persisted one file per
// entry and replayed on connectivity restoration. Grounded in
// Auxin-CLI-Wrapper's NetworkResilienceManager
// (src/network_resilience.rs), generalized from its single in-memory
// VecDeque plus one combined JSON file into one-file-per-entry durable
// storage per spec §4.6/§6, and from its fixed OperationType/retry-until-
// MAX_RETRIES model to the spec's priority-then-FIFO drain with no
// internal retry.
package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oxlock/oxlock/internal/errs"
	"github.com/oxlock/oxlock/internal/resilience"
)

// OperationTag is the closed set of operation variants a QueueEntry may
// carry, per spec §4.6.
type OperationTag string

const (
	AcquireLock  OperationTag = "AcquireLock"
	ReleaseLock  OperationTag = "ReleaseLock"
	RenewLock    OperationTag = "RenewLock"
	PushCommits  OperationTag = "PushCommits"
	PullCommits  OperationTag = "PullCommits"
	SyncComments OperationTag = "SyncComments"
)

// Payload carries every field any operation tag might need. Unused fields
// for a given tag are left zero. Comments are opaque to the core per spec
// §4.6 ("delegated"); SyncComments carries only RepoPath.
type Payload struct {
	ProjectPath     string `json:"project_path,omitempty"`
	UserID          string `json:"user_id,omitempty"`
	TimeoutHours    int    `json:"timeout_hours,omitempty"`
	LockID          string `json:"lock_id,omitempty"`
	AdditionalHours int    `json:"additional_hours,omitempty"`
	RepoPath        string `json:"repo_path,omitempty"`
	Branch          string `json:"branch,omitempty"`
}

// Entry is one durable queue record.
type Entry struct {
	ID           string       `json:"id"`
	Operation    OperationTag `json:"operation"`
	Payload      Payload      `json:"payload"`
	QueuedAt     time.Time    `json:"queued_at"`
	AttemptCount int          `json:"attempt_count"`
	LastError    string       `json:"last_error,omitempty"`
	LastAttempt  *time.Time   `json:"last_attempt,omitempty"`
	Priority     int          `json:"priority"`
	Completed    bool         `json:"completed"`
}

// Executor runs one queued operation. Implementations route each
// OperationTag to the relevant component (LockCoordinator or VCSBackend);
// the queue package itself has no opinion on how an operation is carried
// out.
type Executor interface {
	Execute(ctx context.Context, e Entry) error
}

// Report is drain's result: which entries succeeded and which failed,
// with their errors.
type Report struct {
	Succeeded []Entry
	Failed    []FailedEntry
}

// FailedEntry pairs an entry with the error its execution produced.
type FailedEntry struct {
	Entry Entry
	Err   error
}

// Stats summarizes the queue's contents.
type Stats struct {
	Total     int
	Pending   int
	Completed int
	Failed    int
}

// Queue is a durable FIFO of deferred mutating operations, one JSON file
// per entry under dir. Two processes sharing dir concurrently is
// undefined, per spec §5.
type Queue struct {
	dir    string
	probe  *resilience.ConnectivityProbe
	logger *zap.SugaredLogger
}

// New builds a Queue rooted at dir, creating it if absent.
func New(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Filesystem, "create queue directory", err)
	}
	return &Queue{dir: dir, logger: zap.NewNop().Sugar()}, nil
}

// WithConnectivityProbe attaches a probe drain consults before running;
// without one, drain always proceeds (treated as Unknown connectivity).
func (q *Queue) WithConnectivityProbe(p *resilience.ConnectivityProbe) *Queue {
	q.probe = p
	return q
}

// WithLogger attaches a structured logger.
func (q *Queue) WithLogger(logger *zap.SugaredLogger) *Queue {
	if logger != nil {
		q.logger = logger
	}
	return q
}

func (q *Queue) entryPath(id string) string {
	return filepath.Join(q.dir, id+".json")
}

func (q *Queue) writeEntry(e Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Internal, "encode queue entry", err)
	}
	if err := os.WriteFile(q.entryPath(e.ID), data, 0o644); err != nil {
		return errs.Wrap(errs.Filesystem, "write queue entry", err)
	}
	return nil
}

// Enqueue assigns a fresh entry-id, stamps queued-at, and persists op with
// the given priority (default 0 if the caller passes it that way).
func (q *Queue) Enqueue(op OperationTag, payload Payload, priority int) (string, error) {
	e := Entry{
		ID:        uuid.NewString(),
		Operation: op,
		Payload:   payload,
		QueuedAt:  time.Now().UTC(),
		Priority:  priority,
	}
	if err := q.writeEntry(e); err != nil {
		return "", err
	}
	q.logger.Infow("operation enqueued", "id", e.ID, "operation", op, "priority", priority)
	return e.ID, nil
}

// loadAll reads every entry file in dir.
func (q *Queue) loadAll() ([]Entry, error) {
	files, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, errs.Wrap(errs.Filesystem, "read queue directory", err)
	}
	var entries []Entry
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(q.dir, f.Name()))
		if err != nil {
			return nil, errs.Wrap(errs.Filesystem, "read queue entry "+f.Name(), err)
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, errs.Wrap(errs.Protocol, "decode queue entry "+f.Name(), err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Drain executes every pending entry once, in strict priority-then-FIFO
// order, via exec. It refuses to run when the connectivity probe reports
// definite Offline; it proceeds when no probe is attached or quality is
// otherwise Usable, per spec §4.6.
func (q *Queue) Drain(ctx context.Context, exec Executor) (Report, error) {
	if q.probe != nil && q.probe.Probe(ctx) == resilience.Offline {
		return Report{}, errs.New(errs.Network, "connectivity probe reports offline")
	}

	entries, err := q.loadAll()
	if err != nil {
		return Report{}, err
	}

	var pending []Entry
	for _, e := range entries {
		if !e.Completed {
			pending = append(pending, e)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].QueuedAt.Before(pending[j].QueuedAt)
	})

	var report Report
	for _, e := range pending {
		now := time.Now().UTC()
		e.LastAttempt = &now
		e.AttemptCount++
		if err := exec.Execute(ctx, e); err != nil {
			e.LastError = err.Error()
			if writeErr := q.writeEntry(e); writeErr != nil {
				return report, writeErr
			}
			report.Failed = append(report.Failed, FailedEntry{Entry: e, Err: err})
			continue
		}
		e.Completed = true
		e.LastError = ""
		if err := q.writeEntry(e); err != nil {
			return report, err
		}
		report.Succeeded = append(report.Succeeded, e)
	}
	return report, nil
}

// Remove deletes entry id from disk.
func (q *Queue) Remove(id string) error {
	if err := os.Remove(q.entryPath(id)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.Filesystem, "remove queue entry", err)
	}
	return nil
}

// ClearCompleted removes every entry with Completed=true.
func (q *Queue) ClearCompleted() error {
	entries, err := q.loadAll()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Completed {
			if err := q.Remove(e.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// StatsOf computes aggregate counts over the queue's current entries.
func (q *Queue) StatsOf() (Stats, error) {
	entries, err := q.loadAll()
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	s.Total = len(entries)
	for _, e := range entries {
		switch {
		case e.Completed:
			s.Completed++
		case e.LastError != "":
			s.Failed++
			s.Pending++
		default:
			s.Pending++
		}
	}
	return s, nil
}
