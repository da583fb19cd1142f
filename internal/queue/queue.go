// Package queue implements the Job Queue (spec §4.I): a durable,
// priority-banded FIFO-ish queue with exponential backoff and a bounded
// retry budget, grounded on the envelope/producer/consumer contract shape
// of a queue package in the retrieval pack, made concrete with an
// on-disk, per-job-file backing store so enqueued work survives a
// process restart.
package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/schemaforge/schemaforge/internal/types"
)

// Status is a job's position in its lifecycle.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDelayed   Status = "delayed"
)

// Job is one unit of work: a payload plus headers awaiting the Worker's
// pipeline (§4.I, §6 ProcessPayload).
type Job struct {
	ID          types.JobID       `json:"id"`
	Headers     map[string]string `json:"headers,omitempty"`
	Payload     json.RawMessage   `json:"payload"`
	Priority    int               `json:"priority"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"maxAttempts"`
	Status      Status            `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	AvailableAt time.Time         `json:"availableAt"`
	LastError   string            `json:"lastError,omitempty"`

	seq int64 // FIFO tiebreaker within a priority band; not persisted
}

// Counters is the telemetry surface §4.I and §6 GetAggregates need.
type Counters struct {
	Waiting   int
	Active    int
	Completed int
	Failed    int
	Delayed   int
}

// Queue is a durable, priority-banded job queue. Durability is per-job:
// every job is written as its own JSON file under dir, so a crash between
// enqueue and completion loses at most the in-flight lease, never the
// job itself (§4.I "job durability survives process restart").
type Queue struct {
	dir string

	mu        sync.Mutex
	seen      map[types.JobID]bool
	waiting   []*Job
	active    map[types.JobID]*Job
	failed    map[types.JobID]*Job
	completed int
	nextSeq   int64

	defaultMaxAttempts int
	backoffBaseMs      int
}

// Config holds the Job Queue's tunables (§6 QUEUE_MAX_ATTEMPTS,
// QUEUE_BACKOFF_DELAY_MS).
type Config struct {
	Dir                string
	DefaultMaxAttempts int
	BackoffBaseMs      int
}

// New constructs a Queue, reloading any jobs previously persisted under
// cfg.Dir (waiting and delayed jobs resume as waiting; jobs that were
// active at the time of a crash are requeued rather than lost; jobs
// already in the failed set stay there).
func New(cfg Config) (*Queue, error) {
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = types.DefaultQueueMaxAttempts
	}
	if cfg.BackoffBaseMs <= 0 {
		cfg.BackoffBaseMs = types.DefaultQueueBackoffDelayMs
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, "failed"), 0o755); err != nil {
		return nil, fmt.Errorf("queue: create dir %q: %w", cfg.Dir, err)
	}

	q := &Queue{
		dir:                cfg.Dir,
		seen:               make(map[types.JobID]bool),
		active:             make(map[types.JobID]*Job),
		failed:             make(map[types.JobID]*Job),
		defaultMaxAttempts: cfg.DefaultMaxAttempts,
		backoffBaseMs:      cfg.BackoffBaseMs,
	}
	if err := q.reload(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) reload() error {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return fmt.Errorf("queue: reload: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(q.dir, e.Name()))
		if err != nil {
			continue
		}
		var job Job
		if err := json.Unmarshal(b, &job); err != nil {
			continue
		}
		job.Status = StatusWaiting
		job.seq = q.nextSeq
		q.nextSeq++
		q.seen[job.ID] = true
		q.waiting = append(q.waiting, &job)
	}

	failedDir := filepath.Join(q.dir, "failed")
	failedEntries, err := os.ReadDir(failedDir)
	if err != nil {
		return fmt.Errorf("queue: reload failed set: %w", err)
	}
	for _, e := range failedEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(failedDir, e.Name()))
		if err != nil {
			continue
		}
		var job Job
		if err := json.Unmarshal(b, &job); err != nil {
			continue
		}
		q.seen[job.ID] = true
		q.failed[job.ID] = &job
	}

	sortWaiting(q.waiting)
	return nil
}

// Enqueue adds job to the queue, returning promptly. Enqueueing a job
// with an already-seen id is a no-op (§4.I idempotency).
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.seen[job.ID] {
		return nil
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.defaultMaxAttempts
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = job.CreatedAt
	}
	job.Status = StatusWaiting
	job.seq = q.nextSeq
	q.nextSeq++

	if err := q.persist(job); err != nil {
		return err
	}
	q.seen[job.ID] = true
	q.waiting = append(q.waiting, job)
	sortWaiting(q.waiting)
	return nil
}

// Dequeue returns the highest-priority available job (FIFO within a
// priority band), or (nil, nil) if none is ready yet. Dequeued jobs move
// to the active set until Complete or Fail is called.
func (q *Queue) Dequeue() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for i, job := range q.waiting {
		if job.AvailableAt.After(now) {
			continue
		}
		q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
		job.Status = StatusActive
		q.active[job.ID] = job
		if err := q.persist(job); err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, nil
}

// Complete removes a successfully processed job from the active set and
// its durable file.
func (q *Queue) Complete(id types.JobID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.active, id)
	q.completed++
	return os.Remove(q.jobPath(id))
}

// Fail records a processing failure. If attempts remain, the job is
// requeued after an exponential backoff delay; otherwise it moves to the
// failed holding set, retained for inspection (§4.I).
func (q *Queue) Fail(id types.JobID, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.active[id]
	if !ok {
		return types.ErrUnknownJob
	}
	delete(q.active, id)

	job.Attempts++
	if cause != nil {
		job.LastError = cause.Error()
	}

	if job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		q.failed[id] = job
		if err := os.Remove(q.jobPath(id)); err != nil && !os.IsNotExist(err) {
			return err
		}
		return q.persistFailed(job)
	}

	delay := backoffDelay(q.backoffBaseMs, job.Attempts)
	job.Status = StatusDelayed
	job.AvailableAt = time.Now().Add(delay)
	job.seq = q.nextSeq
	q.nextSeq++
	q.waiting = append(q.waiting, job)
	sortWaiting(q.waiting)
	return q.persist(job)
}

// backoffDelay returns baseMs * 2^(attempts-1), the standard exponential
// backoff schedule (§6 QUEUE_BACKOFF_DELAY_MS).
func backoffDelay(baseMs int, attempts int) time.Duration {
	multiplier := int64(1) << uint(attempts-1)
	return time.Duration(int64(baseMs)*multiplier) * time.Millisecond
}

// Counters reports waiting/active/completed/failed/delayed counts for
// telemetry (§4.I, §6 GetAggregates).
func (q *Queue) Counters() Counters {
	q.mu.Lock()
	defer q.mu.Unlock()

	c := Counters{
		Active:    len(q.active),
		Completed: q.completed,
		Failed:    len(q.failed),
	}
	for _, job := range q.waiting {
		if job.Status == StatusDelayed {
			c.Delayed++
		} else {
			c.Waiting++
		}
	}
	return c
}

// sortWaiting orders by priority descending, then by insertion sequence
// ascending, so the queue is FIFO within a priority band (§4.I).
func sortWaiting(jobs []*Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].Priority != jobs[j].Priority {
			return jobs[i].Priority > jobs[j].Priority
		}
		return jobs[i].seq < jobs[j].seq
	})
}

func (q *Queue) jobPath(id types.JobID) string {
	return filepath.Join(q.dir, string(id)+".json")
}

func (q *Queue) persist(job *Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", job.ID, err)
	}
	return writeAtomic(q.jobPath(job.ID), b)
}

func (q *Queue) persistFailed(job *Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal failed job %s: %w", job.ID, err)
	}
	return writeAtomic(filepath.Join(q.dir, "failed", string(job.ID)+".json"), b)
}

// writeAtomic writes data to a temp file alongside path and renames it
// into place (same idiom as the Store's artifact writes).
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
