package queue

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/schemaforge/schemaforge/internal/types"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := New(Config{Dir: t.TempDir(), DefaultMaxAttempts: 3, BackoffBaseMs: 10})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return q
}

func newJob(id types.JobID, priority int) *Job {
	return &Job{
		ID:       id,
		Payload:  json.RawMessage(`{"x":1}`),
		Priority: priority,
	}
}

func TestQueue_EnqueueDequeueRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	job := newJob("job-1", 5)
	if err := q.Enqueue(job); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	got, err := q.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got == nil || got.ID != "job-1" {
		t.Fatalf("Dequeue() = %+v, want job-1", got)
	}
	if got.Status != StatusActive {
		t.Errorf("Status = %q, want active", got.Status)
	}
}

func TestQueue_EnqueueIsIdempotentById(t *testing.T) {
	q := newTestQueue(t)
	job := newJob("dup", 5)
	if err := q.Enqueue(job); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := q.Enqueue(newJob("dup", 9)); err != nil {
		t.Fatalf("second Enqueue() error: %v", err)
	}

	counters := q.Counters()
	if counters.Waiting != 1 {
		t.Errorf("Waiting = %d, want 1 (idempotent re-enqueue must not duplicate)", counters.Waiting)
	}

	got, err := q.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got.Priority != 5 {
		t.Errorf("Priority = %d, want 5 (first enqueue wins, second is a no-op)", got.Priority)
	}
}

func TestQueue_DequeueOrdersByPriorityThenFIFO(t *testing.T) {
	q := newTestQueue(t)
	_ = q.Enqueue(newJob("low", 1))
	_ = q.Enqueue(newJob("high-1", 10))
	_ = q.Enqueue(newJob("high-2", 10))

	first, _ := q.Dequeue()
	second, _ := q.Dequeue()
	third, _ := q.Dequeue()

	if first.ID != "high-1" {
		t.Errorf("first = %q, want high-1 (higher priority first)", first.ID)
	}
	if second.ID != "high-2" {
		t.Errorf("second = %q, want high-2 (FIFO within same priority band)", second.ID)
	}
	if third.ID != "low" {
		t.Errorf("third = %q, want low", third.ID)
	}
}

func TestQueue_DequeueOnEmptyReturnsNilNil(t *testing.T) {
	q := newTestQueue(t)
	got, err := q.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got != nil {
		t.Errorf("Dequeue() on empty queue = %+v, want nil", got)
	}
}

func TestQueue_CompleteRemovesFromActiveAndIncrementsCompleted(t *testing.T) {
	q := newTestQueue(t)
	_ = q.Enqueue(newJob("job-1", 5))
	job, _ := q.Dequeue()
	if err := q.Complete(job.ID); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	c := q.Counters()
	if c.Active != 0 || c.Completed != 1 {
		t.Errorf("Counters() = %+v, want Active=0 Completed=1", c)
	}
}

func TestQueue_FailRequeuesWithBackoffUntilAttemptsExhausted(t *testing.T) {
	q, err := New(Config{Dir: t.TempDir(), DefaultMaxAttempts: 3, BackoffBaseMs: 60_000})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	_ = q.Enqueue(newJob("job-1", 5))

	job, _ := q.Dequeue()
	if err := q.Fail(job.ID, errors.New("boom")); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}
	c := q.Counters()
	if c.Delayed != 1 {
		t.Errorf("Counters().Delayed = %d, want 1 after first failure", c.Delayed)
	}

	// Immediately after a failure the job should not be dequeuable yet
	// (backoff window has not elapsed).
	got, err := q.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got != nil {
		t.Errorf("Dequeue() during backoff window = %+v, want nil", got)
	}
}

func TestQueue_FailMovesToFailedSetAfterMaxAttempts(t *testing.T) {
	q, err := New(Config{Dir: t.TempDir(), DefaultMaxAttempts: 1, BackoffBaseMs: 10})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	_ = q.Enqueue(newJob("job-1", 5))
	job, _ := q.Dequeue()
	if err := q.Fail(job.ID, errors.New("permanent")); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}

	c := q.Counters()
	if c.Failed != 1 {
		t.Errorf("Counters().Failed = %d, want 1", c.Failed)
	}
	if c.Waiting != 0 || c.Delayed != 0 {
		t.Errorf("Counters() = %+v, want no waiting/delayed jobs after exhaustion", c)
	}
}

func TestQueue_FailOfUnknownJobReturnsErrUnknownJob(t *testing.T) {
	q := newTestQueue(t)
	if err := q.Fail("nope", errors.New("x")); !errors.Is(err, types.ErrUnknownJob) {
		t.Errorf("Fail() error = %v, want ErrUnknownJob", err)
	}
}

func TestQueue_SurvivesRestartViaReload(t *testing.T) {
	dir := t.TempDir()
	q1, err := New(Config{Dir: dir, DefaultMaxAttempts: 3, BackoffBaseMs: 10})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := q1.Enqueue(newJob("persisted", 7)); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	q2, err := New(Config{Dir: dir, DefaultMaxAttempts: 3, BackoffBaseMs: 10})
	if err != nil {
		t.Fatalf("New() (reload) error: %v", err)
	}
	got, err := q2.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue() after reload error: %v", err)
	}
	if got == nil || got.ID != "persisted" {
		t.Fatalf("Dequeue() after reload = %+v, want persisted", got)
	}
}

func TestQueue_ActiveJobAtCrashResumesAsWaiting(t *testing.T) {
	dir := t.TempDir()
	q1, err := New(Config{Dir: dir, DefaultMaxAttempts: 3, BackoffBaseMs: 10})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	_ = q1.Enqueue(newJob("in-flight", 5))
	if _, err := q1.Dequeue(); err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	// Simulate a crash: q1 is abandoned without Complete/Fail.

	q2, err := New(Config{Dir: dir, DefaultMaxAttempts: 3, BackoffBaseMs: 10})
	if err != nil {
		t.Fatalf("New() (reload) error: %v", err)
	}
	got, err := q2.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue() after crash reload error: %v", err)
	}
	if got == nil || got.ID != "in-flight" {
		t.Fatalf("Dequeue() after crash reload = %+v, want in-flight requeued", got)
	}
}

func TestQueue_FailedSetSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	q1, err := New(Config{Dir: dir, DefaultMaxAttempts: 1, BackoffBaseMs: 10})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	_ = q1.Enqueue(newJob("doomed", 5))
	job, _ := q1.Dequeue()
	_ = q1.Fail(job.ID, errors.New("permanent"))

	q2, err := New(Config{Dir: dir, DefaultMaxAttempts: 1, BackoffBaseMs: 10})
	if err != nil {
		t.Fatalf("New() (reload) error: %v", err)
	}
	if q2.Counters().Failed != 1 {
		t.Errorf("Counters().Failed after reload = %d, want 1", q2.Counters().Failed)
	}
}

func TestBackoffDelay_DoublesPerAttempt(t *testing.T) {
	cases := map[int]time.Duration{
		1: 10 * time.Millisecond,
		2: 20 * time.Millisecond,
		3: 40 * time.Millisecond,
	}
	for attempts, want := range cases {
		if got := backoffDelay(10, attempts); got != want {
			t.Errorf("backoffDelay(10, %d) = %v, want %v", attempts, got, want)
		}
	}
}
