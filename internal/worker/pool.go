package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/schemaforge/schemaforge/internal/queue"
	"github.com/schemaforge/schemaforge/internal/types"
)

// DefaultShutdownTimeout is the graceful-shutdown deadline applied when a
// caller does not attach its own deadline to the context passed to Shutdown
// (§5 "graceful-shutdown deadline (default 10s)").
const DefaultShutdownTimeout = 10 * time.Second

// pollInterval bounds how long an idle worker sleeps between empty
// dequeues, so an empty queue does not spin a goroutine at 100% CPU.
const pollInterval = 200 * time.Millisecond

// Pool runs a bounded number of goroutines draining jobs from a Queue and
// running them through a Worker (§4.J "Up to N workers; default 5. Workers
// are lock-independent across distinct kinds"). Grounded on the
// listener/Serve/GracefulStop lifecycle of a request-serving server in the
// retrieval pack, adapted from one long-lived listener to N pull-loop
// goroutines over a Queue.
type Pool struct {
	worker      *Worker
	queue       *queue.Queue
	concurrency int
	logger      *log.Logger

	wg   sync.WaitGroup
	stop chan struct{}
}

// NewPool constructs a Pool. concurrency <= 0 falls back to
// types.DefaultQueueConcurrency. A nil logger discards log output.
func NewPool(w *Worker, q *queue.Queue, concurrency int, logger *log.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = types.DefaultQueueConcurrency
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Pool{
		worker:      w,
		queue:       q,
		concurrency: concurrency,
		logger:      logger,
		stop:        make(chan struct{}),
	}
}

// Run starts concurrency pull-loop goroutines and blocks until ctx is
// cancelled. It does not wait for in-flight jobs; Shutdown stops the loops
// and waits for those jobs to drain.
func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	<-ctx.Done()
}

// Shutdown signals every loop to stop pulling new jobs and waits for
// in-flight ProcessPayload calls to finish, bounded by ctx's deadline (or
// DefaultShutdownTimeout if ctx carries none).
func (p *Pool) Shutdown(ctx context.Context) error {
	close(p.stop)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultShutdownTimeout)
		defer cancel()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker: graceful shutdown did not complete: %w", ctx.Err())
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		default:
		}

		job, err := p.queue.Dequeue()
		if err != nil {
			p.logger.Printf("worker %d: dequeue failed: %v", id, err)
			time.Sleep(pollInterval)
			continue
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		p.process(id, job)
	}
}

func (p *Pool) process(workerID int, job *queue.Job) {
	err := p.worker.ProcessPayload(job.Headers, job.Payload)
	if err == nil {
		if cerr := p.queue.Complete(job.ID); cerr != nil {
			p.logger.Printf("worker %d: complete failed for job %s: %v", workerID, job.ID, cerr)
		}
		return
	}

	p.logger.Printf("worker %d: process payload failed for job %s: %v", workerID, job.ID, err)

	// A malformed payload is permanent (§7): it is rejected at the Worker's
	// normal ingress boundary, but if one reaches here it must be recorded
	// as failed without burning the retry budget on a job that can never
	// succeed.
	if errors.Is(err, types.ErrMalformedPayload) {
		job.Attempts = job.MaxAttempts
	}
	if ferr := p.queue.Fail(job.ID, err); ferr != nil {
		p.logger.Printf("worker %d: fail failed for job %s: %v", workerID, job.ID, ferr)
	}
}
