package types

import "errors"

// Sentinel errors shared across pipeline stages. The Worker returns
// ErrMalformedPayload and the Pool treats it as permanent; the queue
// returns ErrUnknownJob. The pure components (detect, truncate, classify,
// analyze, compare, generate) return no errors, and I/O components
// (store, queue, eventlog) otherwise wrap their own native errors
// (spec §7).
var (
	// ErrMalformedPayload indicates a non-JSON or non-object root reached
	// the Worker. The ingress is supposed to reject these before enqueue;
	// seeing one here is treated as permanent, not retried (§7).
	ErrMalformedPayload = errors.New("payload is not a JSON object")

	// ErrKindNotFound indicates no schema record exists for a kind. No
	// package returns it: Store.Load reports a missing record as (nil, nil).
	ErrKindNotFound = errors.New("schema record not found")

	// ErrUnknownJob indicates Queue.Fail referenced a job id the queue has
	// no active record of (already completed, failed, or never dequeued).
	ErrUnknownJob = errors.New("job not found")

	// ErrQueueClosed indicates an operation on a closed queue. No package
	// returns it: the Queue has no Close method.
	ErrQueueClosed = errors.New("queue closed")
)
