package executor

import (
	"time"

	"smr-exec/app"
)

// ExecutorHandle is the producer-facing API of the engine: a thin wrapper
// that turns domain calls into sends on the bounded request channel. A send
// blocks while the channel is full (the system's backpressure) and fails with
// ErrExecutorClosed once the engine is shut down.
//
// The handle is a value; copies share the same channel and may be used from
// concurrent producers. Sends from a single goroutine are observed by the
// engine in the order they were made.
type ExecutorHandle[O any] struct {
	requests chan<- ExecutionRequest[O]
	done     <-chan struct{}
}

func (h ExecutorHandle[O]) send(req ExecutionRequest[O]) error {
	// never send on a channel that may be closed under us; shutdown is
	// signalled through done instead
	select {
	case <-h.done:
		return ErrExecutorClosed
	default:
	}
	select {
	case h.requests <- req:
		return nil
	case <-h.done:
		return ErrExecutorClosed
	}
}

// PollStateChannel hints that the install channel has pending traffic.
func (h ExecutorHandle[O]) PollStateChannel() error {
	return h.send(ExecutionRequest[O]{kind: PollStateChannel})
}

// CatchUpToQuorum queues a contiguous run of missed batches for bulk apply.
func (h ExecutorHandle[O]) CatchUpToQuorum(batches []app.UpdateBatch[O]) error {
	return h.send(ExecutionRequest[O]{kind: CatchUp, batches: batches})
}

// QueueUpdate queues one ordered batch for execution.
func (h ExecutorHandle[O]) QueueUpdate(batch app.UpdateBatch[O]) error {
	return h.send(ExecutionRequest[O]{kind: Update, batch: batch, enqueuedAt: time.Now()})
}

// QueueUpdateAndGetAppstate is QueueUpdate plus a checkpoint of the resulting
// state, reported toward the state-transfer subsystem.
func (h ExecutorHandle[O]) QueueUpdateAndGetAppstate(batch app.UpdateBatch[O]) error {
	return h.send(ExecutionRequest[O]{kind: UpdateAndGetAppstate, batch: batch, enqueuedAt: time.Now()})
}

// QueueUpdateUnordered queues a batch of read-only requests.
func (h ExecutorHandle[O]) QueueUpdateUnordered(batch app.UnorderedBatch[O]) error {
	return h.send(ExecutionRequest[O]{kind: ExecuteUnordered, unordered: batch})
}

// RequestStateRead queues a direct state read on behalf of a node.
func (h ExecutorHandle[O]) RequestStateRead(from app.NodeID) error {
	return h.send(ExecutionRequest[O]{kind: Read, from: from})
}
