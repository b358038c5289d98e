package app

// Application is the deterministic computation of the replicated service:
// given the state and a request, produce a reply, and for ordered requests
// mutate the state. Every replica runs the same Application against the same
// ordered request stream, so all of its methods must be deterministic.
//
// An Application may be invoked from multiple reader goroutines at once for
// unordered execution. It must not keep mutable context of its own; any
// concurrency control belongs to the state type, never the Application.
type Application[S any, O any, P any] interface {
	// InitialState produces the genesis state. An error here is fatal to
	// replica startup.
	InitialState() (S, error)

	// UnorderedExecution processes a read-only request. It must not
	// observably mutate state.
	UnorderedExecution(state S, req O) P

	// Update processes an ordered request, mutating state. This is the only
	// path by which state may change.
	Update(state S, req O) P
}

// BatchedUpdater is implemented by applications that supply their own batched
// ordered path. It must be observationally equivalent to the sequential
// fan-out of ApplyUpdateBatch for any input: same final state, same ordered
// replies.
type BatchedUpdater[S any, O any, P any] interface {
	UpdateBatch(state S, batch UpdateBatch[O]) BatchReplies[P]
}

// BatchedReader is the unordered counterpart of BatchedUpdater. An override
// must preserve the order and per-operation results of the fan-out.
type BatchedReader[S any, O any, P any] interface {
	UnorderedBatchedExecution(state S, batch UnorderedBatch[O]) BatchReplies[P]
}

// ApplyUpdateBatch executes an ordered batch. It uses the application's own
// batched path when present, and otherwise fans out to Update once per
// operation, in batch order, threading the same state through each call.
func ApplyUpdateBatch[S any, O any, P any](application Application[S, O, P], state S, batch UpdateBatch[O]) BatchReplies[P] {
	if batched, ok := application.(BatchedUpdater[S, O, P]); ok {
		return batched.UpdateBatch(state, batch)
	}

	replies := NewBatchReplies[P](batch.Len())
	for _, update := range batch.Updates() {
		payload := application.Update(state, update.Operation())
		replies.Add(update.From(), update.SessionID(), update.OperationID(), payload)
	}
	return replies
}

// ApplyUnorderedBatch executes a read-only batch, preserving input order in
// the replies.
func ApplyUnorderedBatch[S any, O any, P any](application Application[S, O, P], state S, batch UnorderedBatch[O]) BatchReplies[P] {
	if batched, ok := application.(BatchedReader[S, O, P]); ok {
		return batched.UnorderedBatchedExecution(state, batch)
	}

	replies := NewBatchReplies[P](batch.Len())
	for _, update := range batch.Updates() {
		payload := application.UnorderedExecution(state, update.Operation())
		replies.Add(update.From(), update.SessionID(), update.OperationID(), payload)
	}
	return replies
}
