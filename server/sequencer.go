package server

import (
	"sync"

	"smr-exec/app"
	"smr-exec/executor"
)

// Sequencer is a deliberately naive stand-in for the external consensus
// layer: it collects proposals, assigns contiguous sequence numbers, and
// queues the resulting batches on the executor handle. Every
// checkpointEvery-th batch is queued with a checkpoint request.
//
// It exists so a replica is runnable end to end; it provides none of the
// agreement a real ordering protocol would.
type Sequencer[O any] struct {
	sync.Mutex

	handle          executor.ExecutorHandle[O]
	nextSeq         app.SeqNo
	checkpointEvery int
	batchesFlushed  int

	pending []app.Update[O]
}

func NewSequencer[O any](handle executor.ExecutorHandle[O], checkpointEvery int) *Sequencer[O] {
	return &Sequencer[O]{
		handle:          handle,
		nextSeq:         app.SeqNoInit + 1,
		checkpointEvery: checkpointEvery,
	}
}

// Propose adds one operation to the batch under construction.
func (s *Sequencer[O]) Propose(from app.NodeID, sessionID, operationID app.SeqNo, op O) {
	s.Lock()
	defer s.Unlock()
	s.pending = append(s.pending, app.NewUpdate(from, sessionID, operationID, op))
}

// Flush seals the pending proposals into the next ordered batch and queues
// it. A flush with nothing pending is a no-op.
func (s *Sequencer[O]) Flush() error {
	s.Lock()
	defer s.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	batch := app.NewUpdateBatchWithCap[O](s.nextSeq, len(s.pending))
	for _, update := range s.pending {
		batch.Add(update.From(), update.SessionID(), update.OperationID(), update.Operation())
	}
	s.pending = s.pending[:0]

	s.batchesFlushed++
	var err error
	if s.checkpointEvery > 0 && s.batchesFlushed%s.checkpointEvery == 0 {
		err = s.handle.QueueUpdateAndGetAppstate(batch)
	} else {
		err = s.handle.QueueUpdate(batch)
	}
	if err != nil {
		return err
	}

	s.nextSeq++
	return nil
}
