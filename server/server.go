package server

import (
	"fmt"
	"log"
	"time"

	"smr-exec/app"
	"smr-exec/executor"
	"smr-exec/state"
	"smr-exec/transfer"
)

const flushInterval = 250 * time.Millisecond

// Replica bundles an execution engine with a transfer conduit and the demo
// sequencer, so one process hosts a complete, runnable replica.
type Replica[S state.DivisibleState, O any, P any] struct {
	ID string

	engine    *executor.Engine[S, O, P]
	handle    executor.ExecutorHandle[O]
	sequencer *Sequencer[O]
	conduit   transfer.Conduit

	quitCh chan struct{}
}

// NewReplica builds the engine around the application's initial state, hooks
// its checkpoints into the conduit, and registers the replica to receive
// installation sessions from its peers.
func NewReplica[S state.DivisibleState, O any, P any](
	id string,
	application app.Application[S, O, P],
	conduit transfer.Conduit,
	replySink executor.ReplySink[P],
	checkpointEvery int,
) (*Replica[S, O, P], error) {
	engine, err := executor.NewEngine(
		id,
		application,
		replySink,
		conduitCheckpointSink{from: id, conduit: conduit},
		descriptorReadSink{id: id},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine for %s: %w", id, err)
	}

	replica := &Replica[S, O, P]{
		ID:      id,
		engine:  engine,
		handle:  engine.Handle(),
		conduit: conduit,
		quitCh:  make(chan struct{}),
	}
	replica.sequencer = NewSequencer(replica.handle, checkpointEvery)

	if err := conduit.RegisterReplica(id, replica); err != nil {
		return nil, fmt.Errorf("failed to register %s with conduit: %w", id, err)
	}
	return replica, nil
}

func (r *Replica[S, O, P]) Log(format string, args ...any) {
	log.Printf("REPLICA-"+r.ID+": "+format, args...)
}

func (r *Replica[S, O, P]) Engine() *executor.Engine[S, O, P] {
	return r.engine
}

func (r *Replica[S, O, P]) Handle() executor.ExecutorHandle[O] {
	return r.handle
}

// Propose feeds one operation into the local sequencer.
func (r *Replica[S, O, P]) Propose(from app.NodeID, sessionID, operationID app.SeqNo, op O) {
	r.sequencer.Propose(from, sessionID, operationID, op)
}

func (r *Replica[S, O, P]) Start() {
	r.Log("starting")
	r.engine.Start()
	go func() {
		flushTicker := time.NewTicker(flushInterval)
		defer flushTicker.Stop()
		for {
			select {
			case <-r.quitCh:
				return
			case <-flushTicker.C:
				if err := r.sequencer.Flush(); err != nil {
					r.Log("flush failed: %s", err)
					return
				}
			case fault := <-r.engine.Faults():
				r.Log("engine fault: %s", fault)
			}
		}
	}()
}

func (r *Replica[S, O, P]) Stop() {
	close(r.quitCh)
	r.engine.Stop()
}

// InstallChannel and PollStateChannel make Replica the conduit's Receiver.
func (r *Replica[S, O, P]) InstallChannel() chan<- state.InstallStateMessage {
	return r.engine.InstallChannel()
}

func (r *Replica[S, O, P]) PollStateChannel() error {
	return r.handle.PollStateChannel()
}

// conduitCheckpointSink forwards engine checkpoints into the conduit.
type conduitCheckpointSink struct {
	from    string
	conduit transfer.Conduit
}

func (s conduitCheckpointSink) DeliverCheckpoint(msg state.AppStateMessage) {
	if err := s.conduit.PublishCheckpoint(s.from, msg); err != nil {
		log.Printf("REPLICA-%s: failed to publish checkpoint at seq %d: %s", s.from, msg.SequenceNumber(), err)
	}
}

// descriptorReadSink answers direct state reads by logging the descriptor;
// routing reads back to a requester is the network layer's job, which the
// demo replica does not carry.
type descriptorReadSink struct {
	id string
}

func (s descriptorReadSink) DeliverStateRead(to app.NodeID, descriptor state.StateDescriptor) {
	log.Printf("REPLICA-%s: state read for node %d, %d parts", s.id, to, len(descriptor.Parts()))
}

// LogReplySink logs reply batches. Reply routing belongs to the embedding
// network layer; the demo replica only observes them.
type LogReplySink[P any] struct {
	ID string
}

func (s LogReplySink[P]) DeliverReplies(replies app.BatchReplies[P]) {
	log.Printf("REPLICA-%s: %d replies ready", s.ID, replies.Len())
}
