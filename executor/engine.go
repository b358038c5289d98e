package executor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antithesishq/antithesis-sdk-go/assert"

	"smr-exec/app"
	"smr-exec/state"
)

const (
	requestChannelBufferSz int = 1024
	installChannelBufferSz int = 256
	faultChannelBufferSz   int = 64
)

// Mode is the engine's execution mode.
type Mode int

const (
	Normal Mode = iota
	CatchingUp
	InstallingState
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "NORMAL"
	case CatchingUp:
		return "CATCHING-UP"
	case InstallingState:
		return "INSTALLING-STATE"
	default:
		return "unknown mode"
	}
}

// ReplySink receives the replies of an executed batch. Implementations must
// tolerate concurrent delivery: unordered batches reply from reader
// goroutines.
type ReplySink[P any] interface {
	DeliverReplies(replies app.BatchReplies[P])
}

// CheckpointSink receives checkpoints bound for the state-transfer subsystem.
type CheckpointSink interface {
	DeliverCheckpoint(msg state.AppStateMessage)
}

// ReadSink answers direct state reads with the current state descriptor.
type ReadSink interface {
	DeliverStateRead(to app.NodeID, descriptor state.StateDescriptor)
}

// Engine is the ordered consumer of execution requests. Exactly one ordered
// step (update batch, catch-up batch, or installation step) touches the state
// at a time, in the order requests were dequeued; that sequential application
// is what keeps replicas byte-identical. Unordered read-only batches fan out
// to reader goroutines and are drained before the next ordered step.
type Engine[S state.DivisibleState, O any, P any] struct {
	id          string
	application app.Application[S, O, P]
	state       S

	requests  chan ExecutionRequest[O]
	installCh chan state.InstallStateMessage
	quitCh    chan struct{}
	stopOnce  sync.Once
	faults    chan error

	mode        Mode
	lastApplied atomic.Uint64
	// descriptor last reported through the checkpoint sink, nil before the
	// first checkpoint
	lastCheckpoint state.StateDescriptor

	replySink      ReplySink[P]
	checkpointSink CheckpointSink
	readSink       ReadSink

	readers sync.WaitGroup
}

// NewEngine builds an engine around the application's genesis state. An
// initial-state error is fatal to replica startup and is returned as-is.
func NewEngine[S state.DivisibleState, O any, P any](
	id string,
	application app.Application[S, O, P],
	replySink ReplySink[P],
	checkpointSink CheckpointSink,
	readSink ReadSink,
) (*Engine[S, O, P], error) {
	genesis, err := application.InitialState()
	if err != nil {
		return nil, fmt.Errorf("failed to build initial state: %w", err)
	}

	return &Engine[S, O, P]{
		id:             id,
		application:    application,
		state:          genesis,
		requests:       make(chan ExecutionRequest[O], requestChannelBufferSz),
		installCh:      make(chan state.InstallStateMessage, installChannelBufferSz),
		quitCh:         make(chan struct{}),
		faults:         make(chan error, faultChannelBufferSz),
		mode:           Normal,
		replySink:      replySink,
		checkpointSink: checkpointSink,
		readSink:       readSink,
	}, nil
}

func (e *Engine[S, O, P]) Log(format string, args ...any) {
	fmt.Printf("EXEC-"+e.id+": "+format+"\n", args...)
}

// Handle returns a producer handle over the request channel.
func (e *Engine[S, O, P]) Handle() ExecutorHandle[O] {
	return ExecutorHandle[O]{requests: e.requests, done: e.quitCh}
}

// InstallChannel is the companion channel the state-transfer subsystem feeds
// installation sessions into, paired with ExecutorHandle.PollStateChannel.
func (e *Engine[S, O, P]) InstallChannel() chan<- state.InstallStateMessage {
	return e.installCh
}

// Faults reports protocol violations and consistency errors the engine
// rejected. The channel is buffered; the engine never blocks on it.
func (e *Engine[S, O, P]) Faults() <-chan error {
	return e.faults
}

func (e *Engine[S, O, P]) LastApplied() app.SeqNo {
	return app.SeqNo(e.lastApplied.Load())
}

func (e *Engine[S, O, P]) Mode() Mode {
	return e.mode
}

// State exposes the underlying state instance. Reads are only safe through
// the state's own synchronization.
func (e *Engine[S, O, P]) State() S {
	return e.state
}

func (e *Engine[S, O, P]) Start() {
	go func() {
		for {
			select {
			case <-e.quitCh:
				return
			default:
				e.processOne()
			}
		}
	}()
}

func (e *Engine[S, O, P]) Stop() {
	e.stopOnce.Do(func() {
		close(e.quitCh)
	})
}

func (e *Engine[S, O, P]) processOne() {
	select {
	case req := <-e.requests:
		if err := e.handleRequest(req); err != nil {
			e.reportFault(err)
		}
	case <-e.quitCh:
	}
}

func (e *Engine[S, O, P]) handleRequest(req ExecutionRequest[O]) error {
	switch req.kind {
	case PollStateChannel:
		return e.pollStateChannel()
	case CatchUp:
		return e.catchUp(req.batches)
	case Update:
		return e.applyOrdered(req.batch, req.enqueuedAt, false)
	case UpdateAndGetAppstate:
		return e.applyOrdered(req.batch, req.enqueuedAt, true)
	case ExecuteUnordered:
		e.executeUnordered(req.unordered)
		return nil
	case Read:
		e.readSink.DeliverStateRead(req.from, e.state.Descriptor())
		return nil
	default:
		assert.Unreachable(
			"Unknown execution request kind",
			map[string]any{"kind": int(req.kind)},
		)
		return fmt.Errorf("unknown execution request kind %d", int(req.kind))
	}
}

// applyOrdered executes one ordered batch. The batch must sit exactly one
// position past the last applied sequence number; anything else is a protocol
// bug in the producer and is rejected, never skipped over or reordered.
func (e *Engine[S, O, P]) applyOrdered(batch app.UpdateBatch[O], enqueuedAt time.Time, checkpoint bool) error {
	expected := e.LastApplied() + 1
	if batch.SequenceNumber() != expected {
		assert.Unreachable(
			"Ordered batch out of sequence",
			map[string]any{
				"batchSeqNo":  uint64(batch.SequenceNumber()),
				"lastApplied": uint64(e.LastApplied()),
			},
		)
		return fmt.Errorf("%w: got %d, expected %d", ErrSequenceGap, batch.SequenceNumber(), expected)
	}

	// no unordered reader may overlap a state mutation
	e.readers.Wait()

	replies := app.ApplyUpdateBatch(e.application, e.state, batch)
	e.lastApplied.Store(uint64(batch.SequenceNumber()))

	if !enqueuedAt.IsZero() {
		e.Log("applied batch %d (%d ops) after %s queued", batch.SequenceNumber(), batch.Len(), time.Since(enqueuedAt))
	}

	e.replySink.DeliverReplies(replies)

	if checkpoint {
		return e.emitCheckpoint()
	}
	return nil
}

// catchUp bulk-applies a run of missed batches. The list must already be
// contiguous and start right after the last applied sequence number; the
// engine validates that up front and rejects the whole list otherwise,
// applying nothing.
func (e *Engine[S, O, P]) catchUp(batches []app.UpdateBatch[O]) error {
	next := e.LastApplied() + 1
	for _, batch := range batches {
		if batch.SequenceNumber() != next {
			assert.Unreachable(
				"Catch-up list not contiguous",
				map[string]any{
					"batchSeqNo":  uint64(batch.SequenceNumber()),
					"expected":    uint64(next),
					"lastApplied": uint64(e.LastApplied()),
				},
			)
			return fmt.Errorf("%w: batch %d where %d was expected", ErrCatchUpNotContiguous, batch.SequenceNumber(), next)
		}
		next++
	}

	e.mode = CatchingUp
	e.Log("catching up %d batches from %d", len(batches), e.LastApplied()+1)
	for _, batch := range batches {
		if err := e.applyOrdered(batch, time.Time{}, false); err != nil {
			e.mode = Normal
			return err
		}
	}
	e.mode = Normal
	return nil
}

// executeUnordered runs a read-only batch on its own reader goroutine.
// Readers never mutate state (Application contract), so they may overlap each
// other freely; applyOrdered and installation wait for them to drain.
func (e *Engine[S, O, P]) executeUnordered(batch app.UnorderedBatch[O]) {
	e.readers.Add(1)
	go func() {
		defer e.readers.Done()
		replies := app.ApplyUnorderedBatch(e.application, e.state, batch)
		e.replySink.DeliverReplies(replies)
	}()
}

// emitCheckpoint runs the checkpoint emission protocol: finalize a fresh
// descriptor, diff it against the last reported one (full part set on the
// first checkpoint), fetch the changed parts and hand the whole snapshot to
// the checkpoint sink tagged with the join sequence number.
func (e *Engine[S, O, P]) emitCheckpoint() error {
	descriptor, err := e.state.PrepareCheckpoint()
	if err != nil {
		return fmt.Errorf("checkpoint at seq %d not taken: %w", e.LastApplied(), err)
	}

	var changed []state.PartDescription
	if e.lastCheckpoint == nil {
		changed = descriptor.Parts()
	} else {
		changed = descriptor.CompareDescriptors(e.lastCheckpoint)
	}

	var parts []state.StatePart
	if len(changed) > 0 {
		parts, err = e.state.GetParts(changed)
		if err != nil {
			return fmt.Errorf("checkpoint at seq %d not taken: %w", e.LastApplied(), err)
		}
	}

	e.checkpointSink.DeliverCheckpoint(state.NewAppStateMessage(e.LastApplied(), descriptor, parts))
	e.lastCheckpoint = descriptor
	e.Log("checkpoint at seq %d reported, %d altered parts", e.LastApplied(), len(parts))
	return nil
}

// pollStateChannel checks the install channel and, if a session has started,
// runs it to completion before any further ordered request is dequeued.
func (e *Engine[S, O, P]) pollStateChannel() error {
	select {
	case msg := <-e.installCh:
		if msg.Kind() != state.InstallDescriptor {
			assert.Unreachable(
				"Install session did not start with a descriptor",
				map[string]any{"kind": msg.Kind().String()},
			)
			return fmt.Errorf("%w: session opened with %s", ErrUnexpectedInstallMessage, msg.Kind())
		}
		return e.runInstallSession(msg)
	default:
		// hint was stale, nothing waiting
		return nil
	}
}

// runInstallSession consumes one installation session, descriptor through
// Done. Ordered requests stay queued on the request channel for the whole
// session so no update is ever applied on top of a partially installed state;
// an aborted session leaves lastApplied untouched and surfaces an error for
// the transfer layer to restart from a fresh descriptor.
func (e *Engine[S, O, P]) runInstallSession(opening state.InstallStateMessage) error {
	e.mode = InstallingState
	defer func() { e.mode = Normal }()

	target := opening.Descriptor()
	sessionSeq := opening.SequenceNumber()
	e.Log("installing state for seq %d, %d parts expected", sessionSeq, len(target.Parts()))

	e.readers.Wait()

	for {
		select {
		case msg := <-e.installCh:
			switch msg.Kind() {
			case state.InstallParts:
				if err := e.state.AcceptParts(msg.Parts()); err != nil {
					return fmt.Errorf("install session for seq %d aborted: %w", sessionSeq, err)
				}
			case state.InstallDone:
				if diff := target.CompareDescriptors(e.state.Descriptor()); len(diff) > 0 {
					assert.Unreachable(
						"Install session finished on a mismatched descriptor",
						map[string]any{
							"sessionSeqNo": uint64(sessionSeq),
							"missingParts": len(diff),
						},
					)
					return fmt.Errorf("%w: %d parts still differ at seq %d", ErrInstallDescriptorMismatch, len(diff), sessionSeq)
				}
				e.lastApplied.Store(uint64(sessionSeq))
				e.lastCheckpoint = target
				e.Log("state installed, resuming at seq %d", sessionSeq)
				return nil
			case state.InstallDescriptor:
				return fmt.Errorf("%w: new descriptor before Done", ErrUnexpectedInstallMessage)
			}
		case <-e.quitCh:
			return nil
		}
	}
}

func (e *Engine[S, O, P]) reportFault(err error) {
	e.Log("fault: %s", err)
	select {
	case e.faults <- err:
	default:
		// fault channel full, the log line is all that remains
	}
}
