package server

import (
	"errors"
	"testing"
	"time"

	"smr-exec/app"
	"smr-exec/executor"
	"smr-exec/kv"
	"smr-exec/state"
	"smr-exec/transfer"
)

func newTestEngine(t *testing.T) *executor.Engine[*kv.Store, kv.Op, kv.Result] {
	t.Helper()
	engine, err := executor.NewEngine[*kv.Store, kv.Op, kv.Result](
		"test",
		kv.App{ReplicaID: "test", Buckets: 2},
		LogReplySink[kv.Result]{ID: "test"},
		conduitCheckpointSink{from: "test", conduit: noopConduit{}},
		descriptorReadSink{id: "test"},
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.State().Close() })
	return engine
}

type noopConduit struct{}

func (noopConduit) PublishCheckpoint(from string, msg state.AppStateMessage) error { return nil }
func (noopConduit) RegisterReplica(id string, receiver transfer.Receiver) error    { return nil }

func TestSequencerAssignsContiguousSequenceNumbers(t *testing.T) {
	engine := newTestEngine(t)
	sequencer := NewSequencer(engine.Handle(), 0)

	// empty flush is a no-op and must not burn a sequence number
	if err := sequencer.Flush(); err != nil {
		t.Fatal(err)
	}
	if sequencer.nextSeq != app.SeqNo(1) {
		t.Fatalf("empty flush advanced nextSeq to %d", sequencer.nextSeq)
	}

	for round := 1; round <= 3; round++ {
		sequencer.Propose(app.NodeID(1), 1, app.SeqNo(round), kv.Op{Kind: kv.OpPut, Key: "k", Value: []byte("v")})
		if err := sequencer.Flush(); err != nil {
			t.Fatal(err)
		}
	}
	if sequencer.nextSeq != app.SeqNo(4) {
		t.Fatalf("expected nextSeq 4 after three flushes, got %d", sequencer.nextSeq)
	}

	engine.Start()
	defer engine.Stop()
	deadline := time.Now().Add(5 * time.Second)
	for engine.LastApplied() != app.SeqNo(3) {
		if time.Now().After(deadline) {
			t.Fatalf("engine stuck at seq %d", engine.LastApplied())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSequencerFailsOnceEngineStops(t *testing.T) {
	engine := newTestEngine(t)
	sequencer := NewSequencer(engine.Handle(), 0)

	engine.Start()
	engine.Stop()

	sequencer.Propose(app.NodeID(1), 1, 1, kv.Op{Kind: kv.OpPut, Key: "k"})
	if err := sequencer.Flush(); !errors.Is(err, executor.ErrExecutorClosed) {
		t.Fatalf("expected ErrExecutorClosed, got %v", err)
	}
}
