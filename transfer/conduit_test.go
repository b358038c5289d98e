package transfer

import (
	"fmt"
	"testing"
	"time"

	"smr-exec/app"
	"smr-exec/executor"
	"smr-exec/kv"
	"smr-exec/state"
)

// engineReceiver exposes a running engine as a conduit receiver, the way
// server.Replica does.
type engineReceiver struct {
	engine *executor.Engine[*kv.Store, kv.Op, kv.Result]
	handle executor.ExecutorHandle[kv.Op]
}

func (r engineReceiver) InstallChannel() chan<- state.InstallStateMessage {
	return r.engine.InstallChannel()
}

func (r engineReceiver) PollStateChannel() error {
	return r.handle.PollStateChannel()
}

type noopReplySink struct{}

func (noopReplySink) DeliverReplies(replies app.BatchReplies[kv.Result]) {}

type noopCheckpointSink struct{}

func (noopCheckpointSink) DeliverCheckpoint(msg state.AppStateMessage) {}

type noopReadSink struct{}

func (noopReadSink) DeliverStateRead(to app.NodeID, descriptor state.StateDescriptor) {}

// A checkpoint can carry more parts than the engine's install channel
// buffers; delivery must complete anyway, with the engine draining the
// session while the conduit is still enqueueing it.
func TestLocalConduitDeliversSessionLargerThanInstallBuffer(t *testing.T) {
	const buckets = 300

	source, err := kv.NewInMemoryStore("source", buckets)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { source.Close() })
	for i := 0; i < buckets; i++ {
		if err := source.Put(fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	descriptor, err := source.PrepareCheckpoint()
	if err != nil {
		t.Fatal(err)
	}
	parts, err := source.GetParts(descriptor.Parts())
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != buckets {
		t.Fatalf("expected %d parts, got %d", buckets, len(parts))
	}

	engine, err := executor.NewEngine[*kv.Store, kv.Op, kv.Result](
		"b",
		kv.App{ReplicaID: "b", Buckets: buckets},
		noopReplySink{},
		noopCheckpointSink{},
		noopReadSink{},
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.State().Close() })
	engine.Start()
	t.Cleanup(engine.Stop)

	conduit := NewLocalConduit()
	if err := conduit.RegisterReplica("b", engineReceiver{engine: engine, handle: engine.Handle()}); err != nil {
		t.Fatal(err)
	}

	published := make(chan error, 1)
	go func() {
		published <- conduit.PublishCheckpoint("a", state.NewAppStateMessage(app.SeqNo(9), descriptor, parts))
	}()
	select {
	case err := <-published:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("checkpoint delivery stalled on a session larger than the install channel buffer")
	}

	deadline := time.Now().Add(5 * time.Second)
	for engine.LastApplied() != app.SeqNo(9) {
		if time.Now().After(deadline) {
			t.Fatalf("engine stuck at seq %d", engine.LastApplied())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if diff := descriptor.CompareDescriptors(engine.State().Descriptor()); len(diff) != 0 {
		t.Fatalf("%d parts still differ after installation", len(diff))
	}
}
