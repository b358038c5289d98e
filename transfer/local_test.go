package transfer

import (
	"testing"

	"smr-exec/app"
	"smr-exec/kv"
	"smr-exec/state"
)

// sessionRecorder captures the installation session a conduit replays.
type sessionRecorder struct {
	installCh chan state.InstallStateMessage
	polled    int
}

func newSessionRecorder() *sessionRecorder {
	return &sessionRecorder{installCh: make(chan state.InstallStateMessage, 64)}
}

func (r *sessionRecorder) InstallChannel() chan<- state.InstallStateMessage {
	return r.installCh
}

func (r *sessionRecorder) PollStateChannel() error {
	r.polled++
	return nil
}

func (r *sessionRecorder) drain() []state.InstallStateMessage {
	var msgs []state.InstallStateMessage
	for {
		select {
		case msg := <-r.installCh:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func testCheckpoint(t *testing.T) state.AppStateMessage {
	t.Helper()
	store, err := kv.NewInMemoryStore("source", 2)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Put("key", []byte("value")); err != nil {
		t.Fatal(err)
	}
	descriptor, err := store.PrepareCheckpoint()
	if err != nil {
		t.Fatal(err)
	}
	parts, err := store.GetParts(descriptor.Parts())
	if err != nil {
		t.Fatal(err)
	}
	return state.NewAppStateMessage(app.SeqNo(5), descriptor, parts)
}

func TestLocalConduitReplaysFullSession(t *testing.T) {
	conduit := NewLocalConduit()
	receiver := newSessionRecorder()
	if err := conduit.RegisterReplica("b", receiver); err != nil {
		t.Fatal(err)
	}

	checkpoint := testCheckpoint(t)
	if err := conduit.PublishCheckpoint("a", checkpoint); err != nil {
		t.Fatal(err)
	}

	msgs := receiver.drain()
	if len(msgs) != 2+len(checkpoint.AlteredParts()) {
		t.Fatalf("expected %d session messages, got %d", 2+len(checkpoint.AlteredParts()), len(msgs))
	}
	if msgs[0].Kind() != state.InstallDescriptor {
		t.Fatalf("session must open with a descriptor, got %s", msgs[0].Kind())
	}
	if msgs[0].SequenceNumber() != checkpoint.SequenceNumber() {
		t.Fatalf("session seq %d, expected %d", msgs[0].SequenceNumber(), checkpoint.SequenceNumber())
	}
	for _, msg := range msgs[1 : len(msgs)-1] {
		if msg.Kind() != state.InstallParts {
			t.Fatalf("expected parts message, got %s", msg.Kind())
		}
	}
	if msgs[len(msgs)-1].Kind() != state.InstallDone {
		t.Fatalf("session must end with Done, got %s", msgs[len(msgs)-1].Kind())
	}
	if receiver.polled != 1 {
		t.Fatalf("expected exactly one poll hint, got %d", receiver.polled)
	}
}

func TestLocalConduitSkipsTheEmitter(t *testing.T) {
	conduit := NewLocalConduit()
	emitter := newSessionRecorder()
	if err := conduit.RegisterReplica("a", emitter); err != nil {
		t.Fatal(err)
	}

	if err := conduit.PublishCheckpoint("a", testCheckpoint(t)); err != nil {
		t.Fatal(err)
	}
	if msgs := emitter.drain(); len(msgs) != 0 {
		t.Fatalf("emitter received its own checkpoint: %d messages", len(msgs))
	}
}

func TestLocalConduitRejectsDuplicateRegistration(t *testing.T) {
	conduit := NewLocalConduit()
	if err := conduit.RegisterReplica("a", newSessionRecorder()); err != nil {
		t.Fatal(err)
	}
	if err := conduit.RegisterReplica("a", newSessionRecorder()); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}
