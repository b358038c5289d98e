package transfer

import (
	"smr-exec/state"
)

// Receiver is the executor-facing end of a conduit: the install channel the
// engine drains during an installation session, plus the poll hint that makes
// the engine look at it.
type Receiver interface {
	InstallChannel() chan<- state.InstallStateMessage
	PollStateChannel() error
}

// Conduit ships checkpoints between the replicas of a group and replays
// received checkpoints into local engines as installation sessions.
//
// A checkpoint carries only the parts altered since the emitter's previous
// checkpoint; the conduit replays it verbatim. A full state-transfer protocol
// would additionally diff the received descriptor against the receiver's own
// and fetch whatever else differs, which is outside this reference conduit.
type Conduit interface {
	PublishCheckpoint(from string, msg state.AppStateMessage) error
	RegisterReplica(id string, receiver Receiver) error
}

// Codec serializes descriptors and parts for conduits that cross a network.
type Codec interface {
	EncodeDescriptor(descriptor state.StateDescriptor) ([]byte, error)
	DecodeDescriptor(data []byte) (state.StateDescriptor, error)
	EncodePart(part state.StatePart) ([]byte, error)
	DecodePart(data []byte) (state.StatePart, error)
}

// deliverSession replays one checkpoint into a receiver as a complete
// installation session: descriptor, one parts message per part, Done. The
// poll hint goes out right after the descriptor so the engine drains the
// session while it is still being enqueued; a session can hold more parts
// than the install channel buffers.
func deliverSession(receiver Receiver, msg state.AppStateMessage) error {
	installCh := receiver.InstallChannel()
	installCh <- state.NewInstallDescriptor(msg.SequenceNumber(), msg.Descriptor())
	if err := receiver.PollStateChannel(); err != nil {
		return err
	}
	for _, part := range msg.AlteredParts() {
		installCh <- state.NewInstallParts(part)
	}
	installCh <- state.NewInstallDone()
	return nil
}
