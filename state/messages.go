package state

import (
	"fmt"

	"smr-exec/app"
)

// InstallKind tags the messages of an installation session. A session is
// exactly one Descriptor, zero or more Parts deliveries, then one Done.
type InstallKind int

const (
	InstallDescriptor InstallKind = iota
	InstallParts
	InstallDone
)

func (k InstallKind) String() string {
	switch k {
	case InstallDescriptor:
		return "InstallDescriptor"
	case InstallParts:
		return "InstallParts"
	case InstallDone:
		return "InstallDone"
	default:
		return fmt.Sprintf("unknown install kind %d", int(k))
	}
}

// InstallStateMessage is one message of an installation session, delivered by
// the state-transfer subsystem to the execution engine. The session sequence
// number (the position the installed state corresponds to) travels with the
// descriptor message.
type InstallStateMessage struct {
	kind       InstallKind
	seqNo      app.SeqNo
	descriptor StateDescriptor
	parts      []StatePart
}

func NewInstallDescriptor(seqNo app.SeqNo, descriptor StateDescriptor) InstallStateMessage {
	return InstallStateMessage{kind: InstallDescriptor, seqNo: seqNo, descriptor: descriptor}
}

func NewInstallParts(parts ...StatePart) InstallStateMessage {
	return InstallStateMessage{kind: InstallParts, parts: parts}
}

func NewInstallDone() InstallStateMessage {
	return InstallStateMessage{kind: InstallDone}
}

func (m InstallStateMessage) Kind() InstallKind           { return m.kind }
func (m InstallStateMessage) SequenceNumber() app.SeqNo   { return m.seqNo }
func (m InstallStateMessage) Descriptor() StateDescriptor { return m.descriptor }
func (m InstallStateMessage) Parts() []StatePart          { return m.parts }

// AppStateMessage is a self-contained checkpoint emitted by the execution
// engine toward the state-transfer subsystem: the descriptor of the snapshot,
// the parts that changed since the last reported checkpoint, and the sequence
// number of the last batch applied before the snapshot was taken. That
// sequence number is the join point a recovering replica resumes from.
type AppStateMessage struct {
	seqNo        app.SeqNo
	descriptor   StateDescriptor
	alteredParts []StatePart
}

func NewAppStateMessage(seqNo app.SeqNo, descriptor StateDescriptor, alteredParts []StatePart) AppStateMessage {
	return AppStateMessage{
		seqNo:        seqNo,
		descriptor:   descriptor,
		alteredParts: alteredParts,
	}
}

func (m AppStateMessage) SequenceNumber() app.SeqNo   { return m.seqNo }
func (m AppStateMessage) Descriptor() StateDescriptor { return m.descriptor }
func (m AppStateMessage) AlteredParts() []StatePart   { return m.alteredParts }
