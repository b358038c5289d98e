package app

import "encoding/json"

// NodeID identifies a replica or client node in the replication group.
type NodeID uint32

// SeqNo is a totally ordered sequence number. Ordered batches carry the
// sequence number assigned by the consensus layer; sessions and operations
// reuse the same counter type.
type SeqNo uint64

// SeqNoInit is the position of an engine that has not applied anything yet.
// The first ordered batch is SeqNoInit + 1.
const SeqNoInit SeqNo = 0

// Update is a single client operation to be executed. Immutable once built.
type Update[O any] struct {
	from        NodeID
	sessionID   SeqNo
	operationID SeqNo
	operation   O
}

func NewUpdate[O any](from NodeID, sessionID, operationID SeqNo, operation O) Update[O] {
	return Update[O]{
		from:        from,
		sessionID:   sessionID,
		operationID: operationID,
		operation:   operation,
	}
}

func (u Update[O]) From() NodeID       { return u.from }
func (u Update[O]) SessionID() SeqNo   { return u.sessionID }
func (u Update[O]) OperationID() SeqNo { return u.operationID }
func (u Update[O]) Operation() O       { return u.operation }

// BatchMeta is opaque batching metadata attached by the consensus layer,
// carried through execution untouched.
type BatchMeta struct {
	ReceptionTime int64 `json:"receptionTime"`
	BatchSize     int   `json:"batchSize"`
}

// UpdateBatch is an ordered run of updates tagged with the sequence number
// the consensus layer decided for it.
type UpdateBatch[O any] struct {
	seqNo   SeqNo
	updates []Update[O]
	meta    *BatchMeta
}

func NewUpdateBatch[O any](seqNo SeqNo) UpdateBatch[O] {
	return UpdateBatch[O]{seqNo: seqNo}
}

func NewUpdateBatchWithCap[O any](seqNo SeqNo, capacity int) UpdateBatch[O] {
	return UpdateBatch[O]{seqNo: seqNo, updates: make([]Update[O], 0, capacity)}
}

func (b *UpdateBatch[O]) Add(from NodeID, sessionID, operationID SeqNo, operation O) {
	b.updates = append(b.updates, NewUpdate(from, sessionID, operationID, operation))
}

func (b *UpdateBatch[O]) AttachMeta(meta BatchMeta) {
	b.meta = &meta
}

func (b UpdateBatch[O]) Meta() (BatchMeta, bool) {
	if b.meta == nil {
		return BatchMeta{}, false
	}
	return *b.meta, true
}

func (b UpdateBatch[O]) SequenceNumber() SeqNo { return b.seqNo }
func (b UpdateBatch[O]) Updates() []Update[O]  { return b.updates }
func (b UpdateBatch[O]) Len() int              { return len(b.updates) }
func (b UpdateBatch[O]) IsEmpty() bool         { return len(b.updates) == 0 }

// UnorderedBatch is a run of read-only updates with no sequence number.
type UnorderedBatch[O any] struct {
	updates []Update[O]
}

func NewUnorderedBatch[O any]() UnorderedBatch[O] {
	return UnorderedBatch[O]{}
}

func NewUnorderedBatchWithCap[O any](capacity int) UnorderedBatch[O] {
	return UnorderedBatch[O]{updates: make([]Update[O], 0, capacity)}
}

func (b *UnorderedBatch[O]) Add(from NodeID, sessionID, operationID SeqNo, operation O) {
	b.updates = append(b.updates, NewUpdate(from, sessionID, operationID, operation))
}

func (b UnorderedBatch[O]) Updates() []Update[O] { return b.updates }
func (b UnorderedBatch[O]) Len() int             { return len(b.updates) }
func (b UnorderedBatch[O]) IsEmpty() bool        { return len(b.updates) == 0 }

// UpdateReply mirrors the identifiers of the update that produced it so the
// network layer can route it back to the right client session.
type UpdateReply[P any] struct {
	to          NodeID
	sessionID   SeqNo
	operationID SeqNo
	payload     P
}

func NewUpdateReply[P any](to NodeID, sessionID, operationID SeqNo, payload P) UpdateReply[P] {
	return UpdateReply[P]{
		to:          to,
		sessionID:   sessionID,
		operationID: operationID,
		payload:     payload,
	}
}

func (r UpdateReply[P]) To() NodeID         { return r.to }
func (r UpdateReply[P]) SessionID() SeqNo   { return r.sessionID }
func (r UpdateReply[P]) OperationID() SeqNo { return r.operationID }
func (r UpdateReply[P]) Payload() P         { return r.payload }

func (r UpdateReply[P]) Bytes() []byte {
	bytes, err := json.Marshal(struct {
		To          NodeID `json:"to"`
		SessionID   SeqNo  `json:"sessionId"`
		OperationID SeqNo  `json:"operationId"`
		Payload     P      `json:"payload"`
	}{r.to, r.sessionID, r.operationID, r.payload})
	if err != nil {
		panic(err)
	}
	return bytes
}

// BatchReplies collects replies in the order their updates were processed.
type BatchReplies[P any] struct {
	replies []UpdateReply[P]
}

func NewBatchReplies[P any](capacity int) BatchReplies[P] {
	return BatchReplies[P]{replies: make([]UpdateReply[P], 0, capacity)}
}

func (b *BatchReplies[P]) Add(to NodeID, sessionID, operationID SeqNo, payload P) {
	b.replies = append(b.replies, NewUpdateReply(to, sessionID, operationID, payload))
}

func (b *BatchReplies[P]) Push(reply UpdateReply[P]) {
	b.replies = append(b.replies, reply)
}

func (b BatchReplies[P]) Replies() []UpdateReply[P] { return b.replies }
func (b BatchReplies[P]) Len() int                  { return len(b.replies) }
func (b BatchReplies[P]) IsEmpty() bool             { return len(b.replies) == 0 }
