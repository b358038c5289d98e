package executor

import (
	"fmt"
	"time"

	"smr-exec/app"
)

// RequestKind tags the message alphabet consumed by the engine.
type RequestKind int

const (
	// PollStateChannel hints that the companion install channel has traffic.
	PollStateChannel RequestKind = iota
	// CatchUp carries a contiguous run of previously missed ordered batches.
	CatchUp
	// Update carries one ordered batch.
	Update
	// UpdateAndGetAppstate is Update plus a checkpoint of the resulting state.
	UpdateAndGetAppstate
	// ExecuteUnordered carries a batch of read-only requests.
	ExecuteUnordered
	// Read is a direct state read addressed to a specific requester.
	Read
)

func (k RequestKind) String() string {
	switch k {
	case PollStateChannel:
		return "PollStateChannel"
	case CatchUp:
		return "CatchUp"
	case Update:
		return "Update"
	case UpdateAndGetAppstate:
		return "UpdateAndGetAppstate"
	case ExecuteUnordered:
		return "ExecuteUnordered"
	case Read:
		return "Read"
	default:
		return fmt.Sprintf("unknown request kind %d", int(k))
	}
}

// ExecutionRequest is one queued message for the engine. Only the fields of
// the tagged kind are populated.
type ExecutionRequest[O any] struct {
	kind       RequestKind
	batch      app.UpdateBatch[O]
	batches    []app.UpdateBatch[O]
	unordered  app.UnorderedBatch[O]
	from       app.NodeID
	enqueuedAt time.Time
}

func (r ExecutionRequest[O]) Kind() RequestKind { return r.kind }
