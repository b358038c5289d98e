package state

// PartDescription identifies one transferable part of a divisible state and
// summarizes its content with a digest.
type PartDescription interface {
	// PartID names the part within its state, stable across checkpoints.
	PartID() string

	// ContentDigest is the digest of the part's current content.
	ContentDigest() Digest

	Equal(other PartDescription) bool
}

// StateDescriptor summarizes a whole state as the set of its part
// descriptions. Two states with equal descriptors are bit-equivalent for
// replication purposes.
type StateDescriptor interface {
	Parts() []PartDescription

	// CompareDescriptors returns exactly the part descriptions of this
	// descriptor that differ from the other descriptor of the same state
	// lineage: parts the other lacks, plus parts whose digests changed.
	CompareDescriptors(other StateDescriptor) []PartDescription

	Equal(other StateDescriptor) bool
}

// StatePart is one partition payload, carrying enough content to recreate the
// part it describes on another replica.
type StatePart interface {
	Descriptor() PartDescription
	Payload() []byte
}

// DivisibleState is application state that can be checkpointed and installed
// incrementally as a descriptor plus independently transferable parts.
//
// Implementations are mutated by exactly one writer at a time (the execution
// engine), but may be read concurrently by unordered execution; any
// synchronization that requires lives in the implementation itself.
type DivisibleState interface {
	// Descriptor returns the descriptor of the last finalized checkpoint.
	// It must be cheap: no digest recomputation.
	Descriptor() StateDescriptor

	// PrepareCheckpoint finalizes all updates applied since the previous
	// checkpoint into a fresh descriptor. Fails with ErrCheckpointUnstable
	// if the state cannot be safely snapshotted right now; the caller
	// retries after quiescing.
	PrepareCheckpoint() (StateDescriptor, error)

	// GetParts materializes payloads for the requested part descriptions.
	// Fails with ErrUnknownPart if any description was never produced by
	// this state instance, or is no longer available at that digest.
	GetParts(descs []PartDescription) ([]StatePart, error)

	// AcceptParts merges externally supplied parts into local state. Fails
	// with ErrPartDigestMismatch if a payload does not hash to its claimed
	// description, or ErrPartShapeMismatch if a part does not fit this
	// state's lineage.
	AcceptParts(parts []StatePart) error
}

// DiffParts returns the descriptions in target that are missing from base or
// present with a different digest. Shared helper for CompareDescriptors
// implementations.
func DiffParts(target, base []PartDescription) []PartDescription {
	baseByID := make(map[string]PartDescription, len(base))
	for _, desc := range base {
		baseByID[desc.PartID()] = desc
	}

	var changed []PartDescription
	for _, desc := range target {
		known, ok := baseByID[desc.PartID()]
		if !ok || !known.ContentDigest().Equal(desc.ContentDigest()) {
			changed = append(changed, desc)
		}
	}
	return changed
}
