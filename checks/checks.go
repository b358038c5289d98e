package checks

import (
	"fmt"
	"sort"

	"golang.org/x/exp/maps"

	"smr-exec/app"
	"smr-exec/state"
)

// ReplicaStateSnapshot is one replica's position: the last applied sequence
// number and the descriptor of its state at that position.
type ReplicaStateSnapshot struct {
	LastApplied app.SeqNo
	Descriptor  state.StateDescriptor
}

// DescriptorConsistencyCheck verifies that a set of replica snapshots is
// mutually consistent: no replica lags the most advanced one by more than
// maxLag batches, and any two replicas at the same applied sequence number
// have equal state descriptors. Determinism of the application means equal
// positions must mean equal descriptors; anything else is divergence.
func DescriptorConsistencyCheck(snapshots map[string]ReplicaStateSnapshot, maxLag uint64) error {
	if len(snapshots) == 0 {
		return nil
	}

	replicaIDs := maps.Keys(snapshots)
	sort.Strings(replicaIDs)

	var maxApplied app.SeqNo
	for _, id := range replicaIDs {
		if snapshots[id].LastApplied > maxApplied {
			maxApplied = snapshots[id].LastApplied
		}
	}

	for _, id := range replicaIDs {
		applied := snapshots[id].LastApplied
		if uint64(maxApplied)-uint64(applied) > maxLag {
			return fmt.Errorf("replica %s is lagging: at seq %d while the group reached %d", id, applied, maxApplied)
		}
	}

	// replicas at the same position must describe identical state
	byPosition := make(map[app.SeqNo]string)
	for _, id := range replicaIDs {
		snap := snapshots[id]
		other, seen := byPosition[snap.LastApplied]
		if !seen {
			byPosition[snap.LastApplied] = id
			continue
		}
		if !snapshots[other].Descriptor.Equal(snap.Descriptor) {
			return fmt.Errorf("descriptor mismatch at seq %d between %s and %s", snap.LastApplied, other, id)
		}
	}

	return nil
}
