package state

import "errors"

var ErrUnknownPart = errors.New("part error: requested part was never produced by this state instance")
var ErrPartDigestMismatch = errors.New("part error: payload digest does not match its claimed description")
var ErrPartShapeMismatch = errors.New("part error: part does not belong to this state lineage")
var ErrCheckpointUnstable = errors.New("checkpoint error: state cannot be snapshotted at this instant")
