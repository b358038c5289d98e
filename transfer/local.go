package transfer

import (
	"fmt"
	"sync"

	"smr-exec/state"
)

// LocalConduit wires the replicas of a single process together, delivering
// checkpoints directly with no serialization. Used by tests and local demos.
type LocalConduit struct {
	receivers map[string]Receiver
	sync.RWMutex
}

func NewLocalConduit() *LocalConduit {
	return &LocalConduit{
		receivers: make(map[string]Receiver),
	}
}

func (c *LocalConduit) RegisterReplica(id string, receiver Receiver) error {
	c.Lock()
	defer c.Unlock()
	if _, taken := c.receivers[id]; taken {
		return fmt.Errorf("replica %s already registered", id)
	}
	c.receivers[id] = receiver
	return nil
}

func (c *LocalConduit) PublishCheckpoint(from string, msg state.AppStateMessage) error {
	c.RLock()
	defer c.RUnlock()
	for id, receiver := range c.receivers {
		if id == from {
			continue
		}
		if err := deliverSession(receiver, msg); err != nil {
			return fmt.Errorf("failed to deliver checkpoint to %s: %w", id, err)
		}
	}
	return nil
}
