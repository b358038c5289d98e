package kv

import (
	"encoding/json"
	"fmt"
)

type OpKind int

const (
	OpGet OpKind = iota
	OpPut
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpGet:
		return "Get"
	case OpPut:
		return "Put"
	case OpDelete:
		return "Delete"
	default:
		return fmt.Sprintf("unknown op kind %d", int(k))
	}
}

// Op is one key-value operation.
type Op struct {
	Kind  OpKind `json:"kind"`
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
}

func (op *Op) Bytes() []byte {
	bytes, err := json.Marshal(op)
	if err != nil {
		panic(err)
	}
	return bytes
}

func LoadOp(data []byte) (Op, error) {
	var op Op
	if err := json.Unmarshal(data, &op); err != nil {
		return Op{}, fmt.Errorf("failed to load op: %w", err)
	}
	return op, nil
}

// Result is the reply to one Op. Found reports whether the key existed for
// reads; OK reports whether the operation was accepted at all.
type Result struct {
	OK    bool   `json:"ok"`
	Found bool   `json:"found,omitempty"`
	Value []byte `json:"value,omitempty"`
}

// App is the key-value application over a *Store. Gets are valid both ordered
// and unordered; mutations submitted on the unordered path are refused.
type App struct {
	ReplicaID string
	Buckets   int
	// BaseDir persists the store on disk when set, otherwise the store is
	// in-memory
	BaseDir string
}

func (a App) InitialState() (*Store, error) {
	if a.BaseDir != "" {
		return NewDiskStore(a.ReplicaID, a.BaseDir, a.Buckets)
	}
	return NewInMemoryStore(a.ReplicaID, a.Buckets)
}

func (a App) UnorderedExecution(store *Store, op Op) Result {
	if op.Kind != OpGet {
		return Result{OK: false}
	}
	value, found, err := store.Get(op.Key)
	if err != nil {
		// a failed read is store corruption, not a user error
		panic(fmt.Errorf("store read failed: %w", err))
	}
	return Result{OK: true, Found: found, Value: value}
}

func (a App) Update(store *Store, op Op) Result {
	switch op.Kind {
	case OpGet:
		value, found, err := store.Get(op.Key)
		if err != nil {
			panic(fmt.Errorf("store read failed: %w", err))
		}
		return Result{OK: true, Found: found, Value: value}
	case OpPut:
		if err := store.Put(op.Key, op.Value); err != nil {
			panic(fmt.Errorf("store write failed: %w", err))
		}
		return Result{OK: true}
	case OpDelete:
		if err := store.Delete(op.Key); err != nil {
			panic(fmt.Errorf("store delete failed: %w", err))
		}
		return Result{OK: true}
	default:
		return Result{OK: false}
	}
}
