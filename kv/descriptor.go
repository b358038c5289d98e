package kv

import (
	"encoding/json"
	"fmt"

	"smr-exec/state"
)

// BucketDescription identifies one hash bucket of a Store and the digest of
// its content as of the last checkpoint.
type BucketDescription struct {
	Index  int          `json:"index"`
	Digest state.Digest `json:"digest"`
}

func (d BucketDescription) PartID() string {
	return fmt.Sprintf("bucket-%d", d.Index)
}

func (d BucketDescription) ContentDigest() state.Digest {
	return d.Digest
}

func (d BucketDescription) Equal(other state.PartDescription) bool {
	o, ok := other.(BucketDescription)
	return ok && o.Index == d.Index && o.Digest.Equal(d.Digest)
}

// StoreDescriptor is the full-state descriptor of a Store: one bucket
// description per bucket, in bucket order.
type StoreDescriptor struct {
	Buckets []BucketDescription `json:"buckets"`
}

func (d StoreDescriptor) Parts() []state.PartDescription {
	parts := make([]state.PartDescription, 0, len(d.Buckets))
	for _, bucket := range d.Buckets {
		parts = append(parts, bucket)
	}
	return parts
}

func (d StoreDescriptor) CompareDescriptors(other state.StateDescriptor) []state.PartDescription {
	return state.DiffParts(d.Parts(), other.Parts())
}

func (d StoreDescriptor) Equal(other state.StateDescriptor) bool {
	o, ok := other.(StoreDescriptor)
	if !ok || len(o.Buckets) != len(d.Buckets) {
		return false
	}
	for i, bucket := range d.Buckets {
		if !bucket.Equal(o.Buckets[i]) {
			return false
		}
	}
	return true
}

func (d StoreDescriptor) Bytes() []byte {
	bytes, err := json.Marshal(d)
	if err != nil {
		panic(err)
	}
	return bytes
}

func LoadStoreDescriptor(data []byte) (StoreDescriptor, error) {
	var descriptor StoreDescriptor
	if err := json.Unmarshal(data, &descriptor); err != nil {
		return StoreDescriptor{}, fmt.Errorf("failed to load store descriptor: %w", err)
	}
	return descriptor, nil
}

// BucketPart is the transferable payload of one bucket.
type BucketPart struct {
	Description BucketDescription `json:"description"`
	Content     []byte            `json:"content"`
}

func (p BucketPart) Descriptor() state.PartDescription {
	return p.Description
}

func (p BucketPart) Payload() []byte {
	return p.Content
}

func (p BucketPart) Bytes() []byte {
	bytes, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	return bytes
}

func LoadBucketPart(data []byte) (BucketPart, error) {
	var part BucketPart
	if err := json.Unmarshal(data, &part); err != nil {
		return BucketPart{}, fmt.Errorf("failed to load bucket part: %w", err)
	}
	return part, nil
}
