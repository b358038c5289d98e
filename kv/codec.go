package kv

import (
	"fmt"

	"smr-exec/state"
)

// Codec serializes Store descriptors and parts for the transfer conduit.
type Codec struct{}

func (Codec) EncodeDescriptor(descriptor state.StateDescriptor) ([]byte, error) {
	storeDescriptor, ok := descriptor.(StoreDescriptor)
	if !ok {
		return nil, fmt.Errorf("cannot encode foreign descriptor %T", descriptor)
	}
	return storeDescriptor.Bytes(), nil
}

func (Codec) DecodeDescriptor(data []byte) (state.StateDescriptor, error) {
	return LoadStoreDescriptor(data)
}

func (Codec) EncodePart(part state.StatePart) ([]byte, error) {
	bucketPart, ok := part.(BucketPart)
	if !ok {
		return nil, fmt.Errorf("cannot encode foreign part %T", part)
	}
	return bucketPart.Bytes(), nil
}

func (Codec) DecodePart(data []byte) (state.StatePart, error) {
	return LoadBucketPart(data)
}
