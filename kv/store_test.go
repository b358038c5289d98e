package kv

import (
	"errors"
	"fmt"
	"testing"

	"smr-exec/state"
)

func assertNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func assertErrIs(t *testing.T, err error, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected error %v, actual %v", target, err)
	}
}

func assertEqual[T comparable](t *testing.T, actual T, expected T) {
	t.Helper()
	if actual != expected {
		t.Fatalf("expected: %+v, actual: %+v", expected, actual)
	}
}

func newTestStore(t *testing.T, id string, buckets int) *Store {
	t.Helper()
	store, err := NewInMemoryStore(id, buckets)
	assertNoErr(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFreshStoresAgreeOnGenesisDescriptor(t *testing.T) {
	a := newTestStore(t, "a", 4)
	b := newTestStore(t, "b", 4)

	assertEqual(t, a.Descriptor().Equal(b.Descriptor()), true)
	assertEqual(t, len(a.Descriptor().Parts()), 4)
}

func TestDescriptorUnchangedUntilCheckpoint(t *testing.T) {
	store := newTestStore(t, "a", 4)
	before := store.Descriptor()

	assertNoErr(t, store.Put("some-key", []byte("some-value")))
	assertEqual(t, store.Descriptor().Equal(before), true)

	after, err := store.PrepareCheckpoint()
	assertNoErr(t, err)
	assertEqual(t, after.Equal(before), false)
}

func TestCompareDescriptorsReturnsExactlyTouchedBuckets(t *testing.T) {
	store := newTestStore(t, "a", 8)
	before := store.Descriptor()

	assertNoErr(t, store.Put("k1", []byte("v1")))
	assertNoErr(t, store.Put("k2", []byte("v2")))
	touched := map[int]bool{
		store.bucketOf("k1"): true,
		store.bucketOf("k2"): true,
	}

	after, err := store.PrepareCheckpoint()
	assertNoErr(t, err)

	changed := after.CompareDescriptors(before)
	assertEqual(t, len(changed), len(touched))
	for _, desc := range changed {
		bucketDesc := desc.(BucketDescription)
		assertEqual(t, touched[bucketDesc.Index], true)
	}
}

func TestCheckpointRoundTripOntoFreshStore(t *testing.T) {
	source := newTestStore(t, "source", 4)
	for i := 0; i < 20; i++ {
		assertNoErr(t, source.Put(fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i))))
	}

	descriptor, err := source.PrepareCheckpoint()
	assertNoErr(t, err)

	parts, err := source.GetParts(descriptor.Parts())
	assertNoErr(t, err)

	target := newTestStore(t, "target", 4)
	assertNoErr(t, target.AcceptParts(parts))

	assertEqual(t, len(descriptor.CompareDescriptors(target.Descriptor())), 0)
	assertEqual(t, target.Descriptor().Equal(descriptor), true)

	for i := 0; i < 20; i++ {
		value, found, err := target.Get(fmt.Sprintf("key-%d", i))
		assertNoErr(t, err)
		assertEqual(t, found, true)
		assertEqual(t, string(value), fmt.Sprintf("value-%d", i))
	}
}

func TestGetPartsRejectsUnknownDescriptions(t *testing.T) {
	store := newTestStore(t, "a", 4)

	_, err := store.GetParts([]state.PartDescription{
		BucketDescription{Index: 0, Digest: state.DigestOf([]byte("never produced"))},
	})
	assertErrIs(t, err, state.ErrUnknownPart)

	_, err = store.GetParts([]state.PartDescription{
		BucketDescription{Index: 99, Digest: state.DigestOf([]byte("x"))},
	})
	assertErrIs(t, err, state.ErrUnknownPart)
}

func TestAcceptPartsRejectsTamperedPayload(t *testing.T) {
	source := newTestStore(t, "source", 4)
	assertNoErr(t, source.Put("key", []byte("value")))
	descriptor, err := source.PrepareCheckpoint()
	assertNoErr(t, err)
	parts, err := source.GetParts(descriptor.Parts())
	assertNoErr(t, err)

	tampered := parts[0].(BucketPart)
	tampered.Content = append([]byte(nil), tampered.Content...)
	tampered.Content[0] ^= 0xff

	target := newTestStore(t, "target", 4)
	err = target.AcceptParts([]state.StatePart{tampered})
	assertErrIs(t, err, state.ErrPartDigestMismatch)
}

func TestAcceptPartsRejectsForeignShape(t *testing.T) {
	target := newTestStore(t, "target", 2)

	// a part claiming a bucket this store does not have
	payload := []byte(`{"index":7,"entries":{}}`)
	foreign := BucketPart{
		Description: BucketDescription{Index: 7, Digest: state.DigestOf(payload)},
		Content:     payload,
	}
	err := target.AcceptParts([]state.StatePart{foreign})
	assertErrIs(t, err, state.ErrPartShapeMismatch)
}

func TestAcceptPartsReplacesStaleBucketContent(t *testing.T) {
	source := newTestStore(t, "source", 1)
	target := newTestStore(t, "target", 1)

	assertNoErr(t, source.Put("fresh", []byte("new")))
	assertNoErr(t, target.Put("stale", []byte("old")))
	_, err := target.PrepareCheckpoint()
	assertNoErr(t, err)

	descriptor, err := source.PrepareCheckpoint()
	assertNoErr(t, err)
	parts, err := source.GetParts(descriptor.Parts())
	assertNoErr(t, err)
	assertNoErr(t, target.AcceptParts(parts))

	_, found, err := target.Get("stale")
	assertNoErr(t, err)
	assertEqual(t, found, false)
	value, found, err := target.Get("fresh")
	assertNoErr(t, err)
	assertEqual(t, found, true)
	assertEqual(t, string(value), "new")
}
