package state

import (
	"bytes"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// DigestSize is the output size of content digests, in bytes.
const DigestSize = 32

// Digest is the content digest of a state part.
type Digest []byte

// DigestOf hashes the given chunks in order with SHAKE256.
func DigestOf(chunks ...[]byte) Digest {
	shake := sha3.NewShake256()
	for _, chunk := range chunks {
		shake.Write(chunk)
	}
	digest := make([]byte, DigestSize)
	shake.Read(digest)
	return digest
}

func (d Digest) Equal(other Digest) bool {
	return bytes.Equal(d, other)
}

func (d Digest) String() string {
	return hex.EncodeToString(d)
}
