package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// ArtifactHash fingerprints a persisted artifact payload for integrity
// checks on reload.
type ArtifactHash Hash

func NewArtifactHash(data []byte) ArtifactHash { return ArtifactHash(NewHash(data)) }

func (h ArtifactHash) String() string { return Hash(h).String() }

// HashFloats fingerprints a float slice bit-exactly. Used to verify that
// artifact round-trips are lossless.
func HashFloats(values []float64) Hash {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return NewHash(buf)
}
