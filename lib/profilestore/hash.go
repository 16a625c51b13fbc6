// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package profilestore

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is the 32-byte BLAKE3 digest addressing a stored profile.
type Hash [32]byte

// profileDomainKey is the BLAKE3 key for profile hashing. Domain
// separation keeps profile hashes distinct from any other keyed hash
// of the same bytes elsewhere in Crucible. The value is the ASCII
// domain name zero-padded to 32 bytes, readable in hex dumps; BLAKE3
// keyed mode treats it as an opaque key.
var profileDomainKey = [32]byte{
	'c', 'r', 'u', 'c', 'i', 'b', 'l', 'e', '.', 'p', 'r', 'o', 't', 'e', 'c', 'c',
	'.', 'p', 'r', 'o', 'f', 'i', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashProfile computes the profile-domain keyed hash of an exported
// profile blob. Hashes are always computed over the uncompressed
// bytes, so the address of a profile is independent of how it happens
// to be compressed on disk.
func HashProfile(blob []byte) Hash {
	hasher, err := blake3.NewKeyed(profileDomainKey[:])
	if err != nil {
		// NewKeyed fails only on a wrong key length, which the fixed
		// array rules out.
		panic("profilestore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(blob)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// String returns the canonical hex form used in the database, logs,
// and CLI output.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing profile hash: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("profile hash is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}
