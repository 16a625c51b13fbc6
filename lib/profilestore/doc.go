// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package profilestore persists compiled protecc profiles in a SQLite
// database, addressed by content hash.
//
// A stored profile is keyed by the BLAKE3 keyed hash of its exported
// bytes, computed in a profile-specific domain so the same bytes can
// never collide with hashes from other Crucible subsystems. Profile
// blobs are compressed on the way in (zstd when it helps, stored raw
// otherwise) with a one-byte algorithm tag, and every retrieval
// decompresses, re-hashes, and re-validates the blob before handing a
// usable [protecc.Profile] back, so a corrupted database row surfaces
// as an error rather than a silently wrong policy.
//
// Alongside each blob the store keeps a small CBOR metadata record
// (name, domain, sizes, timestamps) encoded with Core Deterministic
// Encoding so identical records are byte-identical.
//
// The store is safe for concurrent use; it is backed by a fixed-size
// connection pool in WAL mode.
package profilestore
