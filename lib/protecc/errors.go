// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package protecc

import "errors"

// Sentinel errors for the three failure classes. All errors returned by
// this package wrap one of these, so callers can classify failures with
// errors.Is without string matching.
var (
	// ErrInvalidArgument reports a missing or unusable input: a nil or
	// too-short buffer, a request for an unknown domain, an export buffer
	// smaller than the queried size.
	ErrInvalidArgument = errors.New("protecc: invalid argument")

	// ErrInvalidPattern reports a glob syntax error, detected eagerly at
	// AddPattern/AddNetRule/AddMountRule time. The builder is left
	// unmodified.
	ErrInvalidPattern = errors.New("protecc: invalid pattern")

	// ErrInvalidBlob reports a structural validation failure on import.
	// Import failures are always recoverable: blobs may be stale or
	// adversarial, and rejecting one must never take the process down.
	ErrInvalidBlob = errors.New("protecc: invalid blob")
)
