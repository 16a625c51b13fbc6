// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package profilestore

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. The same record always
// produces identical bytes.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields, so old
// binaries can read records written by newer ones.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("profilestore: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("profilestore: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeRecord(record *Record) ([]byte, error) {
	data, err := encMode.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("profilestore: encoding metadata: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*Record, error) {
	var record Record
	if err := decMode.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("profilestore: decoding metadata: %w", err)
	}
	return &record, nil
}
