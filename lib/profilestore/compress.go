// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package profilestore

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// compressionTag identifies the algorithm a stored blob is compressed
// with. Tags are stored in the database (one byte per row); the values
// are protocol constants.
type compressionTag uint8

const (
	compressionNone compressionTag = 0
	compressionLZ4  compressionTag = 1
	compressionZstd compressionTag = 2
)

func (tag compressionTag) String() string {
	switch tag {
	case compressionNone:
		return "none"
	case compressionLZ4:
		return "lz4"
	case compressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// zstdEncoder and zstdDecoder are shared across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("profilestore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("profilestore: zstd decoder initialization failed: " + err.Error())
	}
}

// compressBlob picks an encoding for a profile blob by probing with
// zstd. Profile blobs are structured binary with long runs of zero
// padding, so zstd usually wins by a wide margin; when the ratio is
// marginal LZ4 is used for its cheap decode, and incompressible blobs
// are stored raw.
func compressBlob(blob []byte) ([]byte, compressionTag) {
	if len(blob) == 0 {
		return blob, compressionNone
	}
	compressed := zstdEncoder.EncodeAll(blob, nil)
	ratio := float64(len(blob)) / float64(len(compressed))
	switch {
	case ratio >= 1.5:
		return compressed, compressionZstd
	case ratio >= 1.1:
		if lz4Out, ok := compressLZ4(blob); ok {
			return lz4Out, compressionLZ4
		}
		return compressed, compressionZstd
	default:
		return blob, compressionNone
	}
}

func compressLZ4(blob []byte) ([]byte, bool) {
	destination := make([]byte, lz4.CompressBlockBound(len(blob)))
	written, err := lz4.CompressBlock(blob, destination, nil)
	// CompressBlock returns 0 for incompressible input.
	if err != nil || written == 0 || written >= len(blob) {
		return nil, false
	}
	return destination[:written], true
}

// decompressBlob reverses compressBlob. The rawSize recorded at store
// time must match the decompressed length exactly.
func decompressBlob(stored []byte, tag compressionTag, rawSize int) ([]byte, error) {
	switch tag {
	case compressionNone:
		if len(stored) != rawSize {
			return nil, fmt.Errorf("uncompressed blob is %d bytes, recorded size %d", len(stored), rawSize)
		}
		return stored, nil

	case compressionLZ4:
		destination := make([]byte, rawSize)
		read, err := lz4.UncompressBlock(stored, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != rawSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, recorded size %d", read, rawSize)
		}
		return destination, nil

	case compressionZstd:
		result, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != rawSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, recorded size %d", len(result), rawSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag %d", tag)
	}
}
