// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package protecc

import (
	"encoding/binary"
	"fmt"
)

// Binary profile layout. All multi-byte fields are little-endian.
// These offsets and sizes are protocol constants: changing any of them
// breaks compatibility with every previously exported blob.
//
//	common header (12 bytes):
//	  magic   [4]byte  "CPRF"
//	  version u32      currently 1
//	  flags   u32      exactly one payload-type bit, plus options
//
//	TRIE payload:
//	  node_count u32, edge_count u32, root_index u32
//	  node_count fixed 48-byte records:
//	    type u8, modifier u8, literal u8, terminal u8,
//	    charset [32]byte, child_start u32, child_count u16,
//	    pad u16, permissions u32
//	  edge_count u32 child indices
//
//	NET payload:
//	  rule_count u32, string_table_len u32
//	  rule_count fixed 16-byte records:
//	    action u8, protocol u8, family u8, pad u8,
//	    port_low u16, port_high u16, ip_offset u32, unix_offset u32
//	  string table (NUL-terminated glob text)
//
//	MOUNT payload:
//	  rule_count u32, string_table_len u32
//	  rule_count fixed 24-byte records:
//	    action u8, pad [3]u8, flags_mask u32,
//	    source_offset u32, target_offset u32,
//	    fstype_offset u32, options_offset u32
//	  string table (NUL-terminated glob text)
//
// String-table offsets are either offsetNone ("don't care") or the
// byte offset of a NUL-terminated pattern within the table.
const (
	magic0, magic1, magic2, magic3 = 'C', 'P', 'R', 'F'

	formatVersion = 1

	flagTrie            = 1 << 0
	flagNet             = 1 << 1
	flagMount           = 1 << 2
	flagCaseInsensitive = 1 << 3
	flagKnownMask       = flagTrie | flagNet | flagMount | flagCaseInsensitive

	headerSize = 12
	offMagic   = 0
	offVersion = 4
	offFlags   = 8

	trieHeaderSize = 12
	offNodeCount   = headerSize + 0
	offEdgeCount   = headerSize + 4
	offRootIndex   = headerSize + 8

	nodeRecordSize = 48
	recType        = 0
	recModifier    = 1
	recLiteral     = 2
	recTerminal    = 3
	recCharset     = 4
	recChildStart  = 36
	recChildCount  = 40
	recPerms       = 44

	ruleHeaderSize = 8
	offRuleCount   = headerSize + 0
	offStrTableLen = headerSize + 4

	netRecordSize  = 16
	netRecAction   = 0
	netRecProtocol = 1
	netRecFamily   = 2
	netRecPortLow  = 4
	netRecPortHigh = 6
	netRecIPOff    = 8
	netRecUnixOff  = 12

	mountRecordSize  = 24
	mountRecAction   = 0
	mountRecFlags    = 4
	mountRecSource   = 8
	mountRecTarget   = 12
	mountRecFSType   = 16
	mountRecOptions  = 20

	// offsetNone is the "don't care" sentinel for string-table offsets.
	offsetNone = 0xFFFFFFFF

	// maxCount bounds node, edge, and rule counts so size arithmetic
	// cannot overflow even on 32-bit targets.
	maxCount = 1 << 24
)

// Domain identifies which policy domain a profile encodes.
type Domain uint8

const (
	DomainPath Domain = iota
	DomainNet
	DomainMount
)

// String returns the lowercase domain name.
func (d Domain) String() string {
	switch d {
	case DomainPath:
		return "path"
	case DomainNet:
		return "net"
	case DomainMount:
		return "mount"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// Profile is a compiled, immutable policy artifact. The raw byte slice
// is the single source of truth: both matchers decode node and rule
// records directly from it, so the same bytes are valid whether they
// were just compiled or imported from an untrusted source.
//
// A Profile is safe for concurrent, lock-free use by any number of
// goroutines.
type Profile struct {
	raw []byte
}

// newProfile wraps freshly compiled or imported bytes. The caller must
// have produced structurally valid bytes; this runs the validator once
// more as a final gate so a compiler bug cannot leak an invalid
// profile into circulation.
func newProfile(raw []byte) (*Profile, error) {
	if err := ValidateBlob(raw); err != nil {
		return nil, err
	}
	return &Profile{raw: raw}, nil
}

// ImportProfile validates blob and returns a usable Profile. The input
// is treated as adversarial regardless of where it came from: every
// structural invariant is checked before any field is trusted, and the
// bytes are copied so later mutation of blob cannot corrupt the
// profile.
func ImportProfile(blob []byte) (*Profile, error) {
	if err := ValidateBlob(blob); err != nil {
		return nil, err
	}
	raw := make([]byte, len(blob))
	copy(raw, blob)
	return &Profile{raw: raw}, nil
}

// Export writes the profile's bytes into buf and returns the number of
// bytes written. Export is two-phase: calling with a nil or empty buf
// returns the required size without writing. A non-empty buf smaller
// than the required size fails with ErrInvalidArgument and writes
// nothing.
func (p *Profile) Export(buf []byte) (int, error) {
	if len(buf) == 0 {
		return len(p.raw), nil
	}
	if len(buf) < len(p.raw) {
		return 0, fmt.Errorf("%w: export buffer is %d bytes, need %d",
			ErrInvalidArgument, len(buf), len(p.raw))
	}
	copy(buf, p.raw)
	return len(p.raw), nil
}

// Size returns the exported size in bytes.
func (p *Profile) Size() int {
	return len(p.raw)
}

// Domain returns the payload domain encoded in the profile flags.
func (p *Profile) Domain() Domain {
	switch p.flags() & (flagTrie | flagNet | flagMount) {
	case flagNet:
		return DomainNet
	case flagMount:
		return DomainMount
	default:
		return DomainPath
	}
}

// CaseInsensitive reports whether the profile folds ASCII case.
func (p *Profile) CaseInsensitive() bool {
	return p.flags()&flagCaseInsensitive != 0
}

func (p *Profile) flags() uint32 {
	return getU32(p.raw, offFlags)
}

// NodeCount returns the trie node count, or 0 for rule profiles.
func (p *Profile) NodeCount() int {
	if p.Domain() != DomainPath {
		return 0
	}
	return int(getU32(p.raw, offNodeCount))
}

// RuleCount returns the rule count, or 0 for trie profiles.
func (p *Profile) RuleCount() int {
	if p.Domain() == DomainPath {
		return 0
	}
	return int(getU32(p.raw, offRuleCount))
}

// nodeRec is the decoded view of one fixed trie node record. Decoding
// copies 48 bytes into a stack value; matchers call this on every
// visit, so it must stay allocation-free.
type nodeRec struct {
	typ        nodeType
	modifier   nodeModifier
	literal    byte
	terminal   bool
	set        charset
	childStart uint32
	childCount uint16
	perms      Permission
}

// node decodes record i. The caller guarantees i < NodeCount (the
// validator has established that every stored index is in range).
func (p *Profile) node(i uint32) nodeRec {
	rec := headerSize + trieHeaderSize + int(i)*nodeRecordSize
	var n nodeRec
	n.typ = nodeType(p.raw[rec+recType])
	n.modifier = nodeModifier(p.raw[rec+recModifier])
	n.literal = p.raw[rec+recLiteral]
	n.terminal = p.raw[rec+recTerminal] != 0
	copy(n.set[:], p.raw[rec+recCharset:rec+recCharset+charsetSize])
	n.childStart = getU32(p.raw, rec+recChildStart)
	n.childCount = getU16(p.raw, rec+recChildCount)
	n.perms = Permission(getU32(p.raw, rec+recPerms))
	return n
}

// edge returns the i-th entry of the shared edge array.
func (p *Profile) edge(i uint32) uint32 {
	base := headerSize + trieHeaderSize + int(getU32(p.raw, offNodeCount))*nodeRecordSize
	return getU32(p.raw, base+int(i)*4)
}

// rootIndex returns the trie root node index.
func (p *Profile) rootIndex() uint32 {
	return getU32(p.raw, offRootIndex)
}

// ruleBase returns the byte offset of rule record i.
func (p *Profile) ruleBase(i int) int {
	size := netRecordSize
	if p.Domain() == DomainMount {
		size = mountRecordSize
	}
	return headerSize + ruleHeaderSize + i*size
}

// stringTable returns the trailing string table of a rule profile.
func (p *Profile) stringTable() []byte {
	count := int(getU32(p.raw, offRuleCount))
	size := netRecordSize
	if p.Domain() == DomainMount {
		size = mountRecordSize
	}
	start := headerSize + ruleHeaderSize + count*size
	return p.raw[start:]
}

// stringAt resolves a string-table offset to the pattern text. Returns
// ok=false for the "don't care" sentinel. The validator has already
// established that every non-sentinel offset points at a
// NUL-terminated string inside the table. Returning a sub-slice keeps
// the hot match path allocation-free.
func (p *Profile) stringAt(off uint32) ([]byte, bool) {
	if off == offsetNone {
		return nil, false
	}
	table := p.stringTable()
	end := int(off)
	for end < len(table) && table[end] != 0 {
		end++
	}
	return table[int(off):end], true
}

func putHeader(raw []byte, flags uint32) {
	raw[offMagic+0] = magic0
	raw[offMagic+1] = magic1
	raw[offMagic+2] = magic2
	raw[offMagic+3] = magic3
	putU32(raw, offVersion, formatVersion)
	putU32(raw, offFlags, flags)
}

func putU16(raw []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(raw[off:], v)
}

func putU32(raw []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(raw[off:], v)
}

func getU16(raw []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(raw[off:])
}

func getU32(raw []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(raw[off:])
}
