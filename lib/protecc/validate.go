// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package protecc

import (
	"fmt"
	"math/bits"
)

// ValidateBlob runs the full structural validation over a profile
// blob. It is pure: no mutation, no partial acceptance, and safe to
// call from any goroutine or constrained context.
//
// Checks run in order and short-circuit on the first failure:
//
//  1. buffer length covers the common header (ErrInvalidArgument
//     otherwise — the one failure class reserved for unusable input);
//  2. magic and version match;
//  3. flags encode exactly one recognized payload type and no unknown
//     bits;
//  4. declared counts are consistent with the buffer length (the
//     buffer must be exactly the self-described size — trailing bytes
//     are as suspect as missing ones);
//  5. (trie) root_index < node_count;
//  6. (trie) every node's type, modifier, and child slice are in
//     range, and every edge value names a real node;
//  7. (rules) every action/protocol/family enum is within range and
//     port ranges are ordered;
//  8. every string-table offset is the sentinel or points at a
//     NUL-terminated string inside the table.
//
// Internal length and index fields are never trusted beyond what the
// buffer bounds permit; every arithmetic step is checked before use.
func ValidateBlob(blob []byte) error {
	if len(blob) < headerSize {
		return fmt.Errorf("%w: blob is %d bytes, header needs %d",
			ErrInvalidArgument, len(blob), headerSize)
	}

	if blob[offMagic] != magic0 || blob[offMagic+1] != magic1 ||
		blob[offMagic+2] != magic2 || blob[offMagic+3] != magic3 {
		return fmt.Errorf("%w: bad magic %q", ErrInvalidBlob, blob[offMagic:offMagic+4])
	}
	if v := getU32(blob, offVersion); v != formatVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrInvalidBlob, v, formatVersion)
	}

	flags := getU32(blob, offFlags)
	if flags&^uint32(flagKnownMask) != 0 {
		return fmt.Errorf("%w: unknown flag bits %#x", ErrInvalidBlob, flags)
	}
	payload := flags & (flagTrie | flagNet | flagMount)
	switch payload {
	case flagTrie:
		return validateTrie(blob)
	case flagNet:
		return validateRules(blob, netRecordSize, validateNetRecord)
	case flagMount:
		return validateRules(blob, mountRecordSize, validateMountRecord)
	default:
		return fmt.Errorf("%w: flags %#x encode %d payload types, want exactly 1",
			ErrInvalidBlob, flags, bits.OnesCount32(payload))
	}
}

func validateTrie(blob []byte) error {
	if len(blob) < headerSize+trieHeaderSize {
		return fmt.Errorf("%w: trie blob is %d bytes, payload header needs %d",
			ErrInvalidBlob, len(blob), headerSize+trieHeaderSize)
	}
	nodeCount := getU32(blob, offNodeCount)
	edgeCount := getU32(blob, offEdgeCount)
	rootIndex := getU32(blob, offRootIndex)

	if nodeCount == 0 {
		return fmt.Errorf("%w: trie has no nodes", ErrInvalidBlob)
	}
	if nodeCount > maxCount || edgeCount > maxCount {
		return fmt.Errorf("%w: trie declares %d nodes / %d edges, limit %d",
			ErrInvalidBlob, nodeCount, edgeCount, maxCount)
	}
	want := headerSize + trieHeaderSize + int(nodeCount)*nodeRecordSize + int(edgeCount)*4
	if len(blob) != want {
		return fmt.Errorf("%w: trie blob is %d bytes, counts describe %d",
			ErrInvalidBlob, len(blob), want)
	}
	if rootIndex >= nodeCount {
		return fmt.Errorf("%w: root index %d with %d nodes", ErrInvalidBlob, rootIndex, nodeCount)
	}

	edgeBase := headerSize + trieHeaderSize + int(nodeCount)*nodeRecordSize
	for i := 0; i < int(nodeCount); i++ {
		rec := headerSize + trieHeaderSize + i*nodeRecordSize
		typ := nodeType(blob[rec+recType])
		modifier := nodeModifier(blob[rec+recModifier])
		if typ >= nodeTypeCount {
			return fmt.Errorf("%w: node %d has type %d", ErrInvalidBlob, i, typ)
		}
		if modifier >= nodeModifierCount {
			return fmt.Errorf("%w: node %d has modifier %d", ErrInvalidBlob, i, modifier)
		}
		if modifier != modNone && typ != nodeLiteral && typ != nodeCharset {
			return fmt.Errorf("%w: node %d attaches modifier %d to type %d",
				ErrInvalidBlob, i, modifier, typ)
		}
		childStart := getU32(blob, rec+recChildStart)
		childCount := uint32(getU16(blob, rec+recChildCount))
		if childStart > edgeCount || childStart+childCount > edgeCount {
			return fmt.Errorf("%w: node %d children [%d,%d) exceed %d edges",
				ErrInvalidBlob, i, childStart, childStart+childCount, edgeCount)
		}
	}
	// Beyond the per-field range checks, the edge array must describe a
	// tree: no node referenced twice, the root referenced never. This
	// is what makes a node's depth a well-defined function of its
	// index (the precedence contract depends on that) and rules out
	// cycles that would trap the unconstrained matcher.
	referenced := make([]uint64, (nodeCount+63)/64)
	for i := 0; i < int(edgeCount); i++ {
		edge := getU32(blob, edgeBase+i*4)
		if edge >= nodeCount {
			return fmt.Errorf("%w: edge %d points at node %d of %d",
				ErrInvalidBlob, i, edge, nodeCount)
		}
		if edge == rootIndex {
			return fmt.Errorf("%w: edge %d points at the root", ErrInvalidBlob, i)
		}
		if referenced[edge/64]&(1<<(edge%64)) != 0 {
			return fmt.Errorf("%w: node %d has multiple parents", ErrInvalidBlob, edge)
		}
		referenced[edge/64] |= 1 << (edge % 64)
	}
	return nil
}

// validateRules checks the shared rule-payload framing, then hands
// each fixed record to the per-domain check along with the string
// table length.
func validateRules(blob []byte, recSize int, check func(rec []byte, tableLen uint32) error) error {
	if len(blob) < headerSize+ruleHeaderSize {
		return fmt.Errorf("%w: rule blob is %d bytes, payload header needs %d",
			ErrInvalidBlob, len(blob), headerSize+ruleHeaderSize)
	}
	ruleCount := getU32(blob, offRuleCount)
	tableLen := getU32(blob, offStrTableLen)
	if ruleCount > maxCount || tableLen > maxCount {
		return fmt.Errorf("%w: rule blob declares %d rules / %d table bytes, limit %d",
			ErrInvalidBlob, ruleCount, tableLen, maxCount)
	}
	want := headerSize + ruleHeaderSize + int(ruleCount)*recSize + int(tableLen)
	if len(blob) != want {
		return fmt.Errorf("%w: rule blob is %d bytes, counts describe %d",
			ErrInvalidBlob, len(blob), want)
	}

	table := blob[want-int(tableLen):]
	for i := 0; i < int(ruleCount); i++ {
		base := headerSize + ruleHeaderSize + i*recSize
		if err := check(blob[base:base+recSize], tableLen); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	// Every non-sentinel offset has been range-checked; additionally
	// require the table itself to be NUL-terminated so offset reads
	// cannot scan past the end.
	if tableLen > 0 && table[tableLen-1] != 0 {
		return fmt.Errorf("%w: string table is not NUL-terminated", ErrInvalidBlob)
	}
	return nil
}

func validateNetRecord(rec []byte, tableLen uint32) error {
	if Action(rec[netRecAction]) >= actionCount {
		return fmt.Errorf("%w: action %d out of range", ErrInvalidBlob, rec[netRecAction])
	}
	if Protocol(rec[netRecProtocol]) >= protocolCount {
		return fmt.Errorf("%w: protocol %d out of range", ErrInvalidBlob, rec[netRecProtocol])
	}
	if Family(rec[netRecFamily]) >= familyCount {
		return fmt.Errorf("%w: family %d out of range", ErrInvalidBlob, rec[netRecFamily])
	}
	lo := getU16(rec, netRecPortLow)
	hi := getU16(rec, netRecPortHigh)
	if (lo != 0 || hi != 0) && lo > hi {
		return fmt.Errorf("%w: port range %d-%d is reversed", ErrInvalidBlob, lo, hi)
	}
	if err := checkOffset(getU32(rec, netRecIPOff), tableLen); err != nil {
		return err
	}
	return checkOffset(getU32(rec, netRecUnixOff), tableLen)
}

func validateMountRecord(rec []byte, tableLen uint32) error {
	if Action(rec[mountRecAction]) >= actionCount {
		return fmt.Errorf("%w: action %d out of range", ErrInvalidBlob, rec[mountRecAction])
	}
	for _, off := range []int{mountRecSource, mountRecTarget, mountRecFSType, mountRecOptions} {
		if err := checkOffset(getU32(rec, off), tableLen); err != nil {
			return err
		}
	}
	return nil
}

func checkOffset(off, tableLen uint32) error {
	if off == offsetNone {
		return nil
	}
	if off >= tableLen {
		return fmt.Errorf("%w: string offset %d with %d table bytes",
			ErrInvalidBlob, off, tableLen)
	}
	return nil
}
